package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/authflow/internal/logging"
	"github.com/redmonkez12/authflow/internal/otp"
)

var ErrNotConfigured = errors.New("smtp is not configured")

type Service struct {
	smtpHost     string
	smtpPort     string
	smtpUser     string
	smtpPassword string
	fromEmail    string
	otpTTL       time.Duration
}

func NewService(smtpHost, smtpPort, smtpUser, smtpPassword, fromEmail string, otpTTL time.Duration) *Service {
	if fromEmail == "" {
		fromEmail = smtpUser
	}
	return &Service{
		smtpHost:     smtpHost,
		smtpPort:     smtpPort,
		smtpUser:     smtpUser,
		smtpPassword: smtpPassword,
		fromEmail:    fromEmail,
		otpTTL:       otpTTL,
	}
}

// SendVerificationEmail mails a one-time code and returns the Message-ID of
// the accepted message. The call honours ctx cancellation and deadline.
func (s *Service) SendVerificationEmail(ctx context.Context, name, toEmail, code string, purpose otp.Purpose) (string, error) {
	logger := logging.GetLoggerFromContext(ctx)

	if s.smtpHost == "" {
		return "", ErrNotConfigured
	}

	subject, heading := subjectFor(purpose)
	body, err := s.renderCodeEmailTemplate(name, heading, code)
	if err != nil {
		logger.Error("failed to render email template", "error", err)
		return "", fmt.Errorf("render template: %w", err)
	}

	mailID := s.newMessageID()
	if err := s.sendEmail(ctx, toEmail, subject, mailID, body); err != nil {
		logger.Error("failed to send verification email", "email", toEmail, "purpose", purpose, "error", err)
		return "", fmt.Errorf("send email: %w", err)
	}

	logger.Info("verification email sent", "email", toEmail, "purpose", purpose, "mail_id", mailID)
	return mailID, nil
}

func subjectFor(purpose otp.Purpose) (subject, heading string) {
	switch purpose {
	case otp.PurposeForgotPassword:
		return "Your password reset code", "Reset your password"
	case otp.PurposeLogin:
		return "Your login code", "Confirm it's you"
	default:
		return "Verify your email address", "Welcome!"
	}
}

func (s *Service) newMessageID() string {
	domain := "localhost"
	if at := strings.LastIndex(s.fromEmail, "@"); at >= 0 && at < len(s.fromEmail)-1 {
		domain = s.fromEmail[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

func (s *Service) buildMessage(to, subject, messageID, body string) []byte {
	return []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"Message-ID: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		s.fromEmail, to, subject, messageID, body,
	))
}

func (s *Service) sendEmail(ctx context.Context, to, subject, messageID, body string) error {
	addr := net.JoinHostPort(s.smtpHost, s.smtpPort)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// Unblock any in-flight read or write when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := smtp.NewClient(conn, s.smtpHost)
	if err != nil {
		conn.Close()
		return errOrCtx(ctx, fmt.Errorf("smtp handshake: %w", err))
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.smtpHost}); err != nil {
			return errOrCtx(ctx, fmt.Errorf("starttls: %w", err))
		}
	}
	if ok, _ := c.Extension("AUTH"); ok && s.smtpUser != "" {
		auth := smtp.PlainAuth("", s.smtpUser, s.smtpPassword, s.smtpHost)
		if err := c.Auth(auth); err != nil {
			return errOrCtx(ctx, fmt.Errorf("smtp auth: %w", err))
		}
	}

	if err := c.Mail(s.fromEmail); err != nil {
		return errOrCtx(ctx, fmt.Errorf("mail from: %w", err))
	}
	if err := c.Rcpt(to); err != nil {
		return errOrCtx(ctx, fmt.Errorf("rcpt to: %w", err))
	}

	w, err := c.Data()
	if err != nil {
		return errOrCtx(ctx, fmt.Errorf("data: %w", err))
	}
	if _, err := w.Write(s.buildMessage(to, subject, messageID, body)); err != nil {
		return errOrCtx(ctx, fmt.Errorf("write body: %w", err))
	}
	if err := w.Close(); err != nil {
		return errOrCtx(ctx, fmt.Errorf("finish data: %w", err))
	}

	return c.Quit()
}

// errOrCtx prefers the context error so callers can tell a timeout apart.
func errOrCtx(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	// the conn deadline can fire a moment before ctx records it
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

var codeEmailTemplate = template.Must(template.New("code").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
        }
        .header {
            background-color: #4F46E5;
            color: white;
            padding: 20px;
            text-align: center;
            border-radius: 5px 5px 0 0;
        }
        .content {
            background-color: #f9f9f9;
            padding: 30px;
            border-radius: 0 0 5px 5px;
        }
        .code {
            font-size: 32px;
            letter-spacing: 8px;
            font-weight: bold;
            text-align: center;
            color: #4F46E5;
            margin: 20px 0;
        }
        .footer {
            margin-top: 30px;
            font-size: 12px;
            color: #666;
            text-align: center;
        }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Heading}}</h1>
    </div>
    <div class="content">
        <p>Hi {{.Name}},</p>
        <p>Use the code below to continue. Do not share it with anyone.</p>

        <div class="code">{{.Code}}</div>

        <p style="margin-top: 30px;">If you didn't request this code, you can safely ignore this email.</p>
    </div>
    <div class="footer">
        <p>This code will expire in {{.ExpiresIn}}.</p>
    </div>
</body>
</html>
`))

func (s *Service) renderCodeEmailTemplate(name, heading, code string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Name      string
		Heading   string
		Code      string
		ExpiresIn string
	}{
		Name:      name,
		Heading:   heading,
		Code:      code,
		ExpiresIn: fmt.Sprintf("%d minutes", int(s.otpTTL.Minutes())),
	}

	if err := codeEmailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}

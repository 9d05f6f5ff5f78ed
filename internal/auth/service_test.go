package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/authflow/internal/otp"
	"github.com/redmonkez12/authflow/internal/user"
)

func TestSignupVerifyScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Signup(ctx, SignupInput{
		Name: "Ada", Email: "ada@x.com", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass",
	})
	require.NoError(t, err)
	assert.False(t, res.User.EmailVerified)
	require.NotEmpty(t, res.Context)

	mail := env.mailer.last(t)
	assert.Equal(t, "ada@x.com", mail.email)
	assert.Equal(t, otp.PurposeSignup, mail.purpose)

	verified, err := env.svc.VerifyOtp(ctx, VerifyInput{
		Email: "ada@x.com", Code: mail.code, Purpose: otp.PurposeSignup, Context: res.Context,
	})
	require.NoError(t, err)
	require.NotNil(t, verified.Tokens)
	assert.Empty(t, verified.ResetToken)
	assert.True(t, verified.User.EmailVerified)

	claims, err := env.tokens.VerifyToken(verified.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
	assert.True(t, claims.IsAccess())

	_, err = env.manager.Validate(ctx, verified.Tokens.RefreshToken)
	require.NoError(t, err)

	env.clock.Advance(testOtpTTL + 1)
	_, err = env.svc.VerifyOtp(ctx, VerifyInput{Email: "ada@x.com", Code: mail.code, Purpose: otp.PurposeSignup})
	assert.ErrorIs(t, err, ErrOtpNotFound)
}

func TestForgotResetScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signedUp := env.signupVerified(t)
	sessionsBefore := env.sessions.CountByUser(signedUp.User.ID)

	contextToken, err := env.svc.ForgotPassword(ctx, "ada@x.com")
	require.NoError(t, err)
	mail := env.mailer.last(t)
	assert.Equal(t, otp.PurposeForgotPassword, mail.purpose)

	verified, err := env.svc.VerifyOtp(ctx, VerifyInput{
		Email: "ada@x.com", Code: mail.code, Purpose: otp.PurposeForgotPassword, Context: contextToken,
	})
	require.NoError(t, err)
	assert.Nil(t, verified.Tokens, "no session before the reset")
	require.NotEmpty(t, verified.ResetToken)
	assert.Equal(t, sessionsBefore, env.sessions.CountByUser(signedUp.User.ID))

	claims, err := env.tokens.VerifyToken(verified.ResetToken)
	require.NoError(t, err)
	assert.Equal(t, otp.PurposeForgotPassword, claims.Purpose)

	require.NoError(t, env.svc.ResetPassword(ctx, verified.ResetToken, "N3w!Password", "N3w!Password"))

	err = env.svc.ResetPassword(ctx, verified.ResetToken, "Th1rd!Password", "Th1rd!Password")
	assert.ErrorIs(t, err, ErrTokenInvalid, "reset token works once")

	env.clock.Advance(testPurposeTTL)
	err = env.svc.ResetPassword(ctx, verified.ResetToken, "Th1rd!Password", "Th1rd!Password")
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = env.svc.Login(ctx, "ada@x.com", "Str0ng!Pass", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	login, err := env.svc.Login(ctx, "ada@x.com", "N3w!Password", "")
	require.NoError(t, err)
	assert.NotNil(t, login.Tokens)

	_, err = env.manager.Validate(ctx, signedUp.Tokens.RefreshToken)
	assert.NoError(t, err, "reset leaves existing sessions alone")
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   SignupInput
		want error
	}{
		{"name", SignupInput{Email: "a@x.com", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass"}, ErrNameRequired},
		{"email", SignupInput{Name: "A", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass"}, ErrEmailRequired},
		{"email format", SignupInput{Name: "A", Email: "not-an-email", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass"}, ErrInvalidEmailFormat},
		{"display name", SignupInput{Name: "A", Email: "Ada <a@x.com>", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass"}, ErrInvalidEmailFormat},
		{"password", SignupInput{Name: "A", Email: "a@x.com"}, ErrPasswordRequired},
		{"short", SignupInput{Name: "A", Email: "a@x.com", Password: "short", ConfirmPassword: "short"}, ErrPasswordTooShort},
		{"mismatch", SignupInput{Name: "A", Email: "a@x.com", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pas"}, ErrPasswordMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Signup(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, 0, env.users.Count())
	assert.Equal(t, 0, env.mailer.count())
}

func TestSignup_DuplicateEmailIsConflict(t *testing.T) {
	env := newTestEnv(t)
	env.signupVerified(t)

	_, err := env.svc.Signup(context.Background(), SignupInput{
		Name: "Ada", Email: "ADA@x.com", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass",
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, env.users.Count())
}

func TestSignup_MailFailureRollsBackUser(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = errMailDown

	_, err := env.svc.Signup(context.Background(), SignupInput{
		Name: "Ada", Email: "ada@x.com", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass",
	})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 0, env.users.Count())
}

func TestLogin_UnverifiedSendsLoginCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Signup(ctx, SignupInput{
		Name: "Ada", Email: "ada@x.com", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass",
	})
	require.NoError(t, err)

	res, err := env.svc.Login(ctx, "ada@x.com", "Str0ng!Pass", "")
	require.NoError(t, err)
	assert.True(t, res.VerificationRequired)
	assert.Nil(t, res.Tokens)
	require.NotEmpty(t, res.Context)

	mail := env.mailer.last(t)
	assert.Equal(t, otp.PurposeLogin, mail.purpose)

	verified, err := env.svc.VerifyOtp(ctx, VerifyInput{
		Email: "ada@x.com", Code: mail.code, Purpose: otp.PurposeLogin, Context: res.Context,
	})
	require.NoError(t, err)
	assert.True(t, verified.User.EmailVerified)
	assert.NotNil(t, verified.Tokens)
}

func TestLogin_ErrorsAreIdentical(t *testing.T) {
	env := newTestEnv(t)
	env.signupVerified(t)
	ctx := context.Background()

	_, errWrong := env.svc.Login(ctx, "ada@x.com", "Str0ng!Pas", "")
	_, errMissing := env.svc.Login(ctx, "nobody@x.com", "Str0ng!Pas", "")
	_, errEmpty := env.svc.Login(ctx, "ada@x.com", "", "")

	require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errMissing.Error())
	assert.Equal(t, errWrong.Error(), errEmpty.Error())
}

func TestVerifyOtp_PurposeMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Signup(ctx, SignupInput{
		Name: "Ada", Email: "ada@x.com", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass",
	})
	require.NoError(t, err)
	code := env.mailer.last(t).code

	_, err = env.svc.VerifyOtp(ctx, VerifyInput{Email: "ada@x.com", Code: code, Purpose: otp.PurposeLogin})
	assert.ErrorIs(t, err, ErrOtpPurposeMismatch)

	_, err = env.svc.VerifyOtp(ctx, VerifyInput{Email: "ada@x.com", Code: code, Purpose: otp.PurposeLogin, Context: res.Context})
	assert.ErrorIs(t, err, ErrOtpPurposeMismatch, "context was issued for signup")

	_, err = env.svc.VerifyOtp(ctx, VerifyInput{Email: "ada@x.com", Code: code, Purpose: otp.PurposeSignup, Context: res.Context})
	assert.NoError(t, err, "mismatches do not burn the code")
}

func TestVerifyOtp_ContextChecks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Signup(ctx, SignupInput{
		Name: "Ada", Email: "ada@x.com", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass",
	})
	require.NoError(t, err)
	code := env.mailer.last(t).code

	_, err = env.svc.Signup(ctx, SignupInput{
		Name: "Bob", Email: "bob@x.com", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass",
	})
	require.NoError(t, err)

	_, err = env.svc.VerifyOtp(ctx, VerifyInput{Email: "bob@x.com", Code: code, Purpose: otp.PurposeSignup, Context: res.Context})
	assert.ErrorIs(t, err, ErrTokenInvalid, "context belongs to another user")

	_, err = env.svc.VerifyOtp(ctx, VerifyInput{Email: "ada@x.com", Code: code, Purpose: otp.PurposeSignup, Context: "garbage"})
	assert.ErrorIs(t, err, ErrTokenInvalid)

	env.clock.Advance(testPurposeTTL)
	_, err = env.svc.VerifyOtp(ctx, VerifyInput{Email: "ada@x.com", Code: code, Purpose: otp.PurposeSignup, Context: res.Context})
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = env.svc.VerifyOtp(ctx, VerifyInput{Email: "nobody@x.com", Code: code, Purpose: otp.PurposeSignup})
	assert.ErrorIs(t, err, ErrOtpNotFound)

	_, err = env.svc.VerifyOtp(ctx, VerifyInput{Email: "ada@x.com", Code: " ", Purpose: otp.PurposeSignup})
	assert.ErrorIs(t, err, ErrCodeRequired)

	_, err = env.svc.VerifyOtp(ctx, VerifyInput{Email: "ada@x.com", Code: code, Purpose: "BOGUS"})
	assert.ErrorIs(t, err, ErrInvalidPurpose)
}

func TestSendOtp_DoesNotRevealAccounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signupVerified(t)
	sent := env.mailer.count()

	unknown, err := env.svc.SendOtp(ctx, "nobody@x.com", otp.PurposeSignup)
	require.NoError(t, err)
	assert.NotEmpty(t, unknown)

	verified, err := env.svc.SendOtp(ctx, "ada@x.com", otp.PurposeLogin)
	require.NoError(t, err)
	assert.NotEmpty(t, verified)
	assert.Equal(t, sent, env.mailer.count())

	claims, err := env.tokens.VerifyToken(unknown)
	require.NoError(t, err)
	assert.Equal(t, otp.PurposeSignup, claims.Purpose)

	_, err = env.svc.ForgotPassword(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Equal(t, sent, env.mailer.count())

	_, err = env.svc.ForgotPassword(ctx, "ada@x.com")
	require.NoError(t, err)
	assert.Equal(t, sent+1, env.mailer.count())

	_, err = env.svc.SendOtp(ctx, "ada@x.com", "BOGUS")
	assert.ErrorIs(t, err, ErrInvalidPurpose)
}

func TestSendOtp_ResendForUnverifiedUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Signup(ctx, SignupInput{
		Name: "Ada", Email: "ada@x.com", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass",
	})
	require.NoError(t, err)
	sent := env.mailer.count()

	contextToken, err := env.svc.SendOtp(ctx, "ada@x.com", otp.PurposeSignup)
	require.NoError(t, err)
	assert.Equal(t, sent+1, env.mailer.count())
	second := env.mailer.last(t).code

	verified, err := env.svc.VerifyOtp(ctx, VerifyInput{Email: "ada@x.com", Code: second, Purpose: otp.PurposeSignup, Context: contextToken})
	require.NoError(t, err)
	assert.True(t, verified.User.EmailVerified)
}

func TestResetPassword_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signedUp := env.signupVerified(t)

	err := env.svc.ResetPassword(ctx, signedUp.Tokens.AccessToken, "N3w!Password", "N3w!Password")
	assert.ErrorIs(t, err, ErrTokenInvalid, "access tokens cannot reset")

	signupContext, err := env.tokens.IssuePurposeToken(signedUp.User.ID, otp.PurposeSignup, "", testPurposeTTL)
	require.NoError(t, err)
	err = env.svc.ResetPassword(ctx, signupContext, "N3w!Password", "N3w!Password")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	unbound, err := env.tokens.IssuePurposeToken(signedUp.User.ID, otp.PurposeForgotPassword, "", testPurposeTTL)
	require.NoError(t, err)
	err = env.svc.ResetPassword(ctx, unbound, "N3w!Password", "N3w!Password")
	assert.ErrorIs(t, err, ErrTokenInvalid, "forgot-password context is not a reset token")

	err = env.svc.ResetPassword(ctx, "whatever", "short", "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestGoogleLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signedUp := env.signupVerified(t)

	env.oauth.profile = &OAuthProfile{
		ProviderID: "google-1", Email: "ada@x.com", EmailVerified: true, LastName: "King", Picture: "pic",
	}

	tokens, u, err := env.svc.GoogleLogin(ctx, "google-token", "")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.Equal(t, signedUp.User.ID, u.ID)
	assert.Equal(t, "Ada", u.FirstName)
	assert.Equal(t, "Lovelace", u.LastName, "existing names are not overwritten")
	assert.Equal(t, "pic", u.Picture)
	assert.Equal(t, 1, env.users.Count())

	_, _, err = env.svc.GoogleLogin(ctx, "expired", "")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	env.oauth.err = errMailDown
	_, _, err = env.svc.GoogleLogin(ctx, "google-token", "")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestGoogleLogin_UnverifiedSignupCannotKeepAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	squatted, err := env.svc.Signup(ctx, SignupInput{
		Name: "Mallory", Email: "ada@x.com", Password: "Att4cker!pw", ConfirmPassword: "Att4cker!pw",
	})
	require.NoError(t, err)

	env.oauth.profile = &OAuthProfile{ProviderID: "google-1", Email: "ada@x.com", EmailVerified: true, FirstName: "Ada"}
	tokens, u, err := env.svc.GoogleLogin(ctx, "google-token", "")
	require.NoError(t, err)
	require.NotNil(t, tokens)
	assert.Equal(t, squatted.User.ID, u.ID)
	assert.True(t, u.EmailVerified)

	res, err := env.svc.Login(ctx, "ada@x.com", "Att4cker!pw", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, res)
	assert.Equal(t, 1, env.sessions.CountByUser(u.ID), "only the Google session exists")
}

func TestRefreshLogoutAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signedUp := env.signupVerified(t)
	sessionID := signedUp.Tokens.RefreshToken

	refreshed, err := env.svc.Refresh(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, refreshed.RefreshToken, "session id is not rotated")
	assert.Equal(t, signedUp.Tokens.SessionExpiresAt, refreshed.SessionExpiresAt)

	me, err := env.svc.Me(ctx, signedUp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@x.com", me.Email)

	require.NoError(t, env.svc.Logout(ctx, sessionID))
	require.NoError(t, env.svc.Logout(ctx, sessionID))
	_, err = env.svc.Refresh(ctx, sessionID)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	require.NoError(t, env.svc.DeleteAccount(ctx, signedUp.User.ID))
	assert.Equal(t, 0, env.users.Count())
	assert.Equal(t, 0, env.sessions.CountByUser(signedUp.User.ID))
	assert.Empty(t, env.otps.All(signedUp.User.ID))

	_, err = env.svc.Me(ctx, signedUp.User.ID)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

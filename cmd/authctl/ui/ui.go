package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/redmonkez12/authflow/internal/user"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
)

// Confirm asks a yes/no question and returns the answer.
func Confirm(title, description string) (bool, error) {
	var ok bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(huh.ThemeCatppuccin())

	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}

// PrintUser prints the account fields an operator needs.
func PrintUser(u *user.User) {
	fmt.Println(titleStyle.Render(u.Email))
	field("ID", u.ID.String())
	field("Username", u.Username)
	field("Name", u.DisplayName())
	field("Verified", fmt.Sprintf("%t", u.EmailVerified))
	field("Password", fmt.Sprintf("%t", u.HasPassword()))
	field("OAuth", fmt.Sprintf("%t", u.HasOAuth()))
	field("Created", u.CreatedAt.Format(time.RFC3339))
	fmt.Println()
}

func field(label, value string) {
	fmt.Printf("  %s %s\n", subtleStyle.Render(fmt.Sprintf("%-10s", label+":")), value)
}

// PrintSuccess prints a success message.
func PrintSuccess(msg string) {
	fmt.Println(successStyle.Render(msg))
}

// PrintError prints an error message.
func PrintError(msg string) {
	fmt.Println(errorStyle.Render("Error: " + msg))
}

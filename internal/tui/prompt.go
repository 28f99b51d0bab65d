package tui

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

const MinPasswordLength = 7

var (
	ErrPromptCancelled  = errors.New("prompt cancelled")
	ErrNonInteractive   = errors.New("not running in an interactive terminal")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordMismatch = errors.New("the two passwords do not match")
)

// MockPrompts replaces the interactive prompts in tests.
type MockPrompts struct {
	HiddenInputFunc func(title string) (string, error)
	NewPasswordFunc func(title string) (password, confirmation string, err error)
}

var mock *MockPrompts

func SetMock(m *MockPrompts) { mock = m }

func ClearMock() { mock = nil }

func promptErr(err error) error {
	if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, huh.ErrTimeout) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrPromptCancelled, err)
	}
	return fmt.Errorf("prompt: %w", err)
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// HiddenInput asks for a value without echoing it.
func HiddenInput(title string) (string, error) {
	return HiddenInputContext(context.Background(), title)
}

func HiddenInputContext(ctx context.Context, title string) (string, error) {
	if mock != nil && mock.HiddenInputFunc != nil {
		return mock.HiddenInputFunc(title)
	}

	var result string
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(title).
			EchoMode(huh.EchoModePassword).
			Value(&result),
	)).RunWithContext(ctx)
	if err != nil {
		return "", promptErr(err)
	}
	return result, nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

func ValidateConfirmation(password, confirmation string) error {
	if password != confirmation {
		return ErrPasswordMismatch
	}
	return nil
}

// NewPassword asks for a password twice. The interactive form keeps asking
// until both entries are valid; press Ctrl-C to cancel.
func NewPassword(title string) (string, error) {
	if mock != nil && mock.NewPasswordFunc != nil {
		password, confirmation, err := mock.NewPasswordFunc(title)
		if err != nil {
			return "", err
		}
		if err := ValidatePassword(password); err != nil {
			return "", err
		}
		if err := ValidateConfirmation(password, confirmation); err != nil {
			return "", err
		}
		return password, nil
	}

	var password, confirmation string
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(title).
			EchoMode(huh.EchoModePassword).
			Validate(ValidatePassword).
			Value(&password),
		huh.NewInput().
			Title("Re-type the password").
			EchoMode(huh.EchoModePassword).
			Validate(func(s string) error {
				return ValidateConfirmation(password, s)
			}).
			Value(&confirmation),
	)).Run()
	if err != nil {
		return "", promptErr(err)
	}
	return password, nil
}

// TerminalPasswords obtains the decryption password from the terminal.
type TerminalPasswords struct {
	Title string
}

func (p TerminalPasswords) Obtain(ctx context.Context) (string, error) {
	title := p.Title
	if title == "" {
		title = "Type your password to decrypt the env, or press enter to skip it"
	}
	if mock == nil && !IsInteractive() {
		return "", ErrNonInteractive
	}
	return HiddenInputContext(ctx, title)
}

package telegram

import (
	"context"
	"errors"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

var _ auth.UserAuthenticator = PhonePrompt{}

// PhonePrompt answers the phone login flow. The code and 2FA password are asked lazily.
type PhonePrompt struct {
	Number      string
	AskCode     func(ctx context.Context) (string, error)
	AskPassword func(ctx context.Context) (string, error)
}

// ErrSignUpUnsupported is returned when the phone number has no telegram account.
var ErrSignUpUnsupported = errors.New("phone number is not registered")

func (p PhonePrompt) Phone(_ context.Context) (string, error) {
	return p.Number, nil
}

func (p PhonePrompt) Password(ctx context.Context) (string, error) {
	if p.AskPassword == nil {
		return "", auth.ErrPasswordNotProvided
	}
	return p.AskPassword(ctx)
}

func (p PhonePrompt) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	if p.AskCode == nil {
		return "", errors.New("no code prompt")
	}
	code, err := p.AskCode(ctx)
	return strings.TrimSpace(code), err
}

func (p PhonePrompt) AcceptTermsOfService(_ context.Context, tos tg.HelpTermsOfService) error {
	return &auth.SignUpRequired{TermsOfService: tos}
}

func (p PhonePrompt) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, ErrSignUpUnsupported
}

// maskPhone keeps the last four digits for logs.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

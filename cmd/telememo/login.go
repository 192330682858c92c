package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/blockedby/telememo/internal/telegram"
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		usePhone bool
		phone    string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize a telegram account by QR code or phone code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if _, err := a.telegram(ctx, false); err != nil {
				return err
			}
			if a.tg.GetStatus() == telegram.StatusReady {
				fmt.Fprintln(out, "already logged in")
				return nil
			}

			var err error
			if usePhone || phone != "" {
				if phone == "" {
					phone = a.cfg.TGPhone
				}
				err = loginPhone(ctx, a.tg, phone, cmd.InOrStdin(), out)
			} else {
				err = loginQR(ctx, a.tg, out)
			}
			if errors.Is(err, telegram.ErrAlreadyLoggedIn) {
				fmt.Fprintln(out, "already logged in")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "logged in, session saved to", a.cfg.SessionPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&usePhone, "phone", false, "log in with a code sent to the phone instead of a QR code")
	cmd.Flags().StringVar(&phone, "number", "", "phone number in international format (implies --phone)")
	return cmd
}

func loginQR(ctx context.Context, mgr *telegram.Manager, out io.Writer) error {
	fmt.Fprintln(out, "Scan the code with Telegram: Settings > Devices > Link Desktop Device")
	return mgr.StartQR(ctx, func(url string) {
		qrterminal.GenerateHalfBlock(url, qrterminal.L, out)
		fmt.Fprintln(out, "waiting for confirmation...")
	})
}

func loginPhone(ctx context.Context, mgr *telegram.Manager, phone string, in io.Reader, out io.Writer) error {
	lines := bufio.NewReader(in)
	ask := func(prompt string) func(context.Context) (string, error) {
		return func(context.Context) (string, error) {
			fmt.Fprint(out, prompt)
			line, err := lines.ReadString('\n')
			if err != nil && line == "" {
				return "", fmt.Errorf("read input: %w", err)
			}
			return strings.TrimSpace(line), nil
		}
	}

	if phone == "" {
		var err error
		if phone, err = ask("Phone number: ")(ctx); err != nil {
			return err
		}
	}

	return mgr.StartPhone(ctx, telegram.PhonePrompt{
		Number:      phone,
		AskCode:     ask("Code: "),
		AskPassword: ask("2FA password: "),
	})
}

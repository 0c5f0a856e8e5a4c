// Command telegram-session performs the interactive login flow and prints a
// session token for TELEGRAM_SESSION_STRING. The server itself never logs in
// interactively; run this once per account, locally.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/gotd/td/session"
	gotd "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"

	"github.com/tIKOOC/telegram-voice/config"
	"github.com/tIKOOC/telegram-voice/src/telegram"
)

func main() {
	cfg := config.FromEnv()
	if cfg.Telegram.APIID == 0 || cfg.Telegram.APIHash == "" || cfg.Telegram.Phone == "" {
		color.Red("TELEGRAM_API_ID, TELEGRAM_API_HASH and TELEGRAM_PHONE must be set")
		os.Exit(1)
	}

	color.Cyan("Generating Telegram session token")
	fmt.Printf("Phone:  %s\n", cfg.Telegram.Phone)
	fmt.Printf("API ID: %d\n\n", cfg.Telegram.APIID)

	if err := run(context.Background(), cfg); err != nil {
		color.Red("login failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	storage := new(session.StorageMemory)
	client := gotd.NewClient(cfg.Telegram.APIID, cfg.Telegram.APIHash, gotd.Options{
		SessionStorage: storage,
	})

	flow := auth.NewFlow(terminalAuth{phone: cfg.Telegram.Phone}, auth.SendCodeOptions{})

	return client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return err
		}

		me, err := client.Self(ctx)
		if err != nil {
			return err
		}
		color.Green("Successfully connected!")
		fmt.Printf("User: %s %s (@%s)\n\n", me.FirstName, me.LastName, me.Username)

		raw, err := storage.LoadSession(ctx)
		if err != nil {
			return err
		}
		token := telegram.EncodeToken(raw)

		color.Yellow("Set this as TELEGRAM_SESSION_STRING:")
		fmt.Println()
		fmt.Println(token)
		return nil
	})
}

// terminalAuth prompts on the terminal for the login code and the optional
// 2FA password.
type terminalAuth struct {
	phone string
}

func (a terminalAuth) Phone(_ context.Context) (string, error) {
	return a.phone, nil
}

func (a terminalAuth) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	fmt.Print("Enter the code sent to your Telegram app: ")
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

func (a terminalAuth) Password(_ context.Context) (string, error) {
	fmt.Print("Enter your 2FA password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func (a terminalAuth) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (a terminalAuth) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign-up is not supported; use an existing account")
}

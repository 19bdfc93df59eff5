// Command seed creates an active operator account with one AI-enabled client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"inboxrelay/internal/account"
	"inboxrelay/internal/auth"
	"inboxrelay/internal/db"
	"inboxrelay/internal/secret"
)

func main() {
	_ = godotenv.Load()

	var (
		email      = flag.String("email", "test@example.com", "account email")
		username   = flag.String("username", "testuser", "account username")
		password   = flag.String("password", "", "account password (required)")
		clientName = flag.String("client", "Test Client", "client name")
		persona    = flag.String("persona", "", "client persona")
		liPhone    = flag.String("linkedin-phone", "", "LinkedIn login, stored sealed")
		liPassword = flag.String("linkedin-password", "", "LinkedIn password, stored sealed")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(context.Background(), logger, seedInput{
		Email: *email, Username: *username, Password: *password,
		ClientName: *clientName, Persona: *persona,
		LinkedInPhone: *liPhone, LinkedInPassword: *liPassword,
	}); err != nil {
		logger.Error("seed failed", "err", err)
		os.Exit(1)
	}
}

type seedInput struct {
	Email, Username, Password       string
	ClientName, Persona             string
	LinkedInPhone, LinkedInPassword string
}

func run(ctx context.Context, logger *slog.Logger, in seedInput) error {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	key := strings.TrimSpace(os.Getenv("ENCRYPTION_KEY"))
	if dsn == "" || key == "" {
		return errors.New("DATABASE_URL and ENCRYPTION_KEY are required")
	}
	if len(in.Password) < 6 {
		return errors.New("-password must be at least 6 characters")
	}

	box, err := secret.NewBox(key)
	if err != nil {
		return err
	}
	gdb, err := db.Connect(dsn, logger)
	if err != nil {
		return err
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		return err
	}
	store := &account.Store{DB: gdb}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return err
	}
	acc := &account.Account{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		Status:       account.StatusActive,
		Settings:     account.DefaultSettings(),
	}
	if err := store.Create(ctx, acc); err != nil {
		if errors.Is(err, account.ErrExists) {
			return fmt.Errorf("account %s already exists", in.Email)
		}
		return err
	}

	c := &account.Client{AccountID: acc.ID, Name: in.ClientName, AIActive: true, Persona: in.Persona}
	if in.LinkedInPhone != "" || in.LinkedInPassword != "" {
		if err := c.SetCredentials(box, in.LinkedInPhone, in.LinkedInPassword); err != nil {
			return err
		}
	}
	if err := store.CreateClient(ctx, c); err != nil {
		return err
	}

	logger.Info("seeded", "account_id", acc.ID, "email", acc.Email, "client_id", c.ID)
	fmt.Printf("accountId=%s clientId=%s\n", acc.ID, c.ID)
	return nil
}

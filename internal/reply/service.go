package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"inboxrelay/internal/account"
)

var (
	ErrUnauthorized  = errors.New("client does not belong to this account")
	ErrAIDisabled    = errors.New("AI is disabled for this client")
	ErrNotConfigured = errors.New("reply provider is not configured")
	ErrEmpty         = errors.New("provider returned an empty reply")
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 200
)

type ClientLookup interface {
	Client(ctx context.Context, accountID, clientID uuid.UUID) (*account.Client, error)
}

type Request struct {
	AccountID    uuid.UUID
	ClientID     uuid.UUID
	SenderName   string
	IncomingText string
}

type Service struct {
	Clients  ClientLookup
	Provider Provider
	Logger   *slog.Logger
	Sampling Sampling
}

func NewService(clients ClientLookup, provider Provider, logger *slog.Logger) *Service {
	return &Service{
		Clients:  clients,
		Provider: provider,
		Logger:   logger,
		Sampling: Sampling{Temperature: defaultTemperature, MaxTokens: defaultMaxTokens},
	}
}

// GenerateReply drafts a reply in the client's voice. The client is looked up
// under req.AccountID again, so a caller cannot generate for a foreign client.
func (s *Service) GenerateReply(ctx context.Context, req Request) (string, error) {
	client, err := s.Clients.Client(ctx, req.AccountID, req.ClientID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.Logger.ErrorContext(ctx, "reply for foreign client",
				"account_id", req.AccountID, "client_id", req.ClientID)
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("load client: %w", err)
	}
	if !client.AIActive {
		return "", ErrAIDisabled
	}
	if s.Provider == nil {
		return "", ErrNotConfigured
	}

	prompt := BuildPrompt(client, req.SenderName, req.IncomingText)
	s.Logger.DebugContext(ctx, "generating reply", "client_id", client.ID, "prompt_len", len(prompt))

	text, err := s.Provider.Complete(ctx, []ChatMessage{
		{Role: "system", Content: prompt},
		{Role: "user", Content: "Generate a reply to this message."},
	}, s.Sampling)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// BuildPrompt renders the system prompt from the client's name, persona and
// context documents.
func BuildPrompt(c *account.Client, senderName, incoming string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are responding to a LinkedIn message on behalf of %s. ", c.Name)
	if c.Persona != "" {
		fmt.Fprintf(&b, "\n\nPersona:\n%s", c.Persona)
	}
	if len(c.Documents) > 0 {
		b.WriteString("\n\nContext Documents:")
		for i, d := range c.Documents {
			name := d.Name
			if name == "" {
				name = "Untitled"
			}
			fmt.Fprintf(&b, "\n\nDocument %d (%s):\n%s", i+1, name, d.Content)
		}
	}
	if senderName == "" {
		senderName = "someone"
	}
	fmt.Fprintf(&b, "\n\nYou received a message from %s: %q", senderName, incoming)
	b.WriteString("\n\nGenerate a professional, friendly, and appropriate response. Keep it concise (2-3 sentences).")
	return b.String()
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/corvus-ai/corvid/internal/app"
	"github.com/corvus-ai/corvid/internal/config"
	"github.com/corvus-ai/corvid/internal/conversation"
)

// runAsk answers one question without the TUI and prints the result.
func runAsk(args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return errors.New("usage: corvid ask <question>")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(context.Background()); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	answer, convID, err := a.Orch.Ask(ctx, conversation.ChatRequest{
		Tenant:  cfg.Tenant,
		UserID:  currentUser(),
		Message: question,
	})
	if err != nil {
		return err
	}

	fmt.Println(answer)
	a.Logger.Debug("exchange stored", "conversation_id", convID)
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/corvus-ai/corvid/internal/app"
	"github.com/corvus-ai/corvid/internal/config"
)

// runList prints the tenant's recent conversations.
func runList() error {
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

	conversations, err := a.Store.List(ctx, cfg.Tenant, 50)
	if err != nil {
		return err
	}
	if len(conversations) == 0 {
		fmt.Println("no conversations")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tTITLE\tUPDATED")
	for _, c := range conversations {
		title := c.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			c.ID, c.UserID, title, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/corvus-ai/corvid/internal/app"
	"github.com/corvus-ai/corvid/internal/config"
	"github.com/corvus-ai/corvid/internal/ingest"
)

// runIngest loads one or more files into the knowledge base. The file
// name (without extension) becomes the document ID, so re-ingesting an
// updated file replaces its earlier chunks.
func runIngest(paths []string) error {
	if len(paths) == 0 {
		return errors.New("usage: corvid ingest <file>...")
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

	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		base := filepath.Base(path)
		id := strings.TrimSuffix(base, filepath.Ext(base))

		res, err := a.Pipeline.Ingest(ctx, cfg.Tenant, ingest.Document{
			ID:      id,
			Title:   id,
			Content: string(content),
			Metadata: map[string]any{
				"source": path,
			},
		})
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		fmt.Printf("%s: %d chunks\n", res.DocumentID, res.Chunks)
	}
	return nil
}

// runRemove deletes a document's chunks from the knowledge base.
func runRemove(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: corvid remove <doc-id>")
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

	n, err := a.Pipeline.Remove(ctx, cfg.Tenant, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s: removed %d chunks\n", args[0], n)
	return nil
}

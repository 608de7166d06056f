package observability

import (
	"context"
	"testing"

	"github.com/corvus-ai/corvid/internal/config"
	"github.com/corvus-ai/corvid/internal/log"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: false}, log.NewNop())
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("Setup() shutdown = nil, want no-op function")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

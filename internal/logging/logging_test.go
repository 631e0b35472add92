package logging

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("request_id", "req-1")

	t.Run("returns stored logger", func(t *testing.T) {
		ctx := WithLogger(context.Background(), logger)
		assert.Same(t, logger, FromContext(ctx))
	})

	t.Run("falls back to default", func(t *testing.T) {
		assert.Same(t, slog.Default(), FromContext(context.Background()))
	})

	t.Run("falls back to the given logger", func(t *testing.T) {
		assert.Same(t, logger, FromContextOr(context.Background(), logger))
	})
}

package adapter

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/zen-systems/mediagate/pkg/artifact"
)

// lenientAdapter reports transport failures as an empty result. Content
// rejections, failed jobs, timeouts and malformed responses still fail.
type lenientAdapter struct {
	Adapter
	logger *zap.Logger
}

// Lenient wraps a so that *APIError results become an empty, non-nil slice
// and a warning log entry.
func Lenient(a Adapter, logger *zap.Logger) Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &lenientAdapter{Adapter: a, logger: logger}
}

func (l *lenientAdapter) Generate(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	arts, err := l.Adapter.Generate(ctx, prompt, opts)
	var apiErr *APIError
	if err != nil && errors.As(err, &apiErr) {
		l.logger.Warn("generation failed, returning no artifacts",
			zap.String("provider", string(l.Provider())),
			zap.Int("status", apiErr.Status),
			zap.Error(err))
		return []*artifact.Artifact{}, nil
	}
	return arts, err
}

// Unwrap returns the decorated adapter.
func (l *lenientAdapter) Unwrap() Adapter { return l.Adapter }

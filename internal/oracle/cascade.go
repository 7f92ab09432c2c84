package oracle

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cascade queries an explicit ordered list of evaluators with a per-call
// timeout. The first non-error, shape-valid response short-circuits the
// rest; when every remote fails, the fallback evaluator decides. The
// fallback is local and infallible, so Cascade.Assess never fails unless
// the parent context is cancelled.
type Cascade struct {
	evaluators []Evaluator
	fallback   Evaluator
	timeout    time.Duration
	logger     *zap.Logger
}

// NewCascade creates a Cascade. perCallTimeout bounds each remote call
// individually (default 5s); fallback must be non-nil.
func NewCascade(evaluators []Evaluator, fallback Evaluator, perCallTimeout time.Duration, logger *zap.Logger) *Cascade {
	if perCallTimeout == 0 {
		perCallTimeout = 5 * time.Second
	}
	return &Cascade{
		evaluators: evaluators,
		fallback:   fallback,
		timeout:    perCallTimeout,
		logger:     logger,
	}
}

// Assess implements Evaluator.
func (c *Cascade) Assess(ctx context.Context, req AssessmentRequest) (*Assessment, error) {
	for i, ev := range c.evaluators {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		a, err := ev.Assess(callCtx, req)
		cancel()
		if err != nil {
			c.logger.Warn("credit oracle failed, trying next",
				zap.Int("position", i),
				zap.Error(err),
			)
			continue
		}
		if err := validateShape(a); err != nil {
			c.logger.Warn("credit oracle returned malformed assessment, trying next",
				zap.Int("position", i),
				zap.Error(err),
			)
			continue
		}
		return a, nil
	}

	c.logger.Info("all remote credit oracles unavailable, using local rules")
	return c.fallback.Assess(ctx, req)
}

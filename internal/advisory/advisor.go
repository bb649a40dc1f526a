package advisory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nayasahai/recovery/internal/incident"
	"github.com/nayasahai/recovery/internal/metrics"
)

// DefaultTimeout bounds a single oracle call
const DefaultTimeout = 10 * time.Second

// ErrNoOracle is reported when no oracle is configured
var ErrNoOracle = errors.New("advisory oracle not configured")

// Advisor calls the oracle once per request and reconciles the answer
type Advisor struct {
	oracle  Oracle
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewAdvisor creates an advisor. A nil oracle makes every request fall back.
func NewAdvisor(oracle Oracle, timeout time.Duration, logger *zap.Logger, collector *metrics.Collector) *Advisor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{
		oracle:  oracle,
		timeout: timeout,
		logger:  logger,
		metrics: collector,
	}
}

// Advise asks the oracle for guidance and returns a payload that is always
// safe to display. Oracle failures and rule violations are logged and
// replaced with the fallback; they are never returned as errors.
func (a *Advisor) Advise(ctx context.Context, req Request, category incident.Category) Result {
	start := time.Now()
	candidate, err := a.generate(ctx, req)
	result := Reconcile(candidate, err, category)
	elapsed := time.Since(start)

	if !result.Accepted {
		fields := []zap.Field{
			zap.String("reason", string(result.Reason)),
			zap.String("category", string(category)),
			zap.Duration("elapsed", elapsed),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		if result.Violation != "" {
			fields = append(fields, zap.String("violation", result.Violation))
		}
		a.logger.Warn("Advisory replaced with fallback", fields...)
	} else {
		a.logger.Debug("Advisory accepted",
			zap.String("category", string(category)),
			zap.Duration("elapsed", elapsed))
	}

	if a.metrics != nil {
		a.metrics.RecordAdvisory(result.Accepted, string(result.Reason), string(category), elapsed)
	}

	return result
}

type generation struct {
	payload *Payload
	err     error
}

// generate runs the oracle under the advisor timeout. The call is abandoned,
// not awaited, once the deadline passes.
func (a *Advisor) generate(ctx context.Context, req Request) (*Payload, error) {
	if a.oracle == nil {
		return nil, ErrNoOracle
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan generation, 1)
	go func() {
		p, err := a.oracle.Generate(ctx, req)
		done <- generation{payload: p, err: err}
	}()

	select {
	case g := <-done:
		return g.payload, g.err
	case <-ctx.Done():
		return nil, fmt.Errorf("oracle call abandoned: %w", ctx.Err())
	}
}

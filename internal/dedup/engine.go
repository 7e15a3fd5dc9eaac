package dedup

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
	"github.com/toloka-partners/featuretrack/internal/pkg/logger"
)

// Options tunes the engine. TTL bounds how long a cached result is replayed;
// ResultGrace bounds how long a caller waits for a concurrent claimant to
// publish its result before re-executing; PollInterval paces that wait.
type Options struct {
	TTL          time.Duration
	ResultGrace  time.Duration
	PollInterval time.Duration
}

// Engine wraps arbitrary work in the claim/result protocol. The sequence is
// always result lookup, then claim, then work, then result back-fill. A
// caller that loses the claim race polls for the winner's result and, once
// ResultGrace has elapsed without one, assumes the winner died between claim
// and back-fill and re-executes the work itself. The work must therefore be
// safe to run more than once in that narrow window; every use case in this
// service satisfies that because its side effects are themselves guarded by
// unique constraints.
type Engine struct {
	store Store
	opts  Options
	now   func() time.Time
}

// NewEngine creates an idempotency engine over the given store.
func NewEngine(store Store, opts Options) *Engine {
	return &Engine{store: store, opts: opts, now: time.Now}
}

// Execute runs work at most once per (operationID, class) within the TTL.
// The returned bool is true when the result was replayed from the store
// rather than produced by this call. An empty operationID disables
// deduplication and runs the work directly.
func (e *Engine) Execute(ctx context.Context, operationID, class string, work func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	if operationID == "" {
		result, err := work(ctx)
		return result, false, err
	}

	key := Key{OperationID: operationID, Class: class}

	result, found, err := e.store.GetResult(ctx, key, e.now())
	if err != nil {
		return nil, false, storeUnavailable(err)
	}
	if found {
		return result, true, nil
	}

	claimedAt := e.now()
	won, err := e.store.Claim(ctx, key, claimedAt, claimedAt.Add(e.opts.TTL), nil)
	if err != nil {
		return nil, false, storeUnavailable(err)
	}
	if !won {
		return e.awaitOrTakeOver(ctx, key, work)
	}

	result, err = work(ctx)
	if err != nil {
		// Drop the claim so the caller's retry re-executes immediately
		// instead of waiting out the grace window.
		if relErr := e.store.Release(ctx, key); relErr != nil {
			logger.Warn("failed to release dedup claim after work error",
				zap.String("operation_id", operationID),
				zap.String("operation_class", class),
				zap.Error(relErr))
		}
		return nil, false, err
	}

	if err := e.store.UpdateResult(ctx, key, result); err != nil {
		return nil, false, storeUnavailable(err)
	}
	return result, false, nil
}

// awaitOrTakeOver handles the claimed-but-resultless case: another caller
// holds the claim but has not published a result yet. We poll until the
// grace window closes, then take over and run the work ourselves,
// overwriting whatever result lands afterwards.
func (e *Engine) awaitOrTakeOver(ctx context.Context, key Key, work func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	deadline := e.now().Add(e.opts.ResultGrace)
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for e.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-ticker.C:
		}

		result, found, err := e.store.GetResult(ctx, key, e.now())
		if err != nil {
			return nil, false, storeUnavailable(err)
		}
		if found {
			return result, true, nil
		}

		// The claim holder may have failed and released; reclaim so the
		// operation is not lost.
		exists, err := e.store.Exists(ctx, key)
		if err != nil {
			return nil, false, storeUnavailable(err)
		}
		if !exists {
			claimedAt := e.now()
			won, err := e.store.Claim(ctx, key, claimedAt, claimedAt.Add(e.opts.TTL), nil)
			if err != nil {
				return nil, false, storeUnavailable(err)
			}
			if won {
				return e.runAndRecord(ctx, key, work)
			}
		}
	}

	logger.Warn("dedup claim holder produced no result within grace window, re-executing",
		zap.String("operation_id", key.OperationID),
		zap.String("operation_class", key.Class),
		zap.Duration("grace", e.opts.ResultGrace))
	return e.runAndRecord(ctx, key, work)
}

func (e *Engine) runAndRecord(ctx context.Context, key Key, work func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	result, err := work(ctx)
	if err != nil {
		if relErr := e.store.Release(ctx, key); relErr != nil {
			logger.Warn("failed to release dedup claim after work error",
				zap.String("operation_id", key.OperationID),
				zap.String("operation_class", key.Class),
				zap.Error(relErr))
		}
		return nil, false, err
	}
	if err := e.store.UpdateResult(ctx, key, result); err != nil {
		return nil, false, storeUnavailable(err)
	}
	return result, false, nil
}

// storeUnavailable marks a dedup store failure as retryable for the caller;
// retrying the whole operation is safe because it re-enters the claim
// protocol from the top.
func storeUnavailable(err error) error {
	return apperrors.Wrap(err, apperrors.CodeDedupUnavailable,
		"deduplication store unavailable", http.StatusServiceUnavailable)
}

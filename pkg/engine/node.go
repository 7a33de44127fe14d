package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/otelhelper"
	"github.com/dukex/conduit/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
)

var errNodePanicked = errors.New("node panicked")

// runNode executes one node, retrying transient errors with exponential
// backoff up to the node's retry attempts. Results on the error port are
// final and never retried.
func (x *execution) runNode(ctx context.Context, id string, inputs map[string]models.NodeResult) outcome {
	wn := x.graph.Node(id)
	node := x.nodes[id]
	timeout := wn.Timeout(x.engine.config.NodeTimeout)

	ctx, span := otelhelper.StartSpan(ctx, x.engine.tracer, "engine.node",
		attribute.String(otelhelper.RunIDKey, x.run.ID),
		attribute.String(otelhelper.NodeIDKey, id),
		attribute.String(otelhelper.NodeTypeKey, wn.Type),
	)
	defer span.End()

	out := outcome{nodeID: id, startedAt: time.Now().UTC()}

	operation := func() error {
		out.attempts++

		results, err := attempt(ctx, node, timeout, x.executionContext(id, out.attempts), inputs)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, errNodePanicked) {
				return backoff.Permanent(err)
			}

			return err
		}

		out.results = results

		return nil
	}

	notify := func(err error, wait time.Duration) {
		x.logger.WarnContext(ctx, "Retrying node",
			"node_id", id,
			"attempt", out.attempts,
			"wait", wait,
			"error", err,
		)
	}

	out.err = backoff.RetryNotify(operation, x.engine.retryPolicy(ctx, wn.Retry), notify)
	out.finishedAt = time.Now().UTC()

	span.SetAttributes(attribute.Int(otelhelper.AttemptKey, out.attempts))

	if out.err != nil {
		otelhelper.SetError(span, out.err)
	} else if result, ok := out.results[models.PortError]; ok {
		otelhelper.SetError(span, errors.New(errorMessage(result)))
	}

	return out
}

// attempt runs node once, bounded by timeout even when the node ignores its
// context.
func attempt(ctx context.Context, node protocol.Node, timeout time.Duration, executionCtx models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		results map[string]models.NodeResult
		err     error
	}

	done := make(chan reply, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("%w: %v", errNodePanicked, r)}
			}
		}()

		results, err := node.Execute(attemptCtx, executionCtx, inputs)
		done <- reply{results: results, err: err}
	}()

	select {
	case r := <-done:
		return r.results, r.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w after %s", ErrNodeTimeout, timeout)
	}
}

func (e *Engine) retryPolicy(ctx context.Context, retry *models.RetryPolicy) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.config.RetryInitialInterval
	policy.MaxInterval = e.config.RetryMaxInterval
	policy.MaxElapsedTime = 0

	attempts := 0

	if retry != nil {
		attempts = max(retry.Attempts, 0)

		if retry.InitialIntervalMs > 0 {
			policy.InitialInterval = time.Duration(retry.InitialIntervalMs) * time.Millisecond
		}

		if retry.MaxIntervalMs > 0 {
			policy.MaxInterval = time.Duration(retry.MaxIntervalMs) * time.Millisecond
		}
	}

	policy.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts)), ctx) //nolint:gosec // attempts is never negative
}

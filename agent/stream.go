package agent

import (
	"context"
	"time"

	"github.com/ragroute/ragroute/auth"
	"github.com/ragroute/ragroute/schema"
)

// QueryStream runs the same pipeline as Query but reports progress as it
// goes. The returned channel carries ordered stage events and terminates
// with exactly one event holding either the result or an error, then
// closes. Single producer, append-only.
func (a *Agent) QueryStream(ctx context.Context, user *auth.User, req schema.QueryRequest) <-chan schema.ProgressEvent {
	events := make(chan schema.ProgressEvent, 16)
	start := time.Now()

	emit := func(stage, message string) {
		select {
		case events <- schema.ProgressEvent{
			Stage:     stage,
			Message:   message,
			ElapsedMs: time.Since(start).Milliseconds(),
		}:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(events)
		result, err := a.run(ctx, user, req, emit)
		final := schema.ProgressEvent{ElapsedMs: time.Since(start).Milliseconds()}
		if err != nil {
			final.Stage = "error"
			final.Err = err.Error()
		} else {
			final.Stage = "result"
			final.Result = result
		}
		select {
		case events <- final:
		case <-ctx.Done():
		}
	}()

	return events
}

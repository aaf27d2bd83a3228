package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// GenerationRunner executes a generation job synchronously.
type GenerationRunner func(ctx context.Context, insigneID string) error

// InlineGenerationDispatcher runs generation jobs on a background goroutine in
// the same process. Used when no Pub/Sub topic is configured; failures are
// logged and the job can be re-triggered through the internal endpoint.
type InlineGenerationDispatcher struct {
	run     GenerationRunner
	logger  *zap.Logger
	timeout time.Duration
}

// NewInlineGenerationDispatcher wires the runner invoked for each job.
func NewInlineGenerationDispatcher(run GenerationRunner, logger *zap.Logger, timeout time.Duration) (*InlineGenerationDispatcher, error) {
	if run == nil {
		return nil, errors.New("inline generation dispatcher: runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &InlineGenerationDispatcher{run: run, logger: logger, timeout: timeout}, nil
}

// PublishGenerationJob starts the job in the background and returns immediately.
// The caller's context is not reused so in-flight work survives the request.
func (d *InlineGenerationDispatcher) PublishGenerationJob(_ context.Context, message GenerationJobMessage) (string, error) {
	if d == nil || d.run == nil {
		return "", errors.New("inline generation dispatcher: not initialised")
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.run(ctx, message.InsigneID); err != nil {
			d.logger.Error("generation job failed",
				zap.String("insigne_id", message.InsigneID),
				zap.String("submission_id", message.SubmissionID),
				zap.Error(err),
			)
		}
	}()

	return "inline:" + message.InsigneID, nil
}

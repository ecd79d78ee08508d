package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AnTengye/contractledger/model"
	"github.com/AnTengye/contractledger/pkg/logger"
)

// ExtractionClient talks to the remote document understanding service.
type ExtractionClient interface {
	Submit(ctx context.Context, document []byte, contentType string) (*model.JobHandle, error)
	Poll(ctx context.Context, jobID string) (*model.PollResult, error)
	Release(ctx context.Context, handle *model.JobHandle) error
}

// Scheduler waits between polls. Wait returns early with ctx.Err() when ctx is done.
type Scheduler interface {
	Wait(ctx context.Context, d time.Duration) error
}

// TimerScheduler waits on a real timer.
type TimerScheduler struct{}

func (TimerScheduler) Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type ExtractionOptions struct {
	PollInterval   time.Duration
	MaxAttempts    int
	ReleaseTimeout time.Duration
}

func (o ExtractionOptions) withDefaults() ExtractionOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 60
	}
	if o.ReleaseTimeout <= 0 {
		o.ReleaseTimeout = 10 * time.Second
	}
	return o
}

// Extractor runs one extraction job per Extract call. It holds no per-job
// state, so one Extractor serves concurrent callers.
type Extractor struct {
	client    ExtractionClient
	scheduler Scheduler
	opts      ExtractionOptions
	logger    *slog.Logger
}

func NewExtractor(client ExtractionClient, scheduler Scheduler, opts ExtractionOptions, logger *slog.Logger) *Extractor {
	if scheduler == nil {
		scheduler = TimerScheduler{}
	}
	return &Extractor{
		client:    client,
		scheduler: scheduler,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// Extract submits document, polls until the job reaches a terminal state and
// returns the structured payload. Every submitted job is released exactly once
// before Extract returns.
func (e *Extractor) Extract(ctx context.Context, document []byte, contentType string) (payload *model.ExtractedPayload, err error) {
	ctx, span := tracer.Start(ctx, "extraction.extract")
	defer func() { endSpan(span, err) }()

	if ctx.Err() != nil {
		return nil, &model.ExtractionError{Status: model.JobCancelled, Err: ctx.Err()}
	}

	handle, err := e.client.Submit(ctx, document, contentType)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &model.ExtractionError{Status: model.JobCancelled, Err: ctx.Err()}
		}
		return nil, &model.ExtractionError{Status: model.JobFailed, Err: err}
	}

	ctx = logger.WithJob(ctx, handle.JobID)
	log := logger.Enrich(ctx, e.logger)
	span.SetAttributes(attribute.String("extraction.job_id", handle.JobID))
	log.Info("extraction job submitted")

	defer e.release(ctx, handle, log)

	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		if err := e.scheduler.Wait(ctx, e.opts.PollInterval); err != nil {
			return nil, &model.ExtractionError{JobID: handle.JobID, Status: model.JobCancelled, Err: err}
		}

		result, err := e.client.Poll(ctx, handle.JobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &model.ExtractionError{JobID: handle.JobID, Status: model.JobCancelled, Err: ctx.Err()}
			}
			log.Warn("poll attempt failed", "attempt", attempt, "error", err)
			continue
		}

		switch result.Status {
		case model.JobCompleted:
			if len(result.Payload) == 0 {
				return nil, &model.ExtractionError{JobID: handle.JobID, Status: model.JobFailed, Err: errors.New("completed without payload")}
			}
			log.Info("extraction job completed", "attempts", attempt)
			span.SetAttributes(attribute.Int("extraction.attempts", attempt))
			return &model.ExtractedPayload{JobID: handle.JobID, Data: result.Payload}, nil
		case model.JobFailed, model.JobCancelled, model.JobExpired:
			log.Warn("extraction job ended", "status", result.Status, "message", result.Message)
			var cause error
			if result.Message != "" {
				cause = errors.New(result.Message)
			}
			return nil, &model.ExtractionError{JobID: handle.JobID, Status: result.Status, Err: cause}
		default:
			if result.TotalPages > 0 {
				log.Debug("extraction in progress", "attempt", attempt, "extracted_pages", result.ExtractedPages, "total_pages", result.TotalPages)
			}
		}
	}

	log.Warn("extraction job timed out", "attempts", e.opts.MaxAttempts)
	return nil, &model.ExtractionError{JobID: handle.JobID, Status: model.JobTimedOut}
}

// release runs on a context detached from the caller's cancellation. Its
// errors are logged and never replace the result of Extract.
func (e *Extractor) release(ctx context.Context, handle *model.JobHandle, log *slog.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.ReleaseTimeout)
	defer cancel()

	if err := e.client.Release(rctx, handle); err != nil {
		log.Warn("failed to release extraction job", "error", err)
		return
	}
	log.Debug("extraction job released")
}

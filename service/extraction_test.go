package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AnTengye/contractledger/model"
)

// fakeExtractionClient replays scripted poll results. When the script runs
// out it keeps answering with the last entry.
type fakeExtractionClient struct {
	mu         sync.Mutex
	submitErr  error
	script     []pollStep
	polls      int
	releases   int
	releaseErr error
}

type pollStep struct {
	result *model.PollResult
	err    error
}

func (f *fakeExtractionClient) Submit(context.Context, []byte, string) (*model.JobHandle, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &model.JobHandle{JobID: "job-1", StagingPath: "staging/job-1.pdf"}, nil
}

func (f *fakeExtractionClient) Poll(context.Context, string) (*model.PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	step := f.script[min(f.polls, len(f.script)-1)]
	f.polls++
	return step.result, step.err
}

func (f *fakeExtractionClient) Release(ctx context.Context, _ *model.JobHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	f.releaseErr = ctx.Err()
	return nil
}

// instantScheduler never sleeps. cancelAfter cancels the context on the
// given wait when set.
type instantScheduler struct {
	waits       int
	cancelAfter int
	cancel      context.CancelFunc
}

func (s *instantScheduler) Wait(ctx context.Context, _ time.Duration) error {
	s.waits++
	if s.cancel != nil && s.waits == s.cancelAfter {
		s.cancel()
	}
	return ctx.Err()
}

func processing() pollStep {
	return pollStep{result: &model.PollResult{Status: model.JobProcessing}}
}

func newTestExtractor(client ExtractionClient, sched Scheduler, attempts int) *Extractor {
	return NewExtractor(client, sched, ExtractionOptions{MaxAttempts: attempts}, discardLogger())
}

func TestExtractCompleted(t *testing.T) {
	client := &fakeExtractionClient{script: []pollStep{
		processing(),
		processing(),
		{result: &model.PollResult{Status: model.JobCompleted, Payload: []byte(`{"app_name":"Slack"}`)}},
	}}

	got, err := newTestExtractor(client, &instantScheduler{}, 10).Extract(context.Background(), pdfBytes, pdfContentType)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.JobID != "job-1" || string(got.Data) != `{"app_name":"Slack"}` {
		t.Errorf("Unexpected payload %+v", got)
	}
	if client.polls != 3 {
		t.Errorf("Expected 3 polls, got %d", client.polls)
	}
	if client.releases != 1 {
		t.Errorf("Expected 1 release, got %d", client.releases)
	}
}

func TestExtractTimesOut(t *testing.T) {
	client := &fakeExtractionClient{script: []pollStep{processing()}}
	sched := &instantScheduler{}

	_, err := newTestExtractor(client, sched, 5).Extract(context.Background(), pdfBytes, pdfContentType)

	var ee *model.ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("Expected ExtractionError, got %v", err)
	}
	if ee.Status != model.JobTimedOut {
		t.Errorf("Expected status %s, got %s", model.JobTimedOut, ee.Status)
	}
	if client.polls != 5 {
		t.Errorf("Expected 5 polls, got %d", client.polls)
	}
	if client.releases != 1 {
		t.Errorf("Expected exactly 1 release, got %d", client.releases)
	}
}

func TestExtractRemoteFailure(t *testing.T) {
	tests := []struct {
		name   string
		status model.JobStatus
	}{
		{name: "failed", status: model.JobFailed},
		{name: "cancelled", status: model.JobCancelled},
		{name: "expired", status: model.JobExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeExtractionClient{script: []pollStep{
				processing(),
				{result: &model.PollResult{Status: tt.status, Message: "remote said no"}},
			}}

			_, err := newTestExtractor(client, &instantScheduler{}, 10).Extract(context.Background(), pdfBytes, pdfContentType)

			var ee *model.ExtractionError
			if !errors.As(err, &ee) {
				t.Fatalf("Expected ExtractionError, got %v", err)
			}
			if ee.Status != tt.status {
				t.Errorf("Expected status %s, got %s", tt.status, ee.Status)
			}
			if ee.Err == nil || ee.Err.Error() != "remote said no" {
				t.Errorf("Expected remote message, got %v", ee.Err)
			}
			if client.releases != 1 {
				t.Errorf("Expected 1 release, got %d", client.releases)
			}
		})
	}
}

func TestExtractCompletedWithoutPayload(t *testing.T) {
	client := &fakeExtractionClient{script: []pollStep{
		{result: &model.PollResult{Status: model.JobCompleted}},
	}}

	_, err := newTestExtractor(client, &instantScheduler{}, 3).Extract(context.Background(), pdfBytes, pdfContentType)

	var ee *model.ExtractionError
	if !errors.As(err, &ee) || ee.Status != model.JobFailed {
		t.Fatalf("Expected failed ExtractionError, got %v", err)
	}
}

func TestExtractPollErrorsConsumeAttempts(t *testing.T) {
	client := &fakeExtractionClient{script: []pollStep{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{result: &model.PollResult{Status: model.JobCompleted, Payload: []byte(`{}`)}},
	}}

	if _, err := newTestExtractor(client, &instantScheduler{}, 3).Extract(context.Background(), pdfBytes, pdfContentType); err != nil {
		t.Fatalf("Expected success on the last attempt, got %v", err)
	}

	client = &fakeExtractionClient{script: []pollStep{{err: errors.New("connection reset")}}}
	_, err := newTestExtractor(client, &instantScheduler{}, 3).Extract(context.Background(), pdfBytes, pdfContentType)

	var ee *model.ExtractionError
	if !errors.As(err, &ee) || ee.Status != model.JobTimedOut {
		t.Fatalf("Expected timed out ExtractionError, got %v", err)
	}
	if client.polls != 3 {
		t.Errorf("Expected 3 polls, got %d", client.polls)
	}
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeExtractionClient{script: []pollStep{processing()}}
	sched := &instantScheduler{cancelAfter: 2, cancel: cancel}

	_, err := newTestExtractor(client, sched, 10).Extract(ctx, pdfBytes, pdfContentType)

	var ee *model.ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("Expected ExtractionError, got %v", err)
	}
	if ee.Status != model.JobCancelled {
		t.Errorf("Expected status %s, got %s", model.JobCancelled, ee.Status)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
	if client.polls != 1 {
		t.Errorf("Expected 1 poll before cancellation, got %d", client.polls)
	}
	if client.releases != 1 {
		t.Errorf("Expected 1 release, got %d", client.releases)
	}
	if client.releaseErr != nil {
		t.Errorf("Expected release to run on a live context, got %v", client.releaseErr)
	}
}

func TestExtractAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeExtractionClient{script: []pollStep{processing()}}
	_, err := newTestExtractor(client, &instantScheduler{}, 3).Extract(ctx, pdfBytes, pdfContentType)

	var ee *model.ExtractionError
	if !errors.As(err, &ee) || ee.Status != model.JobCancelled {
		t.Fatalf("Expected cancelled ExtractionError, got %v", err)
	}
	if client.releases != 0 {
		t.Errorf("Expected no release for an unsubmitted job, got %d", client.releases)
	}
}

func TestExtractSubmitFailure(t *testing.T) {
	client := &fakeExtractionClient{submitErr: errors.New("quota exceeded")}
	_, err := newTestExtractor(client, &instantScheduler{}, 3).Extract(context.Background(), pdfBytes, pdfContentType)

	var ee *model.ExtractionError
	if !errors.As(err, &ee) || ee.Status != model.JobFailed {
		t.Fatalf("Expected failed ExtractionError, got %v", err)
	}
	if client.releases != 0 {
		t.Errorf("Expected no release, got %d", client.releases)
	}
}

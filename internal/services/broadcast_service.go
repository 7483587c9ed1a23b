package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"keycrate/internal/domain"
	applog "keycrate/internal/log"
	"keycrate/internal/metrics"
	"keycrate/internal/repos"
	"keycrate/internal/transport"
)

var (
	ErrNoRecipients = errors.New("no reachable recipients")
	ErrJobNotFound  = errors.New("broadcast job not found")
	ErrJobFinished  = errors.New("broadcast job already finished")
)

// BroadcastService delivers one payload to every snapshotted recipient with
// a bounded worker pool. Every outcome is persisted before the next send, so
// a crash mid-job resumes exactly where it stopped.
type BroadcastService struct {
	Jobs       *repos.BroadcastRepo
	Recipients *repos.RecipientRepo
	Sender     transport.Sender

	Workers     int
	MaxAttempts int
	Backoff     time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewBroadcastService(jobs *repos.BroadcastRepo, recipients *repos.RecipientRepo, sender transport.Sender, workers, maxAttempts int, backoff time.Duration) *BroadcastService {
	if workers <= 0 {
		workers = 1
	}
	return &BroadcastService{
		Jobs: jobs, Recipients: recipients, Sender: sender,
		Workers: workers, MaxAttempts: maxAttempts, Backoff: backoff,
		cancels: map[string]context.CancelFunc{},
	}
}

// Start snapshots the reachable recipients, persists the job and runs it in
// the background. Returns the job id immediately.
func (s *BroadcastService) Start(ctx context.Context, ownerID, payload string) (string, error) {
	recips, err := s.Recipients.ListReachable()
	if err != nil {
		return "", err
	}
	if len(recips) == 0 {
		return "", ErrNoRecipients
	}

	ids := make([]int64, 0, len(recips))
	for _, r := range recips {
		ids = append(ids, r.UserID)
	}
	job := domain.BroadcastJob{ID: uuid.NewString(), Payload: payload, CreatedBy: ownerID}
	if err := s.Jobs.CreateJob(job, ids); err != nil {
		return "", err
	}
	applog.Audit(nil, "broadcast.start", map[string]any{"job_id": job.ID, "owner": ownerID, "total": len(ids)})

	go s.run(s.jobContext(ctx, job.ID), job)
	return job.ID, nil
}

// Resume picks up jobs left unfinished by a previous process and runs them
// to completion, skipping recipients already in a terminal status.
func (s *BroadcastService) Resume(ctx context.Context) error {
	jobs, err := s.Jobs.ListUnfinished()
	if err != nil {
		return err
	}
	for _, job := range jobs {
		applog.Info(nil, "broadcast.resume", map[string]any{"job_id": job.ID})
		go s.run(s.jobContext(ctx, job.ID), job)
	}
	return nil
}

// Cancel stops scheduling new sends for the job; in-flight sends complete
// and untouched recipients are marked skipped.
func (s *BroadcastService) Cancel(jobID string) error {
	job, err := s.Jobs.GetJob(jobID)
	if err == sql.ErrNoRows {
		return ErrJobNotFound
	}
	if err != nil {
		return err
	}
	if job.Completed {
		return ErrJobFinished
	}

	s.mu.Lock()
	cancel, running := s.cancels[jobID]
	s.mu.Unlock()
	if running {
		cancel()
		return nil
	}

	// Job is not running in this process (crashed before resume); finish
	// its bookkeeping directly.
	return s.finishCancelled(jobID)
}

func (s *BroadcastService) Summary(jobID string) (domain.BroadcastSummary, error) {
	sum, err := s.Jobs.Summary(jobID)
	if err == sql.ErrNoRows {
		return domain.BroadcastSummary{}, ErrJobNotFound
	}
	return sum, err
}

func (s *BroadcastService) jobContext(parent context.Context, jobID string) context.Context {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	s.mu.Lock()
	s.cancels[jobID] = cancel
	s.mu.Unlock()
	return ctx
}

func (s *BroadcastService) run(ctx context.Context, job domain.BroadcastJob) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, job.ID)
		s.mu.Unlock()
	}()

	targets, err := s.Jobs.PendingTargets(job.ID)
	if err != nil {
		applog.Error(nil, "broadcast.targets.load.fail", err, map[string]any{"job_id": job.ID})
		return
	}

	work := make(chan domain.BroadcastTarget)
	var wg sync.WaitGroup
	for i := 0; i < s.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range work {
				s.deliverOne(ctx, job, t)
			}
		}()
	}

feed:
	for _, t := range targets {
		select {
		case <-ctx.Done():
			break feed
		case work <- t:
		}
	}
	close(work)
	wg.Wait()

	if ctx.Err() != nil {
		if err := s.finishCancelled(job.ID); err != nil {
			applog.Error(nil, "broadcast.cancel.fail", err, map[string]any{"job_id": job.ID})
		}
		return
	}
	if err := s.Jobs.MarkCompleted(job.ID); err != nil {
		applog.Error(nil, "broadcast.complete.fail", err, map[string]any{"job_id": job.ID})
		return
	}
	if sum, err := s.Jobs.Summary(job.ID); err == nil {
		applog.Info(nil, "broadcast.complete", map[string]any{
			"job_id": job.ID, "delivered": sum.Delivered, "failed": sum.Failed,
			"blocked": sum.Blocked, "skipped": sum.Skipped,
		})
	}
}

// deliverOne attempts a single recipient with bounded retries and persists
// the terminal outcome before returning.
func (s *BroadcastService) deliverOne(ctx context.Context, job domain.BroadcastJob, t domain.BroadcastTarget) {
	msg := transport.Message{Text: job.Payload}
	attempts := t.Attempts
	var lastErr string

	// Cancel stops scheduling and backoff, never a send already on the wire;
	// an in-flight send runs to completion and its outcome is recorded.
	sendCtx := context.WithoutCancel(ctx)

	for attempts < s.MaxAttempts {
		attempts++
		outcome, err := s.Sender.Send(sendCtx, t.UserID, msg)
		if err != nil {
			lastErr = err.Error()
		}

		switch outcome {
		case transport.Delivered:
			s.record(job.ID, t.UserID, domain.TargetDelivered, attempts, "")
			return
		case transport.Blocked:
			_ = s.Recipients.MarkBlocked(t.UserID)
			s.record(job.ID, t.UserID, domain.TargetBlocked, attempts, lastErr)
			return
		}

		// transient: back off, unless the job was cancelled or the
		// attempt budget is spent
		if attempts >= s.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			// leave pending; cancel bookkeeping marks it skipped
			return
		case <-time.After(s.Backoff * time.Duration(attempts)):
		}
	}

	s.record(job.ID, t.UserID, domain.TargetFailed, attempts, lastErr)
}

func (s *BroadcastService) record(jobID string, userID int64, status domain.TargetStatus, attempts int, lastErr string) {
	if err := s.Jobs.SetTargetStatus(jobID, userID, status, attempts, lastErr); err != nil {
		applog.Error(nil, "broadcast.status.write.fail", err, map[string]any{"job_id": jobID, "user": userID})
		return
	}
	metrics.BroadcastSendsTotal.WithLabelValues(string(status)).Inc()
}

func (s *BroadcastService) finishCancelled(jobID string) error {
	skipped, err := s.Jobs.SkipRemaining(jobID)
	if err != nil {
		return err
	}
	if err := s.Jobs.MarkCancelled(jobID); err != nil {
		return err
	}
	if err := s.Jobs.MarkCompleted(jobID); err != nil {
		return err
	}
	applog.Audit(nil, "broadcast.cancelled", map[string]any{"job_id": jobID, "skipped": skipped})
	return nil
}

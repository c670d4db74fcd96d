// Package verify runs asynchronous kiosk check-ins: an enqueued image is
// encoded, matched against the student's reference and written to the ledger.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
	"classattend/internal/faceclient"
	"classattend/internal/queue"
)

// Processor enqueues and handles verification jobs.
type Processor struct {
	svc     *attendance.Service
	encoder faceclient.Encoder
	queue   queue.Queue
	results queue.Results
	now     func() time.Time
}

// NewProcessor wires a processor. The service must have a decider configured.
func NewProcessor(svc *attendance.Service, enc faceclient.Encoder, q queue.Queue, results queue.Results) *Processor {
	return &Processor{svc: svc, encoder: enc, queue: q, results: results, now: time.Now}
}

// Enqueue records a pending result and publishes the job.
func (p *Processor) Enqueue(ctx context.Context, sessionID, studentID, imageURL string) (queue.Result, error) {
	if sessionID == "" || studentID == "" {
		return queue.Result{}, apperr.Invalid("session id and student id required")
	}
	if strings.TrimSpace(imageURL) == "" {
		return queue.Result{}, apperr.Invalid("image url required")
	}
	job := queue.VerifyJob{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		StudentID:  studentID,
		ImageURL:   imageURL,
		EnqueuedAt: p.now().UTC(),
	}
	pending := queue.Result{JobID: job.ID, SessionID: sessionID, StudentID: studentID, Status: queue.JobPending, UpdatedAt: job.EnqueuedAt}
	if err := p.results.Put(ctx, pending); err != nil {
		return queue.Result{}, fmt.Errorf("store pending result: %w", err)
	}
	msg, err := queue.NewMessage(queue.TypeVerify, job)
	if err != nil {
		return queue.Result{}, err
	}
	if err := p.queue.Publish(ctx, msg); err != nil {
		return queue.Result{}, fmt.Errorf("publish verify job: %w", err)
	}
	return pending, nil
}

// Result returns the stored outcome of a job.
func (p *Processor) Result(ctx context.Context, jobID string) (queue.Result, error) {
	r, ok, err := p.results.Get(ctx, jobID)
	if err != nil {
		return queue.Result{}, err
	}
	if !ok {
		return queue.Result{}, apperr.NotFound("verification", jobID)
	}
	return r, nil
}

// Handle processes one job and stores its result.
func (p *Processor) Handle(ctx context.Context, job queue.VerifyJob) queue.Result {
	res := queue.Result{JobID: job.ID, SessionID: job.SessionID, StudentID: job.StudentID}

	embedding, err := p.encoder.Encode(ctx, job.ImageURL)
	switch {
	case errors.Is(err, faceclient.ErrNoFace), errors.Is(err, faceclient.ErrMultipleFaces):
		res.Status, res.Code, res.Error = queue.JobFailed, "no_usable_face", err.Error()
	case err != nil:
		res.Status, res.Code, res.Error = queue.JobFailed, "encoder_unavailable", "face service unavailable"
		log.Printf("verify %s: encode failed: %v", job.ID, err)
	default:
		_, d, err := p.svc.CheckInBiometric(ctx, job.SessionID, job.StudentID, embedding)
		res.Accepted, res.Distance, res.Confidence = d.Accepted, d.Distance, d.Confidence
		if err != nil {
			res.Status, res.Code, res.Error = queue.JobFailed, "internal", "internal error"
			if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
				res.Code, res.Error = e.Code, e.Message
			} else {
				log.Printf("verify %s: check-in failed: %v", job.ID, err)
			}
		} else {
			res.Status = queue.JobDone
		}
	}

	res.UpdatedAt = p.now().UTC()
	if err := p.results.Put(ctx, res); err != nil {
		log.Printf("verify %s: store result failed: %v", job.ID, err)
	}
	return res
}

// Run consumes jobs until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	messages, err := p.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for msg := range messages {
		if msg.Type != queue.TypeVerify {
			log.Printf("verify: skipping message of type %q", msg.Type)
			continue
		}
		var job queue.VerifyJob
		if err := msg.Decode(&job); err != nil {
			log.Printf("verify: %v", err)
			continue
		}
		res := p.Handle(ctx, job)
		log.Printf("verify %s: session=%s student=%s status=%s accepted=%t", job.ID, job.SessionID, job.StudentID, res.Status, res.Accepted)
	}
	return ctx.Err()
}

package jobs

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/Ananth-NQI/eventpass-backend/internal/models"
	"github.com/Ananth-NQI/eventpass-backend/internal/services"
	"github.com/Ananth-NQI/eventpass-backend/internal/storage"
)

// Finalizer completes a verified registration by sending its tickets.
type Finalizer interface {
	FinalizeTickets(ctx context.Context, id string) (*services.FinalizeResult, error)
}

// TicketDispatchJob retries registrations whose payment is confirmed but
// whose tickets have not been delivered yet.
type TicketDispatchJob struct {
	store     storage.Store
	finalizer Finalizer
	interval  time.Duration

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

// NewTicketDispatchJob creates a new ticket dispatch retry job
func NewTicketDispatchJob(store storage.Store, finalizer Finalizer, interval time.Duration) *TicketDispatchJob {
	return &TicketDispatchJob{
		store:     store,
		finalizer: finalizer,
		interval:  interval,
	}
}

// Start schedules RunOnce every interval.
func (j *TicketDispatchJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.scheduler != nil {
		log.Println("Ticket dispatch job already running")
		return nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), j.interval)
			defer cancel()
			if _, err := j.RunOnce(ctx); err != nil {
				log.Printf("[Scheduler] Ticket dispatch run failed: %v", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	sched.Start()
	j.scheduler = sched
	log.Printf("Ticket dispatch job started (every %s)", j.interval)
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish.
func (j *TicketDispatchJob) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.scheduler == nil {
		return
	}
	if err := j.scheduler.Shutdown(); err != nil {
		log.Printf("Ticket dispatch job shutdown: %v", err)
	}
	j.scheduler = nil
	log.Println("Ticket dispatch job stopped")
}

// RunOnce finalizes every verified registration and returns how many had
// their tickets delivered.
func (j *TicketDispatchJob) RunOnce(ctx context.Context) (int, error) {
	pending, err := j.store.ListRegistrations(ctx, models.PaymentStatusVerified)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, reg := range pending {
		if ctx.Err() != nil {
			return dispatched, ctx.Err()
		}

		result, err := j.finalizer.FinalizeTickets(ctx, reg.ID)
		switch {
		case errors.Is(err, services.ErrStaleState), errors.Is(err, services.ErrInvalidStatusTransition):
			// Finished by another request since the listing.
			continue
		case err != nil:
			log.Printf("[Scheduler] Failed to finalize %s: %v", reg.ID, err)
			continue
		}
		if result.TicketDispatched {
			dispatched++
		}
	}

	if len(pending) > 0 {
		log.Printf("[Scheduler] Ticket dispatch: %d of %d verified registration(s) completed", dispatched, len(pending))
	}
	return dispatched, nil
}

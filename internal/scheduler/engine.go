package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/catscratch/catbot/internal/clock"
	"github.com/catscratch/catbot/internal/domain"
	"github.com/catscratch/catbot/pkg/logger"
)

// Deliverer is the delivery callback seam. The engine fires it and records
// the outcome; it never inspects how delivery happens.
type Deliverer interface {
	Deliver(ctx context.Context, scheduleID string) domain.SendResult
}

// rehydrateStore is the slice of the repository the engine needs at boot.
type rehydrateStore interface {
	ListActive(ctx context.Context) ([]domain.ScheduledMessage, error)
	UpdateStatus(ctx context.Context, id string, status domain.MessageStatus, lastError string) error
}

// Engine maps each active record to exactly one live timer and fires the
// delivery callback at the record's occurrences in the reference timezone.
//
// The job map is a derived cache: RehydrateAll reconstructs it from the
// store after a restart. Register/cancel for one id resolve to the last
// call's effect; a replaced job can never fire alongside its successor.
type Engine struct {
	clock     *clock.Clock
	deliverer Deliverer
	store     rehydrateStore

	mu      sync.Mutex
	cond    *sync.Cond
	jobs    map[string]*job
	stopped bool
	wg      sync.WaitGroup

	firedCount  int64
	lastFiredAt time.Time
}

type job struct {
	msg    domain.ScheduledMessage
	nextAt time.Time
	cancel chan struct{}
	// firing is set under the engine mutex while a delivery for this
	// generation is in flight.
	firing bool
}

func NewEngine(clk *clock.Clock, deliverer Deliverer, store rehydrateStore) *Engine {
	e := &Engine{
		clock:     clk,
		deliverer: deliverer,
		store:     store,
		jobs:      make(map[string]*job),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// RegisterOrReplace installs a timer for the record, atomically cancelling
// any previous timer for the same id. A one-shot whose instant is already at
// or before now is refused with ErrPastSchedule instead of firing instantly.
func (e *Engine) RegisterOrReplace(msg *domain.ScheduledMessage) error {
	now := e.clock.Now()

	next, err := e.clock.NextOccurrence(msg.Date, msg.Time, msg.Repeat, now)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if msg.Repeat == domain.RepeatNone && !next.After(now) {
		return domain.ErrPastSchedule
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// A delivery in flight for this id must complete before the swap, so a
	// replaced generation can never deliver alongside its successor.
	for {
		if e.stopped {
			return fmt.Errorf("engine is stopped")
		}
		existing, ok := e.jobs[msg.ID]
		if !ok {
			break
		}
		if !existing.firing {
			close(existing.cancel)
			break
		}
		e.cond.Wait()
	}

	j := &job{
		msg:    *msg,
		nextAt: next,
		cancel: make(chan struct{}),
	}
	e.jobs[msg.ID] = j

	e.wg.Add(1)
	go e.run(j)

	logger.Infof("Registered schedule %s (%s, repeat=%s), next fire at %s",
		msg.ID, msg.Type, msg.Repeat, next.Format(time.RFC3339))

	return nil
}

// Cancel stops and removes the timer for id. Cancelling a missing or
// already-fired timer is a no-op.
func (e *Engine) Cancel(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if j, ok := e.jobs[id]; ok {
		close(j.cancel)
		delete(e.jobs, id)
		logger.Infof("Cancelled schedule %s", id)
	}
}

// RehydrateAll reconstructs timers from the store at process start.
// Recurring records always come back; one-time records whose instant passed
// while the process was down are marked failed and not rescheduled.
func (e *Engine) RehydrateAll(ctx context.Context) (int, error) {
	records, err := e.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active schedules: %w", err)
	}

	registered := 0
	for i := range records {
		msg := records[i]
		if err := e.RegisterOrReplace(&msg); err != nil {
			logger.Warnf("Skipping schedule %s during rehydration: %v", msg.ID, err)
			if err == domain.ErrPastSchedule {
				if updErr := e.store.UpdateStatus(ctx, msg.ID, domain.StatusFailed, "scheduled time passed while offline"); updErr != nil {
					logger.Errorf("Failed to mark missed schedule %s as failed: %v", msg.ID, updErr)
				}
			}
			continue
		}
		registered++
	}

	logger.Infof("Rehydrated %d of %d active schedules", registered, len(records))

	return registered, nil
}

// Stop cancels every live timer and waits for their goroutines.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	for id, j := range e.jobs {
		close(j.cancel)
		delete(e.jobs, id)
	}
	e.mu.Unlock()

	e.wg.Wait()
	logger.Infof("Schedule engine stopped")
}

func (e *Engine) run(j *job) {
	defer e.wg.Done()

	for {
		timer := time.NewTimer(time.Until(j.nextAt))

		select {
		case <-j.cancel:
			timer.Stop()
			return

		case <-timer.C:
		}

		// Committing to deliver is atomic with cancel and replace: only the
		// generation still installed in the job map may fire.
		e.mu.Lock()
		if current, ok := e.jobs[j.msg.ID]; !ok || current != j {
			e.mu.Unlock()
			return
		}
		j.firing = true
		e.mu.Unlock()

		e.fire(j)

		e.mu.Lock()
		j.firing = false
		e.cond.Broadcast()
		e.mu.Unlock()

		if j.msg.Repeat == domain.RepeatNone {
			e.removeIfCurrent(j)
			return
		}

		next, err := e.clock.NextOccurrence(j.msg.Date, j.msg.Time, j.msg.Repeat, e.clock.Now())
		if err != nil {
			// Defensive: the record validated at registration; a failure
			// here means the clock can no longer produce an occurrence.
			logger.Errorf("Failed to compute next occurrence for %s, retiring job: %v", j.msg.ID, err)
			e.removeIfCurrent(j)
			return
		}

		e.mu.Lock()
		j.nextAt = next
		e.mu.Unlock()

		logger.Debugf("Schedule %s rearmed for %s", j.msg.ID, next.Format(time.RFC3339))
	}
}

// fire runs one delivery attempt. Errors land on the record, never on the
// timer loop; a failed occurrence of a recurring schedule does not cancel
// the following ones.
func (e *Engine) fire(j *job) {
	result := e.deliverer.Deliver(context.Background(), j.msg.ID)

	e.mu.Lock()
	e.firedCount++
	e.lastFiredAt = result.SentAt
	e.mu.Unlock()

	if result.Success {
		logger.Infof("Schedule %s delivered (ref=%s)", j.msg.ID, result.MessageRef)
	} else {
		logger.Errorf("Schedule %s delivery failed: %v", j.msg.ID, result.Error)
	}
}

// removeIfCurrent drops the job from the map unless a replacement already
// took its slot.
func (e *Engine) removeIfCurrent(j *job) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if current, ok := e.jobs[j.msg.ID]; ok && current == j {
		delete(e.jobs, j.msg.ID)
	}
}

// IsRegistered reports whether a live timer exists for id.
func (e *Engine) IsRegistered(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.jobs[id]
	return ok
}

// NextFireAt returns the next computed occurrence for id, or zero time when
// no timer exists.
func (e *Engine) NextFireAt(id string) time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()

	if j, ok := e.jobs[id]; ok {
		return j.nextAt
	}
	return time.Time{}
}

type EngineStatus struct {
	LiveJobs    int       `json:"liveJobs"`
	FiredCount  int64     `json:"firedCount"`
	LastFiredAt time.Time `json:"lastFiredAt,omitempty"`
	NextFireAt  time.Time `json:"nextFireAt,omitempty"`
}

func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := EngineStatus{
		LiveJobs:    len(e.jobs),
		FiredCount:  e.firedCount,
		LastFiredAt: e.lastFiredAt,
	}

	for _, j := range e.jobs {
		if status.NextFireAt.IsZero() || j.nextAt.Before(status.NextFireAt) {
			status.NextFireAt = j.nextAt
		}
	}

	return status
}

package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/catscratch/catbot/internal/domain"
)

// MemoryRepository is the degraded-mode store used when MySQL is unreachable
// at startup. Records and votes live only as long as the process; the service
// logs the downgrade and keeps serving.
type MemoryRepository struct {
	mu       sync.RWMutex
	messages map[string]domain.ScheduledMessage
	votes    map[string]map[int]map[string]time.Time // pollID -> option -> voter -> votedAt
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		messages: make(map[string]domain.ScheduledMessage),
		votes:    make(map[string]map[int]map[string]time.Time),
	}
}

func (r *MemoryRepository) Save(ctx context.Context, msg *domain.ScheduledMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	msg.UpdatedAt = now
	if existing, ok := r.messages[msg.ID]; ok {
		msg.CreatedAt = existing.CreatedAt
	} else if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	r.messages[msg.ID] = *msg
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.messages, id)
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil, nil
	}
	return &msg, nil
}

func (r *MemoryRepository) ListActive(ctx context.Context) ([]domain.ScheduledMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var messages []domain.ScheduledMessage
	for _, msg := range r.messages {
		if msg.Status == domain.StatusActive {
			messages = append(messages, msg)
		}
	}
	sortByCreatedAt(messages)
	return messages, nil
}

func (r *MemoryRepository) ListByChannel(ctx context.Context, channel string) ([]domain.ScheduledMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var messages []domain.ScheduledMessage
	for _, msg := range r.messages {
		if msg.Channel == channel {
			messages = append(messages, msg)
		}
	}
	sortByCreatedAt(messages)
	return messages, nil
}

func (r *MemoryRepository) List(
	ctx context.Context,
	status *domain.MessageStatus,
	page, pageSize int,
) ([]domain.ScheduledMessage, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []domain.ScheduledMessage
	for _, msg := range r.messages {
		if status != nil && msg.Status != *status {
			continue
		}
		all = append(all, msg)
	}
	sortByCreatedAt(all)

	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	return all[start:end], total, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, status domain.MessageStatus, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil
	}

	msg.Status = status
	msg.LastError = lastError
	msg.UpdatedAt = time.Now()
	r.messages[id] = msg
	return nil
}

func (r *MemoryRepository) MarkSent(ctx context.Context, id string, messageRef string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return domain.ErrNotFound
	}

	msg.Status = domain.StatusActive
	msg.MessageRef = messageRef
	msg.LastSentAt = &sentAt
	msg.LastError = ""
	msg.UpdatedAt = time.Now()
	r.messages[id] = msg
	return nil
}

func (r *MemoryRepository) Stats(ctx context.Context) (active, done, failed int64, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, msg := range r.messages {
		switch msg.Status {
		case domain.StatusActive:
			active++
		case domain.StatusDone:
			done++
		case domain.StatusFailed:
			failed++
		}
	}
	return active, done, failed, nil
}

func (r *MemoryRepository) GetVotes(ctx context.Context, pollID string) (map[int][]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	votes := make(map[int][]string)
	for optionIndex, voters := range r.votes[pollID] {
		ids := make([]string, 0, len(voters))
		for voterID := range voters {
			ids = append(ids, voterID)
		}
		// Stable order: oldest vote first, matching the MySQL query.
		sort.Slice(ids, func(i, j int) bool {
			ti, tj := voters[ids[i]], voters[ids[j]]
			if ti.Equal(tj) {
				return ids[i] < ids[j]
			}
			return ti.Before(tj)
		})
		votes[optionIndex] = ids
	}

	return votes, nil
}

func (r *MemoryRepository) AddVote(ctx context.Context, pollID string, optionIndex int, voterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.votes[pollID] == nil {
		r.votes[pollID] = make(map[int]map[string]time.Time)
	}
	if r.votes[pollID][optionIndex] == nil {
		r.votes[pollID][optionIndex] = make(map[string]time.Time)
	}
	if _, ok := r.votes[pollID][optionIndex][voterID]; !ok {
		r.votes[pollID][optionIndex][voterID] = time.Now()
	}
	return nil
}

func (r *MemoryRepository) RemoveVote(ctx context.Context, pollID string, optionIndex int, voterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if voters, ok := r.votes[pollID][optionIndex]; ok {
		delete(voters, voterID)
	}
	return nil
}

func (r *MemoryRepository) RemoveVoterVotes(ctx context.Context, pollID string, voterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, voters := range r.votes[pollID] {
		delete(voters, voterID)
	}
	return nil
}

func (r *MemoryRepository) ClearVotes(ctx context.Context, pollID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.votes, pollID)
	return nil
}

func sortByCreatedAt(messages []domain.ScheduledMessage) {
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

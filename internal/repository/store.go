package repository

import (
	"context"
	"time"

	"github.com/catscratch/catbot/internal/domain"
)

// Store is the full persistence surface, satisfied by both MessageRepository
// (MySQL) and MemoryRepository (degraded mode), so main can pick one at boot.
type Store interface {
	Save(ctx context.Context, msg *domain.ScheduledMessage) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.ScheduledMessage, error)
	ListActive(ctx context.Context) ([]domain.ScheduledMessage, error)
	ListByChannel(ctx context.Context, channel string) ([]domain.ScheduledMessage, error)
	List(ctx context.Context, status *domain.MessageStatus, page, pageSize int) ([]domain.ScheduledMessage, int64, error)
	UpdateStatus(ctx context.Context, id string, status domain.MessageStatus, lastError string) error
	MarkSent(ctx context.Context, id string, messageRef string, sentAt time.Time) error
	Stats(ctx context.Context) (active, done, failed int64, err error)

	GetVotes(ctx context.Context, pollID string) (map[int][]string, error)
	AddVote(ctx context.Context, pollID string, optionIndex int, voterID string) error
	RemoveVote(ctx context.Context, pollID string, optionIndex int, voterID string) error
	RemoveVoterVotes(ctx context.Context, pollID string, voterID string) error
	ClearVotes(ctx context.Context, pollID string) error
}

var (
	_ Store = (*MessageRepository)(nil)
	_ Store = (*MemoryRepository)(nil)
)

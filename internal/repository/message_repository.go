package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/catscratch/catbot/internal/domain"
)

const messageColumns = "id, type, title, text, channel, alert_channels, poll_options, date, time, `repeat`, status, message_ref, last_sent_at, last_error, created_at, updated_at"

// MessageRepository is the MySQL-backed store for scheduled messages and
// their poll vote sets. It is the single source of truth; the schedule
// engine's timer map and the vote tracker's sets are caches over it.
type MessageRepository struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Save upserts a record by id. created_at is written on first insert only.
func (r *MessageRepository) Save(ctx context.Context, msg *domain.ScheduledMessage) error {
	now := time.Now()
	msg.UpdatedAt = now
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	query := `
		INSERT INTO scheduled_messages
			(id, type, title, text, channel, alert_channels, poll_options, date, time, ` + "`repeat`" + `, status, message_ref, last_sent_at, last_error, created_at, updated_at)
		VALUES
			(:id, :type, :title, :text, :channel, :alert_channels, :poll_options, :date, :time, :repeat, :status, :message_ref, :last_sent_at, :last_error, :created_at, :updated_at)
		ON DUPLICATE KEY UPDATE
			type = VALUES(type),
			title = VALUES(title),
			text = VALUES(text),
			channel = VALUES(channel),
			alert_channels = VALUES(alert_channels),
			poll_options = VALUES(poll_options),
			date = VALUES(date),
			time = VALUES(time),
			` + "`repeat`" + ` = VALUES(` + "`repeat`" + `),
			status = VALUES(status),
			message_ref = VALUES(message_ref),
			last_sent_at = VALUES(last_sent_at),
			last_error = VALUES(last_error),
			updated_at = VALUES(updated_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("failed to save scheduled message: %w", err)
	}

	return nil
}

// Delete removes a record. Deleting an absent id is a no-op.
func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM scheduled_messages WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete scheduled message: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledMessage, error) {
	query := "SELECT " + messageColumns + " FROM scheduled_messages WHERE id = ?"

	var msg domain.ScheduledMessage
	if err := r.db.GetContext(ctx, &msg, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scheduled message: %w", err)
	}

	return &msg, nil
}

// ListActive returns every record eligible for rehydration.
func (r *MessageRepository) ListActive(ctx context.Context) ([]domain.ScheduledMessage, error) {
	query := "SELECT " + messageColumns + " FROM scheduled_messages WHERE status = 'active' ORDER BY created_at ASC"

	var messages []domain.ScheduledMessage
	if err := r.db.SelectContext(ctx, &messages, query); err != nil {
		return nil, fmt.Errorf("failed to list active messages: %w", err)
	}

	return messages, nil
}

func (r *MessageRepository) ListByChannel(ctx context.Context, channel string) ([]domain.ScheduledMessage, error) {
	query := "SELECT " + messageColumns + " FROM scheduled_messages WHERE channel = ? ORDER BY created_at ASC"

	var messages []domain.ScheduledMessage
	if err := r.db.SelectContext(ctx, &messages, query, channel); err != nil {
		return nil, fmt.Errorf("failed to list messages by channel: %w", err)
	}

	return messages, nil
}

func (r *MessageRepository) List(
	ctx context.Context,
	status *domain.MessageStatus,
	page, pageSize int,
) ([]domain.ScheduledMessage, int64, error) {
	offset := (page - 1) * pageSize
	var totalCount int64
	var messages []domain.ScheduledMessage

	if status != nil {
		countQuery := "SELECT COUNT(*) FROM scheduled_messages WHERE status = ?"
		if err := r.db.GetContext(ctx, &totalCount, countQuery, *status); err != nil {
			return nil, 0, fmt.Errorf("failed to count messages: %w", err)
		}

		query := "SELECT " + messageColumns + " FROM scheduled_messages WHERE status = ? ORDER BY created_at DESC LIMIT ? OFFSET ?"
		if err := r.db.SelectContext(ctx, &messages, query, *status, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to list messages: %w", err)
		}
	} else {
		countQuery := "SELECT COUNT(*) FROM scheduled_messages"
		if err := r.db.GetContext(ctx, &totalCount, countQuery); err != nil {
			return nil, 0, fmt.Errorf("failed to count messages: %w", err)
		}

		query := "SELECT " + messageColumns + " FROM scheduled_messages ORDER BY created_at DESC LIMIT ? OFFSET ?"
		if err := r.db.SelectContext(ctx, &messages, query, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to list messages: %w", err)
		}
	}

	return messages, totalCount, nil
}

func (r *MessageRepository) UpdateStatus(ctx context.Context, id string, status domain.MessageStatus, lastError string) error {
	query := `
		UPDATE scheduled_messages
		SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	if _, err := r.db.ExecContext(ctx, query, status, lastError, id); err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}

	return nil
}

// MarkSent records a successful delivery on a recurring record and keeps it
// active for the next occurrence.
func (r *MessageRepository) MarkSent(ctx context.Context, id string, messageRef string, sentAt time.Time) error {
	query := `
		UPDATE scheduled_messages
		SET status = 'active', message_ref = ?, last_sent_at = ?, last_error = '', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, messageRef, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark message as sent: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("no message found with id %s", id)
	}

	return nil
}

// Stats returns record counts by status.
func (r *MessageRepository) Stats(ctx context.Context) (active, done, failed int64, err error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0) AS active,
			COALESCE(SUM(CASE WHEN status = 'done' THEN 1 ELSE 0 END), 0)   AS done,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS failed
		FROM scheduled_messages
	`

	var stats struct {
		Active int64 `db:"active"`
		Done   int64 `db:"done"`
		Failed int64 `db:"failed"`
	}

	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to get stats: %w", err)
	}

	return stats.Active, stats.Done, stats.Failed, nil
}

//
// Poll vote persistence. Votes survive restarts; the in-memory tracker
// reloads these rows lazily.
//

func (r *MessageRepository) GetVotes(ctx context.Context, pollID string) (map[int][]string, error) {
	query := `
		SELECT option_index, voter_id
		FROM poll_votes
		WHERE poll_id = ?
		ORDER BY voted_at ASC
	`

	var rows []struct {
		OptionIndex int    `db:"option_index"`
		VoterID     string `db:"voter_id"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, pollID); err != nil {
		return nil, fmt.Errorf("failed to get poll votes: %w", err)
	}

	votes := make(map[int][]string)
	for _, row := range rows {
		votes[row.OptionIndex] = append(votes[row.OptionIndex], row.VoterID)
	}

	return votes, nil
}

func (r *MessageRepository) AddVote(ctx context.Context, pollID string, optionIndex int, voterID string) error {
	query := "INSERT IGNORE INTO poll_votes (poll_id, option_index, voter_id) VALUES (?, ?, ?)"

	if _, err := r.db.ExecContext(ctx, query, pollID, optionIndex, voterID); err != nil {
		return fmt.Errorf("failed to add vote: %w", err)
	}

	return nil
}

func (r *MessageRepository) RemoveVote(ctx context.Context, pollID string, optionIndex int, voterID string) error {
	query := "DELETE FROM poll_votes WHERE poll_id = ? AND option_index = ? AND voter_id = ?"

	if _, err := r.db.ExecContext(ctx, query, pollID, optionIndex, voterID); err != nil {
		return fmt.Errorf("failed to remove vote: %w", err)
	}

	return nil
}

// RemoveVoterVotes drops every vote a voter holds on a poll. Single-choice
// toggles use this before adding the new selection.
func (r *MessageRepository) RemoveVoterVotes(ctx context.Context, pollID string, voterID string) error {
	query := "DELETE FROM poll_votes WHERE poll_id = ? AND voter_id = ?"

	if _, err := r.db.ExecContext(ctx, query, pollID, voterID); err != nil {
		return fmt.Errorf("failed to remove voter votes: %w", err)
	}

	return nil
}

func (r *MessageRepository) ClearVotes(ctx context.Context, pollID string) error {
	query := "DELETE FROM poll_votes WHERE poll_id = ?"

	if _, err := r.db.ExecContext(ctx, query, pollID); err != nil {
		return fmt.Errorf("failed to clear poll votes: %w", err)
	}

	return nil
}

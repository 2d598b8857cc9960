package repository

import (
	"context"
	"testing"
	"time"

	"github.com/catscratch/catbot/internal/domain"
)

func newTestMessage(id string, status domain.MessageStatus) *domain.ScheduledMessage {
	return &domain.ScheduledMessage{
		ID:          id,
		Type:        domain.TypePollSingle,
		Channel:     "#general",
		PollOptions: domain.StringList{"Office", "Remote"},
		Date:        "2026-06-01",
		Time:        "09:00",
		Repeat:      domain.RepeatDaily,
		Status:      status,
	}
}

func TestMemoryRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	msg := newTestMessage("msg-1", domain.StatusActive)
	if err := repo.Save(ctx, msg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if msg.CreatedAt.IsZero() || msg.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set on insert")
	}

	got, err := repo.GetByID(ctx, "msg-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected record to exist")
	}
	if got.Channel != "#general" || len(got.PollOptions) != 2 {
		t.Errorf("unexpected record: %+v", got)
	}

	// Missing ids come back as nil without an error.
	got, err = repo.GetByID(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if got != nil {
		t.Error("expected nil for a missing id")
	}
}

func TestMemoryRepository_SavePreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	msg := newTestMessage("msg-1", domain.StatusActive)
	if err := repo.Save(ctx, msg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	created := msg.CreatedAt

	time.Sleep(5 * time.Millisecond)

	msg.Text = "updated"
	if err := repo.Save(ctx, msg); err != nil {
		t.Fatalf("second Save returned error: %v", err)
	}
	if !msg.CreatedAt.Equal(created) {
		t.Error("expected CreatedAt to survive an update")
	}
	if !msg.UpdatedAt.After(created) {
		t.Error("expected UpdatedAt to move forward")
	}
}

func TestMemoryRepository_ListActive(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for _, m := range []*domain.ScheduledMessage{
		newTestMessage("active-1", domain.StatusActive),
		newTestMessage("failed-1", domain.StatusFailed),
		newTestMessage("active-2", domain.StatusActive),
	} {
		if err := repo.Save(ctx, m); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive returned error: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active records, got %d", len(active))
	}
	for _, m := range active {
		if m.Status != domain.StatusActive {
			t.Errorf("expected only active records, got %q", m.Status)
		}
	}
}

func TestMemoryRepository_ListPagination(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		if err := repo.Save(ctx, newTestMessage(id, domain.StatusActive)); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
	}

	page1, total, err := repo.List(ctx, nil, 1, 2)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(page1) != 2 {
		t.Errorf("expected 2 records on page 1, got %d", len(page1))
	}

	page3, _, err := repo.List(ctx, nil, 3, 2)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(page3) != 1 {
		t.Errorf("expected 1 record on page 3, got %d", len(page3))
	}

	empty, total, err := repo.List(ctx, nil, 9, 2)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 5 || len(empty) != 0 {
		t.Errorf("expected empty page beyond the end, got %d records", len(empty))
	}
}

func TestMemoryRepository_ListStatusFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	if err := repo.Save(ctx, newTestMessage("active-1", domain.StatusActive)); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := repo.Save(ctx, newTestMessage("failed-1", domain.StatusFailed)); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	failed := domain.StatusFailed
	records, total, err := repo.List(ctx, &failed, 1, 10)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 1 || len(records) != 1 || records[0].ID != "failed-1" {
		t.Errorf("unexpected filtered result: total=%d records=%+v", total, records)
	}
}

func TestMemoryRepository_UpdateStatusAndMarkSent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	if err := repo.Save(ctx, newTestMessage("msg-1", domain.StatusActive)); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if err := repo.UpdateStatus(ctx, "msg-1", domain.StatusFailed, "boom"); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	got, _ := repo.GetByID(ctx, "msg-1")
	if got.Status != domain.StatusFailed || got.LastError != "boom" {
		t.Errorf("unexpected record after UpdateStatus: %+v", got)
	}

	sentAt := time.Now()
	if err := repo.MarkSent(ctx, "msg-1", "ref-42", sentAt); err != nil {
		t.Fatalf("MarkSent returned error: %v", err)
	}
	got, _ = repo.GetByID(ctx, "msg-1")
	if got.Status != domain.StatusActive {
		t.Errorf("expected MarkSent to reactivate, got %q", got.Status)
	}
	if got.MessageRef != "ref-42" || got.LastSentAt == nil {
		t.Errorf("unexpected record after MarkSent: %+v", got)
	}
	if got.LastError != "" {
		t.Errorf("expected last error cleared, got %q", got.LastError)
	}

	if err := repo.MarkSent(ctx, "ghost", "ref", sentAt); err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound for missing record, got %v", err)
	}
}

func TestMemoryRepository_Stats(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for i, status := range []domain.MessageStatus{
		domain.StatusActive, domain.StatusActive, domain.StatusDone, domain.StatusFailed,
	} {
		msg := newTestMessage(string(rune('a'+i)), status)
		if err := repo.Save(ctx, msg); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
	}

	active, done, failed, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if active != 2 || done != 1 || failed != 1 {
		t.Errorf("unexpected stats: active=%d done=%d failed=%d", active, done, failed)
	}
}

func TestMemoryRepository_VoteRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	if err := repo.AddVote(ctx, "poll-1", 0, "alice"); err != nil {
		t.Fatalf("AddVote returned error: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := repo.AddVote(ctx, "poll-1", 0, "bob"); err != nil {
		t.Fatalf("AddVote returned error: %v", err)
	}
	if err := repo.AddVote(ctx, "poll-1", 1, "alice"); err != nil {
		t.Fatalf("AddVote returned error: %v", err)
	}
	// Duplicate add is a no-op.
	if err := repo.AddVote(ctx, "poll-1", 0, "alice"); err != nil {
		t.Fatalf("duplicate AddVote returned error: %v", err)
	}

	votes, err := repo.GetVotes(ctx, "poll-1")
	if err != nil {
		t.Fatalf("GetVotes returned error: %v", err)
	}
	if len(votes[0]) != 2 || len(votes[1]) != 1 {
		t.Fatalf("unexpected votes: %v", votes)
	}
	// Oldest vote first.
	if votes[0][0] != "alice" || votes[0][1] != "bob" {
		t.Errorf("expected vote order alice,bob, got %v", votes[0])
	}

	if err := repo.RemoveVote(ctx, "poll-1", 0, "alice"); err != nil {
		t.Fatalf("RemoveVote returned error: %v", err)
	}
	votes, _ = repo.GetVotes(ctx, "poll-1")
	if len(votes[0]) != 1 || votes[0][0] != "bob" {
		t.Errorf("unexpected votes after remove: %v", votes)
	}

	if err := repo.RemoveVoterVotes(ctx, "poll-1", "alice"); err != nil {
		t.Fatalf("RemoveVoterVotes returned error: %v", err)
	}
	votes, _ = repo.GetVotes(ctx, "poll-1")
	if len(votes[1]) != 0 {
		t.Errorf("expected alice removed everywhere, got %v", votes)
	}

	if err := repo.ClearVotes(ctx, "poll-1"); err != nil {
		t.Fatalf("ClearVotes returned error: %v", err)
	}
	votes, _ = repo.GetVotes(ctx, "poll-1")
	if len(votes) != 0 {
		t.Errorf("expected no votes after clear, got %v", votes)
	}
}

func TestMemoryRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	if err := repo.Save(ctx, newTestMessage("msg-1", domain.StatusActive)); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := repo.Delete(ctx, "msg-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	got, err := repo.GetByID(ctx, "msg-1")
	if err != nil || got != nil {
		t.Errorf("expected record gone, got %+v err=%v", got, err)
	}

	// Deleting an absent record is a no-op.
	if err := repo.Delete(ctx, "ghost"); err != nil {
		t.Errorf("expected nil for absent delete, got %v", err)
	}
}

package poll

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/catscratch/catbot/internal/domain"
)

// fakeVoteStore keeps votes in memory and records the mutation calls.
type fakeVoteStore struct {
	mu    sync.Mutex
	votes map[string]map[int][]string

	getErr error
}

func newFakeVoteStore() *fakeVoteStore {
	return &fakeVoteStore{votes: make(map[string]map[int][]string)}
}

func (f *fakeVoteStore) GetVotes(ctx context.Context, pollID string) (map[int][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make(map[int][]string)
	for idx, voters := range f.votes[pollID] {
		out[idx] = append([]string(nil), voters...)
	}
	return out, nil
}

func (f *fakeVoteStore) AddVote(ctx context.Context, pollID string, optionIndex int, voterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.votes[pollID] == nil {
		f.votes[pollID] = make(map[int][]string)
	}
	for _, v := range f.votes[pollID][optionIndex] {
		if v == voterID {
			return nil
		}
	}
	f.votes[pollID][optionIndex] = append(f.votes[pollID][optionIndex], voterID)
	return nil
}

func (f *fakeVoteStore) RemoveVote(ctx context.Context, pollID string, optionIndex int, voterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	voters := f.votes[pollID][optionIndex]
	for i, v := range voters {
		if v == voterID {
			f.votes[pollID][optionIndex] = append(voters[:i], voters[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeVoteStore) RemoveVoterVotes(ctx context.Context, pollID string, voterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for idx, voters := range f.votes[pollID] {
		for i, v := range voters {
			if v == voterID {
				f.votes[pollID][idx] = append(voters[:i], voters[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (f *fakeVoteStore) ClearVotes(ctx context.Context, pollID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.votes, pollID)
	return nil
}

func (f *fakeVoteStore) storedCount(pollID string, optionIndex int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.votes[pollID][optionIndex])
}

func countFor(t *testing.T, tr *Tracker, pollID string, optionIndex int) int {
	t.Helper()
	tallies, err := tr.Tally(pollID)
	if err != nil {
		t.Fatalf("Tally returned error: %v", err)
	}
	return tallies[optionIndex].Count
}

func TestTracker_SingleChoice_MoveAndUnvote(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(newFakeVoteStore())
	tr.Ensure(ctx, "poll-1", 3)

	// First click records the vote.
	voted, err := tr.ToggleVote(ctx, "poll-1", 0, "alice", domain.VoteSingle)
	if err != nil {
		t.Fatalf("ToggleVote returned error: %v", err)
	}
	if !voted {
		t.Error("expected first click to vote")
	}
	if countFor(t, tr, "poll-1", 0) != 1 {
		t.Errorf("expected 1 vote on option 0")
	}

	// A click on another option moves the vote.
	voted, err = tr.ToggleVote(ctx, "poll-1", 2, "alice", domain.VoteSingle)
	if err != nil {
		t.Fatalf("ToggleVote returned error: %v", err)
	}
	if !voted {
		t.Error("expected move click to vote")
	}
	if countFor(t, tr, "poll-1", 0) != 0 {
		t.Error("expected old option to be cleared after move")
	}
	if countFor(t, tr, "poll-1", 2) != 1 {
		t.Error("expected new option to hold the vote")
	}

	// A repeat click on the held option unvotes entirely.
	voted, err = tr.ToggleVote(ctx, "poll-1", 2, "alice", domain.VoteSingle)
	if err != nil {
		t.Fatalf("ToggleVote returned error: %v", err)
	}
	if voted {
		t.Error("expected repeat click to unvote")
	}
	for i := 0; i < 3; i++ {
		if countFor(t, tr, "poll-1", i) != 0 {
			t.Errorf("expected option %d to be empty after unvote", i)
		}
	}
}

func TestTracker_MultipleChoice_IndependentToggles(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(newFakeVoteStore())
	tr.Ensure(ctx, "poll-1", 3)

	for _, idx := range []int{0, 1, 2} {
		voted, err := tr.ToggleVote(ctx, "poll-1", idx, "bob", domain.VoteMultiple)
		if err != nil {
			t.Fatalf("ToggleVote returned error: %v", err)
		}
		if !voted {
			t.Errorf("expected vote on option %d", idx)
		}
	}

	for _, idx := range []int{0, 1, 2} {
		if countFor(t, tr, "poll-1", idx) != 1 {
			t.Errorf("expected option %d to hold bob's vote", idx)
		}
	}

	// Toggling one off leaves the others intact.
	voted, err := tr.ToggleVote(ctx, "poll-1", 1, "bob", domain.VoteMultiple)
	if err != nil {
		t.Fatalf("ToggleVote returned error: %v", err)
	}
	if voted {
		t.Error("expected second toggle to unvote")
	}
	if countFor(t, tr, "poll-1", 1) != 0 {
		t.Error("expected option 1 to be empty")
	}
	if countFor(t, tr, "poll-1", 0) != 1 || countFor(t, tr, "poll-1", 2) != 1 {
		t.Error("expected options 0 and 2 to keep their votes")
	}
}

func TestTracker_MultipleChoice_ToggleIsInvolution(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(newFakeVoteStore())
	tr.Ensure(ctx, "poll-1", 2)

	// An even number of identical toggles always lands back at the start.
	for i := 0; i < 4; i++ {
		if _, err := tr.ToggleVote(ctx, "poll-1", 0, "carol", domain.VoteMultiple); err != nil {
			t.Fatalf("ToggleVote returned error: %v", err)
		}
	}
	if countFor(t, tr, "poll-1", 0) != 0 {
		t.Error("expected no vote after an even number of toggles")
	}
}

func TestTracker_VotersListedInVoteOrder(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(newFakeVoteStore())
	tr.Ensure(ctx, "poll-1", 2)

	for _, voter := range []string{"carol", "alice", "bob"} {
		if _, err := tr.ToggleVote(ctx, "poll-1", 0, voter, domain.VoteMultiple); err != nil {
			t.Fatalf("ToggleVote returned error: %v", err)
		}
	}

	tallies, err := tr.Tally("poll-1")
	if err != nil {
		t.Fatalf("Tally returned error: %v", err)
	}
	want := []string{"carol", "alice", "bob"}
	got := tallies[0].Voters
	if len(got) != len(want) {
		t.Fatalf("expected %d voters, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("voter %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestTracker_InvalidOption(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(newFakeVoteStore())
	tr.Ensure(ctx, "poll-1", 2)

	if _, err := tr.ToggleVote(ctx, "poll-1", 5, "alice", domain.VoteSingle); !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption for out-of-range index, got %v", err)
	}
	if _, err := tr.ToggleVote(ctx, "poll-1", -1, "alice", domain.VoteSingle); !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption for negative index, got %v", err)
	}
	if _, err := tr.ToggleVote(ctx, "never-tracked", 0, "alice", domain.VoteSingle); !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption for untracked poll, got %v", err)
	}

	// The failed toggle must not have touched any state.
	if countFor(t, tr, "poll-1", 0) != 0 || countFor(t, tr, "poll-1", 1) != 0 {
		t.Error("expected no votes after rejected toggles")
	}
}

func TestTracker_EnsureIsNotDestructive(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(newFakeVoteStore())
	tr.Ensure(ctx, "poll-1", 2)

	if _, err := tr.ToggleVote(ctx, "poll-1", 0, "alice", domain.VoteSingle); err != nil {
		t.Fatalf("ToggleVote returned error: %v", err)
	}

	// Re-ensuring with the same or a larger count keeps existing votes.
	tr.Ensure(ctx, "poll-1", 2)
	tr.Ensure(ctx, "poll-1", 4)

	if countFor(t, tr, "poll-1", 0) != 1 {
		t.Error("expected alice's vote to survive Ensure")
	}
	tallies, err := tr.Tally("poll-1")
	if err != nil {
		t.Fatalf("Tally returned error: %v", err)
	}
	if len(tallies) != 4 {
		t.Errorf("expected 4 options after growth, got %d", len(tallies))
	}
}

func TestTracker_ReloadsPersistedVotes(t *testing.T) {
	ctx := context.Background()
	store := newFakeVoteStore()

	first := NewTracker(store)
	first.Ensure(ctx, "poll-1", 2)
	if _, err := first.ToggleVote(ctx, "poll-1", 1, "alice", domain.VoteSingle); err != nil {
		t.Fatalf("ToggleVote returned error: %v", err)
	}
	if _, err := first.ToggleVote(ctx, "poll-1", 1, "bob", domain.VoteMultiple); err != nil {
		t.Fatalf("ToggleVote returned error: %v", err)
	}

	// A fresh tracker over the same store sees the votes after Ensure, as if
	// the process restarted.
	second := NewTracker(store)
	second.Ensure(ctx, "poll-1", 2)

	if countFor(t, second, "poll-1", 1) != 2 {
		t.Errorf("expected 2 reloaded votes, got %d", countFor(t, second, "poll-1", 1))
	}
}

func TestTracker_LoadErrorStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := newFakeVoteStore()
	store.getErr = errors.New("db down")

	tr := NewTracker(store)
	tr.Ensure(ctx, "poll-1", 2)

	// Degraded but usable: the poll exists with empty sets.
	if countFor(t, tr, "poll-1", 0) != 0 {
		t.Error("expected empty vote sets when the load fails")
	}
}

func TestTracker_Reset(t *testing.T) {
	ctx := context.Background()
	store := newFakeVoteStore()
	tr := NewTracker(store)
	tr.Ensure(ctx, "poll-1", 2)

	if _, err := tr.ToggleVote(ctx, "poll-1", 0, "alice", domain.VoteSingle); err != nil {
		t.Fatalf("ToggleVote returned error: %v", err)
	}

	tr.Reset(ctx, "poll-1")

	if countFor(t, tr, "poll-1", 0) != 0 {
		t.Error("expected votes cleared after Reset")
	}
	if store.storedCount("poll-1", 0) != 0 {
		t.Error("expected persisted votes cleared after Reset")
	}

	// Still tracked: voting works without another Ensure.
	if _, err := tr.ToggleVote(ctx, "poll-1", 0, "alice", domain.VoteSingle); err != nil {
		t.Errorf("expected poll to stay tracked after Reset, got %v", err)
	}
}

func TestTracker_Forget(t *testing.T) {
	ctx := context.Background()
	store := newFakeVoteStore()
	tr := NewTracker(store)
	tr.Ensure(ctx, "poll-1", 2)

	if _, err := tr.ToggleVote(ctx, "poll-1", 0, "alice", domain.VoteSingle); err != nil {
		t.Fatalf("ToggleVote returned error: %v", err)
	}

	tr.Forget(ctx, "poll-1")

	if _, err := tr.Tally("poll-1"); !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("expected forgotten poll to be untracked, got %v", err)
	}
	if store.storedCount("poll-1", 0) != 0 {
		t.Error("expected persisted votes cleared after Forget")
	}
}

func TestTracker_ConcurrentTogglesStayConsistent(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(newFakeVoteStore())
	tr.Ensure(ctx, "poll-1", 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Even toggle count per goroutine: the net effect must be zero.
			for j := 0; j < 10; j++ {
				if _, err := tr.ToggleVote(ctx, "poll-1", 0, "alice", domain.VoteMultiple); err != nil {
					t.Errorf("ToggleVote returned error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := countFor(t, tr, "poll-1", 0); got != 0 {
		t.Errorf("expected 0 votes after balanced concurrent toggles, got %d", got)
	}
}

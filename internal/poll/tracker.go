package poll

import (
	"context"
	"fmt"
	"sync"

	"github.com/catscratch/catbot/internal/domain"
	"github.com/catscratch/catbot/pkg/logger"
)

// voteStore is the durable side of the tracker. Both the MySQL and the
// in-memory repositories satisfy it.
type voteStore interface {
	GetVotes(ctx context.Context, pollID string) (map[int][]string, error)
	AddVote(ctx context.Context, pollID string, optionIndex int, voterID string) error
	RemoveVote(ctx context.Context, pollID string, optionIndex int, voterID string) error
	RemoveVoterVotes(ctx context.Context, pollID string, voterID string) error
	ClearVotes(ctx context.Context, pollID string) error
}

// Tracker owns the per-poll vote sets and applies the toggle rule. Sets are
// a cache over the vote store, reloaded lazily after a restart, so votes
// survive the process.
//
// Each poll carries its own lock; two rapid clicks by the same voter
// serialize instead of racing into a double-voted or double-unvoted state.
type Tracker struct {
	store voteStore

	mu    sync.Mutex
	polls map[string]*pollState
}

type pollState struct {
	mu      sync.Mutex
	options []optionVotes
}

// optionVotes keeps both a membership set and insertion order so tallies
// list voters in the order they voted.
type optionVotes struct {
	members map[string]struct{}
	order   []string
}

func NewTracker(store voteStore) *Tracker {
	return &Tracker{
		store: store,
		polls: make(map[string]*pollState),
	}
}

// Ensure lazily creates empty vote sets for options [0, optionCount) and
// loads any persisted votes. Calling it on an existing poll never clears
// anything; it only grows the option list if the record gained options.
func (t *Tracker) Ensure(ctx context.Context, pollID string, optionCount int) {
	state := t.stateFor(pollID)

	state.mu.Lock()
	defer state.mu.Unlock()

	if len(state.options) == 0 && optionCount > 0 {
		state.grow(optionCount)
		t.loadPersisted(ctx, pollID, state)
		return
	}

	if optionCount > len(state.options) {
		state.grow(optionCount)
	}
}

// ToggleVote applies one vote interaction and returns whether the voter ends
// up voted on that option.
//
// Single mode: a repeat click on the held option unvotes; a click elsewhere
// moves the vote, so the voter holds at most one selection. Multiple mode
// flips only the clicked option.
func (t *Tracker) ToggleVote(ctx context.Context, pollID string, optionIndex int, voterID string, mode domain.VoteMode) (bool, error) {
	t.mu.Lock()
	state, ok := t.polls[pollID]
	t.mu.Unlock()

	if !ok {
		return false, fmt.Errorf("poll %s is not tracked: %w", pollID, domain.ErrInvalidOption)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if optionIndex < 0 || optionIndex >= len(state.options) {
		return false, fmt.Errorf("option %d out of range [0,%d): %w", optionIndex, len(state.options), domain.ErrInvalidOption)
	}

	hadVote := state.options[optionIndex].has(voterID)

	switch {
	case hadVote:
		// Unvote, in both modes.
		state.options[optionIndex].remove(voterID)
		if err := t.store.RemoveVote(ctx, pollID, optionIndex, voterID); err != nil {
			logger.Errorf("Failed to persist unvote on poll %s: %v", pollID, err)
		}
		return false, nil

	case mode == domain.VoteSingle:
		// Move the vote: drop the voter everywhere, then add here.
		for i := range state.options {
			state.options[i].remove(voterID)
		}
		if err := t.store.RemoveVoterVotes(ctx, pollID, voterID); err != nil {
			logger.Errorf("Failed to persist vote move on poll %s: %v", pollID, err)
		}
		fallthrough

	default:
		state.options[optionIndex].add(voterID)
		if err := t.store.AddVote(ctx, pollID, optionIndex, voterID); err != nil {
			logger.Errorf("Failed to persist vote on poll %s: %v", pollID, err)
		}
		return true, nil
	}
}

// Tally returns per-option counts and ordered voter identities. Rendering
// reads this, so the same vote state always yields the same payload.
func (t *Tracker) Tally(pollID string) ([]domain.OptionTally, error) {
	t.mu.Lock()
	state, ok := t.polls[pollID]
	t.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("poll %s is not tracked: %w", pollID, domain.ErrInvalidOption)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	tallies := make([]domain.OptionTally, len(state.options))
	for i := range state.options {
		voters := make([]string, len(state.options[i].order))
		copy(voters, state.options[i].order)
		tallies[i] = domain.OptionTally{
			Index:  i,
			Count:  len(voters),
			Voters: voters,
		}
	}

	return tallies, nil
}

// Reset clears every vote set but keeps the poll tracked.
func (t *Tracker) Reset(ctx context.Context, pollID string) {
	t.mu.Lock()
	state, ok := t.polls[pollID]
	t.mu.Unlock()

	if ok {
		state.mu.Lock()
		for i := range state.options {
			state.options[i] = newOptionVotes()
		}
		state.mu.Unlock()
	}

	if err := t.store.ClearVotes(ctx, pollID); err != nil {
		logger.Errorf("Failed to clear persisted votes for poll %s: %v", pollID, err)
	}
}

// Forget drops the poll from the tracker and the store. Called when the
// owning record is deleted or a one-time poll retires.
func (t *Tracker) Forget(ctx context.Context, pollID string) {
	t.mu.Lock()
	delete(t.polls, pollID)
	t.mu.Unlock()

	if err := t.store.ClearVotes(ctx, pollID); err != nil {
		logger.Errorf("Failed to clear persisted votes for poll %s: %v", pollID, err)
	}
}

func (t *Tracker) stateFor(pollID string) *pollState {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.polls[pollID]
	if !ok {
		state = &pollState{}
		t.polls[pollID] = state
	}
	return state
}

func (t *Tracker) loadPersisted(ctx context.Context, pollID string, state *pollState) {
	persisted, err := t.store.GetVotes(ctx, pollID)
	if err != nil {
		logger.Errorf("Failed to load persisted votes for poll %s, starting empty: %v", pollID, err)
		return
	}

	for optionIndex, voters := range persisted {
		if optionIndex < 0 || optionIndex >= len(state.options) {
			logger.Warnf("Dropping persisted votes for poll %s option %d: out of range", pollID, optionIndex)
			continue
		}
		for _, voterID := range voters {
			state.options[optionIndex].add(voterID)
		}
	}
}

func (s *pollState) grow(optionCount int) {
	for len(s.options) < optionCount {
		s.options = append(s.options, newOptionVotes())
	}
}

func newOptionVotes() optionVotes {
	return optionVotes{members: make(map[string]struct{})}
}

func (o *optionVotes) has(voterID string) bool {
	_, ok := o.members[voterID]
	return ok
}

func (o *optionVotes) add(voterID string) {
	if o.has(voterID) {
		return
	}
	o.members[voterID] = struct{}{}
	o.order = append(o.order, voterID)
}

func (o *optionVotes) remove(voterID string) {
	if !o.has(voterID) {
		return
	}
	delete(o.members, voterID)
	for i, id := range o.order {
		if id == voterID {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/catscratch/catbot/internal/clock"
	"github.com/catscratch/catbot/internal/domain"
	"github.com/catscratch/catbot/internal/render"
	"github.com/catscratch/catbot/pkg/logger"
)

// Small internal interfaces so we can test without touching real DB/Redis/chat.
type messageStore interface {
	Save(ctx context.Context, msg *domain.ScheduledMessage) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.ScheduledMessage, error)
	ListByChannel(ctx context.Context, channel string) ([]domain.ScheduledMessage, error)
	List(ctx context.Context, status *domain.MessageStatus, page, pageSize int) ([]domain.ScheduledMessage, int64, error)
	UpdateStatus(ctx context.Context, id string, status domain.MessageStatus, lastError string) error
	MarkSent(ctx context.Context, id string, messageRef string, sentAt time.Time) error
	Stats(ctx context.Context) (active, done, failed int64, err error)
}

type chatClient interface {
	PostMessage(ctx context.Context, channel string, payload domain.RenderedPayload) (string, error)
	UpdateMessage(ctx context.Context, channel, messageRef string, payload domain.RenderedPayload) error
	PostEphemeral(ctx context.Context, channel, userID, text string) error
	CheckChannel(ctx context.Context, channel string) (bool, error)
}

type refCache interface {
	CacheMessageRef(ctx context.Context, scheduleID, messageRef string) error
	GetMessageRef(ctx context.Context, scheduleID string) (string, error)
	DeleteMessageRef(ctx context.Context, scheduleID string) error
}

type voteTracker interface {
	Ensure(ctx context.Context, pollID string, optionCount int)
	ToggleVote(ctx context.Context, pollID string, optionIndex int, voterID string, mode domain.VoteMode) (bool, error)
	Tally(pollID string) ([]domain.OptionTally, error)
	Reset(ctx context.Context, pollID string)
	Forget(ctx context.Context, pollID string)
}

type scheduleEngine interface {
	RegisterOrReplace(msg *domain.ScheduledMessage) error
	Cancel(id string)
}

type draftStore interface {
	Put(userID string, draft domain.ScheduledMessage)
	Get(userID string) (domain.ScheduledMessage, bool)
	Delete(userID string)
}

// MessageService owns the record lifecycle: validation on the way in, the
// delivery callback on the way out, and vote interactions in between.
type MessageService struct {
	repo     messageStore
	chat     chatClient
	cache    refCache
	tracker  voteTracker
	drafts   draftStore
	clock    *clock.Clock
	engine   scheduleEngine
	deadline time.Duration
}

func NewMessageService(
	repo messageStore,
	chat chatClient,
	cache refCache,
	tracker voteTracker,
	drafts draftStore,
	clk *clock.Clock,
	deliveryTimeout time.Duration,
) *MessageService {
	return &MessageService{
		repo:     repo,
		chat:     chat,
		cache:    cache,
		tracker:  tracker,
		drafts:   drafts,
		clock:    clk,
		deadline: deliveryTimeout,
	}
}

// SetEngine breaks the construction cycle: the engine needs the service as
// its deliverer, the service needs the engine for register/cancel.
func (s *MessageService) SetEngine(engine scheduleEngine) {
	s.engine = engine
}

type CreateMessageRequest struct {
	Type          domain.MessageType `json:"type" validate:"required"`
	Title         string             `json:"title" validate:"max=255"`
	Text          string             `json:"text" validate:"max=3000"`
	Channel       string             `json:"channel" validate:"required"`
	AlertChannels []string           `json:"alertChannels" validate:"max=10"`
	PollOptions   []string           `json:"pollOptions" validate:"max=10,dive,min=1,max=100"`
	Date          string             `json:"date" validate:"required"`
	Time          string             `json:"time" validate:"required"`
	Repeat        domain.RepeatRule  `json:"repeat" validate:"required"`
}

// CreateScheduled validates a request, verifies the channel, persists the
// record and installs its timer.
func (s *MessageService) CreateScheduled(ctx context.Context, req CreateMessageRequest) (*domain.ScheduledMessage, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	accessible, err := s.chat.CheckChannel(ctx, req.Channel)
	if err != nil {
		logger.Warnf("Channel pre-flight for %s failed, accepting record anyway: %v", req.Channel, err)
	} else if !accessible {
		return nil, fmt.Errorf("channel %s is not accessible to the bot: %w", req.Channel, domain.ErrValidation)
	}

	msg := &domain.ScheduledMessage{
		ID:            uuid.NewString(),
		Type:          req.Type,
		Title:         req.Title,
		Text:          req.Text,
		Channel:       req.Channel,
		AlertChannels: req.AlertChannels,
		PollOptions:   req.PollOptions,
		Date:          req.Date,
		Time:          req.Time,
		Repeat:        req.Repeat,
		Status:        domain.StatusActive,
	}

	if err := s.repo.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist scheduled message: %w", err)
	}

	if err := s.engine.RegisterOrReplace(msg); err != nil {
		// Validation already rejected past one-shots; this is unexpected.
		logger.Errorf("Failed to register schedule %s: %v", msg.ID, err)
		if updErr := s.repo.UpdateStatus(ctx, msg.ID, domain.StatusFailed, err.Error()); updErr != nil {
			logger.Errorf("Failed to mark schedule %s as failed: %v", msg.ID, updErr)
		}
		return nil, fmt.Errorf("failed to register schedule: %w", err)
	}

	return msg, nil
}

// UpdateScheduled replaces an existing record's content and schedule. The
// engine swap is last-write-wins: the old timer can not fire once replaced.
func (s *MessageService) UpdateScheduled(ctx context.Context, id string, req CreateMessageRequest) (*domain.ScheduledMessage, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	msg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled message: %w", err)
	}
	if msg == nil {
		return nil, domain.ErrNotFound
	}

	optionsChanged := !slices.Equal([]string(msg.PollOptions), req.PollOptions)

	msg.Type = req.Type
	msg.Title = req.Title
	msg.Text = req.Text
	msg.Channel = req.Channel
	msg.AlertChannels = req.AlertChannels
	msg.PollOptions = req.PollOptions
	msg.Date = req.Date
	msg.Time = req.Time
	msg.Repeat = req.Repeat
	msg.Status = domain.StatusActive
	msg.LastError = ""

	if err := s.repo.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist scheduled message: %w", err)
	}

	if err := s.engine.RegisterOrReplace(msg); err != nil {
		return nil, fmt.Errorf("failed to register schedule: %w", err)
	}

	// Votes index into the option list; under a different list they would
	// attach to the wrong labels, so they go with the old one.
	if optionsChanged {
		s.tracker.Forget(ctx, msg.ID)
	}

	return msg, nil
}

// DeleteScheduled cancels the timer, drops vote state and removes the record.
func (s *MessageService) DeleteScheduled(ctx context.Context, id string) error {
	s.engine.Cancel(id)
	s.tracker.Forget(ctx, id)

	if err := s.cache.DeleteMessageRef(ctx, id); err != nil {
		logger.Warnf("Failed to drop cached message ref for %s: %v", id, err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete scheduled message: %w", err)
	}

	return nil
}

func (s *MessageService) GetMessage(ctx context.Context, id string) (*domain.ScheduledMessage, error) {
	msg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, domain.ErrNotFound
	}
	return msg, nil
}

func (s *MessageService) ListMessages(
	ctx context.Context,
	status *domain.MessageStatus,
	page, pageSize int,
) ([]domain.ScheduledMessage, int64, error) {
	return s.repo.List(ctx, status, page, pageSize)
}

func (s *MessageService) ListByChannel(ctx context.Context, channel string) ([]domain.ScheduledMessage, error) {
	return s.repo.ListByChannel(ctx, channel)
}

func (s *MessageService) Stats(ctx context.Context) (active, done, failed int64, err error) {
	return s.repo.Stats(ctx)
}

// Tally returns the current vote state for a poll-like record.
func (s *MessageService) Tally(ctx context.Context, id string) ([]domain.OptionTally, error) {
	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isVotable(msg.Type) {
		return nil, fmt.Errorf("%s records do not track votes: %w", msg.Type, domain.ErrInvalidOption)
	}

	s.tracker.Ensure(ctx, msg.ID, len(msg.PollOptions))
	return s.tracker.Tally(msg.ID)
}

// Deliver is the delivery callback fired by the schedule engine. It renders
// the stored record, posts it, and settles the record's fate:
//
//	one-time, success or failure  -> record retired (removed from the store)
//	recurring, success            -> lastSentAt updated, record stays active
//	recurring, failure            -> lastError recorded, record stays active
//	                                 so the next occurrence still fires
func (s *MessageService) Deliver(ctx context.Context, scheduleID string) domain.SendResult {
	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	result := domain.SendResult{
		ScheduleID: scheduleID,
		SentAt:     time.Now(),
	}

	msg, err := s.repo.GetByID(ctx, scheduleID)
	if err == nil && msg == nil {
		err = domain.ErrNotFound
	}
	if err != nil {
		result.Error = fmt.Errorf("failed to load record for delivery: %w", err)
		return result
	}

	payload := s.renderCurrent(ctx, msg)

	messageRef, sendErr := s.chat.PostMessage(ctx, msg.Channel, payload)

	if msg.Repeat == domain.RepeatNone {
		s.retire(ctx, msg, sendErr)
	}

	if sendErr != nil {
		result.Error = fmt.Errorf("%w: %v", domain.ErrDelivery, sendErr)
		if msg.Repeat != domain.RepeatNone {
			// Keep the record active: one failed occurrence must not stop
			// the following ones or drop the record from rehydration.
			if err := s.repo.UpdateStatus(ctx, msg.ID, domain.StatusActive, sendErr.Error()); err != nil {
				logger.Errorf("Failed to record delivery error for %s: %v", msg.ID, err)
			}
		}
		return result
	}

	result.Success = true
	result.MessageRef = messageRef

	if msg.Repeat != domain.RepeatNone {
		if err := s.repo.MarkSent(ctx, msg.ID, messageRef, result.SentAt); err != nil {
			logger.Errorf("Failed to mark %s as sent: %v", msg.ID, err)
		}
		if err := s.cache.CacheMessageRef(ctx, msg.ID, messageRef); err != nil {
			logger.Warnf("Failed to cache message ref for %s: %v", msg.ID, err)
		}
	}

	return result
}

// SendNow delivers a record immediately, outside its schedule.
func (s *MessageService) SendNow(ctx context.Context, id string) (domain.SendResult, error) {
	if _, err := s.GetMessage(ctx, id); err != nil {
		return domain.SendResult{}, err
	}

	result := s.Deliver(ctx, id)
	if result.Error != nil {
		return result, result.Error
	}
	return result, nil
}

// HandleInteraction routes an inbound platform event.
func (s *MessageService) HandleInteraction(ctx context.Context, ev domain.InteractionEvent) error {
	switch ev.Kind {
	case domain.InteractionVote:
		return s.handleVote(ctx, ev)

	case domain.InteractionDelete:
		return s.DeleteScheduled(ctx, ev.PayloadRef)

	case domain.InteractionSubmit:
		draft, ok := s.drafts.Get(ev.ActorID)
		if !ok {
			return fmt.Errorf("no draft in progress for user %s: %w", ev.ActorID, domain.ErrValidation)
		}
		_, err := s.CreateScheduled(ctx, CreateMessageRequest{
			Type:          draft.Type,
			Title:         draft.Title,
			Text:          draft.Text,
			Channel:       draft.Channel,
			AlertChannels: draft.AlertChannels,
			PollOptions:   draft.PollOptions,
			Date:          draft.Date,
			Time:          draft.Time,
			Repeat:        draft.Repeat,
		})
		if err != nil {
			return err
		}
		s.drafts.Delete(ev.ActorID)
		return nil

	case domain.InteractionSelect:
		// A form step was touched; keep the draft alive.
		if draft, ok := s.drafts.Get(ev.ActorID); ok {
			s.drafts.Put(ev.ActorID, draft)
		}
		return nil

	default:
		return fmt.Errorf("unknown interaction kind %q: %w", ev.Kind, domain.ErrValidation)
	}
}

// PutDraft stores a form draft for the user; submit turns it into a record.
func (s *MessageService) PutDraft(userID string, draft domain.ScheduledMessage) {
	s.drafts.Put(userID, draft)
}

func (s *MessageService) handleVote(ctx context.Context, ev domain.InteractionEvent) error {
	msg, err := s.repo.GetByID(ctx, ev.PayloadRef)
	if err != nil {
		return fmt.Errorf("failed to load poll record: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("poll %s no longer exists: %w", ev.PayloadRef, domain.ErrInvalidOption)
	}

	if msg.Type == domain.TypeHelp {
		return s.raiseHelp(ctx, msg, ev.ActorID)
	}

	if !isVotable(msg.Type) {
		return fmt.Errorf("%s records do not take votes: %w", msg.Type, domain.ErrInvalidOption)
	}

	s.tracker.Ensure(ctx, msg.ID, len(msg.PollOptions))

	voted, err := s.tracker.ToggleVote(ctx, msg.ID, ev.Selection, ev.ActorID, msg.VoteMode())
	if err != nil {
		// User-visible, non-persistent notice; no state was mutated.
		if notifyErr := s.chat.PostEphemeral(ctx, msg.Channel, ev.ActorID, "That option is no longer available."); notifyErr != nil {
			logger.Warnf("Failed to send ephemeral notice: %v", notifyErr)
		}
		return err
	}

	if err := s.refreshRendered(ctx, msg); err != nil {
		logger.Warnf("Failed to re-render poll %s after vote: %v", msg.ID, err)
	}

	confirmation := "Your vote was removed."
	if voted {
		confirmation = "Your vote was recorded."
	}
	if err := s.chat.PostEphemeral(ctx, msg.Channel, ev.ActorID, confirmation); err != nil {
		logger.Debugf("Failed to send vote confirmation: %v", err)
	}

	return nil
}

// raiseHelp fans a help-button press out to the record's alert channels.
func (s *MessageService) raiseHelp(ctx context.Context, msg *domain.ScheduledMessage, actorID string) error {
	alert := domain.RenderedPayload{
		Title: "Help requested",
		Body:  fmt.Sprintf("%s asked for help in %s", actorID, msg.Channel),
	}

	var lastErr error
	for _, channel := range msg.AlertChannels {
		if _, err := s.chat.PostMessage(ctx, channel, alert); err != nil {
			logger.Errorf("Failed to alert channel %s: %v", channel, err)
			lastErr = err
		}
	}

	return lastErr
}

// refreshRendered rebuilds the delivered message in place with fresh tallies.
func (s *MessageService) refreshRendered(ctx context.Context, msg *domain.ScheduledMessage) error {
	tallies, err := s.tracker.Tally(msg.ID)
	if err != nil {
		return err
	}

	messageRef, err := s.cache.GetMessageRef(ctx, msg.ID)
	if err != nil {
		logger.Debugf("Message ref cache miss for %s: %v", msg.ID, err)
	}
	if messageRef == "" {
		messageRef = msg.MessageRef
	}
	if messageRef == "" {
		// Not delivered yet; the vote is stored and the first render will
		// pick it up.
		return nil
	}

	return s.chat.UpdateMessage(ctx, msg.Channel, messageRef, render.Render(msg, tallies))
}

// renderCurrent produces the payload for one delivery, seeding vote sets for
// poll-like records before their first render.
func (s *MessageService) renderCurrent(ctx context.Context, msg *domain.ScheduledMessage) domain.RenderedPayload {
	var tallies []domain.OptionTally
	if isVotable(msg.Type) {
		s.tracker.Ensure(ctx, msg.ID, len(msg.PollOptions))
		if t, err := s.tracker.Tally(msg.ID); err == nil {
			tallies = t
		}
	}
	return render.Render(msg, tallies)
}

// retire removes a one-time record after its single delivery attempt,
// success or failure alike, so it can never fire twice.
func (s *MessageService) retire(ctx context.Context, msg *domain.ScheduledMessage, sendErr error) {
	if sendErr != nil {
		logger.Errorf("One-time schedule %s failed and is retired: %v", msg.ID, sendErr)
	}

	s.tracker.Forget(ctx, msg.ID)

	if err := s.cache.DeleteMessageRef(ctx, msg.ID); err != nil {
		logger.Debugf("Failed to drop cached message ref for %s: %v", msg.ID, err)
	}

	if err := s.repo.Delete(ctx, msg.ID); err != nil {
		logger.Errorf("Failed to retire one-time schedule %s: %v", msg.ID, err)
	}
}

func (s *MessageService) validate(req CreateMessageRequest) error {
	if !req.Type.IsValid() {
		return fmt.Errorf("unknown message type %q: %w", req.Type, domain.ErrValidation)
	}
	if !req.Repeat.IsValid() {
		return fmt.Errorf("unknown repeat rule %q: %w", req.Repeat, domain.ErrValidation)
	}
	if req.Channel == "" {
		return fmt.Errorf("channel is required: %w", domain.ErrValidation)
	}

	if req.Type.IsPoll() || req.Type == domain.TypeCapacity {
		if len(req.PollOptions) < domain.MinPollOptions || len(req.PollOptions) > domain.MaxPollOptions {
			return fmt.Errorf("poll needs between %d and %d options, got %d: %w",
				domain.MinPollOptions, domain.MaxPollOptions, len(req.PollOptions), domain.ErrValidation)
		}
	}

	instant, err := s.clock.ParseDateTime(req.Date, req.Time)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if req.Repeat == domain.RepeatNone && !instant.After(s.clock.Now()) {
		return fmt.Errorf("%w: %v %v", domain.ErrPastSchedule, req.Date, req.Time)
	}

	return nil
}

func isVotable(t domain.MessageType) bool {
	return t.IsPoll() || t == domain.TypeCapacity
}

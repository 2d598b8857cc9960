package domain

import "time"

type MessageType string

const (
	TypeCapacity     MessageType = "capacity"
	TypePollSingle   MessageType = "poll_single"
	TypePollMultiple MessageType = "poll_multiple"
	TypePollOpen     MessageType = "poll_open"
	TypeHelp         MessageType = "help"
	TypeCustom       MessageType = "custom"
)

func (t MessageType) IsValid() bool {
	switch t {
	case TypeCapacity, TypePollSingle, TypePollMultiple, TypePollOpen, TypeHelp, TypeCustom:
		return true
	}
	return false
}

// IsPoll reports whether the type carries a closed option list and tracks votes.
func (t MessageType) IsPoll() bool {
	return t == TypePollSingle || t == TypePollMultiple
}

type RepeatRule string

const (
	RepeatNone    RepeatRule = "none"
	RepeatDaily   RepeatRule = "daily"
	RepeatWeekly  RepeatRule = "weekly"
	RepeatMonthly RepeatRule = "monthly"
)

func (r RepeatRule) IsValid() bool {
	switch r {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly:
		return true
	}
	return false
}

type MessageStatus string

const (
	StatusActive MessageStatus = "active"
	StatusDone   MessageStatus = "done"
	StatusFailed MessageStatus = "failed"
)

const (
	MinPollOptions = 2
	MaxPollOptions = 10
)

// ScheduledMessage is the durable record for one deliverable unit. ID is the
// idempotency key shared by the store, the schedule engine and the vote tracker.
type ScheduledMessage struct {
	ID            string        `db:"id" json:"id"`
	Type          MessageType   `db:"type" json:"type"`
	Title         string        `db:"title" json:"title,omitempty"`
	Text          string        `db:"text" json:"text,omitempty"`
	Channel       string        `db:"channel" json:"channel"`
	AlertChannels StringList    `db:"alert_channels" json:"alertChannels,omitempty"`
	PollOptions   StringList    `db:"poll_options" json:"pollOptions,omitempty"`
	Date          string        `db:"date" json:"date"`
	Time          string        `db:"time" json:"time"`
	Repeat        RepeatRule    `db:"repeat" json:"repeat"`
	Status        MessageStatus `db:"status" json:"status"`
	MessageRef    string        `db:"message_ref" json:"messageRef,omitempty"`
	LastSentAt    *time.Time    `db:"last_sent_at" json:"lastSentAt,omitempty"`
	LastError     string        `db:"last_error" json:"lastError,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updatedAt"`
}

// VoteMode returns the toggle rule applied to vote interactions on this record.
func (m *ScheduledMessage) VoteMode() VoteMode {
	if m.Type == TypePollMultiple {
		return VoteMultiple
	}
	return VoteSingle
}

type VoteMode string

const (
	VoteSingle   VoteMode = "single"
	VoteMultiple VoteMode = "multiple"
)

// RenderedPayload is the platform-agnostic shape handed to the chat client.
// Rendering is pure: the same record and tallies always produce the same payload.
type RenderedPayload struct {
	Title   string           `json:"title,omitempty"`
	Body    string           `json:"body"`
	Options []RenderedOption `json:"options,omitempty"`
}

type RenderedOption struct {
	Index    int      `json:"index"`
	Label    string   `json:"label"`
	Count    int      `json:"count"`
	Voters   []string `json:"voters,omitempty"`
	ActionID string   `json:"actionId"`
}

type InteractionKind string

const (
	InteractionVote   InteractionKind = "vote"
	InteractionSubmit InteractionKind = "submit"
	InteractionDelete InteractionKind = "delete"
	InteractionSelect InteractionKind = "select"
)

// InteractionEvent is an inbound button/selection event from the chat platform,
// keyed by the schedule id it targets.
type InteractionEvent struct {
	Kind       InteractionKind `json:"kind"`
	ActorID    string          `json:"actorId"`
	PayloadRef string          `json:"payloadRef"`
	Selection  int             `json:"selection"`
}

// SendResult reports the outcome of one delivery attempt.
type SendResult struct {
	ScheduleID string
	MessageRef string
	Success    bool
	Error      error
	SentAt     time.Time
}

// OptionTally is one option's vote state as reported by the tracker.
type OptionTally struct {
	Index  int      `json:"index"`
	Count  int      `json:"count"`
	Voters []string `json:"voters"`
}

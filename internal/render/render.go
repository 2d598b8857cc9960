package render

import (
	"fmt"
	"strings"

	"github.com/catscratch/catbot/internal/domain"
)

// Render turns a record and its current tallies into the platform-agnostic
// payload handed to the chat client. It is pure: the same record and tallies
// always produce the same payload, so re-rendering after a vote toggle is
// deterministic.
func Render(msg *domain.ScheduledMessage, tallies []domain.OptionTally) domain.RenderedPayload {
	payload := domain.RenderedPayload{
		Title: msg.Title,
		Body:  msg.Text,
	}

	switch msg.Type {
	case domain.TypeCapacity, domain.TypePollSingle, domain.TypePollMultiple:
		payload.Options = renderOptions(msg, tallies)

	case domain.TypePollOpen:
		// Open-ended polls have no fixed option list; replies happen in
		// the channel thread.
		if payload.Body == "" {
			payload.Body = msg.Title
		}

	case domain.TypeHelp:
		payload.Options = []domain.RenderedOption{{
			Index:    0,
			Label:    "I need help",
			ActionID: actionID(msg.ID, 0),
		}}
		if len(msg.AlertChannels) > 0 {
			payload.Body = strings.TrimSpace(payload.Body + "\nAlerts go to: " + strings.Join(msg.AlertChannels, ", "))
		}

	case domain.TypeCustom:
		// Free-form announcement: title and body only.
	}

	return payload
}

func renderOptions(msg *domain.ScheduledMessage, tallies []domain.OptionTally) []domain.RenderedOption {
	options := make([]domain.RenderedOption, len(msg.PollOptions))
	for i, label := range msg.PollOptions {
		options[i] = domain.RenderedOption{
			Index:    i,
			Label:    label,
			ActionID: actionID(msg.ID, i),
		}
		if i < len(tallies) {
			options[i].Count = tallies[i].Count
			options[i].Voters = tallies[i].Voters
		}
	}
	return options
}

// actionID is the opaque identifier round-tripped through the platform's
// interaction events: "vote:<schedule id>:<option index>".
func actionID(scheduleID string, optionIndex int) string {
	return fmt.Sprintf("vote:%s:%d", scheduleID, optionIndex)
}

// Package session tracks what each chat participant is in the middle of:
// a single conversational Mode plus the ticket creation draft.
package session

import "github.com/psds-microservice/citizen-desk/internal/model"

// Mode is a closed set of conversational states. Exactly one is current, so
// two prompts can never be pending for the same participant.
type Mode interface {
	Name() string
	mode()
}

type (
	// Idle: no prompt pending; input goes to menu dispatch.
	Idle struct{}
	// AwaitingCategory: the creation wizard shows the category menu.
	AwaitingCategory struct{}
	// AwaitingTicketText: the wizard waits for the complaint text.
	AwaitingTicketText struct{}
	// AwaitingTicketToOpen: staff was asked for a ticket id to open.
	AwaitingTicketToOpen struct{}
	// AwaitingExportParams: staff was asked for "<csv|txt> <start> <end>".
	AwaitingExportParams struct{}
	// AwaitingBroadcastText: staff was asked for the broadcast message.
	AwaitingBroadcastText struct{}
	// AwaitingCleanupDate: staff was asked for the purge cut-off date.
	AwaitingCleanupDate struct{}
	// AwaitingOneShotReply: staff's next text is a reply to TicketID.
	AwaitingOneShotReply struct{ TicketID string }
	// InDialog: the participant is bridged to a live dialog on TicketID.
	InDialog struct{ TicketID string }
)

func (Idle) Name() string                  { return "idle" }
func (AwaitingCategory) Name() string      { return "awaiting_category" }
func (AwaitingTicketText) Name() string    { return "awaiting_ticket_text" }
func (AwaitingTicketToOpen) Name() string  { return "awaiting_ticket_to_open" }
func (AwaitingExportParams) Name() string  { return "awaiting_export_params" }
func (AwaitingBroadcastText) Name() string { return "awaiting_broadcast_text" }
func (AwaitingCleanupDate) Name() string   { return "awaiting_cleanup_date" }
func (AwaitingOneShotReply) Name() string  { return "awaiting_one_shot_reply" }
func (InDialog) Name() string              { return "in_dialog" }

func (Idle) mode()                  {}
func (AwaitingCategory) mode()      {}
func (AwaitingTicketText) mode()    {}
func (AwaitingTicketToOpen) mode()  {}
func (AwaitingExportParams) mode()  {}
func (AwaitingBroadcastText) mode() {}
func (AwaitingCleanupDate) mode()   {}
func (AwaitingOneShotReply) mode()  {}
func (InDialog) mode()              {}

// IsWizard reports whether m belongs to the ticket creation wizard.
func IsWizard(m Mode) bool {
	switch m.(type) {
	case AwaitingCategory, AwaitingTicketText:
		return true
	}
	return false
}

// IsPrompt reports whether m is a pending single-field staff prompt.
func IsPrompt(m Mode) bool {
	switch m.(type) {
	case AwaitingTicketToOpen, AwaitingExportParams, AwaitingBroadcastText,
		AwaitingCleanupDate, AwaitingOneShotReply:
		return true
	}
	return false
}

// Location is a geo tag attached to a draft.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Draft holds what the wizard collected before the ticket exists. Urgency is
// not stored; routing derives it from the category at creation.
type Draft struct {
	Category model.Category
	MediaRef string
	Location *Location
}

// Empty reports whether nothing has been collected.
func (d Draft) Empty() bool {
	return d.Category == model.CategoryNone && d.MediaRef == "" && d.Location == nil
}

// State is one participant's session.
type State struct {
	Mode  Mode
	Draft Draft
}

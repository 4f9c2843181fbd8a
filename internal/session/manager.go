package session

import "github.com/psds-microservice/citizen-desk/internal/model"

// DialogLookup answers whether a participant is bridged to a live dialog.
// The dialog registry is authoritative; sessions never store InDialog.
type DialogLookup interface {
	TicketFor(participantID int64) (ticketID string, ok bool)
}

// Manager resolves the effective mode of a participant and applies the
// wizard and prompt transitions.
type Manager struct {
	store   Store
	dialogs DialogLookup
}

func NewManager(store Store, dialogs DialogLookup) *Manager {
	return &Manager{store: store, dialogs: dialogs}
}

// Current returns the participant's state with an active dialog taking
// precedence over any stored mode.
func (m *Manager) Current(participantID int64) State {
	st := m.store.Get(participantID)
	if m.dialogs != nil {
		if ticketID, ok := m.dialogs.TicketFor(participantID); ok {
			st.Mode = InDialog{TicketID: ticketID}
		}
	}
	return st
}

// SetMode replaces the current mode, keeping the draft. InDialog is derived
// and cannot be stored.
func (m *Manager) SetMode(participantID int64, mode Mode) {
	if _, ok := mode.(InDialog); ok {
		return
	}
	m.store.Update(participantID, func(st *State) { st.Mode = mode })
}

// StartWizard resets the draft and asks for a category.
func (m *Manager) StartWizard(participantID int64) {
	m.store.Update(participantID, func(st *State) {
		st.Mode = AwaitingCategory{}
		st.Draft = Draft{}
	})
}

// ChooseCategory records the category picked from the menu and moves on to
// the text step.
func (m *Manager) ChooseCategory(participantID int64, c model.Category) {
	m.store.Update(participantID, func(st *State) {
		st.Draft.Category = c
		st.Mode = AwaitingTicketText{}
	})
}

// AttachMedia stashes a media reference in the draft. While the category menu
// is open this also advances the wizard to the text step.
func (m *Manager) AttachMedia(participantID int64, ref string) {
	m.store.Update(participantID, func(st *State) {
		st.Draft.MediaRef = ref
		if _, ok := st.Mode.(AwaitingCategory); ok {
			st.Mode = AwaitingTicketText{}
		}
	})
}

// AttachLocation stashes a geo tag in the draft, advancing like AttachMedia.
func (m *Manager) AttachLocation(participantID int64, loc Location) {
	m.store.Update(participantID, func(st *State) {
		st.Draft.Location = &loc
		if _, ok := st.Mode.(AwaitingCategory); ok {
			st.Mode = AwaitingTicketText{}
		}
	})
}

// TakeDraft completes the wizard: it returns the collected draft, clears it
// and returns the participant to Idle.
func (m *Manager) TakeDraft(participantID int64) Draft {
	var d Draft
	m.store.Update(participantID, func(st *State) {
		d = st.Draft
		st.Draft = Draft{}
		st.Mode = Idle{}
	})
	return d
}

// CompletePrompt clears a pending single-field prompt, leaving the draft.
func (m *Manager) CompletePrompt(participantID int64) {
	m.store.Update(participantID, func(st *State) {
		if IsPrompt(st.Mode) {
			st.Mode = Idle{}
		}
	})
}

// Cancel drops every pending prompt and the whole draft.
func (m *Manager) Cancel(participantID int64) {
	m.store.Update(participantID, func(st *State) {
		st.Mode = Idle{}
		st.Draft = Draft{}
	})
}

// Package dialog bridges a live conversation between one staff operator and
// the author of one ticket.
package dialog

import (
	"sync"

	"github.com/psds-microservice/citizen-desk/internal/errs"
)

// Link binds an operator and a citizen to a ticket.
type Link struct {
	TicketID   string
	OperatorID int64
	CitizenID  int64
}

// Index holds at most one link per ticket, per operator and per citizen.
// The three maps are only mutated together under mu.
type Index struct {
	mu         sync.Mutex
	byTicket   map[string]Link
	byOperator map[int64]Link
	byCitizen  map[int64]Link
}

func NewIndex() *Index {
	return &Index{
		byTicket:   make(map[string]Link),
		byOperator: make(map[int64]Link),
		byCitizen:  make(map[int64]Link),
	}
}

// Install adds l. Installing the same link again is a no-op reporting false.
// Any other overlap fails with ErrDialogBusy.
func (ix *Index) Install(l Link) (bool, error) {
	if l.TicketID == "" || l.OperatorID == 0 || l.CitizenID == 0 || l.OperatorID == l.CitizenID {
		return false, errs.ErrInvalidArgument
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if cur, ok := ix.byTicket[l.TicketID]; ok {
		if cur == l {
			return false, nil
		}
		return false, errs.ErrDialogBusy
	}
	if _, ok := ix.byOperator[l.OperatorID]; ok {
		return false, errs.ErrDialogBusy
	}
	if _, ok := ix.byCitizen[l.CitizenID]; ok {
		return false, errs.ErrDialogBusy
	}
	// A participant may not be on both sides of two different dialogs.
	if _, ok := ix.byCitizen[l.OperatorID]; ok {
		return false, errs.ErrDialogBusy
	}
	if _, ok := ix.byOperator[l.CitizenID]; ok {
		return false, errs.ErrDialogBusy
	}
	ix.byTicket[l.TicketID] = l
	ix.byOperator[l.OperatorID] = l
	ix.byCitizen[l.CitizenID] = l
	return true, nil
}

// Remove deletes the ticket's link on behalf of operatorID.
func (ix *Index) Remove(ticketID string, operatorID int64) (Link, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.byTicket[ticketID]
	if !ok {
		return Link{}, errs.ErrNoDialog
	}
	if l.OperatorID != operatorID {
		return Link{}, errs.ErrNotDialogOwner
	}
	ix.drop(l)
	return l, nil
}

// ForceRemove deletes the ticket's link regardless of owner.
func (ix *Index) ForceRemove(ticketID string) (Link, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.byTicket[ticketID]
	if ok {
		ix.drop(l)
	}
	return l, ok
}

func (ix *Index) drop(l Link) {
	delete(ix.byTicket, l.TicketID)
	delete(ix.byOperator, l.OperatorID)
	delete(ix.byCitizen, l.CitizenID)
}

func (ix *Index) ByTicket(ticketID string) (Link, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.byTicket[ticketID]
	return l, ok
}

func (ix *Index) ByOperator(id int64) (Link, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.byOperator[id]
	return l, ok
}

func (ix *Index) ByCitizen(id int64) (Link, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.byCitizen[id]
	return l, ok
}

// TicketFor returns the ticket of whichever dialog participantID is in.
func (ix *Index) TicketFor(participantID int64) (string, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if l, ok := ix.byOperator[participantID]; ok {
		return l.TicketID, true
	}
	if l, ok := ix.byCitizen[participantID]; ok {
		return l.TicketID, true
	}
	return "", false
}

// Len returns the number of active dialogs.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.byTicket)
}

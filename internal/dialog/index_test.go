package dialog

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/psds-microservice/citizen-desk/internal/errs"
)

func consistent(ix *Index) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if len(ix.byTicket) != len(ix.byOperator) || len(ix.byTicket) != len(ix.byCitizen) {
		return false
	}
	for _, l := range ix.byTicket {
		if ix.byOperator[l.OperatorID] != l || ix.byCitizen[l.CitizenID] != l {
			return false
		}
	}
	return true
}

func TestInstallIsIdempotentForSameLink(t *testing.T) {
	ix := NewIndex()
	l := Link{TicketID: "T1", OperatorID: 10, CitizenID: 20}
	installed, err := ix.Install(l)
	if err != nil || !installed {
		t.Fatalf("first install: %v %v", installed, err)
	}
	installed, err = ix.Install(l)
	if err != nil || installed {
		t.Fatalf("second install: %v %v", installed, err)
	}
	if ix.Len() != 1 || !consistent(ix) {
		t.Fatal("index inconsistent")
	}
}

func TestInstallRejectsOverlap(t *testing.T) {
	ix := NewIndex()
	if _, err := ix.Install(Link{TicketID: "T1", OperatorID: 10, CitizenID: 20}); err != nil {
		t.Fatal(err)
	}
	overlaps := []Link{
		{TicketID: "T1", OperatorID: 11, CitizenID: 20}, // second operator on the ticket
		{TicketID: "T2", OperatorID: 10, CitizenID: 21}, // operator busy
		{TicketID: "T3", OperatorID: 12, CitizenID: 20}, // citizen busy
		{TicketID: "T4", OperatorID: 20, CitizenID: 22}, // citizen acting as operator
		{TicketID: "T5", OperatorID: 13, CitizenID: 10}, // operator acting as citizen
	}
	for _, l := range overlaps {
		if _, err := ix.Install(l); !errors.Is(err, errs.ErrDialogBusy) {
			t.Errorf("%+v: err = %v", l, err)
		}
	}
	if _, err := ix.Install(Link{TicketID: "T6", OperatorID: 5, CitizenID: 5}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("self dialog: %v", err)
	}
	if ix.Len() != 1 || !consistent(ix) {
		t.Fatal("rejected installs mutated the index")
	}
}

func TestRemoveOwnerOnly(t *testing.T) {
	ix := NewIndex()
	ix.Install(Link{TicketID: "T1", OperatorID: 10, CitizenID: 20})

	if _, err := ix.Remove("T1", 11); !errors.Is(err, errs.ErrNotDialogOwner) {
		t.Fatalf("foreign remove: %v", err)
	}
	if _, err := ix.Remove("T9", 10); !errors.Is(err, errs.ErrNoDialog) {
		t.Fatalf("missing remove: %v", err)
	}
	l, err := ix.Remove("T1", 10)
	if err != nil || l.CitizenID != 20 {
		t.Fatalf("remove: %+v %v", l, err)
	}
	if _, ok := ix.TicketFor(10); ok {
		t.Fatal("operator index kept")
	}
	if _, ok := ix.TicketFor(20); ok {
		t.Fatal("citizen index kept")
	}
	if ix.Len() != 0 || !consistent(ix) {
		t.Fatal("index inconsistent after remove")
	}
}

func TestForceRemove(t *testing.T) {
	ix := NewIndex()
	ix.Install(Link{TicketID: "T1", OperatorID: 10, CitizenID: 20})
	if _, ok := ix.ForceRemove("T1"); !ok {
		t.Fatal("force remove found nothing")
	}
	if _, ok := ix.ForceRemove("T1"); ok {
		t.Fatal("second force remove found a link")
	}
	if !consistent(ix) {
		t.Fatal("inconsistent")
	}
}

func TestConcurrentInstallOneWinner(t *testing.T) {
	ix := NewIndex()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for op := int64(1); op <= 50; op++ {
		wg.Add(1)
		go func(op int64) {
			defer wg.Done()
			installed, err := ix.Install(Link{TicketID: "T1", OperatorID: op, CitizenID: 1000})
			if err == nil && installed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(op)
	}
	wg.Wait()
	if wins != 1 || ix.Len() != 1 || !consistent(ix) {
		t.Fatalf("wins=%d len=%d", wins, ix.Len())
	}
}

func TestConcurrentInstallAndRemoveStayConsistent(t *testing.T) {
	ix := NewIndex()
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket := fmt.Sprintf("T%d", i%7)
			op := int64(100 + i%5)
			cit := int64(200 + i%7)
			if i%3 == 0 {
				ix.ForceRemove(ticket)
				return
			}
			ix.Install(Link{TicketID: ticket, OperatorID: op, CitizenID: cit})
			if i%2 == 0 {
				ix.Remove(ticket, op)
			}
		}(i)
	}
	wg.Wait()
	if !consistent(ix) {
		t.Fatal("three indices disagree")
	}
}

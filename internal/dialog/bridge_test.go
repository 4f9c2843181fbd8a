package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/citizen-desk/internal/errs"
	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/internal/notify"
	"github.com/psds-microservice/citizen-desk/internal/service"
	"github.com/psds-microservice/citizen-desk/internal/transport"
	"github.com/psds-microservice/citizen-desk/internal/transport/transporttest"
)

type fakeTickets struct {
	mu      sync.Mutex
	tickets map[string]*model.Ticket
	replies []model.Reply
	audit   []model.AuditAction
	onClose func(ctx context.Context, id string)
}

func (f *fakeTickets) Get(_ context.Context, _ service.Actor, id string) (*model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return nil, errs.ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) ChangeStatus(ctx context.Context, _ service.Actor, id string, status model.TicketStatus, _ string) (*model.Ticket, error) {
	f.mu.Lock()
	t, ok := f.tickets[id]
	if !ok {
		f.mu.Unlock()
		return nil, errs.ErrTicketNotFound
	}
	if t.Status.Terminal() {
		f.mu.Unlock()
		return nil, errs.ErrTerminalState
	}
	if !t.Status.CanTransitionTo(status) {
		f.mu.Unlock()
		return nil, errs.ErrInvalidTransition
	}
	t.Status = status
	cp := *t
	hook := f.onClose
	f.mu.Unlock()
	if status.Terminal() && hook != nil {
		hook(ctx, id)
	}
	return &cp, nil
}

func (f *fakeTickets) AppendDialogReply(_ context.Context, operatorID int64, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, model.Reply{TicketID: id, AuthorID: operatorID, AuthorRole: model.ReplyRoleStaff, Text: text})
	return nil
}

func (f *fakeTickets) RecordDialog(_ context.Context, _ string, action model.AuditAction, _ int64) {
	f.mu.Lock()
	f.audit = append(f.audit, action)
	f.mu.Unlock()
}

const (
	ticketID  = "T20250101000000001"
	citizen   = int64(20)
	operatorA = int64(10)
	operatorB = int64(11)
)

func newBridge(t *testing.T) (*Bridge, *fakeTickets, *transporttest.Recorder, *notify.Notifier) {
	t.Helper()
	ft := &fakeTickets{tickets: map[string]*model.Ticket{
		ticketID: {TicketID: ticketID, AuthorID: citizen, Status: model.TicketStatusNew},
	}}
	rec := transporttest.NewRecorder()
	n := notify.New(rec, time.Second, nil)
	b := NewBridge(NewIndex(), ft, n, nil)
	ft.onClose = b.ForceStop
	return b, ft, rec, n
}

func staffActor(id int64) service.Actor { return service.Actor{ID: id, Staff: true} }

func TestStartMovesToInProgressAndNotifies(t *testing.T) {
	b, ft, rec, n := newBridge(t)
	ctx := context.Background()

	link, err := b.Start(ctx, staffActor(operatorA), ticketID)
	if err != nil {
		t.Fatal(err)
	}
	n.Wait()
	if link.CitizenID != citizen || link.OperatorID != operatorA {
		t.Fatalf("link = %+v", link)
	}
	if ft.tickets[ticketID].Status != model.TicketStatusInProgress {
		t.Fatalf("status = %s", ft.tickets[ticketID].Status)
	}
	if !rec.Contains(operatorA, ticketID) || !rec.Contains(citizen, "Оператор подключился") {
		t.Fatalf("notifications = %+v", rec.All())
	}
	if len(ft.audit) != 1 || ft.audit[0] != model.AuditDialogStart {
		t.Fatalf("audit = %v", ft.audit)
	}

	// Same operator again: idempotent, no second audit.
	if _, err := b.Start(ctx, staffActor(operatorA), ticketID); err != nil {
		t.Fatal(err)
	}
	if len(ft.audit) != 1 {
		t.Fatalf("idempotent start audited again: %v", ft.audit)
	}
}

func TestSecondOperatorCannotTakeOver(t *testing.T) {
	b, _, rec, n := newBridge(t)
	ctx := context.Background()
	if _, err := b.Start(ctx, staffActor(operatorA), ticketID); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Start(ctx, staffActor(operatorB), ticketID); !errors.Is(err, errs.ErrDialogBusy) {
		t.Fatalf("operator B: %v", err)
	}
	if _, err := b.StopTicket(ctx, operatorB, ticketID); !errors.Is(err, errs.ErrNotDialogOwner) {
		t.Fatalf("operator B stop: %v", err)
	}
	n.Wait()
	rec.Reset()

	handled, err := b.Forward(ctx, citizen, Message{Text: "Дым уже меньше"})
	if err != nil || !handled {
		t.Fatalf("forward: %v %v", handled, err)
	}
	if !rec.Contains(operatorA, "Дым уже меньше") || len(rec.To(operatorB)) != 0 {
		t.Fatalf("citizen message went to %+v", rec.All())
	}
}

func TestForwardPersistsOnlyStaffText(t *testing.T) {
	b, ft, rec, n := newBridge(t)
	ctx := context.Background()
	if _, err := b.Start(ctx, staffActor(operatorA), ticketID); err != nil {
		t.Fatal(err)
	}
	n.Wait()
	rec.Reset()

	if _, err := b.Forward(ctx, operatorA, Message{Text: "Бригада выехала"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Forward(ctx, citizen, Message{Text: "Спасибо"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Forward(ctx, citizen, Message{MediaRef: "photo:xyz", Text: "вот фото"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Forward(ctx, citizen, Message{Location: &transport.Location{Latitude: 1, Longitude: 2}}); err != nil {
		t.Fatal(err)
	}

	if len(ft.replies) != 1 || ft.replies[0].Text != "Бригада выехала" {
		t.Fatalf("replies = %+v", ft.replies)
	}
	if rec.Last(citizen).Text != "Бригада выехала" {
		t.Fatalf("citizen got %+v", rec.To(citizen))
	}
	toOp := rec.To(operatorA)
	if len(toOp) != 3 || toOp[1].Op != "media" || toOp[1].Text != "вот фото" || toOp[2].Op != "location" {
		t.Fatalf("operator got %+v", toOp)
	}

	handled, err := b.Forward(ctx, 999, Message{Text: "hi"})
	if handled || err != nil {
		t.Fatalf("stranger forwarded: %v %v", handled, err)
	}
}

func TestStopOnlyByOwner(t *testing.T) {
	b, ft, _, n := newBridge(t)
	ctx := context.Background()
	if _, err := b.Start(ctx, staffActor(operatorA), ticketID); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Stop(ctx, citizen); !errors.Is(err, errs.ErrNotDialogOwner) {
		t.Fatalf("citizen stop: %v", err)
	}
	if _, err := b.Stop(ctx, operatorB); !errors.Is(err, errs.ErrNoDialog) {
		t.Fatalf("stranger stop: %v", err)
	}
	if _, err := b.Stop(ctx, operatorA); err != nil {
		t.Fatal(err)
	}
	n.Wait()
	for _, id := range []int64{operatorA, citizen} {
		if _, ok := b.Index().TicketFor(id); ok {
			t.Fatalf("%d still linked", id)
		}
	}
	if ft.audit[len(ft.audit)-1] != model.AuditDialogStop {
		t.Fatalf("audit = %v", ft.audit)
	}
}

func TestTerminalStatusForceStops(t *testing.T) {
	b, ft, rec, n := newBridge(t)
	ctx := context.Background()
	if _, err := b.Start(ctx, staffActor(operatorA), ticketID); err != nil {
		t.Fatal(err)
	}
	if _, err := ft.ChangeStatus(ctx, staffActor(operatorB), ticketID, model.TicketStatusDone, ""); err != nil {
		t.Fatal(err)
	}
	n.Wait()
	if b.Index().Len() != 0 {
		t.Fatal("dialog survived terminal status")
	}
	if !rec.Contains(citizen, "заявка закрыта") {
		t.Fatal("citizen not told about the forced stop")
	}
	if _, err := b.Start(ctx, staffActor(operatorA), ticketID); !errors.Is(err, errs.ErrTerminalState) {
		t.Fatalf("start on closed ticket: %v", err)
	}
}

func TestStartRequiresStaff(t *testing.T) {
	b, _, _, _ := newBridge(t)
	if _, err := b.Start(context.Background(), service.Actor{ID: operatorA}, ticketID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("citizen start: %v", err)
	}
	if _, err := b.Start(context.Background(), staffActor(operatorA), "T404"); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("missing ticket: %v", err)
	}
}

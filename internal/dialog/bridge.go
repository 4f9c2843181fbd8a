package dialog

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/callback"
	"github.com/psds-microservice/citizen-desk/internal/errs"
	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/internal/notify"
	"github.com/psds-microservice/citizen-desk/internal/service"
	"github.com/psds-microservice/citizen-desk/internal/transport"
	"github.com/psds-microservice/citizen-desk/pkg/logger"
	"github.com/psds-microservice/citizen-desk/pkg/metrics"
)

// Tickets is the slice of the lifecycle the bridge drives.
type Tickets interface {
	Get(ctx context.Context, actor service.Actor, ticketID string) (*model.Ticket, error)
	ChangeStatus(ctx context.Context, actor service.Actor, ticketID string, status model.TicketStatus, comment string) (*model.Ticket, error)
	AppendDialogReply(ctx context.Context, operatorID int64, ticketID, text string) error
	RecordDialog(ctx context.Context, ticketID string, action model.AuditAction, operatorID int64)
}

// Message is one piece of dialog traffic.
type Message struct {
	Text     string
	MediaRef string
	Location *transport.Location
}

type Bridge struct {
	index    *Index
	tickets  Tickets
	notifier *notify.Notifier
	log      *logger.Logger
}

func NewBridge(index *Index, tickets Tickets, notifier *notify.Notifier, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.NewNop()
	}
	return &Bridge{index: index, tickets: tickets, notifier: notifier, log: log.Named("dialog")}
}

// Index exposes the link registry, e.g. for session lookups.
func (b *Bridge) Index() *Index {
	return b.index
}

// Start opens a dialog between operator and the ticket author. Starting the
// same dialog twice is harmless; a second operator gets ErrDialogBusy.
func (b *Bridge) Start(ctx context.Context, operator service.Actor, ticketID string) (Link, error) {
	if !operator.Staff {
		return Link{}, errs.ErrForbidden
	}
	t, err := b.tickets.Get(ctx, operator, ticketID)
	if err != nil {
		return Link{}, err
	}
	if t.Status.Terminal() {
		return Link{}, errs.ErrTerminalState
	}
	link := Link{TicketID: t.TicketID, OperatorID: operator.ID, CitizenID: t.AuthorID}
	installed, err := b.index.Install(link)
	if err != nil {
		return Link{}, err
	}
	if !installed {
		return link, nil
	}

	if t.Status == model.TicketStatusNew {
		if _, err := b.tickets.ChangeStatus(ctx, operator, t.TicketID, model.TicketStatusInProgress, ""); err != nil &&
			!errors.Is(err, errs.ErrInvalidTransition) {
			b.index.ForceRemove(t.TicketID)
			return Link{}, err
		}
	}
	// The ticket may have been closed between the read and the install; the
	// close hook would have found nothing to remove.
	if cur, err := b.tickets.Get(ctx, operator, t.TicketID); err != nil || cur.Status.Terminal() {
		b.index.ForceRemove(t.TicketID)
		if err == nil {
			err = errs.ErrTerminalState
		}
		return Link{}, err
	}

	metrics.DialogsActive.Set(float64(b.index.Len()))
	b.tickets.RecordDialog(ctx, t.TicketID, model.AuditDialogStart, operator.ID)
	b.log.Info("dialog started",
		zap.String("ticket_id", t.TicketID),
		zap.Int64("operator_id", operator.ID),
		zap.Int64("citizen_id", t.AuthorID))

	b.notifier.Notify(notify.KindDialog, operator.ID, notify.Message{
		Text:     "Диалог по заявке " + t.TicketID + " начат. Сообщения пересылаются заявителю. /stop — завершить.",
		Keyboard: stopKeyboard(t.TicketID),
	})
	b.notifier.Notify(notify.KindDialog, t.AuthorID, notify.Message{
		Text: "Оператор подключился к вашей заявке " + t.TicketID + ". Пишите сюда, сообщения будут переданы оператору.",
	})
	return link, nil
}

// Stop ends the dialog the participant runs as operator. A citizen cannot
// end a dialog and gets ErrNotDialogOwner.
func (b *Bridge) Stop(ctx context.Context, participantID int64) (Link, error) {
	if l, ok := b.index.ByOperator(participantID); ok {
		return b.StopTicket(ctx, participantID, l.TicketID)
	}
	if _, ok := b.index.ByCitizen(participantID); ok {
		return Link{}, errs.ErrNotDialogOwner
	}
	return Link{}, errs.ErrNoDialog
}

// StopTicket ends the ticket's dialog on behalf of operatorID.
func (b *Bridge) StopTicket(ctx context.Context, operatorID int64, ticketID string) (Link, error) {
	l, err := b.index.Remove(ticketID, operatorID)
	if err != nil {
		return Link{}, err
	}
	b.stopped(ctx, l, "Диалог по заявке "+l.TicketID+" завершён оператором.")
	return l, nil
}

// ForceStop ends the ticket's dialog without an owner check. It is the
// lifecycle's close hook.
func (b *Bridge) ForceStop(ctx context.Context, ticketID string) {
	if l, ok := b.index.ForceRemove(ticketID); ok {
		b.stopped(ctx, l, "Диалог по заявке "+l.TicketID+" завершён: заявка закрыта.")
	}
}

func (b *Bridge) stopped(ctx context.Context, l Link, text string) {
	metrics.DialogsActive.Set(float64(b.index.Len()))
	b.tickets.RecordDialog(ctx, l.TicketID, model.AuditDialogStop, l.OperatorID)
	b.log.Info("dialog stopped", zap.String("ticket_id", l.TicketID), zap.Int64("operator_id", l.OperatorID))
	b.notifier.Notify(notify.KindDialog, l.OperatorID, notify.Message{Text: text})
	b.notifier.Notify(notify.KindDialog, l.CitizenID, notify.Message{Text: text})
}

// Forward relays msg from participantID to the other side of their dialog.
// It reports false when the participant is not in a dialog. Operator text is
// stored as a staff reply before delivery.
func (b *Bridge) Forward(ctx context.Context, participantID int64, msg Message) (bool, error) {
	var (
		l        Link
		target   int64
		operator bool
		ok       bool
	)
	if l, ok = b.index.ByOperator(participantID); ok {
		target, operator = l.CitizenID, true
	} else if l, ok = b.index.ByCitizen(participantID); ok {
		target = l.OperatorID
	} else {
		return false, nil
	}

	if operator && msg.Text != "" {
		if err := b.tickets.AppendDialogReply(ctx, participantID, l.TicketID, msg.Text); err != nil {
			return true, err
		}
	}
	err := b.notifier.Send(ctx, notify.KindDialog, target, notify.Message{
		Text:     msg.Text,
		MediaRef: msg.MediaRef,
		Location: msg.Location,
	})
	return true, err
}

func stopKeyboard(ticketID string) *transport.Keyboard {
	return &transport.Keyboard{Inline: [][]transport.Button{{
		{Text: "Завершить диалог", Data: callback.Encode(callback.StopDialog, ticketID)},
	}}}
}

package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/errs"
	"github.com/psds-microservice/citizen-desk/internal/events"
	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/internal/notify"
	"github.com/psds-microservice/citizen-desk/internal/repository"
	"github.com/psds-microservice/citizen-desk/internal/routing"
	"github.com/psds-microservice/citizen-desk/internal/searchindex"
	"github.com/psds-microservice/citizen-desk/internal/ticketid"
	"github.com/psds-microservice/citizen-desk/pkg/logger"
	"github.com/psds-microservice/citizen-desk/pkg/metrics"
)

// TicketStore is the persistence the lifecycle needs.
type TicketStore interface {
	CreateTicket(ctx context.Context, t *model.Ticket) error
	GetByTicketID(ctx context.Context, ticketID string) (*model.Ticket, error)
	ListByAuthor(ctx context.Context, authorID int64, limit int) ([]model.Ticket, error)
	ListRecent(ctx context.Context, limit int) ([]model.Ticket, error)
	ListActive(ctx context.Context, limit int) ([]model.Ticket, error)
	UpdateStatus(ctx context.Context, ch repository.StatusChange) (*model.Ticket, model.TicketStatus, error)
	AssignDepartment(ctx context.Context, ticketID, departmentKey string, actorID *int64) (*model.Ticket, error)
	AppendReply(ctx context.Context, reply *model.Reply) error
	ListReplies(ctx context.Context, ticketID string) ([]model.Reply, error)
	AppendAudit(ctx context.Context, ticketID string, action model.AuditAction, details string, actorID *int64) error
	ListAudit(ctx context.Context, ticketID string) ([]model.AuditEntry, error)
	ExportByDateRange(ctx context.Context, start, end time.Time) ([]model.Ticket, error)
	PurgeActive(ctx context.Context) (repository.PurgeResult, error)
	PurgeAll(ctx context.Context) (repository.PurgeResult, error)
	PurgeBefore(ctx context.Context, date time.Time) (repository.PurgeResult, error)
	BulkCloseActive(ctx context.Context, actorID *int64) ([]model.Ticket, error)
	CountByStatus(ctx context.Context) (model.StatusCounts, error)
	ForEachTicket(ctx context.Context, batchSize int, fn func([]model.Ticket) error) error
}

// Directory is the department and participant registry.
type Directory interface {
	UpsertDepartment(ctx context.Context, d *model.Department) error
	GetDepartment(ctx context.Context, key string) (*model.Department, error)
	ListDepartments(ctx context.Context) ([]model.Department, error)
	DeleteDepartment(ctx context.Context, key string) error
	UpsertParticipant(ctx context.Context, p *model.Participant) error
	SetStaff(ctx context.Context, id int64, staff bool) error
	IsStaff(ctx context.Context, id int64) (bool, error)
	ListStaff(ctx context.Context) ([]model.Participant, error)
	ListParticipantIDs(ctx context.Context) ([]int64, error)
}

// Actor is whoever initiates an operation. ID 0 is the operator REST API.
type Actor struct {
	ID    int64
	Staff bool
}

// System acts on behalf of the operator REST API and CLI.
var System = Actor{Staff: true}

func (a Actor) ref() *int64 {
	if a.ID == 0 {
		return nil
	}
	id := a.ID
	return &id
}

func requireStaff(a Actor) error {
	if !a.Staff {
		return errs.ErrForbidden
	}
	return nil
}

type Deps struct {
	Tickets     TicketStore
	Directory   Directory
	IDs         *ticketid.Generator
	Notifier    *notify.Notifier
	Events      *events.Bus
	Search      *searchindex.Client
	Logger      *logger.Logger
	AdminSecret string
}

// TicketService owns the ticket lifecycle: creation and routing, the status
// machine, department assignment, replies and bulk operations. Side effects
// (notifications, events, indexing) are best-effort and run after commit.
type TicketService struct {
	tickets     TicketStore
	dir         Directory
	ids         *ticketid.Generator
	notifier    *notify.Notifier
	bus         *events.Bus
	search      *searchindex.Client
	log         *logger.Logger
	adminSecret string

	hookMu     sync.RWMutex
	onTerminal []func(ctx context.Context, ticketID string)
}

func NewTicketService(d Deps) *TicketService {
	if d.IDs == nil {
		d.IDs = ticketid.NewGenerator(nil)
	}
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	return &TicketService{
		tickets:     d.Tickets,
		dir:         d.Directory,
		ids:         d.IDs,
		notifier:    d.Notifier,
		bus:         d.Events,
		search:      d.Search,
		log:         d.Logger.Named("lifecycle"),
		adminSecret: d.AdminSecret,
	}
}

// OnTerminal registers fn to run when a ticket is closed or purged.
func (s *TicketService) OnTerminal(fn func(ctx context.Context, ticketID string)) {
	s.hookMu.Lock()
	s.onTerminal = append(s.onTerminal, fn)
	s.hookMu.Unlock()
}

func (s *TicketService) fireTerminal(ctx context.Context, ticketID string) {
	s.hookMu.RLock()
	hooks := s.onTerminal
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, ticketID)
	}
}

// NewTicket is a citizen's completed submission.
type NewTicket struct {
	AuthorID  int64
	Text      string
	MediaRef  string
	Latitude  *float64
	Longitude *float64
	Category  model.Category
}

// Create files a ticket, routes it and fans it out to the routed departments
// and to staff.
func (s *TicketService) Create(ctx context.Context, in NewTicket) (*model.Ticket, routing.Route, error) {
	text := strings.TrimSpace(in.Text)
	if in.AuthorID == 0 {
		return nil, routing.Route{}, errs.ErrInvalidArgument
	}
	if text == "" && in.MediaRef == "" {
		return nil, routing.Route{}, errs.ErrInvalidArgument
	}
	if !in.Category.Valid() {
		return nil, routing.Route{}, errs.ErrInvalidArgument
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return nil, routing.Route{}, errs.ErrInvalidArgument
	}

	route := routing.Classify(text, in.Category)
	id, at := s.ids.Next()
	t := &model.Ticket{
		TicketID:   id,
		AuthorID:   in.AuthorID,
		Text:       text,
		MediaRef:   in.MediaRef,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Status:     model.TicketStatusNew,
		Category:   route.Category,
		Urgent:     route.Urgent,
		Department: route.Primary(),
		CreatedAt:  at,
	}
	if err := s.tickets.CreateTicket(ctx, t); err != nil {
		return nil, route, err
	}
	metrics.RecordTicketCreated(string(t.Category), t.Urgent)
	s.log.Info("ticket created",
		zap.String("ticket_id", t.TicketID),
		zap.Int64("author_id", t.AuthorID),
		zap.String("category", string(t.Category)),
		zap.Bool("urgent", t.Urgent),
		zap.Strings("departments", route.Departments))

	msg := newTicketMessage(t, route)
	for _, key := range route.Departments {
		s.notifyDepartment(ctx, key, msg)
	}
	s.notifyStaff(ctx, t.AuthorID, msg)

	e := events.New(events.TicketCreated, t)
	e.Departments = route.Departments
	s.bus.Emit(e)
	s.search.IndexTicketAsync(t)
	return t, route, nil
}

// Get returns a ticket to staff or to its author.
func (s *TicketService) Get(ctx context.Context, actor Actor, ticketID string) (*model.Ticket, error) {
	t, err := s.tickets.GetByTicketID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.Staff && t.AuthorID != actor.ID {
		return nil, errs.ErrForbidden
	}
	return t, nil
}

// ChangeStatus applies a staff status decision and notifies the author.
func (s *TicketService) ChangeStatus(ctx context.Context, actor Actor, ticketID string, status model.TicketStatus, comment string) (*model.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		s.reject("change_status", err)
		return nil, err
	}
	t, prev, err := s.tickets.UpdateStatus(ctx, repository.StatusChange{
		TicketID: ticketID,
		Status:   status,
		Comment:  strings.TrimSpace(comment),
		ActorID:  actor.ref(),
	})
	if err != nil {
		s.reject("change_status", err)
		return nil, err
	}
	metrics.TicketTransitionsTotal.WithLabelValues(string(prev), string(status)).Inc()
	s.log.Info("ticket status changed",
		zap.String("ticket_id", t.TicketID),
		zap.String("from", string(prev)),
		zap.String("to", string(status)),
		zap.Int64("actor_id", actor.ID))

	s.notifier.Notify(notify.KindAuthorStatus, t.AuthorID, notify.Message{Text: statusChangedText(t, prev)})
	e := events.New(events.TicketStatusChanged, t)
	e.PreviousStatus = prev
	e.ActorID = actor.ref()
	s.bus.Emit(e)
	s.search.IndexTicketAsync(t)

	if t.Status.Terminal() {
		s.fireTerminal(ctx, t.TicketID)
	}
	return t, nil
}

// AssignDepartment re-routes a ticket to one department and forwards its
// content there.
func (s *TicketService) AssignDepartment(ctx context.Context, actor Actor, ticketID, key string) (*model.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		s.reject("assign", err)
		return nil, err
	}
	t, err := s.tickets.AssignDepartment(ctx, ticketID, key, actor.ref())
	if err != nil {
		s.reject("assign", err)
		return nil, err
	}
	dept, err := s.dir.GetDepartment(ctx, t.Department)
	if err != nil {
		dept = &model.Department{Key: t.Department, DisplayName: t.Department}
	}
	s.log.Info("ticket assigned",
		zap.String("ticket_id", t.TicketID),
		zap.String("department", t.Department),
		zap.Int64("actor_id", actor.ID))

	s.notifier.Notify(notify.KindAuthorStatus, t.AuthorID, notify.Message{Text: assignedText(t, dept)})
	if dept.Notifiable() {
		s.notifier.Notify(notify.KindDepartment, *dept.NotificationTarget, assignedDepartmentMessage(t))
	}
	e := events.New(events.TicketAssigned, t)
	e.ActorID = actor.ref()
	e.Departments = []string{t.Department}
	s.bus.Emit(e)
	s.search.IndexTicketAsync(t)
	return t, nil
}

// Reply records a staff answer and delivers it to the author. Closed tickets
// accept replies too.
func (s *TicketService) Reply(ctx context.Context, actor Actor, ticketID, text string) (*model.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		s.reject("reply", err)
		return nil, err
	}
	t, err := s.appendStaffReply(ctx, actor.ID, ticketID, text)
	if err != nil {
		s.reject("reply", err)
		return nil, err
	}
	s.notifier.Notify(notify.KindAuthorStatus, t.AuthorID, notify.Message{Text: replyText(t, text)})
	return t, nil
}

// AppendDialogReply persists an operator's message sent through a live
// dialog. Delivery is the dialog bridge's job.
func (s *TicketService) AppendDialogReply(ctx context.Context, operatorID int64, ticketID, text string) error {
	_, err := s.appendStaffReply(ctx, operatorID, ticketID, text)
	return err
}

func (s *TicketService) appendStaffReply(ctx context.Context, authorID int64, ticketID, text string) (*model.Ticket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.ErrInvalidArgument
	}
	t, err := s.tickets.GetByTicketID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	reply := &model.Reply{
		TicketID:   t.TicketID,
		AuthorID:   authorID,
		AuthorRole: model.ReplyRoleStaff,
		Text:       text,
	}
	if err := s.tickets.AppendReply(ctx, reply); err != nil {
		return nil, err
	}
	e := events.New(events.TicketReplied, t)
	e.ActorID = &authorID
	s.bus.Emit(e)
	return t, nil
}

// RecordDialog audits a dialog start or stop. Failures are logged only.
func (s *TicketService) RecordDialog(ctx context.Context, ticketID string, action model.AuditAction, operatorID int64) {
	if err := s.tickets.AppendAudit(ctx, ticketID, action, "", &operatorID); err != nil {
		s.log.Warn("audit dialog event",
			zap.String("ticket_id", ticketID),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

// History returns the replies and audit trail of a ticket.
func (s *TicketService) History(ctx context.Context, actor Actor, ticketID string) ([]model.Reply, []model.AuditEntry, error) {
	if _, err := s.Get(ctx, actor, ticketID); err != nil {
		return nil, nil, err
	}
	replies, err := s.tickets.ListReplies(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if !actor.Staff {
		return replies, nil, nil
	}
	audit, err := s.tickets.ListAudit(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	return replies, audit, nil
}

// ListMine returns the author's own tickets, newest first.
func (s *TicketService) ListMine(ctx context.Context, authorID int64, limit int) ([]model.Ticket, error) {
	return s.tickets.ListByAuthor(ctx, authorID, limit)
}

func (s *TicketService) ListActive(ctx context.Context, actor Actor, limit int) ([]model.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.tickets.ListActive(ctx, limit)
}

func (s *TicketService) ListRecent(ctx context.Context, actor Actor, limit int) ([]model.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.tickets.ListRecent(ctx, limit)
}

// BulkClose marks every active ticket Done and returns how many were closed.
func (s *TicketService) BulkClose(ctx context.Context, actor Actor) (int, error) {
	if err := requireStaff(actor); err != nil {
		s.reject("bulk_close", err)
		return 0, err
	}
	closed, err := s.tickets.BulkCloseActive(ctx, actor.ref())
	if err != nil {
		return 0, err
	}
	s.log.Info("bulk close", zap.Int("closed", len(closed)), zap.Int64("actor_id", actor.ID))
	for i := range closed {
		t := &closed[i]
		metrics.TicketTransitionsTotal.WithLabelValues("bulk", string(model.TicketStatusDone)).Inc()
		s.notifier.Notify(notify.KindAuthorStatus, t.AuthorID, notify.Message{Text: bulkClosedText(t)})
		e := events.New(events.TicketBulkClosed, t)
		e.ActorID = actor.ref()
		s.bus.Emit(e)
		s.search.IndexTicketAsync(t)
		s.fireTerminal(ctx, t.TicketID)
	}
	return len(closed), nil
}

// PurgeKind selects which tickets a purge removes.
type PurgeKind string

const (
	PurgeActive PurgeKind = "active"
	PurgeAll    PurgeKind = "all"
	PurgeBefore PurgeKind = "before"
)

// Purge deletes tickets with their replies and audit trail and returns the
// exact number of tickets removed. Before is used by PurgeBefore only.
func (s *TicketService) Purge(ctx context.Context, actor Actor, kind PurgeKind, before time.Time) (int64, error) {
	if err := requireStaff(actor); err != nil {
		s.reject("purge", err)
		return 0, err
	}
	var (
		res repository.PurgeResult
		err error
	)
	switch kind {
	case PurgeActive:
		res, err = s.tickets.PurgeActive(ctx)
	case PurgeAll:
		res, err = s.tickets.PurgeAll(ctx)
	case PurgeBefore:
		if before.IsZero() {
			return 0, errs.ErrInvalidArgument
		}
		res, err = s.tickets.PurgeBefore(ctx, before)
	default:
		return 0, errs.ErrInvalidArgument
	}
	if err != nil {
		return 0, err
	}
	s.log.Info("purge",
		zap.String("kind", string(kind)),
		zap.Int64("removed", res.Count),
		zap.Int64("actor_id", actor.ID))
	for _, id := range res.TicketIDs {
		e := events.New(events.TicketPurged, nil)
		e.TicketID = id
		e.ActorID = actor.ref()
		s.bus.Emit(e)
		s.fireTerminal(ctx, id)
	}
	return res.Count, nil
}

// Export returns tickets created between start and end (inclusive days).
func (s *TicketService) Export(ctx context.Context, actor Actor, start, end time.Time) ([]model.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.tickets.ExportByDateRange(ctx, start, end)
}

func (s *TicketService) Stats(ctx context.Context, actor Actor) (model.StatusCounts, error) {
	if err := requireStaff(actor); err != nil {
		return model.StatusCounts{}, err
	}
	return s.tickets.CountByStatus(ctx)
}

// Republish replays every stored ticket to the event bus as a snapshot.
func (s *TicketService) Republish(ctx context.Context, batchSize int) (int, error) {
	if !s.bus.Enabled() && !s.search.Enabled() {
		return 0, errors.New("no event bus or search service configured")
	}
	n := 0
	err := s.tickets.ForEachTicket(ctx, batchSize, func(batch []model.Ticket) error {
		for i := range batch {
			t := &batch[i]
			if err := s.bus.Publish(ctx, events.New(events.TicketSnapshot, t)); err != nil {
				return err
			}
			if err := s.search.IndexTicket(ctx, t); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (s *TicketService) notifyDepartment(ctx context.Context, key string, msg notify.Message) {
	dept, err := s.dir.GetDepartment(ctx, key)
	if err != nil {
		if !errors.Is(err, errs.ErrDepartmentNotFound) {
			s.log.Warn("load department", zap.String("department", key), zap.Error(err))
		}
		return
	}
	if dept.Notifiable() {
		s.notifier.Notify(notify.KindDepartment, *dept.NotificationTarget, msg)
	}
}

func (s *TicketService) notifyStaff(ctx context.Context, except int64, msg notify.Message) {
	staff, err := s.dir.ListStaff(ctx)
	if err != nil {
		s.log.Warn("list staff", zap.Error(err))
		return
	}
	for _, p := range staff {
		if p.ID != except {
			s.notifier.Notify(notify.KindStaff, p.ID, msg)
		}
	}
}

func (s *TicketService) reject(op string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, errs.ErrForbidden):
		reason = "forbidden"
	case errors.Is(err, errs.ErrTerminalState):
		reason = "terminal"
	case errors.Is(err, errs.ErrInvalidTransition):
		reason = "invalid_transition"
	case errs.IsValidation(err):
		reason = "invalid"
	}
	metrics.TicketRejectionsTotal.WithLabelValues(op, reason).Inc()
}

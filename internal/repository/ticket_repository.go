package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/psds-microservice/citizen-desk/internal/errs"
	"github.com/psds-microservice/citizen-desk/internal/model"
)

const defaultListLimit = 50

// Option configures a repository.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TicketRepository provides persistence for tickets, replies and the audit log.
// Every mutating method runs in a single transaction.
type TicketRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTicketRepository constructs a repository using the provided gorm DB.
func NewTicketRepository(db *gorm.DB, opts ...Option) *TicketRepository {
	o := buildOptions(opts)
	return &TicketRepository{db: db, now: o.now}
}

// StatusChange describes a requested status transition.
type StatusChange struct {
	TicketID string
	Status   model.TicketStatus
	// Comment replaces admin_comment when non-empty.
	Comment string
	ActorID *int64
}

// PurgeResult lists what a purge removed.
type PurgeResult struct {
	Count     int64
	TicketIDs []string
}

func (r *TicketRepository) clock() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// advance returns a timestamp strictly after prev.
func (r *TicketRepository) advance(prev time.Time) time.Time {
	now := r.clock()
	if !now.After(prev) {
		now = prev.UTC().Add(time.Microsecond)
	}
	return now
}

// CreateTicket persists a new ticket. Zero timestamps are filled from the clock
// and an empty status becomes New.
func (r *TicketRepository) CreateTicket(ctx context.Context, t *model.Ticket) error {
	if t.TicketID == "" {
		return errors.Wrap(errs.ErrInvalidArgument, "ticket id is required")
	}
	if t.Status == "" {
		t.Status = model.TicketStatusNew
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.clock()
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.CreatedAt
	return errors.WithStack(r.db.WithContext(ctx).Create(t).Error)
}

// GetByTicketID returns the ticket by its public id.
func (r *TicketRepository) GetByTicketID(ctx context.Context, ticketID string) (*model.Ticket, error) {
	return getTicket(r.db.WithContext(ctx), ticketID)
}

func getTicket(tx *gorm.DB, ticketID string) (*model.Ticket, error) {
	var t model.Ticket
	if err := tx.First(&t, "ticket_id = ?", ticketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(errs.ErrTicketNotFound, ticketID)
		}
		return nil, errors.WithStack(err)
	}
	return &t, nil
}

// ListByAuthor returns the author's tickets, newest first.
func (r *TicketRepository) ListByAuthor(ctx context.Context, authorID int64, limit int) ([]model.Ticket, error) {
	var tickets []model.Ticket
	err := r.db.WithContext(ctx).
		Where("author_id = ?", authorID).
		Order("created_at desc").
		Limit(normLimit(limit)).
		Find(&tickets).Error
	return tickets, errors.WithStack(err)
}

// ListRecent returns the latest tickets regardless of status.
func (r *TicketRepository) ListRecent(ctx context.Context, limit int) ([]model.Ticket, error) {
	var tickets []model.Ticket
	err := r.db.WithContext(ctx).Order("created_at desc").Limit(normLimit(limit)).Find(&tickets).Error
	return tickets, errors.WithStack(err)
}

// ListActive returns New and InProgress tickets, oldest first.
func (r *TicketRepository) ListActive(ctx context.Context, limit int) ([]model.Ticket, error) {
	var tickets []model.Ticket
	err := r.db.WithContext(ctx).
		Where("status IN ?", model.ActiveStatuses).
		Order("created_at asc").
		Limit(normLimit(limit)).
		Find(&tickets).Error
	return tickets, errors.WithStack(err)
}

// UpdateStatus moves a ticket along the status machine and records one audit
// entry. The write is conditional on the status read in the same transaction;
// a concurrent change makes it fail with ErrInvalidTransition.
func (r *TicketRepository) UpdateStatus(ctx context.Context, ch StatusChange) (*model.Ticket, model.TicketStatus, error) {
	if !ch.Status.Valid() {
		return nil, "", errors.Wrapf(errs.ErrInvalidArgument, "unknown status %q", ch.Status)
	}
	var (
		updated *model.Ticket
		prev    model.TicketStatus
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := getTicket(tx, ch.TicketID)
		if err != nil {
			return err
		}
		prev = t.Status
		if prev.Terminal() {
			return errors.Wrapf(errs.ErrTerminalState, "%s is %s", t.TicketID, prev)
		}
		if !prev.CanTransitionTo(ch.Status) {
			return errors.Wrapf(errs.ErrInvalidTransition, "%s -> %s", prev, ch.Status)
		}

		now := r.advance(t.UpdatedAt)
		values := map[string]interface{}{
			"status":     ch.Status,
			"updated_at": now,
		}
		if ch.Comment != "" {
			values["admin_comment"] = ch.Comment
		}
		res := tx.Model(&model.Ticket{}).
			Where("ticket_id = ? AND status = ?", t.TicketID, prev).
			Updates(values)
		if res.Error != nil {
			return errors.WithStack(res.Error)
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(errs.ErrInvalidTransition, "%s changed concurrently", t.TicketID)
		}

		details := fmt.Sprintf("%s -> %s", prev, ch.Status)
		if ch.Comment != "" {
			details += ": " + ch.Comment
		}
		if err := appendAudit(tx, t.TicketID, model.AuditStatusChange, details, ch.ActorID, now); err != nil {
			return err
		}

		t.Status = ch.Status
		t.UpdatedAt = now
		if ch.Comment != "" {
			t.AdminComment = ch.Comment
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, prev, err
	}
	return updated, prev, nil
}

// AssignDepartment sets the single responsible department of a non-terminal ticket.
func (r *TicketRepository) AssignDepartment(ctx context.Context, ticketID, departmentKey string, actorID *int64) (*model.Ticket, error) {
	var updated *model.Ticket
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := getTicket(tx, ticketID)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return errors.Wrapf(errs.ErrTerminalState, "%s is %s", t.TicketID, t.Status)
		}
		var dept model.Department
		if err := tx.First(&dept, "key = ?", departmentKey).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(errs.ErrDepartmentNotFound, departmentKey)
			}
			return errors.WithStack(err)
		}

		now := r.advance(t.UpdatedAt)
		res := tx.Model(&model.Ticket{}).
			Where("ticket_id = ? AND status = ?", t.TicketID, t.Status).
			Updates(map[string]interface{}{"department": dept.Key, "updated_at": now})
		if res.Error != nil {
			return errors.WithStack(res.Error)
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(errs.ErrTerminalState, "%s changed concurrently", t.TicketID)
		}
		details := dept.Key
		if t.Department != "" {
			details = t.Department + " -> " + dept.Key
		}
		if err := appendAudit(tx, t.TicketID, model.AuditAssignDepartment, details, actorID, now); err != nil {
			return err
		}
		t.Department = dept.Key
		t.UpdatedAt = now
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AppendReply stores a reply and its audit entry. Closed tickets still accept replies.
func (r *TicketRepository) AppendReply(ctx context.Context, reply *model.Reply) error {
	if reply.CreatedAt.IsZero() {
		reply.CreatedAt = r.clock()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getTicket(tx, reply.TicketID); err != nil {
			return err
		}
		if err := tx.Create(reply).Error; err != nil {
			return errors.WithStack(err)
		}
		actor := reply.AuthorID
		return appendAudit(tx, reply.TicketID, model.AuditReply, string(reply.AuthorRole), &actor, reply.CreatedAt)
	})
}

// ListReplies returns the replies of a ticket in creation order.
func (r *TicketRepository) ListReplies(ctx context.Context, ticketID string) ([]model.Reply, error) {
	var replies []model.Reply
	err := r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at asc, id asc").
		Find(&replies).Error
	return replies, errors.WithStack(err)
}

// AppendAudit records an entry that is not tied to a store mutation (dialog start/stop).
func (r *TicketRepository) AppendAudit(ctx context.Context, ticketID string, action model.AuditAction, details string, actorID *int64) error {
	return appendAudit(r.db.WithContext(ctx), ticketID, action, details, actorID, r.clock())
}

func appendAudit(tx *gorm.DB, ticketID string, action model.AuditAction, details string, actorID *int64, at time.Time) error {
	entry := model.AuditEntry{
		TicketID:  ticketID,
		Action:    action,
		Details:   details,
		ActorID:   actorID,
		CreatedAt: at,
	}
	return errors.WithStack(tx.Create(&entry).Error)
}

// ListAudit returns the audit trail of a ticket in creation order.
func (r *TicketRepository) ListAudit(ctx context.Context, ticketID string) ([]model.AuditEntry, error) {
	var entries []model.AuditEntry
	err := r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at asc, id asc").
		Find(&entries).Error
	return entries, errors.WithStack(err)
}

// ExportByDateRange returns tickets created on any day from start to end
// inclusive (UTC calendar days), oldest first.
func (r *TicketRepository) ExportByDateRange(ctx context.Context, start, end time.Time) ([]model.Ticket, error) {
	from := startOfDay(start)
	to := startOfDay(end).AddDate(0, 0, 1)
	if !to.After(from) {
		return nil, errors.Wrap(errs.ErrInvalidArgument, "end date precedes start date")
	}
	var tickets []model.Ticket
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at asc").
		Find(&tickets).Error
	return tickets, errors.WithStack(err)
}

// PurgeActive deletes every New and InProgress ticket with its replies and audit trail.
func (r *TicketRepository) PurgeActive(ctx context.Context) (PurgeResult, error) {
	return r.purge(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", model.ActiveStatuses)
	})
}

// PurgeAll deletes every ticket with its replies and audit trail.
func (r *TicketRepository) PurgeAll(ctx context.Context) (PurgeResult, error) {
	return r.purge(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("1 = 1")
	})
}

// PurgeBefore deletes tickets created before the start (UTC) of date.
func (r *TicketRepository) PurgeBefore(ctx context.Context, date time.Time) (PurgeResult, error) {
	cutoff := startOfDay(date)
	return r.purge(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("created_at < ?", cutoff)
	})
}

func (r *TicketRepository) purge(ctx context.Context, scope func(*gorm.DB) *gorm.DB) (PurgeResult, error) {
	var result PurgeResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := scope(tx.Model(&model.Ticket{})).Pluck("ticket_id", &ids).Error; err != nil {
			return errors.WithStack(err)
		}
		if len(ids) == 0 {
			return nil
		}
		victims := scope(tx.Model(&model.Ticket{})).Select("ticket_id")
		if err := tx.Where("ticket_id IN (?)", victims).Delete(&model.Reply{}).Error; err != nil {
			return errors.WithStack(err)
		}
		if err := tx.Where("ticket_id IN (?)", victims).Delete(&model.AuditEntry{}).Error; err != nil {
			return errors.WithStack(err)
		}
		res := scope(tx).Delete(&model.Ticket{})
		if res.Error != nil {
			return errors.WithStack(res.Error)
		}
		result = PurgeResult{Count: res.RowsAffected, TicketIDs: ids}
		return nil
	})
	return result, err
}

// BulkCloseActive marks every active ticket Done, one audit entry each, and
// returns the tickets it closed.
func (r *TicketRepository) BulkCloseActive(ctx context.Context, actorID *int64) ([]model.Ticket, error) {
	var closed []model.Ticket
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active []model.Ticket
		if err := tx.Where("status IN ?", model.ActiveStatuses).Order("created_at asc").Find(&active).Error; err != nil {
			return errors.WithStack(err)
		}
		for _, t := range active {
			now := r.advance(t.UpdatedAt)
			res := tx.Model(&model.Ticket{}).
				Where("ticket_id = ? AND status = ?", t.TicketID, t.Status).
				Updates(map[string]interface{}{"status": model.TicketStatusDone, "updated_at": now})
			if res.Error != nil {
				return errors.WithStack(res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}
			details := fmt.Sprintf("%s -> %s", t.Status, model.TicketStatusDone)
			if err := appendAudit(tx, t.TicketID, model.AuditBulkClose, details, actorID, now); err != nil {
				return err
			}
			t.Status = model.TicketStatusDone
			t.UpdatedAt = now
			closed = append(closed, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// CountByStatus returns the total and per-status ticket counts.
func (r *TicketRepository) CountByStatus(ctx context.Context) (model.StatusCounts, error) {
	var rows []struct {
		Status model.TicketStatus
		N      int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Ticket{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return model.StatusCounts{}, errors.WithStack(err)
	}
	counts := model.StatusCounts{ByStatus: make(map[model.TicketStatus]int64, len(rows))}
	for _, row := range rows {
		counts.ByStatus[row.Status] = row.N
		counts.Total += row.N
	}
	return counts, nil
}

// ForEachTicket walks every ticket in id order, batchSize at a time.
func (r *TicketRepository) ForEachTicket(ctx context.Context, batchSize int, fn func([]model.Ticket) error) error {
	var batch []model.Ticket
	res := r.db.WithContext(ctx).FindInBatches(&batch, normLimit(batchSize), func(_ *gorm.DB, _ int) error {
		return fn(batch)
	})
	return errors.WithStack(res.Error)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func normLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

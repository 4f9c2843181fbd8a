package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/errs"
	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/internal/notify"
)

// Touch records a participant seen on an inbound event and reports whether
// they are staff.
func (s *TicketService) Touch(ctx context.Context, p model.Participant) (Actor, error) {
	if err := s.dir.UpsertParticipant(ctx, &p); err != nil {
		return Actor{ID: p.ID}, err
	}
	staff, err := s.dir.IsStaff(ctx, p.ID)
	return Actor{ID: p.ID, Staff: staff}, err
}

// Authorize grants staff rights when code equals the configured admin secret.
func (s *TicketService) Authorize(ctx context.Context, participantID int64, code string) error {
	if s.adminSecret == "" || code != s.adminSecret {
		s.log.Warn("admin code rejected", zap.Int64("participant_id", participantID))
		return errs.ErrForbidden
	}
	if err := s.dir.SetStaff(ctx, participantID, true); err != nil {
		return err
	}
	s.log.Info("staff granted", zap.Int64("participant_id", participantID))
	return nil
}

// Broadcast sends text to every known participant.
func (s *TicketService) Broadcast(ctx context.Context, actor Actor, text string) (delivered, failed int, err error) {
	if err := requireStaff(actor); err != nil {
		return 0, 0, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, 0, errs.ErrInvalidArgument
	}
	ids, err := s.dir.ListParticipantIDs(ctx)
	if err != nil {
		return 0, 0, err
	}
	delivered, failed = s.notifier.Broadcast(ctx, ids, notify.Message{Text: text})
	s.log.Info("broadcast",
		zap.Int("delivered", delivered),
		zap.Int("failed", failed),
		zap.Int64("actor_id", actor.ID))
	return delivered, failed, nil
}

func (s *TicketService) ListDepartments(ctx context.Context) ([]model.Department, error) {
	return s.dir.ListDepartments(ctx)
}

func (s *TicketService) GetDepartment(ctx context.Context, key string) (*model.Department, error) {
	return s.dir.GetDepartment(ctx, key)
}

// UpsertDepartment creates or replaces a directory entry.
func (s *TicketService) UpsertDepartment(ctx context.Context, actor Actor, d model.Department) (*model.Department, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	d.Key = strings.TrimSpace(d.Key)
	d.DisplayName = strings.TrimSpace(d.DisplayName)
	if d.NotificationTarget != nil && *d.NotificationTarget == 0 {
		d.NotificationTarget = nil
	}
	if err := s.dir.UpsertDepartment(ctx, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *TicketService) DeleteDepartment(ctx context.Context, actor Actor, key string) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	return s.dir.DeleteDepartment(ctx, key)
}

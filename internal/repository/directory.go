package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/psds-microservice/citizen-desk/internal/errs"
	"github.com/psds-microservice/citizen-desk/internal/model"
)

// DirectoryRepository stores the department directory and known participants.
type DirectoryRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDirectoryRepository(db *gorm.DB, opts ...Option) *DirectoryRepository {
	o := buildOptions(opts)
	return &DirectoryRepository{db: db, now: o.now}
}

// UpsertDepartment creates or replaces a department by key.
func (r *DirectoryRepository) UpsertDepartment(ctx context.Context, d *model.Department) error {
	if d.Key == "" || d.DisplayName == "" {
		return errors.Wrap(errs.ErrInvalidArgument, "department key and name are required")
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "notification_target"}),
	}).Create(d).Error
	return errors.WithStack(err)
}

func (r *DirectoryRepository) GetDepartment(ctx context.Context, key string) (*model.Department, error) {
	var d model.Department
	if err := r.db.WithContext(ctx).First(&d, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(errs.ErrDepartmentNotFound, key)
		}
		return nil, errors.WithStack(err)
	}
	return &d, nil
}

func (r *DirectoryRepository) ListDepartments(ctx context.Context) ([]model.Department, error) {
	var out []model.Department
	err := r.db.WithContext(ctx).Order("display_name asc").Find(&out).Error
	return out, errors.WithStack(err)
}

func (r *DirectoryRepository) DeleteDepartment(ctx context.Context, key string) error {
	res := r.db.WithContext(ctx).Where("key = ?", key).Delete(&model.Department{})
	if res.Error != nil {
		return errors.WithStack(res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(errs.ErrDepartmentNotFound, key)
	}
	return nil
}

// UpsertParticipant records a participant seen on an inbound event. The staff
// flag of an existing participant is left untouched.
func (r *DirectoryRepository) UpsertParticipant(ctx context.Context, p *model.Participant) error {
	now := r.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "updated_at"}),
	}).Create(p).Error
	return errors.WithStack(err)
}

// SetStaff grants or revokes staff rights, creating the participant if unknown.
func (r *DirectoryRepository) SetStaff(ctx context.Context, id int64, staff bool) error {
	now := r.now().UTC()
	p := model.Participant{ID: id, IsStaff: staff, CreatedAt: now, UpdatedAt: now}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_staff", "updated_at"}),
	}).Create(&p).Error
	return errors.WithStack(err)
}

// IsStaff reports false for unknown participants.
func (r *DirectoryRepository) IsStaff(ctx context.Context, id int64) (bool, error) {
	var p model.Participant
	err := r.db.WithContext(ctx).Select("is_staff").First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.WithStack(err)
	}
	return p.IsStaff, nil
}

func (r *DirectoryRepository) ListStaff(ctx context.Context) ([]model.Participant, error) {
	var out []model.Participant
	err := r.db.WithContext(ctx).Where("is_staff = ?", true).Order("id asc").Find(&out).Error
	return out, errors.WithStack(err)
}

// ListParticipantIDs returns every participant id, used for broadcasts.
func (r *DirectoryRepository) ListParticipantIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.Participant{}).Order("id asc").Pluck("id", &ids).Error
	return ids, errors.WithStack(err)
}

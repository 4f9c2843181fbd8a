package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/psds-microservice/citizen-desk/internal/errs"
	"github.com/psds-microservice/citizen-desk/internal/model"
)

func TestDepartmentsSeededAndUpserted(t *testing.T) {
	repo := NewDirectoryRepository(openTestDB(t))
	ctx := context.Background()

	fire, err := repo.GetDepartment(ctx, "fire")
	if err != nil {
		t.Fatalf("seeded department missing: %v", err)
	}
	if fire.Notifiable() {
		t.Fatal("seeded department must have no notification target")
	}

	target := int64(-100500)
	if err := repo.UpsertDepartment(ctx, &model.Department{Key: "fire", DisplayName: "МЧС", NotificationTarget: &target}); err != nil {
		t.Fatal(err)
	}
	fire, _ = repo.GetDepartment(ctx, "fire")
	if fire.DisplayName != "МЧС" || !fire.Notifiable() || *fire.NotificationTarget != target {
		t.Fatalf("upsert did not replace: %+v", fire)
	}

	if err := repo.DeleteDepartment(ctx, "fire"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetDepartment(ctx, "fire"); !errors.Is(err, errs.ErrDepartmentNotFound) {
		t.Fatalf("deleted department still there: %v", err)
	}
	if err := repo.DeleteDepartment(ctx, "fire"); !errors.Is(err, errs.ErrDepartmentNotFound) {
		t.Fatalf("double delete: %v", err)
	}
	if err := repo.UpsertDepartment(ctx, &model.Department{Key: "x"}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("nameless department: %v", err)
	}

	list, err := repo.ListDepartments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 9 {
		t.Fatalf("departments = %d, want 9", len(list))
	}
}

func TestParticipants(t *testing.T) {
	repo := NewDirectoryRepository(openTestDB(t))
	ctx := context.Background()

	if err := repo.UpsertParticipant(ctx, &model.Participant{ID: 1, Username: "anna"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetStaff(ctx, 1, true); err != nil {
		t.Fatal(err)
	}
	// A later upsert must not drop the staff flag.
	if err := repo.UpsertParticipant(ctx, &model.Participant{ID: 1, Username: "anna_k"}); err != nil {
		t.Fatal(err)
	}
	staff, err := repo.IsStaff(ctx, 1)
	if err != nil || !staff {
		t.Fatalf("IsStaff = %v, %v", staff, err)
	}
	if staff, _ := repo.IsStaff(ctx, 404); staff {
		t.Fatal("unknown participant reported as staff")
	}

	if err := repo.SetStaff(ctx, 2, true); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpsertParticipant(ctx, &model.Participant{ID: 3}); err != nil {
		t.Fatal(err)
	}

	list, _ := repo.ListStaff(ctx)
	if len(list) != 2 || list[0].Username != "anna_k" {
		t.Fatalf("staff = %+v", list)
	}
	ids, _ := repo.ListParticipantIDs(ctx)
	if len(ids) != 3 {
		t.Fatalf("ids = %v", ids)
	}
}

// Package role folds membership ledgers into effective roles. A user's role
// in a scope is the kind of the most recent record for the (user, scope)
// pair; CANCEL or no record at all means no role.
package role

import (
	"context"

	"hourglass/internal/ledger"
	"hourglass/internal/model"
)

func unpaged() ledger.Page {
	return ledger.Page{Count: ledger.NoLimit}
}

// SchoolRole returns the effective adminship kind, or "" when none.
func SchoolRole(ctx context.Context, s ledger.Store, userID, schoolID int64) (model.AdminshipKind, error) {
	records, err := s.Adminships(ctx, ledger.AdminshipFilter{
		UserID:     &userID,
		SchoolID:   &schoolID,
		OnlyRecent: true,
		Page:       unpaged(),
	})
	if err != nil {
		return "", err
	}
	if len(records) == 0 || records[0].Kind == model.AdminshipCancel {
		return "", nil
	}
	return records[0].Kind, nil
}

func IsAdmin(ctx context.Context, s ledger.Store, userID, schoolID int64) (bool, error) {
	kind, err := SchoolRole(ctx, s, userID, schoolID)
	if err != nil {
		return false, err
	}
	return kind == model.AdminshipAdmin, nil
}

// CourseRole returns the effective membership kind, or "" when none.
func CourseRole(ctx context.Context, s ledger.Store, userID, courseID int64) (model.CourseMembershipKind, error) {
	records, err := s.CourseMemberships(ctx, ledger.CourseMembershipFilter{
		UserID:     &userID,
		CourseID:   &courseID,
		OnlyRecent: true,
		Page:       unpaged(),
	})
	if err != nil {
		return "", err
	}
	if len(records) == 0 || records[0].Kind == model.MembershipCancel {
		return "", nil
	}
	return records[0].Kind, nil
}

func IsStudent(ctx context.Context, s ledger.Store, userID, courseID int64) (bool, error) {
	kind, err := CourseRole(ctx, s, userID, courseID)
	if err != nil {
		return false, err
	}
	return kind == model.MembershipStudent, nil
}

func IsInstructor(ctx context.Context, s ledger.Store, userID, courseID int64) (bool, error) {
	kind, err := CourseRole(ctx, s, userID, courseID)
	if err != nil {
		return false, err
	}
	return kind == model.MembershipInstructor, nil
}

// CanActAsInstructor holds for instructors of the course and admins of its
// school.
func CanActAsInstructor(ctx context.Context, s ledger.Store, userID, courseID int64) (bool, error) {
	instructor, err := IsInstructor(ctx, s, userID, courseID)
	if err != nil {
		return false, err
	}
	if instructor {
		return true, nil
	}
	course, err := s.CourseByID(ctx, courseID)
	if err != nil {
		return false, err
	}
	return IsAdmin(ctx, s, userID, course.SchoolID)
}

func CountAdmins(ctx context.Context, s ledger.Store, schoolID int64) (int64, error) {
	kind := model.AdminshipAdmin
	records, err := s.Adminships(ctx, ledger.AdminshipFilter{
		SchoolID:   &schoolID,
		Kind:       &kind,
		OnlyRecent: true,
		Page:       unpaged(),
	})
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

func CountInstructors(ctx context.Context, s ledger.Store, courseID int64) (int64, error) {
	kind := model.MembershipInstructor
	records, err := s.CourseMemberships(ctx, ledger.CourseMembershipFilter{
		CourseID:   &courseID,
		Kind:       &kind,
		OnlyRecent: true,
		Page:       unpaged(),
	})
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// CheckSchoolNotOrphaned fails when cancelling userID's adminship would leave
// the school without an admin. Callers run it in the same transaction as the
// append.
func CheckSchoolNotOrphaned(ctx context.Context, s ledger.Store, userID, schoolID int64) error {
	admin, err := IsAdmin(ctx, s, userID, schoolID)
	if err != nil {
		return err
	}
	if !admin {
		return nil
	}
	count, err := CountAdmins(ctx, s, schoolID)
	if err != nil {
		return err
	}
	if count <= 1 {
		return model.ErrWouldOrphan
	}
	return nil
}

// CheckCourseNotOrphaned fails when cancelling userID's membership would
// leave the course without an instructor.
func CheckCourseNotOrphaned(ctx context.Context, s ledger.Store, userID, courseID int64) error {
	instructor, err := IsInstructor(ctx, s, userID, courseID)
	if err != nil {
		return err
	}
	if !instructor {
		return nil
	}
	count, err := CountInstructors(ctx, s, courseID)
	if err != nil {
		return err
	}
	if count <= 1 {
		return model.ErrWouldOrphan
	}
	return nil
}

// Package workflow drives the scheduling state machines: schools, courses,
// memberships, sessions, session requests, and commitments. Every operation
// appends records; state transitions are guarded reads followed by appends
// inside one store transaction.
package workflow

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"hourglass/internal/credential"
	"hourglass/internal/ledger"
	"hourglass/internal/model"
	"hourglass/internal/role"
)

type Engine struct {
	store ledger.Store
	log   *zap.Logger
	now   func() int64
}

func NewEngine(store ledger.Store, log *zap.Logger) *Engine {
	return &Engine{store: store, log: log, now: model.NowMillis}
}

// NewSchool creates a school and grants the creator its first adminship in
// the same transaction, so no school ever exists without an admin.
func (e *Engine) NewSchool(ctx context.Context, actorUserID int64, name, description string) (model.School, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.School{}, model.ErrInvalidArgument
	}
	school := model.School{
		CreationTime:  e.now(),
		CreatorUserID: actorUserID,
		Name:          name,
		Description:   description,
	}
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		if err := tx.AppendSchool(ctx, &school); err != nil {
			return err
		}
		founder := model.Adminship{
			CreationTime:  school.CreationTime,
			CreatorUserID: actorUserID,
			UserID:        actorUserID,
			SchoolID:      school.ID,
			Kind:          model.AdminshipAdmin,
		}
		return tx.AppendAdminship(ctx, &founder)
	})
	if err != nil {
		return model.School{}, err
	}
	e.log.Info("school created", zap.Int64("school_id", school.ID), zap.Int64("creator", actorUserID))
	return school, nil
}

// NewAdminship grants or cancels a school role. Cancelling the last admin
// fails rather than orphaning the school.
func (e *Engine) NewAdminship(ctx context.Context, actorUserID, userID, schoolID int64, kind model.AdminshipKind) (model.Adminship, error) {
	if !model.ValidAdminshipKind(kind) {
		return model.Adminship{}, model.ErrInvalidArgument
	}
	record := model.Adminship{
		CreatorUserID: actorUserID,
		UserID:        userID,
		SchoolID:      schoolID,
		Kind:          kind,
	}
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.SchoolByID(ctx, schoolID); err != nil {
			return err
		}
		if _, err := tx.UserByID(ctx, userID); err != nil {
			return err
		}
		admin, err := role.IsAdmin(ctx, tx, actorUserID, schoolID)
		if err != nil {
			return err
		}
		if !admin {
			return model.ErrUnauthorized
		}
		if kind == model.AdminshipCancel {
			current, err := role.SchoolRole(ctx, tx, userID, schoolID)
			if err != nil {
				return err
			}
			if current == "" {
				return model.ErrConflict
			}
			if err := role.CheckSchoolNotOrphaned(ctx, tx, userID, schoolID); err != nil {
				return err
			}
		}
		record.CreationTime = e.now()
		return tx.AppendAdminship(ctx, &record)
	})
	if err != nil {
		return model.Adminship{}, err
	}
	return record, nil
}

// NewAdminshipKey redeems a school key for the acting user, granting ADMIN at
// the key's school. The key's use count is checked in the same transaction as
// the adminship append.
func (e *Engine) NewAdminshipKey(ctx context.Context, actorUserID int64, schoolKeySecret string) (model.Adminship, error) {
	var record model.Adminship
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		key, err := credential.ValidateSchoolKeyAt(ctx, tx, schoolKeySecret, e.now())
		if err != nil {
			return err
		}
		record = model.Adminship{
			CreationTime:  e.now(),
			CreatorUserID: actorUserID,
			UserID:        actorUserID,
			SchoolID:      key.SchoolID,
			Kind:          model.AdminshipAdmin,
			SchoolKeyID:   key.ID,
		}
		return tx.AppendAdminship(ctx, &record)
	})
	if err != nil {
		return model.Adminship{}, err
	}
	return record, nil
}

func (e *Engine) NewLocation(ctx context.Context, actorUserID, schoolID int64, name, address, phone string) (model.Location, error) {
	if strings.TrimSpace(name) == "" {
		return model.Location{}, model.ErrInvalidArgument
	}
	if _, err := e.store.SchoolByID(ctx, schoolID); err != nil {
		return model.Location{}, err
	}
	admin, err := role.IsAdmin(ctx, e.store, actorUserID, schoolID)
	if err != nil {
		return model.Location{}, err
	}
	if !admin {
		return model.Location{}, model.ErrUnauthorized
	}
	location := model.Location{
		CreationTime:  e.now(),
		CreatorUserID: actorUserID,
		SchoolID:      schoolID,
		Name:          strings.TrimSpace(name),
		Address:       address,
		Phone:         phone,
	}
	if err := e.store.AppendLocation(ctx, &location); err != nil {
		return model.Location{}, err
	}
	return location, nil
}

// NewCourse creates a course and makes the creator its first instructor.
func (e *Engine) NewCourse(ctx context.Context, actorUserID, schoolID, locationID int64, name, description string) (model.Course, error) {
	if strings.TrimSpace(name) == "" {
		return model.Course{}, model.ErrInvalidArgument
	}
	course := model.Course{
		CreatorUserID: actorUserID,
		SchoolID:      schoolID,
		LocationID:    locationID,
		Name:          strings.TrimSpace(name),
		Description:   description,
	}
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.SchoolByID(ctx, schoolID); err != nil {
			return err
		}
		if locationID != 0 {
			location, err := tx.LocationByID(ctx, locationID)
			if err != nil {
				return err
			}
			if location.SchoolID != schoolID {
				return model.ErrInvalidArgument
			}
		}
		admin, err := role.IsAdmin(ctx, tx, actorUserID, schoolID)
		if err != nil {
			return err
		}
		if !admin {
			return model.ErrUnauthorized
		}
		course.CreationTime = e.now()
		if err := tx.AppendCourse(ctx, &course); err != nil {
			return err
		}
		founder := model.CourseMembership{
			CreationTime:  course.CreationTime,
			CreatorUserID: actorUserID,
			UserID:        actorUserID,
			CourseID:      course.ID,
			Kind:          model.MembershipInstructor,
			Source:        model.MembershipSourceSet,
		}
		return tx.AppendCourseMembership(ctx, &founder)
	})
	if err != nil {
		return model.Course{}, err
	}
	e.log.Info("course created", zap.Int64("course_id", course.ID), zap.Int64("school_id", schoolID))
	return course, nil
}

// NewCourseMembership sets a user's course role directly. Students may cancel
// their own membership; everything else takes instructor or admin rights.
func (e *Engine) NewCourseMembership(ctx context.Context, actorUserID, userID, courseID int64, kind model.CourseMembershipKind) (model.CourseMembership, error) {
	if !model.ValidMembershipKind(kind) {
		return model.CourseMembership{}, model.ErrInvalidArgument
	}
	record := model.CourseMembership{
		CreatorUserID: actorUserID,
		UserID:        userID,
		CourseID:      courseID,
		Kind:          kind,
		Source:        model.MembershipSourceSet,
	}
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.CourseByID(ctx, courseID); err != nil {
			return err
		}
		if _, err := tx.UserByID(ctx, userID); err != nil {
			return err
		}
		allowed, err := role.CanActAsInstructor(ctx, tx, actorUserID, courseID)
		if err != nil {
			return err
		}
		selfCancel := actorUserID == userID && kind == model.MembershipCancel
		if !allowed && !selfCancel {
			return model.ErrUnauthorized
		}
		current, err := role.CourseRole(ctx, tx, userID, courseID)
		if err != nil {
			return err
		}
		if kind == model.MembershipCancel && current == "" {
			return model.ErrConflict
		}
		// Demoting the sole instructor orphans the course the same way a
		// cancel does.
		if kind != model.MembershipInstructor {
			if err := role.CheckCourseNotOrphaned(ctx, tx, userID, courseID); err != nil {
				return err
			}
		}
		record.CreationTime = e.now()
		return tx.AppendCourseMembership(ctx, &record)
	})
	if err != nil {
		return model.CourseMembership{}, err
	}
	return record, nil
}

// NewCourseMembershipKey redeems a course key for the acting user. The key's
// use count is checked in the same transaction as the membership append.
func (e *Engine) NewCourseMembershipKey(ctx context.Context, actorUserID int64, courseKeySecret string) (model.CourseMembership, error) {
	var record model.CourseMembership
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		key, err := credential.ValidateCourseKeyAt(ctx, tx, courseKeySecret, e.now())
		if err != nil {
			return err
		}
		current, err := role.CourseRole(ctx, tx, actorUserID, key.CourseID)
		if err != nil {
			return err
		}
		if key.MembershipKind == model.MembershipCancel && current == "" {
			return model.ErrConflict
		}
		if key.MembershipKind != model.MembershipInstructor {
			if err := role.CheckCourseNotOrphaned(ctx, tx, actorUserID, key.CourseID); err != nil {
				return err
			}
		}
		record = model.CourseMembership{
			CreationTime:  e.now(),
			CreatorUserID: actorUserID,
			UserID:        actorUserID,
			CourseID:      key.CourseID,
			Kind:          key.MembershipKind,
			Source:        model.MembershipSourceKey,
			CourseKeyID:   key.ID,
		}
		return tx.AppendCourseMembership(ctx, &record)
	})
	if err != nil {
		return model.CourseMembership{}, err
	}
	return record, nil
}

// NewSession schedules a session and appends a cancellable commitment per
// listed attendee.
func (e *Engine) NewSession(ctx context.Context, actorUserID, courseID, locationID int64, name string, startTime, duration int64, hidden bool, attendeeUserIDs []int64) (model.Session, []model.Committment, error) {
	if duration < 0 {
		return model.Session{}, nil, model.ErrInvalidArgument
	}
	session := model.Session{
		CreatorUserID: actorUserID,
		CourseID:      courseID,
		LocationID:    locationID,
		Name:          name,
		StartTime:     startTime,
		Duration:      duration,
		Hidden:        hidden,
	}
	var committments []model.Committment
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.CourseByID(ctx, courseID); err != nil {
			return err
		}
		if locationID != 0 {
			if _, err := tx.LocationByID(ctx, locationID); err != nil {
				return err
			}
		}
		allowed, err := role.CanActAsInstructor(ctx, tx, actorUserID, courseID)
		if err != nil {
			return err
		}
		if !allowed {
			return model.ErrUnauthorized
		}
		for _, attendee := range attendeeUserIDs {
			student, err := role.IsStudent(ctx, tx, attendee, courseID)
			if err != nil {
				return err
			}
			if !student {
				return model.ErrInvalidArgument
			}
		}
		session.CreationTime = e.now()
		if err := tx.AppendSession(ctx, &session); err != nil {
			return err
		}
		committments = make([]model.Committment, 0, len(attendeeUserIDs))
		for _, attendee := range attendeeUserIDs {
			c := model.Committment{
				CreationTime:   session.CreationTime,
				CreatorUserID:  actorUserID,
				AttendeeUserID: attendee,
				SessionID:      session.ID,
				Cancellable:    true,
			}
			if err := tx.AppendCommittment(ctx, &c); err != nil {
				return err
			}
			committments = append(committments, c)
		}
		return nil
	})
	if err != nil {
		return model.Session{}, nil, err
	}
	return session, committments, nil
}

// NewSessionRequest lets a student of the course ask for a session.
func (e *Engine) NewSessionRequest(ctx context.Context, actorUserID, courseID int64, startTime, duration int64, message string) (model.SessionRequest, error) {
	if duration < 0 {
		return model.SessionRequest{}, model.ErrInvalidArgument
	}
	if _, err := e.store.CourseByID(ctx, courseID); err != nil {
		return model.SessionRequest{}, err
	}
	student, err := role.IsStudent(ctx, e.store, actorUserID, courseID)
	if err != nil {
		return model.SessionRequest{}, err
	}
	if !student {
		return model.SessionRequest{}, model.ErrUnauthorized
	}
	request := model.SessionRequest{
		CreationTime:   e.now(),
		AttendeeUserID: actorUserID,
		CourseID:       courseID,
		StartTime:      startTime,
		Duration:       duration,
		Message:        message,
	}
	if err := e.store.AppendSessionRequest(ctx, &request); err != nil {
		return model.SessionRequest{}, err
	}
	return request, nil
}

// NewSessionRequestResponse terminates a session request. A rejection may
// come from the requester or course staff; an acceptance comes from staff
// only and links a commitment to an existing session of the same course.
func (e *Engine) NewSessionRequestResponse(ctx context.Context, actorUserID, sessionRequestID int64, accepted bool, message string, sessionID int64) (model.SessionRequestResponse, error) {
	var response model.SessionRequestResponse
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		request, err := tx.SessionRequestByID(ctx, sessionRequestID)
		if err != nil {
			return err
		}
		if _, err := tx.SessionRequestResponseByID(ctx, sessionRequestID); err == nil {
			return model.ErrConflict
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		staff, err := role.CanActAsInstructor(ctx, tx, actorUserID, request.CourseID)
		if err != nil {
			return err
		}

		response = model.SessionRequestResponse{
			SessionRequestID: sessionRequestID,
			CreatorUserID:    actorUserID,
			Message:          message,
			Accepted:         accepted,
		}

		if !accepted {
			if !staff && actorUserID != request.AttendeeUserID {
				return model.ErrUnauthorized
			}
			response.CreationTime = e.now()
			return tx.AppendSessionRequestResponse(ctx, &response)
		}

		if !staff {
			return model.ErrUnauthorized
		}
		session, err := tx.SessionByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.CourseID != request.CourseID {
			return model.ErrInvalidArgument
		}

		// Reuse an open commitment for the pair rather than double-booking.
		unresponded := false
		existing, err := tx.Committments(ctx, ledger.CommittmentFilter{
			AttendeeUserID: &request.AttendeeUserID,
			SessionID:      &session.ID,
			Responded:      &unresponded,
			Page:           ledger.Page{Count: ledger.NoLimit},
		})
		if err != nil {
			return err
		}
		var committmentID int64
		if len(existing) > 0 {
			committmentID = existing[0].ID
		} else {
			c := model.Committment{
				CreationTime:   e.now(),
				CreatorUserID:  actorUserID,
				AttendeeUserID: request.AttendeeUserID,
				SessionID:      session.ID,
				Cancellable:    true,
			}
			if err := tx.AppendCommittment(ctx, &c); err != nil {
				return err
			}
			committmentID = c.ID
		}
		response.CommittmentID = committmentID
		response.CreationTime = e.now()
		return tx.AppendSessionRequestResponse(ctx, &response)
	})
	if err != nil {
		return model.SessionRequestResponse{}, err
	}
	return response, nil
}

// NewCommittment books an attendee into a session directly.
func (e *Engine) NewCommittment(ctx context.Context, actorUserID, attendeeUserID, sessionID int64, cancellable bool) (model.Committment, error) {
	var record model.Committment
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		session, err := tx.SessionByID(ctx, sessionID)
		if err != nil {
			return err
		}
		allowed, err := role.CanActAsInstructor(ctx, tx, actorUserID, session.CourseID)
		if err != nil {
			return err
		}
		if !allowed {
			return model.ErrUnauthorized
		}
		student, err := role.IsStudent(ctx, tx, attendeeUserID, session.CourseID)
		if err != nil {
			return err
		}
		if !student {
			return model.ErrInvalidArgument
		}
		unresponded := false
		open, err := tx.Committments(ctx, ledger.CommittmentFilter{
			AttendeeUserID: &attendeeUserID,
			SessionID:      &sessionID,
			Responded:      &unresponded,
			Page:           ledger.Page{Count: ledger.NoLimit},
		})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return model.ErrConflict
		}
		record = model.Committment{
			CreationTime:   e.now(),
			CreatorUserID:  actorUserID,
			AttendeeUserID: attendeeUserID,
			SessionID:      sessionID,
			Cancellable:    cancellable,
		}
		return tx.AppendCommittment(ctx, &record)
	})
	if err != nil {
		return model.Committment{}, err
	}
	return record, nil
}

// NewCommittmentResponse terminates a commitment. Course staff may record any
// kind; the attendee may only cancel their own cancellable commitment.
func (e *Engine) NewCommittmentResponse(ctx context.Context, actorUserID, committmentID int64, kind model.CommittmentResponseKind) (model.CommittmentResponse, error) {
	if !model.ValidCommittmentResponseKind(kind) {
		return model.CommittmentResponse{}, model.ErrInvalidArgument
	}
	var record model.CommittmentResponse
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		committment, err := tx.CommittmentByID(ctx, committmentID)
		if err != nil {
			return err
		}
		if _, err := tx.CommittmentResponseByID(ctx, committmentID); err == nil {
			return model.ErrConflict
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		session, err := tx.SessionByID(ctx, committment.SessionID)
		if err != nil {
			return err
		}
		staff, err := role.CanActAsInstructor(ctx, tx, actorUserID, session.CourseID)
		if err != nil {
			return err
		}
		selfCancel := actorUserID == committment.AttendeeUserID &&
			committment.Cancellable &&
			kind == model.CommittmentCancelled
		if !staff && !selfCancel {
			return model.ErrUnauthorized
		}
		record = model.CommittmentResponse{
			CommittmentID: committmentID,
			CreationTime:  e.now(),
			CreatorUserID: actorUserID,
			Kind:          kind,
		}
		return tx.AppendCommittmentResponse(ctx, &record)
	})
	if err != nil {
		return model.CommittmentResponse{}, err
	}
	return record, nil
}

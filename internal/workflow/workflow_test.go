package workflow

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"hourglass/internal/crypto"
	"hourglass/internal/ledger/memory"
	"hourglass/internal/model"
)

type fixture struct {
	engine *Engine
	store  *memory.Store
	ctx    context.Context

	admin      model.User
	instructor model.User
	student    model.User
	outsider   model.User

	school model.School
	course model.Course
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		ctx:   context.Background(),
	}
	f.engine = NewEngine(f.store, zap.NewNop())

	for name, target := range map[string]*model.User{
		"admin": &f.admin, "instructor": &f.instructor,
		"student": &f.student, "outsider": &f.outsider,
	} {
		*target = model.User{Name: name, Email: name + "@example.com"}
		if err := f.store.AppendUser(f.ctx, target); err != nil {
			t.Fatalf("append user: %v", err)
		}
	}

	school, err := f.engine.NewSchool(f.ctx, f.admin.ID, "Test School", "")
	if err != nil {
		t.Fatalf("new school: %v", err)
	}
	f.school = school

	course, err := f.engine.NewCourse(f.ctx, f.admin.ID, school.ID, 0, "Test Course", "")
	if err != nil {
		t.Fatalf("new course: %v", err)
	}
	f.course = course

	if _, err := f.engine.NewCourseMembership(f.ctx, f.admin.ID, f.instructor.ID, course.ID, model.MembershipInstructor); err != nil {
		t.Fatalf("add instructor: %v", err)
	}
	if _, err := f.engine.NewCourseMembership(f.ctx, f.admin.ID, f.student.ID, course.ID, model.MembershipStudent); err != nil {
		t.Fatalf("add student: %v", err)
	}
	return f
}

func TestNewSchoolGrantsFounderAdminship(t *testing.T) {
	f := newFixture(t)

	if _, err := f.engine.NewSchool(f.ctx, f.admin.ID, "  ", ""); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected invalid_argument for blank name, got %v", err)
	}

	// The fixture admin can act on the school without any explicit grant.
	if _, err := f.engine.NewLocation(f.ctx, f.admin.ID, f.school.ID, "Main Hall", "1 Road", ""); err != nil {
		t.Fatalf("expected founder to be admin, got %v", err)
	}
}

func TestNewAdminshipGuards(t *testing.T) {
	f := newFixture(t)

	if _, err := f.engine.NewAdminship(f.ctx, f.outsider.ID, f.outsider.ID, f.school.ID, model.AdminshipAdmin); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for non-admin grantor, got %v", err)
	}
	if _, err := f.engine.NewAdminship(f.ctx, f.admin.ID, 9999, f.school.ID, model.AdminshipAdmin); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not_found for unknown user, got %v", err)
	}
	if _, err := f.engine.NewAdminship(f.ctx, f.admin.ID, f.admin.ID, 9999, model.AdminshipAdmin); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not_found for unknown school, got %v", err)
	}
	if _, err := f.engine.NewAdminship(f.ctx, f.admin.ID, f.outsider.ID, f.school.ID, model.AdminshipCancel); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict cancelling an absent role, got %v", err)
	}
}

func TestAdminshipAntiOrphan(t *testing.T) {
	f := newFixture(t)

	if _, err := f.engine.NewAdminship(f.ctx, f.admin.ID, f.admin.ID, f.school.ID, model.AdminshipCancel); !errors.Is(err, model.ErrWouldOrphan) {
		t.Fatalf("expected would_orphan_scope for the last admin, got %v", err)
	}

	if _, err := f.engine.NewAdminship(f.ctx, f.admin.ID, f.outsider.ID, f.school.ID, model.AdminshipAdmin); err != nil {
		t.Fatalf("grant second admin: %v", err)
	}
	if _, err := f.engine.NewAdminship(f.ctx, f.admin.ID, f.admin.ID, f.school.ID, model.AdminshipCancel); err != nil {
		t.Fatalf("expected cancel to pass with a second admin, got %v", err)
	}
	// The cancelled admin lost their powers.
	if _, err := f.engine.NewLocation(f.ctx, f.admin.ID, f.school.ID, "Annex", "", ""); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected cancelled admin to be powerless, got %v", err)
	}
}

func TestNewCourseRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	if _, err := f.engine.NewCourse(f.ctx, f.outsider.ID, f.school.ID, 0, "Nope", ""); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	location, err := f.engine.NewLocation(f.ctx, f.admin.ID, f.school.ID, "Main Hall", "", "")
	if err != nil {
		t.Fatalf("new location: %v", err)
	}
	if _, err := f.engine.NewCourse(f.ctx, f.admin.ID, f.school.ID, location.ID, "Algebra", ""); err != nil {
		t.Fatalf("new course with location: %v", err)
	}

	other, err := f.engine.NewSchool(f.ctx, f.outsider.ID, "Other School", "")
	if err != nil {
		t.Fatalf("new school: %v", err)
	}
	// Locations cannot be borrowed across schools.
	if _, err := f.engine.NewCourse(f.ctx, f.outsider.ID, other.ID, location.ID, "Sneaky", ""); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected invalid_argument for cross-school location, got %v", err)
	}
}

func TestCourseMembershipSelfCancel(t *testing.T) {
	f := newFixture(t)

	// Students may leave on their own but may not grant anything.
	if _, err := f.engine.NewCourseMembership(f.ctx, f.student.ID, f.student.ID, f.course.ID, model.MembershipCancel); err != nil {
		t.Fatalf("self-cancel: %v", err)
	}
	if _, err := f.engine.NewCourseMembership(f.ctx, f.outsider.ID, f.outsider.ID, f.course.ID, model.MembershipStudent); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized self-grant, got %v", err)
	}
}

func TestCourseMembershipAntiOrphan(t *testing.T) {
	f := newFixture(t)

	// Remove the secondary instructor, then the last one must be protected.
	if _, err := f.engine.NewCourseMembership(f.ctx, f.admin.ID, f.instructor.ID, f.course.ID, model.MembershipCancel); err != nil {
		t.Fatalf("cancel instructor: %v", err)
	}
	if _, err := f.engine.NewCourseMembership(f.ctx, f.admin.ID, f.admin.ID, f.course.ID, model.MembershipCancel); !errors.Is(err, model.ErrWouldOrphan) {
		t.Fatalf("expected would_orphan_scope for last instructor, got %v", err)
	}
}

func TestCourseMembershipDemotionAntiOrphan(t *testing.T) {
	f := newFixture(t)

	// Reduce to one instructor; demoting them to student must fail the same
	// way a cancel does.
	if _, err := f.engine.NewCourseMembership(f.ctx, f.admin.ID, f.instructor.ID, f.course.ID, model.MembershipCancel); err != nil {
		t.Fatalf("cancel instructor: %v", err)
	}
	if _, err := f.engine.NewCourseMembership(f.ctx, f.admin.ID, f.admin.ID, f.course.ID, model.MembershipStudent); !errors.Is(err, model.ErrWouldOrphan) {
		t.Fatalf("expected would_orphan_scope for demoting the last instructor, got %v", err)
	}

	// With a second instructor back, the demotion passes.
	if _, err := f.engine.NewCourseMembership(f.ctx, f.admin.ID, f.instructor.ID, f.course.ID, model.MembershipInstructor); err != nil {
		t.Fatalf("regrant instructor: %v", err)
	}
	if _, err := f.engine.NewCourseMembership(f.ctx, f.admin.ID, f.admin.ID, f.course.ID, model.MembershipStudent); err != nil {
		t.Fatalf("expected demotion to pass with a second instructor, got %v", err)
	}
}

func TestCourseMembershipKeyDemotionAntiOrphan(t *testing.T) {
	f := newFixture(t)

	secret := "study-secret"
	studyKey := model.CourseKey{
		CreationTime:   model.NowMillis(),
		CreatorUserID:  f.instructor.ID,
		CourseID:       f.course.ID,
		SecretDigest:   crypto.HashSecret(secret),
		Kind:           model.CourseKeyValid,
		MembershipKind: model.MembershipStudent,
		MaxUses:        5,
	}
	if err := f.store.AppendCourseKey(f.ctx, &studyKey); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := f.engine.NewCourseMembership(f.ctx, f.admin.ID, f.instructor.ID, f.course.ID, model.MembershipCancel); err != nil {
		t.Fatalf("cancel instructor: %v", err)
	}
	// The sole remaining instructor cannot demote themselves through a key.
	if _, err := f.engine.NewCourseMembershipKey(f.ctx, f.admin.ID, secret); !errors.Is(err, model.ErrWouldOrphan) {
		t.Fatalf("expected would_orphan_scope, got %v", err)
	}
}

func TestAdminshipKeyRedemption(t *testing.T) {
	f := newFixture(t)

	secret := "admin-secret"
	adminKey := model.SchoolKey{
		CreationTime:  model.NowMillis(),
		CreatorUserID: f.admin.ID,
		SchoolID:      f.school.ID,
		SecretDigest:  crypto.HashSecret(secret),
		Kind:          model.SchoolKeyValid,
		MaxUses:       1,
	}
	if err := f.store.AppendSchoolKey(f.ctx, &adminKey); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := f.engine.NewAdminshipKey(f.ctx, f.outsider.ID, "no-such-secret"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not_found for unknown secret, got %v", err)
	}

	adminship, err := f.engine.NewAdminshipKey(f.ctx, f.outsider.ID, secret)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if adminship.Kind != model.AdminshipAdmin || adminship.SchoolKeyID != adminKey.ID {
		t.Fatalf("unexpected adminship %+v", adminship)
	}
	// The redeemer now holds admin powers.
	if _, err := f.engine.NewLocation(f.ctx, f.outsider.ID, f.school.ID, "Annex", "", ""); err != nil {
		t.Fatalf("expected redeemer to be admin, got %v", err)
	}

	// MaxUses 1 is spent.
	if _, err := f.engine.NewAdminshipKey(f.ctx, f.student.ID, secret); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict for exhausted key, got %v", err)
	}
}

func TestSessionCreationWithAttendees(t *testing.T) {
	f := newFixture(t)

	if _, _, err := f.engine.NewSession(f.ctx, f.student.ID, f.course.ID, 0, "s", 0, 0, false, nil); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for student, got %v", err)
	}
	if _, _, err := f.engine.NewSession(f.ctx, f.instructor.ID, f.course.ID, 0, "s", 0, -1, false, nil); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected invalid_argument for negative duration, got %v", err)
	}
	if _, _, err := f.engine.NewSession(f.ctx, f.instructor.ID, f.course.ID, 0, "s", 0, 0, false, []int64{f.outsider.ID}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected invalid_argument for non-student attendee, got %v", err)
	}

	session, committments, err := f.engine.NewSession(f.ctx, f.instructor.ID, f.course.ID, 0, "Tutoring", 1000, 3_600_000, false, []int64{f.student.ID})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if len(committments) != 1 || committments[0].AttendeeUserID != f.student.ID || committments[0].SessionID != session.ID {
		t.Fatalf("unexpected committments %+v", committments)
	}
	if !committments[0].Cancellable {
		t.Fatalf("expected auto-commitment to be cancellable")
	}
}

func TestSessionRequestFlow(t *testing.T) {
	f := newFixture(t)

	if _, err := f.engine.NewSessionRequest(f.ctx, f.outsider.ID, f.course.ID, 0, 0, "hi"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for non-student, got %v", err)
	}
	request, err := f.engine.NewSessionRequest(f.ctx, f.student.ID, f.course.ID, 1000, 3_600_000, "need help")
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	// The requester cannot accept their own request.
	session, _, err := f.engine.NewSession(f.ctx, f.instructor.ID, f.course.ID, 0, "slot", 1000, 3_600_000, false, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := f.engine.NewSessionRequestResponse(f.ctx, f.student.ID, request.ID, true, "", session.ID); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized self-accept, got %v", err)
	}

	response, err := f.engine.NewSessionRequestResponse(f.ctx, f.instructor.ID, request.ID, true, "see you", session.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if response.CommittmentID == 0 {
		t.Fatalf("expected acceptance to link a commitment")
	}
	committment, err := f.store.CommittmentByID(f.ctx, response.CommittmentID)
	if err != nil || committment.AttendeeUserID != f.student.ID || committment.SessionID != session.ID {
		t.Fatalf("unexpected commitment %+v err %v", committment, err)
	}

	// The request is terminal after one response.
	if _, err := f.engine.NewSessionRequestResponse(f.ctx, f.instructor.ID, request.ID, false, "", 0); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict on second response, got %v", err)
	}
}

func TestSessionRequestRejection(t *testing.T) {
	f := newFixture(t)

	request, err := f.engine.NewSessionRequest(f.ctx, f.student.ID, f.course.ID, 0, 0, "")
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if _, err := f.engine.NewSessionRequestResponse(f.ctx, f.outsider.ID, request.ID, false, "", 0); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for outsider, got %v", err)
	}
	// The requester may withdraw.
	response, err := f.engine.NewSessionRequestResponse(f.ctx, f.student.ID, request.ID, false, "never mind", 0)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if response.Accepted || response.CommittmentID != 0 {
		t.Fatalf("unexpected response %+v", response)
	}
}

func TestSessionRequestAcceptWrongCourse(t *testing.T) {
	f := newFixture(t)

	request, err := f.engine.NewSessionRequest(f.ctx, f.student.ID, f.course.ID, 0, 0, "")
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	other, err := f.engine.NewCourse(f.ctx, f.admin.ID, f.school.ID, 0, "Other", "")
	if err != nil {
		t.Fatalf("new course: %v", err)
	}
	session, _, err := f.engine.NewSession(f.ctx, f.admin.ID, other.ID, 0, "slot", 0, 0, false, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := f.engine.NewSessionRequestResponse(f.ctx, f.admin.ID, request.ID, true, "", session.ID); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected invalid_argument for cross-course session, got %v", err)
	}
}

func TestCommittmentUniqueness(t *testing.T) {
	f := newFixture(t)

	session, _, err := f.engine.NewSession(f.ctx, f.instructor.ID, f.course.ID, 0, "slot", 0, 0, false, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	first, err := f.engine.NewCommittment(f.ctx, f.instructor.ID, f.student.ID, session.ID, true)
	if err != nil {
		t.Fatalf("new commitment: %v", err)
	}
	if _, err := f.engine.NewCommittment(f.ctx, f.instructor.ID, f.student.ID, session.ID, true); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict on open duplicate, got %v", err)
	}

	// After the commitment is responded, booking again is allowed.
	if _, err := f.engine.NewCommittmentResponse(f.ctx, f.instructor.ID, first.ID, model.CommittmentAbsent); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if _, err := f.engine.NewCommittment(f.ctx, f.instructor.ID, f.student.ID, session.ID, true); err != nil {
		t.Fatalf("expected rebooking to pass, got %v", err)
	}
}

func TestCommittmentResponseGuards(t *testing.T) {
	f := newFixture(t)

	session, _, err := f.engine.NewSession(f.ctx, f.instructor.ID, f.course.ID, 0, "slot", 0, 0, false, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	cancellable, err := f.engine.NewCommittment(f.ctx, f.instructor.ID, f.student.ID, session.ID, true)
	if err != nil {
		t.Fatalf("new commitment: %v", err)
	}

	// Attendees cannot self-report attendance.
	if _, err := f.engine.NewCommittmentResponse(f.ctx, f.student.ID, cancellable.ID, model.CommittmentAttended); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized self-attendance, got %v", err)
	}
	// But they may cancel a cancellable commitment.
	if _, err := f.engine.NewCommittmentResponse(f.ctx, f.student.ID, cancellable.ID, model.CommittmentCancelled); err != nil {
		t.Fatalf("self-cancel: %v", err)
	}
	if _, err := f.engine.NewCommittmentResponse(f.ctx, f.instructor.ID, cancellable.ID, model.CommittmentAttended); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict on second response, got %v", err)
	}

	fixed, err := f.engine.NewCommittment(f.ctx, f.instructor.ID, f.student.ID, session.ID, false)
	if err != nil {
		t.Fatalf("new commitment: %v", err)
	}
	if _, err := f.engine.NewCommittmentResponse(f.ctx, f.student.ID, fixed.ID, model.CommittmentCancelled); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized self-cancel of fixed commitment, got %v", err)
	}
	if _, err := f.engine.NewCommittmentResponse(f.ctx, f.instructor.ID, fixed.ID, model.CommittmentAttended); err != nil {
		t.Fatalf("staff response: %v", err)
	}
}

func TestCourseMembershipKeyRedemption(t *testing.T) {
	f := newFixture(t)

	// Mint a single-use join key straight into the ledger; issuance is
	// covered by the credential tests.
	secret := "join-secret"
	joinKey := model.CourseKey{
		CreationTime:   model.NowMillis(),
		CreatorUserID:  f.instructor.ID,
		CourseID:       f.course.ID,
		SecretDigest:   crypto.HashSecret(secret),
		Kind:           model.CourseKeyValid,
		MembershipKind: model.MembershipStudent,
		MaxUses:        1,
	}
	if err := f.store.AppendCourseKey(f.ctx, &joinKey); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := f.engine.NewCourseMembershipKey(f.ctx, f.outsider.ID, "no-such-secret"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not_found for unknown secret, got %v", err)
	}

	membership, err := f.engine.NewCourseMembershipKey(f.ctx, f.outsider.ID, secret)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if membership.Kind != model.MembershipStudent || membership.Source != model.MembershipSourceKey || membership.CourseKeyID != joinKey.ID {
		t.Fatalf("unexpected membership %+v", membership)
	}

	// MaxUses 1 is spent.
	other := model.User{Name: "late", Email: "late@example.com"}
	if err := f.store.AppendUser(f.ctx, &other); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := f.engine.NewCourseMembershipKey(f.ctx, other.ID, secret); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict for exhausted key, got %v", err)
	}
}

func TestCourseMembershipKeyCancelKind(t *testing.T) {
	f := newFixture(t)

	secret := "leave-secret"
	leaveKey := model.CourseKey{
		CreationTime:   model.NowMillis(),
		CreatorUserID:  f.instructor.ID,
		CourseID:       f.course.ID,
		SecretDigest:   crypto.HashSecret(secret),
		Kind:           model.CourseKeyValid,
		MembershipKind: model.MembershipCancel,
		MaxUses:        10,
	}
	if err := f.store.AppendCourseKey(f.ctx, &leaveKey); err != nil {
		t.Fatalf("append: %v", err)
	}

	// A user with no membership has nothing to leave.
	if _, err := f.engine.NewCourseMembershipKey(f.ctx, f.outsider.ID, secret); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict for outsider, got %v", err)
	}
	if _, err := f.engine.NewCourseMembershipKey(f.ctx, f.student.ID, secret); err != nil {
		t.Fatalf("leave: %v", err)
	}
	// The sole remaining instructor cannot leave through a key either.
	if _, err := f.engine.NewCourseMembership(f.ctx, f.admin.ID, f.instructor.ID, f.course.ID, model.MembershipCancel); err != nil {
		t.Fatalf("cancel instructor: %v", err)
	}
	if _, err := f.engine.NewCourseMembershipKey(f.ctx, f.admin.ID, secret); !errors.Is(err, model.ErrWouldOrphan) {
		t.Fatalf("expected would_orphan_scope, got %v", err)
	}
}

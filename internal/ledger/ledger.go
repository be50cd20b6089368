// Package ledger defines the append-only record store the engines run on.
// Records are never updated or deleted; current state is always a fold over
// the record sequence for a logical key.
package ledger

import (
	"context"

	"hourglass/internal/model"
)

// NoLimit disables pagination on a query. Engines use it for counting folds;
// the API surface always passes an explicit window.
const NoLimit int64 = -1

// DefaultCount is the page size applied when a filter leaves Count unset.
const DefaultCount int64 = 100

type Page struct {
	Offset int64
	Count  int64
}

// Window resolves the pagination defaults. The returned limit is nil when the
// query is unpaged.
func (p Page) Window() (offset int64, limit *int64) {
	if p.Offset > 0 {
		offset = p.Offset
	}
	if p.Count == NoLimit {
		return offset, nil
	}
	count := p.Count
	if count <= 0 {
		count = DefaultCount
	}
	return offset, &count
}

type UserFilter struct {
	ID              *int64
	MinCreationTime *int64
	MaxCreationTime *int64
	Name            *string // substring
	Email           *string // exact, case-insensitive
	Page
}

type ApiKeyFilter struct {
	ID              *int64
	CreatorUserID   *int64
	SecretDigest    *string
	Kind            *model.ApiKeyKind
	MinCreationTime *int64
	MaxCreationTime *int64
	// OnlyRecent reduces to the latest record per SecretDigest before the
	// other predicates apply.
	OnlyRecent bool
	Page
}

type SchoolFilter struct {
	ID              *int64
	CreatorUserID   *int64
	Name            *string // substring
	MinCreationTime *int64
	MaxCreationTime *int64
	Page
}

type AdminshipFilter struct {
	ID              *int64
	CreatorUserID   *int64
	UserID          *int64
	SchoolID        *int64
	Kind            *model.AdminshipKind
	SchoolKeyID     *int64
	MinCreationTime *int64
	MaxCreationTime *int64
	// OnlyRecent reduces to the latest record per (UserID, SchoolID) before
	// the other predicates apply.
	OnlyRecent bool
	Page
}

type SchoolKeyFilter struct {
	ID              *int64
	CreatorUserID   *int64
	SchoolID        *int64
	SecretDigest    *string
	Kind            *model.SchoolKeyKind
	MinCreationTime *int64
	MaxCreationTime *int64
	// OnlyRecent reduces to the latest record per SecretDigest before the
	// other predicates apply.
	OnlyRecent bool
	Page
}

type LocationFilter struct {
	ID              *int64
	CreatorUserID   *int64
	SchoolID        *int64
	Name            *string // substring
	MinCreationTime *int64
	MaxCreationTime *int64
	Page
}

type CourseFilter struct {
	ID              *int64
	CreatorUserID   *int64
	SchoolID        *int64
	LocationID      *int64
	Name            *string // substring
	MinCreationTime *int64
	MaxCreationTime *int64
	Page
}

type CourseKeyFilter struct {
	ID              *int64
	CreatorUserID   *int64
	CourseID        *int64
	SecretDigest    *string
	Kind            *model.CourseKeyKind
	MembershipKind  *model.CourseMembershipKind
	MinCreationTime *int64
	MaxCreationTime *int64
	// OnlyRecent reduces to the latest record per SecretDigest before the
	// other predicates apply.
	OnlyRecent bool
	Page
}

type CourseMembershipFilter struct {
	ID              *int64
	CreatorUserID   *int64
	UserID          *int64
	CourseID        *int64
	Kind            *model.CourseMembershipKind
	Source          *model.CourseMembershipSource
	CourseKeyID     *int64
	MinCreationTime *int64
	MaxCreationTime *int64
	// OnlyRecent reduces to the latest record per (UserID, CourseID) before
	// the other predicates apply.
	OnlyRecent bool
	Page
}

type SessionFilter struct {
	ID              *int64
	CreatorUserID   *int64
	CourseID        *int64
	LocationID      *int64
	Name            *string // substring
	Hidden          *bool
	MinStartTime    *int64
	MaxStartTime    *int64
	MinCreationTime *int64
	MaxCreationTime *int64
	Page
}

type SessionRequestFilter struct {
	ID              *int64
	AttendeeUserID  *int64
	CourseID        *int64
	MinStartTime    *int64
	MaxStartTime    *int64
	MinCreationTime *int64
	MaxCreationTime *int64
	// Responded filters on whether a response record exists for the request.
	Responded *bool
	Page
}

type SessionRequestResponseFilter struct {
	SessionRequestID *int64
	CreatorUserID    *int64
	Accepted         *bool
	CommittmentID    *int64
	MinCreationTime  *int64
	MaxCreationTime  *int64
	Page
}

type CommittmentFilter struct {
	ID              *int64
	CreatorUserID   *int64
	AttendeeUserID  *int64
	SessionID       *int64
	Cancellable     *bool
	MinCreationTime *int64
	MaxCreationTime *int64
	// Responded filters on whether a response record exists for the
	// commitment.
	Responded *bool
	Page
}

type CommittmentResponseFilter struct {
	CommittmentID   *int64
	CreatorUserID   *int64
	Kind            *model.CommittmentResponseKind
	MinCreationTime *int64
	MaxCreationTime *int64
	Page
}

// Store is the append-only ledger. Append methods assign the record id and
// return it through the record pointer. Single-record getters return
// model.ErrNotFound when no record matches. List methods apply their filter
// predicates conjunctively and return records in id (append) order.
type Store interface {
	// InTx runs fn against a store view whose reads and appends are atomic
	// with respect to concurrent callers. Every check-then-append in the
	// engines runs through here.
	InTx(ctx context.Context, fn func(Store) error) error

	AppendUser(ctx context.Context, u *model.User) error
	UserByID(ctx context.Context, id int64) (model.User, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)
	UserByChallengeDigest(ctx context.Context, digest string) (model.User, error)
	Users(ctx context.Context, f UserFilter) ([]model.User, error)

	AppendApiKey(ctx context.Context, k *model.ApiKey) error
	ApiKeys(ctx context.Context, f ApiKeyFilter) ([]model.ApiKey, error)

	AppendPassword(ctx context.Context, p *model.Password) error
	CurrentPassword(ctx context.Context, userID int64) (model.Password, error)
	PasswordByResetDigest(ctx context.Context, digest string) (model.Password, error)

	AppendVerificationChallenge(ctx context.Context, c *model.VerificationChallenge) error
	VerificationChallengeByDigest(ctx context.Context, digest string) (model.VerificationChallenge, error)
	LatestVerificationChallengeByEmail(ctx context.Context, email string) (model.VerificationChallenge, error)

	AppendPasswordReset(ctx context.Context, p *model.PasswordResetRecord) error
	PasswordResetByDigest(ctx context.Context, digest string) (model.PasswordResetRecord, error)
	LatestPasswordResetForUser(ctx context.Context, userID int64) (model.PasswordResetRecord, error)

	AppendSchool(ctx context.Context, s *model.School) error
	SchoolByID(ctx context.Context, id int64) (model.School, error)
	Schools(ctx context.Context, f SchoolFilter) ([]model.School, error)

	AppendAdminship(ctx context.Context, a *model.Adminship) error
	Adminships(ctx context.Context, f AdminshipFilter) ([]model.Adminship, error)

	AppendSchoolKey(ctx context.Context, k *model.SchoolKey) error
	SchoolKeyByID(ctx context.Context, id int64) (model.SchoolKey, error)
	SchoolKeys(ctx context.Context, f SchoolKeyFilter) ([]model.SchoolKey, error)

	AppendLocation(ctx context.Context, l *model.Location) error
	LocationByID(ctx context.Context, id int64) (model.Location, error)
	Locations(ctx context.Context, f LocationFilter) ([]model.Location, error)

	AppendCourse(ctx context.Context, c *model.Course) error
	CourseByID(ctx context.Context, id int64) (model.Course, error)
	Courses(ctx context.Context, f CourseFilter) ([]model.Course, error)

	AppendCourseKey(ctx context.Context, k *model.CourseKey) error
	CourseKeyByID(ctx context.Context, id int64) (model.CourseKey, error)
	CourseKeys(ctx context.Context, f CourseKeyFilter) ([]model.CourseKey, error)

	AppendCourseMembership(ctx context.Context, m *model.CourseMembership) error
	CourseMemberships(ctx context.Context, f CourseMembershipFilter) ([]model.CourseMembership, error)

	AppendSession(ctx context.Context, s *model.Session) error
	SessionByID(ctx context.Context, id int64) (model.Session, error)
	Sessions(ctx context.Context, f SessionFilter) ([]model.Session, error)

	AppendSessionRequest(ctx context.Context, r *model.SessionRequest) error
	SessionRequestByID(ctx context.Context, id int64) (model.SessionRequest, error)
	SessionRequests(ctx context.Context, f SessionRequestFilter) ([]model.SessionRequest, error)

	AppendSessionRequestResponse(ctx context.Context, r *model.SessionRequestResponse) error
	SessionRequestResponseByID(ctx context.Context, sessionRequestID int64) (model.SessionRequestResponse, error)
	SessionRequestResponses(ctx context.Context, f SessionRequestResponseFilter) ([]model.SessionRequestResponse, error)

	AppendCommittment(ctx context.Context, c *model.Committment) error
	CommittmentByID(ctx context.Context, id int64) (model.Committment, error)
	Committments(ctx context.Context, f CommittmentFilter) ([]model.Committment, error)

	AppendCommittmentResponse(ctx context.Context, r *model.CommittmentResponse) error
	CommittmentResponseByID(ctx context.Context, committmentID int64) (model.CommittmentResponse, error)
	CommittmentResponses(ctx context.Context, f CommittmentResponseFilter) ([]model.CommittmentResponse, error)
}

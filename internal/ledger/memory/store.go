package memory

import (
	"context"

	"hourglass/internal/ledger"
	"hourglass/internal/model"
)

var _ ledger.Store = (*Store)(nil)
var _ ledger.Store = (*db)(nil)

func (s *Store) AppendUser(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendUser(ctx, u)
}

func (s *Store) UserByID(ctx context.Context, id int64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.UserByID(ctx, id)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.UserByEmail(ctx, email)
}

func (s *Store) UserByChallengeDigest(ctx context.Context, digest string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.UserByChallengeDigest(ctx, digest)
}

func (s *Store) Users(ctx context.Context, f ledger.UserFilter) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Users(ctx, f)
}

func (s *Store) AppendApiKey(ctx context.Context, k *model.ApiKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendApiKey(ctx, k)
}

func (s *Store) ApiKeys(ctx context.Context, f ledger.ApiKeyFilter) ([]model.ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.ApiKeys(ctx, f)
}

func (s *Store) AppendPassword(ctx context.Context, p *model.Password) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendPassword(ctx, p)
}

func (s *Store) CurrentPassword(ctx context.Context, userID int64) (model.Password, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.CurrentPassword(ctx, userID)
}

func (s *Store) PasswordByResetDigest(ctx context.Context, digest string) (model.Password, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.PasswordByResetDigest(ctx, digest)
}

func (s *Store) AppendVerificationChallenge(ctx context.Context, c *model.VerificationChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendVerificationChallenge(ctx, c)
}

func (s *Store) VerificationChallengeByDigest(ctx context.Context, digest string) (model.VerificationChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.VerificationChallengeByDigest(ctx, digest)
}

func (s *Store) LatestVerificationChallengeByEmail(ctx context.Context, email string) (model.VerificationChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.LatestVerificationChallengeByEmail(ctx, email)
}

func (s *Store) AppendPasswordReset(ctx context.Context, p *model.PasswordResetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendPasswordReset(ctx, p)
}

func (s *Store) PasswordResetByDigest(ctx context.Context, digest string) (model.PasswordResetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.PasswordResetByDigest(ctx, digest)
}

func (s *Store) LatestPasswordResetForUser(ctx context.Context, userID int64) (model.PasswordResetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.LatestPasswordResetForUser(ctx, userID)
}

func (s *Store) AppendSchool(ctx context.Context, sc *model.School) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendSchool(ctx, sc)
}

func (s *Store) SchoolByID(ctx context.Context, id int64) (model.School, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.SchoolByID(ctx, id)
}

func (s *Store) Schools(ctx context.Context, f ledger.SchoolFilter) ([]model.School, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Schools(ctx, f)
}

func (s *Store) AppendAdminship(ctx context.Context, a *model.Adminship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendAdminship(ctx, a)
}

func (s *Store) Adminships(ctx context.Context, f ledger.AdminshipFilter) ([]model.Adminship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Adminships(ctx, f)
}

func (s *Store) AppendSchoolKey(ctx context.Context, k *model.SchoolKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendSchoolKey(ctx, k)
}

func (s *Store) SchoolKeyByID(ctx context.Context, id int64) (model.SchoolKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.SchoolKeyByID(ctx, id)
}

func (s *Store) SchoolKeys(ctx context.Context, f ledger.SchoolKeyFilter) ([]model.SchoolKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.SchoolKeys(ctx, f)
}

func (s *Store) AppendLocation(ctx context.Context, l *model.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendLocation(ctx, l)
}

func (s *Store) LocationByID(ctx context.Context, id int64) (model.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.LocationByID(ctx, id)
}

func (s *Store) Locations(ctx context.Context, f ledger.LocationFilter) ([]model.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Locations(ctx, f)
}

func (s *Store) AppendCourse(ctx context.Context, c *model.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendCourse(ctx, c)
}

func (s *Store) CourseByID(ctx context.Context, id int64) (model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.CourseByID(ctx, id)
}

func (s *Store) Courses(ctx context.Context, f ledger.CourseFilter) ([]model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Courses(ctx, f)
}

func (s *Store) AppendCourseKey(ctx context.Context, k *model.CourseKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendCourseKey(ctx, k)
}

func (s *Store) CourseKeyByID(ctx context.Context, id int64) (model.CourseKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.CourseKeyByID(ctx, id)
}

func (s *Store) CourseKeys(ctx context.Context, f ledger.CourseKeyFilter) ([]model.CourseKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.CourseKeys(ctx, f)
}

func (s *Store) AppendCourseMembership(ctx context.Context, m *model.CourseMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendCourseMembership(ctx, m)
}

func (s *Store) CourseMemberships(ctx context.Context, f ledger.CourseMembershipFilter) ([]model.CourseMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.CourseMemberships(ctx, f)
}

func (s *Store) AppendSession(ctx context.Context, se *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendSession(ctx, se)
}

func (s *Store) SessionByID(ctx context.Context, id int64) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.SessionByID(ctx, id)
}

func (s *Store) Sessions(ctx context.Context, f ledger.SessionFilter) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Sessions(ctx, f)
}

func (s *Store) AppendSessionRequest(ctx context.Context, r *model.SessionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendSessionRequest(ctx, r)
}

func (s *Store) SessionRequestByID(ctx context.Context, id int64) (model.SessionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.SessionRequestByID(ctx, id)
}

func (s *Store) SessionRequests(ctx context.Context, f ledger.SessionRequestFilter) ([]model.SessionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.SessionRequests(ctx, f)
}

func (s *Store) AppendSessionRequestResponse(ctx context.Context, r *model.SessionRequestResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendSessionRequestResponse(ctx, r)
}

func (s *Store) SessionRequestResponseByID(ctx context.Context, sessionRequestID int64) (model.SessionRequestResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.SessionRequestResponseByID(ctx, sessionRequestID)
}

func (s *Store) SessionRequestResponses(ctx context.Context, f ledger.SessionRequestResponseFilter) ([]model.SessionRequestResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.SessionRequestResponses(ctx, f)
}

func (s *Store) AppendCommittment(ctx context.Context, c *model.Committment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendCommittment(ctx, c)
}

func (s *Store) CommittmentByID(ctx context.Context, id int64) (model.Committment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.CommittmentByID(ctx, id)
}

func (s *Store) Committments(ctx context.Context, f ledger.CommittmentFilter) ([]model.Committment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Committments(ctx, f)
}

func (s *Store) AppendCommittmentResponse(ctx context.Context, r *model.CommittmentResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AppendCommittmentResponse(ctx, r)
}

func (s *Store) CommittmentResponseByID(ctx context.Context, committmentID int64) (model.CommittmentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.CommittmentResponseByID(ctx, committmentID)
}

func (s *Store) CommittmentResponses(ctx context.Context, f ledger.CommittmentResponseFilter) ([]model.CommittmentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.CommittmentResponses(ctx, f)
}

// Package memory holds an in-memory ledger.Store. It backs the engine tests
// and is the reference for the query semantics the SQL store mirrors.
package memory

import (
	"context"
	"strings"
	"sync"

	"hourglass/internal/ledger"
	"hourglass/internal/model"
)

type db struct {
	nextID               int64
	users                []model.User
	apiKeys              []model.ApiKey
	passwords            []model.Password
	challenges           []model.VerificationChallenge
	resets               []model.PasswordResetRecord
	schools              []model.School
	adminships           []model.Adminship
	schoolKeys           []model.SchoolKey
	locations            []model.Location
	courses              []model.Course
	courseKeys           []model.CourseKey
	memberships          []model.CourseMembership
	sessions             []model.Session
	requests             []model.SessionRequest
	requestResponses     []model.SessionRequestResponse
	committments         []model.Committment
	committmentResponses []model.CommittmentResponse
}

// Store serializes all access behind one mutex; a transaction holds the lock
// for its whole body, which makes every check-then-append atomic.
type Store struct {
	mu sync.Mutex
	db db
}

func New() *Store {
	return &Store{db: db{nextID: 1}}
}

func (s *Store) InTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Records are immutable, so restoring the slice headers undoes appends.
	snapshot := s.db
	if err := fn(&s.db); err != nil {
		s.db = snapshot
		return err
	}
	return nil
}

// The *db methods run unlocked; transactions reach them directly while the
// Store wrapper takes the lock per call.

func (d *db) InTx(ctx context.Context, fn func(ledger.Store) error) error {
	return fn(d)
}

func (d *db) assign() int64 {
	id := d.nextID
	d.nextID++
	return id
}

func matchID(p *int64, v int64) bool {
	return p == nil || *p == v
}

func matchKind[T comparable](p *T, v T) bool {
	return p == nil || *p == v
}

func matchBool(p *bool, v bool) bool {
	return p == nil || *p == v
}

func matchSubstring(p *string, v string) bool {
	return p == nil || strings.Contains(strings.ToLower(v), strings.ToLower(*p))
}

func inRange(min, max *int64, v int64) bool {
	if min != nil && v < *min {
		return false
	}
	if max != nil && v > *max {
		return false
	}
	return true
}

func window[T any](records []T, p ledger.Page) []T {
	offset, limit := p.Window()
	if offset >= int64(len(records)) {
		return nil
	}
	records = records[offset:]
	if limit != nil && int64(len(records)) > *limit {
		records = records[:*limit]
	}
	return records
}

// recent keeps, in order, only the record that is last for its logical key.
func recent[T any, K comparable](records []T, key func(T) K) []T {
	last := make(map[K]int, len(records))
	for i, r := range records {
		last[key(r)] = i
	}
	out := make([]T, 0, len(last))
	for i, r := range records {
		if last[key(r)] == i {
			out = append(out, r)
		}
	}
	return out
}

func (d *db) AppendUser(_ context.Context, u *model.User) error {
	u.ID = d.assign()
	d.users = append(d.users, *u)
	return nil
}

func (d *db) UserByID(_ context.Context, id int64) (model.User, error) {
	for _, u := range d.users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (d *db) UserByEmail(_ context.Context, email string) (model.User, error) {
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (d *db) UserByChallengeDigest(_ context.Context, digest string) (model.User, error) {
	for _, u := range d.users {
		if u.ChallengeDigest == digest {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (d *db) Users(_ context.Context, f ledger.UserFilter) ([]model.User, error) {
	var out []model.User
	for _, u := range d.users {
		if matchID(f.ID, u.ID) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, u.CreationTime) &&
			matchSubstring(f.Name, u.Name) &&
			(f.Email == nil || strings.EqualFold(*f.Email, u.Email)) {
			out = append(out, u)
		}
	}
	return window(out, f.Page), nil
}

func (d *db) AppendApiKey(_ context.Context, k *model.ApiKey) error {
	k.ID = d.assign()
	d.apiKeys = append(d.apiKeys, *k)
	return nil
}

func (d *db) ApiKeys(_ context.Context, f ledger.ApiKeyFilter) ([]model.ApiKey, error) {
	records := d.apiKeys
	if f.OnlyRecent {
		records = recent(records, func(k model.ApiKey) string { return k.SecretDigest })
	}
	var out []model.ApiKey
	for _, k := range records {
		if matchID(f.ID, k.ID) &&
			matchID(f.CreatorUserID, k.CreatorUserID) &&
			matchKind(f.SecretDigest, k.SecretDigest) &&
			matchKind(f.Kind, k.Kind) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, k.CreationTime) {
			out = append(out, k)
		}
	}
	return window(out, f.Page), nil
}

func (d *db) AppendPassword(_ context.Context, p *model.Password) error {
	p.ID = d.assign()
	d.passwords = append(d.passwords, *p)
	return nil
}

func (d *db) CurrentPassword(_ context.Context, userID int64) (model.Password, error) {
	for i := len(d.passwords) - 1; i >= 0; i-- {
		if d.passwords[i].UserID == userID {
			return d.passwords[i], nil
		}
	}
	return model.Password{}, model.ErrNotFound
}

func (d *db) PasswordByResetDigest(_ context.Context, digest string) (model.Password, error) {
	for _, p := range d.passwords {
		if p.ResetDigest != "" && p.ResetDigest == digest {
			return p, nil
		}
	}
	return model.Password{}, model.ErrNotFound
}

func (d *db) AppendVerificationChallenge(_ context.Context, c *model.VerificationChallenge) error {
	c.ID = d.assign()
	d.challenges = append(d.challenges, *c)
	return nil
}

func (d *db) VerificationChallengeByDigest(_ context.Context, digest string) (model.VerificationChallenge, error) {
	for _, c := range d.challenges {
		if c.SecretDigest == digest {
			return c, nil
		}
	}
	return model.VerificationChallenge{}, model.ErrNotFound
}

func (d *db) LatestVerificationChallengeByEmail(_ context.Context, email string) (model.VerificationChallenge, error) {
	for i := len(d.challenges) - 1; i >= 0; i-- {
		if strings.EqualFold(d.challenges[i].Email, email) {
			return d.challenges[i], nil
		}
	}
	return model.VerificationChallenge{}, model.ErrNotFound
}

func (d *db) AppendPasswordReset(_ context.Context, p *model.PasswordResetRecord) error {
	p.ID = d.assign()
	d.resets = append(d.resets, *p)
	return nil
}

func (d *db) PasswordResetByDigest(_ context.Context, digest string) (model.PasswordResetRecord, error) {
	for _, p := range d.resets {
		if p.SecretDigest == digest {
			return p, nil
		}
	}
	return model.PasswordResetRecord{}, model.ErrNotFound
}

func (d *db) LatestPasswordResetForUser(_ context.Context, userID int64) (model.PasswordResetRecord, error) {
	for i := len(d.resets) - 1; i >= 0; i-- {
		if d.resets[i].UserID == userID {
			return d.resets[i], nil
		}
	}
	return model.PasswordResetRecord{}, model.ErrNotFound
}

func (d *db) AppendSchool(_ context.Context, s *model.School) error {
	s.ID = d.assign()
	d.schools = append(d.schools, *s)
	return nil
}

func (d *db) SchoolByID(_ context.Context, id int64) (model.School, error) {
	for _, s := range d.schools {
		if s.ID == id {
			return s, nil
		}
	}
	return model.School{}, model.ErrNotFound
}

func (d *db) Schools(_ context.Context, f ledger.SchoolFilter) ([]model.School, error) {
	var out []model.School
	for _, s := range d.schools {
		if matchID(f.ID, s.ID) &&
			matchID(f.CreatorUserID, s.CreatorUserID) &&
			matchSubstring(f.Name, s.Name) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, s.CreationTime) {
			out = append(out, s)
		}
	}
	return window(out, f.Page), nil
}

func (d *db) AppendAdminship(_ context.Context, a *model.Adminship) error {
	a.ID = d.assign()
	d.adminships = append(d.adminships, *a)
	return nil
}

type userScope struct {
	userID  int64
	scopeID int64
}

func (d *db) Adminships(_ context.Context, f ledger.AdminshipFilter) ([]model.Adminship, error) {
	records := d.adminships
	if f.OnlyRecent {
		records = recent(records, func(a model.Adminship) userScope {
			return userScope{a.UserID, a.SchoolID}
		})
	}
	var out []model.Adminship
	for _, a := range records {
		if matchID(f.ID, a.ID) &&
			matchID(f.CreatorUserID, a.CreatorUserID) &&
			matchID(f.UserID, a.UserID) &&
			matchID(f.SchoolID, a.SchoolID) &&
			matchKind(f.Kind, a.Kind) &&
			matchID(f.SchoolKeyID, a.SchoolKeyID) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, a.CreationTime) {
			out = append(out, a)
		}
	}
	return window(out, f.Page), nil
}

func (d *db) AppendSchoolKey(_ context.Context, k *model.SchoolKey) error {
	k.ID = d.assign()
	d.schoolKeys = append(d.schoolKeys, *k)
	return nil
}

func (d *db) SchoolKeyByID(_ context.Context, id int64) (model.SchoolKey, error) {
	for _, k := range d.schoolKeys {
		if k.ID == id {
			return k, nil
		}
	}
	return model.SchoolKey{}, model.ErrNotFound
}

func (d *db) SchoolKeys(_ context.Context, f ledger.SchoolKeyFilter) ([]model.SchoolKey, error) {
	records := d.schoolKeys
	if f.OnlyRecent {
		records = recent(records, func(k model.SchoolKey) string { return k.SecretDigest })
	}
	var out []model.SchoolKey
	for _, k := range records {
		if matchID(f.ID, k.ID) &&
			matchID(f.CreatorUserID, k.CreatorUserID) &&
			matchID(f.SchoolID, k.SchoolID) &&
			matchKind(f.SecretDigest, k.SecretDigest) &&
			matchKind(f.Kind, k.Kind) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, k.CreationTime) {
			out = append(out, k)
		}
	}
	return window(out, f.Page), nil
}

func (d *db) AppendLocation(_ context.Context, l *model.Location) error {
	l.ID = d.assign()
	d.locations = append(d.locations, *l)
	return nil
}

func (d *db) LocationByID(_ context.Context, id int64) (model.Location, error) {
	for _, l := range d.locations {
		if l.ID == id {
			return l, nil
		}
	}
	return model.Location{}, model.ErrNotFound
}

func (d *db) Locations(_ context.Context, f ledger.LocationFilter) ([]model.Location, error) {
	var out []model.Location
	for _, l := range d.locations {
		if matchID(f.ID, l.ID) &&
			matchID(f.CreatorUserID, l.CreatorUserID) &&
			matchID(f.SchoolID, l.SchoolID) &&
			matchSubstring(f.Name, l.Name) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, l.CreationTime) {
			out = append(out, l)
		}
	}
	return window(out, f.Page), nil
}

func (d *db) AppendCourse(_ context.Context, c *model.Course) error {
	c.ID = d.assign()
	d.courses = append(d.courses, *c)
	return nil
}

func (d *db) CourseByID(_ context.Context, id int64) (model.Course, error) {
	for _, c := range d.courses {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Course{}, model.ErrNotFound
}

func (d *db) Courses(_ context.Context, f ledger.CourseFilter) ([]model.Course, error) {
	var out []model.Course
	for _, c := range d.courses {
		if matchID(f.ID, c.ID) &&
			matchID(f.CreatorUserID, c.CreatorUserID) &&
			matchID(f.SchoolID, c.SchoolID) &&
			matchID(f.LocationID, c.LocationID) &&
			matchSubstring(f.Name, c.Name) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, c.CreationTime) {
			out = append(out, c)
		}
	}
	return window(out, f.Page), nil
}

func (d *db) AppendCourseKey(_ context.Context, k *model.CourseKey) error {
	k.ID = d.assign()
	d.courseKeys = append(d.courseKeys, *k)
	return nil
}

func (d *db) CourseKeyByID(_ context.Context, id int64) (model.CourseKey, error) {
	for _, k := range d.courseKeys {
		if k.ID == id {
			return k, nil
		}
	}
	return model.CourseKey{}, model.ErrNotFound
}

func (d *db) CourseKeys(_ context.Context, f ledger.CourseKeyFilter) ([]model.CourseKey, error) {
	records := d.courseKeys
	if f.OnlyRecent {
		records = recent(records, func(k model.CourseKey) string { return k.SecretDigest })
	}
	var out []model.CourseKey
	for _, k := range records {
		if matchID(f.ID, k.ID) &&
			matchID(f.CreatorUserID, k.CreatorUserID) &&
			matchID(f.CourseID, k.CourseID) &&
			matchKind(f.SecretDigest, k.SecretDigest) &&
			matchKind(f.Kind, k.Kind) &&
			matchKind(f.MembershipKind, k.MembershipKind) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, k.CreationTime) {
			out = append(out, k)
		}
	}
	return window(out, f.Page), nil
}

func (d *db) AppendCourseMembership(_ context.Context, m *model.CourseMembership) error {
	m.ID = d.assign()
	d.memberships = append(d.memberships, *m)
	return nil
}

func (d *db) CourseMemberships(_ context.Context, f ledger.CourseMembershipFilter) ([]model.CourseMembership, error) {
	records := d.memberships
	if f.OnlyRecent {
		records = recent(records, func(m model.CourseMembership) userScope {
			return userScope{m.UserID, m.CourseID}
		})
	}
	var out []model.CourseMembership
	for _, m := range records {
		if matchID(f.ID, m.ID) &&
			matchID(f.CreatorUserID, m.CreatorUserID) &&
			matchID(f.UserID, m.UserID) &&
			matchID(f.CourseID, m.CourseID) &&
			matchKind(f.Kind, m.Kind) &&
			matchKind(f.Source, m.Source) &&
			matchID(f.CourseKeyID, m.CourseKeyID) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, m.CreationTime) {
			out = append(out, m)
		}
	}
	return window(out, f.Page), nil
}

func (d *db) AppendSession(_ context.Context, s *model.Session) error {
	s.ID = d.assign()
	d.sessions = append(d.sessions, *s)
	return nil
}

func (d *db) SessionByID(_ context.Context, id int64) (model.Session, error) {
	for _, s := range d.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return model.Session{}, model.ErrNotFound
}

func (d *db) Sessions(_ context.Context, f ledger.SessionFilter) ([]model.Session, error) {
	var out []model.Session
	for _, s := range d.sessions {
		if matchID(f.ID, s.ID) &&
			matchID(f.CreatorUserID, s.CreatorUserID) &&
			matchID(f.CourseID, s.CourseID) &&
			matchID(f.LocationID, s.LocationID) &&
			matchSubstring(f.Name, s.Name) &&
			matchBool(f.Hidden, s.Hidden) &&
			inRange(f.MinStartTime, f.MaxStartTime, s.StartTime) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, s.CreationTime) {
			out = append(out, s)
		}
	}
	return window(out, f.Page), nil
}

func (d *db) AppendSessionRequest(_ context.Context, r *model.SessionRequest) error {
	r.ID = d.assign()
	d.requests = append(d.requests, *r)
	return nil
}

func (d *db) SessionRequestByID(_ context.Context, id int64) (model.SessionRequest, error) {
	for _, r := range d.requests {
		if r.ID == id {
			return r, nil
		}
	}
	return model.SessionRequest{}, model.ErrNotFound
}

func (d *db) SessionRequests(_ context.Context, f ledger.SessionRequestFilter) ([]model.SessionRequest, error) {
	responded := make(map[int64]bool, len(d.requestResponses))
	for _, r := range d.requestResponses {
		responded[r.SessionRequestID] = true
	}
	var out []model.SessionRequest
	for _, r := range d.requests {
		if matchID(f.ID, r.ID) &&
			matchID(f.AttendeeUserID, r.AttendeeUserID) &&
			matchID(f.CourseID, r.CourseID) &&
			inRange(f.MinStartTime, f.MaxStartTime, r.StartTime) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, r.CreationTime) &&
			matchBool(f.Responded, responded[r.ID]) {
			out = append(out, r)
		}
	}
	return window(out, f.Page), nil
}

func (d *db) AppendSessionRequestResponse(_ context.Context, r *model.SessionRequestResponse) error {
	d.assign()
	d.requestResponses = append(d.requestResponses, *r)
	return nil
}

func (d *db) SessionRequestResponseByID(_ context.Context, sessionRequestID int64) (model.SessionRequestResponse, error) {
	for _, r := range d.requestResponses {
		if r.SessionRequestID == sessionRequestID {
			return r, nil
		}
	}
	return model.SessionRequestResponse{}, model.ErrNotFound
}

func (d *db) SessionRequestResponses(_ context.Context, f ledger.SessionRequestResponseFilter) ([]model.SessionRequestResponse, error) {
	var out []model.SessionRequestResponse
	for _, r := range d.requestResponses {
		if matchID(f.SessionRequestID, r.SessionRequestID) &&
			matchID(f.CreatorUserID, r.CreatorUserID) &&
			matchBool(f.Accepted, r.Accepted) &&
			matchID(f.CommittmentID, r.CommittmentID) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, r.CreationTime) {
			out = append(out, r)
		}
	}
	return window(out, f.Page), nil
}

func (d *db) AppendCommittment(_ context.Context, c *model.Committment) error {
	c.ID = d.assign()
	d.committments = append(d.committments, *c)
	return nil
}

func (d *db) CommittmentByID(_ context.Context, id int64) (model.Committment, error) {
	for _, c := range d.committments {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Committment{}, model.ErrNotFound
}

func (d *db) Committments(_ context.Context, f ledger.CommittmentFilter) ([]model.Committment, error) {
	responded := make(map[int64]bool, len(d.committmentResponses))
	for _, r := range d.committmentResponses {
		responded[r.CommittmentID] = true
	}
	var out []model.Committment
	for _, c := range d.committments {
		if matchID(f.ID, c.ID) &&
			matchID(f.CreatorUserID, c.CreatorUserID) &&
			matchID(f.AttendeeUserID, c.AttendeeUserID) &&
			matchID(f.SessionID, c.SessionID) &&
			matchBool(f.Cancellable, c.Cancellable) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, c.CreationTime) &&
			matchBool(f.Responded, responded[c.ID]) {
			out = append(out, c)
		}
	}
	return window(out, f.Page), nil
}

func (d *db) AppendCommittmentResponse(_ context.Context, r *model.CommittmentResponse) error {
	d.assign()
	d.committmentResponses = append(d.committmentResponses, *r)
	return nil
}

func (d *db) CommittmentResponseByID(_ context.Context, committmentID int64) (model.CommittmentResponse, error) {
	for _, r := range d.committmentResponses {
		if r.CommittmentID == committmentID {
			return r, nil
		}
	}
	return model.CommittmentResponse{}, model.ErrNotFound
}

func (d *db) CommittmentResponses(_ context.Context, f ledger.CommittmentResponseFilter) ([]model.CommittmentResponse, error) {
	var out []model.CommittmentResponse
	for _, r := range d.committmentResponses {
		if matchID(f.CommittmentID, r.CommittmentID) &&
			matchID(f.CreatorUserID, r.CreatorUserID) &&
			matchKind(f.Kind, r.Kind) &&
			inRange(f.MinCreationTime, f.MaxCreationTime, r.CreationTime) {
			out = append(out, r)
		}
	}
	return window(out, f.Page), nil
}

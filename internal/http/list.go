package http

import (
	"net/http"
	"strconv"

	"hourglass/internal/ledger"
	"hourglass/internal/model"
	"hourglass/internal/role"
)

// queryParser reads list filter params, remembering the first parse failure.
// Absent params stay nil so the store treats them as unconstrained; malformed
// params are invalid_argument rather than silently ignored.
type queryParser struct {
	r   *http.Request
	err error
}

func (q *queryParser) str(name string) *string {
	if !q.r.URL.Query().Has(name) {
		return nil
	}
	v := q.r.URL.Query().Get(name)
	return &v
}

func (q *queryParser) int64(name string) *int64 {
	if q.err != nil || !q.r.URL.Query().Has(name) {
		return nil
	}
	v, err := strconv.ParseInt(q.r.URL.Query().Get(name), 10, 64)
	if err != nil {
		q.err = model.ErrInvalidArgument
		return nil
	}
	return &v
}

func (q *queryParser) boolean(name string) *bool {
	if q.err != nil || !q.r.URL.Query().Has(name) {
		return nil
	}
	v, err := strconv.ParseBool(q.r.URL.Query().Get(name))
	if err != nil {
		q.err = model.ErrInvalidArgument
		return nil
	}
	return &v
}

func (q *queryParser) onlyRecent() bool {
	v := q.boolean("onlyRecent")
	return v != nil && *v
}

func (q *queryParser) page() ledger.Page {
	var p ledger.Page
	if offset := q.int64("offset"); offset != nil {
		if *offset < 0 {
			q.err = model.ErrInvalidArgument
			return p
		}
		p.Offset = *offset
	}
	if count := q.int64("count"); count != nil {
		if *count < 0 {
			q.err = model.ErrInvalidArgument
			return p
		}
		p.Count = *count
	}
	return p
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	f := ledger.UserFilter{
		ID:              q.int64("userId"),
		MinCreationTime: q.int64("minCreationTime"),
		MaxCreationTime: q.int64("maxCreationTime"),
		Name:            q.str("name"),
		Email:           q.str("email"),
		Page:            q.page(),
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	users, err := s.store.Users(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handleListApiKeys only ever shows the caller their own keys.
func (s *Server) handleListApiKeys(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	q := queryParser{r: r}
	f := ledger.ApiKeyFilter{
		ID:              q.int64("apiKeyId"),
		CreatorUserID:   &id.user.ID,
		MinCreationTime: q.int64("minCreationTime"),
		MaxCreationTime: q.int64("maxCreationTime"),
		OnlyRecent:      q.onlyRecent(),
		Page:            q.page(),
	}
	if kind := q.str("apiKeyKind"); kind != nil {
		k := model.ApiKeyKind(*kind)
		if !model.ValidApiKeyKind(k) {
			q.err = model.ErrInvalidArgument
		}
		f.Kind = &k
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	keys, err := s.store.ApiKeys(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleListSchools(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	f := ledger.SchoolFilter{
		ID:              q.int64("schoolId"),
		CreatorUserID:   q.int64("creatorUserId"),
		Name:            q.str("name"),
		MinCreationTime: q.int64("minCreationTime"),
		MaxCreationTime: q.int64("maxCreationTime"),
		Page:            q.page(),
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	schools, err := s.store.Schools(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schools)
}

// handleListSchoolKeys is scoped to a single school and gated on admin
// standing there.
func (s *Server) handleListSchoolKeys(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	q := queryParser{r: r}
	schoolID := q.int64("schoolId")
	if q.err == nil && schoolID == nil {
		q.err = model.ErrInvalidArgument
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	admin, err := role.IsAdmin(r.Context(), s.store, id.user.ID, *schoolID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !admin {
		s.writeFailure(w, model.ErrUnauthorized)
		return
	}

	f := ledger.SchoolKeyFilter{
		ID:              q.int64("schoolKeyId"),
		CreatorUserID:   q.int64("creatorUserId"),
		SchoolID:        schoolID,
		MinCreationTime: q.int64("minCreationTime"),
		MaxCreationTime: q.int64("maxCreationTime"),
		OnlyRecent:      q.onlyRecent(),
		Page:            q.page(),
	}
	if kind := q.str("schoolKeyKind"); kind != nil {
		k := model.SchoolKeyKind(*kind)
		if k != model.SchoolKeyValid && k != model.SchoolKeyCancel {
			q.err = model.ErrInvalidArgument
		}
		f.Kind = &k
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	keys, err := s.store.SchoolKeys(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleListAdminships(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	f := ledger.AdminshipFilter{
		ID:              q.int64("adminshipId"),
		CreatorUserID:   q.int64("creatorUserId"),
		UserID:          q.int64("userId"),
		SchoolID:        q.int64("schoolId"),
		SchoolKeyID:     q.int64("schoolKeyId"),
		MinCreationTime: q.int64("minCreationTime"),
		MaxCreationTime: q.int64("maxCreationTime"),
		OnlyRecent:      q.onlyRecent(),
		Page:            q.page(),
	}
	if kind := q.str("adminshipKind"); kind != nil {
		k := model.AdminshipKind(*kind)
		if !model.ValidAdminshipKind(k) {
			q.err = model.ErrInvalidArgument
		}
		f.Kind = &k
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	adminships, err := s.store.Adminships(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adminships)
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	f := ledger.LocationFilter{
		ID:              q.int64("locationId"),
		CreatorUserID:   q.int64("creatorUserId"),
		SchoolID:        q.int64("schoolId"),
		Name:            q.str("name"),
		MinCreationTime: q.int64("minCreationTime"),
		MaxCreationTime: q.int64("maxCreationTime"),
		Page:            q.page(),
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	locations, err := s.store.Locations(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locations)
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	f := ledger.CourseFilter{
		ID:              q.int64("courseId"),
		CreatorUserID:   q.int64("creatorUserId"),
		SchoolID:        q.int64("schoolId"),
		LocationID:      q.int64("locationId"),
		Name:            q.str("name"),
		MinCreationTime: q.int64("minCreationTime"),
		MaxCreationTime: q.int64("maxCreationTime"),
		Page:            q.page(),
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	courses, err := s.store.Courses(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

// handleListCourseKeys is scoped to a single course and gated on instructor or
// school-admin standing there.
func (s *Server) handleListCourseKeys(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	q := queryParser{r: r}
	courseID := q.int64("courseId")
	if q.err == nil && courseID == nil {
		q.err = model.ErrInvalidArgument
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	ok, err := role.CanActAsInstructor(r.Context(), s.store, id.user.ID, *courseID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !ok {
		s.writeFailure(w, model.ErrUnauthorized)
		return
	}

	f := ledger.CourseKeyFilter{
		ID:              q.int64("courseKeyId"),
		CreatorUserID:   q.int64("creatorUserId"),
		CourseID:        courseID,
		MinCreationTime: q.int64("minCreationTime"),
		MaxCreationTime: q.int64("maxCreationTime"),
		OnlyRecent:      q.onlyRecent(),
		Page:            q.page(),
	}
	if kind := q.str("courseKeyKind"); kind != nil {
		k := model.CourseKeyKind(*kind)
		if k != model.CourseKeyValid && k != model.CourseKeyCancel {
			q.err = model.ErrInvalidArgument
		}
		f.Kind = &k
	}
	if kind := q.str("courseMembershipKind"); kind != nil {
		k := model.CourseMembershipKind(*kind)
		if !model.ValidMembershipKind(k) {
			q.err = model.ErrInvalidArgument
		}
		f.MembershipKind = &k
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	keys, err := s.store.CourseKeys(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleListCourseMemberships(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	f := ledger.CourseMembershipFilter{
		ID:              q.int64("courseMembershipId"),
		CreatorUserID:   q.int64("creatorUserId"),
		UserID:          q.int64("userId"),
		CourseID:        q.int64("courseId"),
		CourseKeyID:     q.int64("courseKeyId"),
		MinCreationTime: q.int64("minCreationTime"),
		MaxCreationTime: q.int64("maxCreationTime"),
		OnlyRecent:      q.onlyRecent(),
		Page:            q.page(),
	}
	if kind := q.str("courseMembershipKind"); kind != nil {
		k := model.CourseMembershipKind(*kind)
		if !model.ValidMembershipKind(k) {
			q.err = model.ErrInvalidArgument
		}
		f.Kind = &k
	}
	if src := q.str("courseMembershipSource"); src != nil {
		v := model.CourseMembershipSource(*src)
		if v != model.MembershipSourceSet && v != model.MembershipSourceKey {
			q.err = model.ErrInvalidArgument
		}
		f.Source = &v
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	memberships, err := s.store.CourseMemberships(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memberships)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	f := ledger.SessionFilter{
		ID:              q.int64("sessionId"),
		CreatorUserID:   q.int64("creatorUserId"),
		CourseID:        q.int64("courseId"),
		LocationID:      q.int64("locationId"),
		Name:            q.str("name"),
		Hidden:          q.boolean("hidden"),
		MinStartTime:    q.int64("minStartTime"),
		MaxStartTime:    q.int64("maxStartTime"),
		MinCreationTime: q.int64("minCreationTime"),
		MaxCreationTime: q.int64("maxCreationTime"),
		Page:            q.page(),
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	sessions, err := s.store.Sessions(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleListSessionRequests(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	f := ledger.SessionRequestFilter{
		ID:              q.int64("sessionRequestId"),
		AttendeeUserID:  q.int64("attendeeUserId"),
		CourseID:        q.int64("courseId"),
		MinStartTime:    q.int64("minStartTime"),
		MaxStartTime:    q.int64("maxStartTime"),
		MinCreationTime: q.int64("minCreationTime"),
		MaxCreationTime: q.int64("maxCreationTime"),
		Responded:       q.boolean("responded"),
		Page:            q.page(),
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	requests, err := s.store.SessionRequests(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *Server) handleListSessionRequestResponses(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	f := ledger.SessionRequestResponseFilter{
		SessionRequestID: q.int64("sessionRequestId"),
		CreatorUserID:    q.int64("creatorUserId"),
		Accepted:         q.boolean("accepted"),
		CommittmentID:    q.int64("committmentId"),
		MinCreationTime:  q.int64("minCreationTime"),
		MaxCreationTime:  q.int64("maxCreationTime"),
		Page:             q.page(),
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	responses, err := s.store.SessionRequestResponses(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, responses)
}

func (s *Server) handleListCommittments(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	f := ledger.CommittmentFilter{
		ID:              q.int64("committmentId"),
		CreatorUserID:   q.int64("creatorUserId"),
		AttendeeUserID:  q.int64("attendeeUserId"),
		SessionID:       q.int64("sessionId"),
		Cancellable:     q.boolean("cancellable"),
		MinCreationTime: q.int64("minCreationTime"),
		MaxCreationTime: q.int64("maxCreationTime"),
		Responded:       q.boolean("responded"),
		Page:            q.page(),
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	committments, err := s.store.Committments(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, committments)
}

func (s *Server) handleListCommittmentResponses(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	f := ledger.CommittmentResponseFilter{
		CommittmentID:   q.int64("committmentId"),
		CreatorUserID:   q.int64("creatorUserId"),
		MinCreationTime: q.int64("minCreationTime"),
		MaxCreationTime: q.int64("maxCreationTime"),
		Page:            q.page(),
	}
	if kind := q.str("committmentResponseKind"); kind != nil {
		k := model.CommittmentResponseKind(*kind)
		if !model.ValidCommittmentResponseKind(k) {
			q.err = model.ErrInvalidArgument
		}
		f.Kind = &k
	}
	if q.err != nil {
		s.writeFailure(w, q.err)
		return
	}
	responses, err := s.store.CommittmentResponses(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, responses)
}

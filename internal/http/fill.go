package http

import (
	"context"

	"hourglass/internal/model"
)

// Mutation responses carry the appended record with its referenced entities
// resolved, so clients need no follow-up lookups.

type apiKeyView struct {
	model.ApiKey
	Creator model.User `json:"creator"`
}

func (s *Server) fillApiKey(ctx context.Context, k model.ApiKey) (apiKeyView, error) {
	creator, err := s.store.UserByID(ctx, k.CreatorUserID)
	if err != nil {
		return apiKeyView{}, err
	}
	return apiKeyView{ApiKey: k, Creator: creator}, nil
}

type passwordView struct {
	model.Password
	User model.User `json:"user"`
}

func (s *Server) fillPassword(ctx context.Context, p model.Password) (passwordView, error) {
	user, err := s.store.UserByID(ctx, p.UserID)
	if err != nil {
		return passwordView{}, err
	}
	return passwordView{Password: p, User: user}, nil
}

type schoolView struct {
	model.School
	Creator model.User `json:"creator"`
}

func (s *Server) fillSchool(ctx context.Context, sc model.School) (schoolView, error) {
	creator, err := s.store.UserByID(ctx, sc.CreatorUserID)
	if err != nil {
		return schoolView{}, err
	}
	return schoolView{School: sc, Creator: creator}, nil
}

type adminshipView struct {
	model.Adminship
	User      model.User       `json:"user"`
	School    model.School     `json:"school"`
	SchoolKey *model.SchoolKey `json:"schoolKey,omitempty"`
}

func (s *Server) fillAdminship(ctx context.Context, a model.Adminship) (adminshipView, error) {
	user, err := s.store.UserByID(ctx, a.UserID)
	if err != nil {
		return adminshipView{}, err
	}
	school, err := s.store.SchoolByID(ctx, a.SchoolID)
	if err != nil {
		return adminshipView{}, err
	}
	view := adminshipView{Adminship: a, User: user, School: school}
	if a.SchoolKeyID != 0 {
		key, err := s.store.SchoolKeyByID(ctx, a.SchoolKeyID)
		if err != nil {
			return adminshipView{}, err
		}
		view.SchoolKey = &key
	}
	return view, nil
}

type schoolKeyView struct {
	model.SchoolKey
	School model.School `json:"school"`
}

func (s *Server) fillSchoolKey(ctx context.Context, k model.SchoolKey) (schoolKeyView, error) {
	school, err := s.store.SchoolByID(ctx, k.SchoolID)
	if err != nil {
		return schoolKeyView{}, err
	}
	return schoolKeyView{SchoolKey: k, School: school}, nil
}

type locationView struct {
	model.Location
	School model.School `json:"school"`
}

func (s *Server) fillLocation(ctx context.Context, l model.Location) (locationView, error) {
	school, err := s.store.SchoolByID(ctx, l.SchoolID)
	if err != nil {
		return locationView{}, err
	}
	return locationView{Location: l, School: school}, nil
}

type courseView struct {
	model.Course
	School   model.School    `json:"school"`
	Location *model.Location `json:"location,omitempty"`
}

func (s *Server) fillCourse(ctx context.Context, c model.Course) (courseView, error) {
	school, err := s.store.SchoolByID(ctx, c.SchoolID)
	if err != nil {
		return courseView{}, err
	}
	view := courseView{Course: c, School: school}
	if c.LocationID != 0 {
		location, err := s.store.LocationByID(ctx, c.LocationID)
		if err != nil {
			return courseView{}, err
		}
		view.Location = &location
	}
	return view, nil
}

type courseKeyView struct {
	model.CourseKey
	Course model.Course `json:"course"`
}

func (s *Server) fillCourseKey(ctx context.Context, k model.CourseKey) (courseKeyView, error) {
	course, err := s.store.CourseByID(ctx, k.CourseID)
	if err != nil {
		return courseKeyView{}, err
	}
	return courseKeyView{CourseKey: k, Course: course}, nil
}

type courseMembershipView struct {
	model.CourseMembership
	User      model.User       `json:"user"`
	Course    model.Course     `json:"course"`
	CourseKey *model.CourseKey `json:"courseKey,omitempty"`
}

func (s *Server) fillCourseMembership(ctx context.Context, m model.CourseMembership) (courseMembershipView, error) {
	user, err := s.store.UserByID(ctx, m.UserID)
	if err != nil {
		return courseMembershipView{}, err
	}
	course, err := s.store.CourseByID(ctx, m.CourseID)
	if err != nil {
		return courseMembershipView{}, err
	}
	view := courseMembershipView{CourseMembership: m, User: user, Course: course}
	if m.CourseKeyID != 0 {
		key, err := s.store.CourseKeyByID(ctx, m.CourseKeyID)
		if err != nil {
			return courseMembershipView{}, err
		}
		view.CourseKey = &key
	}
	return view, nil
}

type sessionView struct {
	model.Session
	Course   model.Course    `json:"course"`
	Location *model.Location `json:"location,omitempty"`
}

func (s *Server) fillSession(ctx context.Context, se model.Session) (sessionView, error) {
	course, err := s.store.CourseByID(ctx, se.CourseID)
	if err != nil {
		return sessionView{}, err
	}
	view := sessionView{Session: se, Course: course}
	if se.LocationID != 0 {
		location, err := s.store.LocationByID(ctx, se.LocationID)
		if err != nil {
			return sessionView{}, err
		}
		view.Location = &location
	}
	return view, nil
}

type sessionRequestView struct {
	model.SessionRequest
	Attendee model.User   `json:"attendee"`
	Course   model.Course `json:"course"`
}

func (s *Server) fillSessionRequest(ctx context.Context, r model.SessionRequest) (sessionRequestView, error) {
	attendee, err := s.store.UserByID(ctx, r.AttendeeUserID)
	if err != nil {
		return sessionRequestView{}, err
	}
	course, err := s.store.CourseByID(ctx, r.CourseID)
	if err != nil {
		return sessionRequestView{}, err
	}
	return sessionRequestView{SessionRequest: r, Attendee: attendee, Course: course}, nil
}

type sessionRequestResponseView struct {
	model.SessionRequestResponse
	Creator     model.User         `json:"creator"`
	Committment *model.Committment `json:"committment,omitempty"`
}

func (s *Server) fillSessionRequestResponse(ctx context.Context, r model.SessionRequestResponse) (sessionRequestResponseView, error) {
	creator, err := s.store.UserByID(ctx, r.CreatorUserID)
	if err != nil {
		return sessionRequestResponseView{}, err
	}
	view := sessionRequestResponseView{SessionRequestResponse: r, Creator: creator}
	if r.CommittmentID != 0 {
		committment, err := s.store.CommittmentByID(ctx, r.CommittmentID)
		if err != nil {
			return sessionRequestResponseView{}, err
		}
		view.Committment = &committment
	}
	return view, nil
}

type committmentView struct {
	model.Committment
	Attendee model.User    `json:"attendee"`
	Session  model.Session `json:"session"`
}

func (s *Server) fillCommittment(ctx context.Context, c model.Committment) (committmentView, error) {
	attendee, err := s.store.UserByID(ctx, c.AttendeeUserID)
	if err != nil {
		return committmentView{}, err
	}
	session, err := s.store.SessionByID(ctx, c.SessionID)
	if err != nil {
		return committmentView{}, err
	}
	return committmentView{Committment: c, Attendee: attendee, Session: session}, nil
}

type committmentResponseView struct {
	model.CommittmentResponse
	Creator model.User `json:"creator"`
}

func (s *Server) fillCommittmentResponse(ctx context.Context, r model.CommittmentResponse) (committmentResponseView, error) {
	creator, err := s.store.UserByID(ctx, r.CreatorUserID)
	if err != nil {
		return committmentResponseView{}, err
	}
	return committmentResponseView{CommittmentResponse: r, Creator: creator}, nil
}

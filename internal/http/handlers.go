package http

import (
	"net/http"

	"hourglass/internal/model"
)

type verificationChallengeNewRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleVerificationChallengeNew(w http.ResponseWriter, r *http.Request) {
	var req verificationChallengeNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	challenge, err := s.credentials.NewVerificationChallenge(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, challenge)
}

type userNewRequest struct {
	VerificationChallengeSecret string `json:"verificationChallengeSecret"`
}

func (s *Server) handleUserNew(w http.ResponseWriter, r *http.Request) {
	var req userNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	user, err := s.credentials.NewUser(r.Context(), req.VerificationChallengeSecret)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type apiKeyNewRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Duration int64  `json:"duration"`
}

type apiKeyNewResponse struct {
	ApiKey apiKeyView `json:"apiKey"`
	Secret string     `json:"secret"`
}

func (s *Server) handleApiKeyNew(w http.ResponseWriter, r *http.Request) {
	var req apiKeyNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	key, secret, err := s.credentials.NewApiKey(r.Context(), req.Email, req.Password, req.Duration)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillApiKey(r.Context(), key)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, apiKeyNewResponse{ApiKey: view, Secret: secret})
}

type apiKeyCancelRequest struct {
	ApiKeySecret string `json:"apiKeySecret"`
}

func (s *Server) handleApiKeyCancel(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req apiKeyCancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	cancel, err := s.credentials.CancelApiKey(r.Context(), id.user.ID, req.ApiKeySecret)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillApiKey(r.Context(), cancel)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type passwordResetNewRequest struct {
	Email string `json:"email"`
}

func (s *Server) handlePasswordResetNew(w http.ResponseWriter, r *http.Request) {
	var req passwordResetNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.credentials.NewPasswordReset(r.Context(), req.Email); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type passwordNewRequest struct {
	PasswordKind        model.PasswordKind `json:"passwordKind"`
	UserID              int64              `json:"userId,omitempty"`
	OldPassword         string             `json:"oldPassword,omitempty"`
	NewPassword         string             `json:"newPassword,omitempty"`
	PasswordResetSecret string             `json:"passwordResetSecret,omitempty"`
}

// handlePasswordNew sits outside the auth middleware because the RESET kind
// authenticates with the mailed secret instead of an api key.
func (s *Server) handlePasswordNew(w http.ResponseWriter, r *http.Request) {
	var req passwordNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	var record model.Password
	switch req.PasswordKind {
	case model.PasswordReset:
		var err error
		record, err = s.credentials.ResetPassword(r.Context(), req.PasswordResetSecret, req.NewPassword)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
	case model.PasswordChange, model.PasswordCancel:
		id, err := s.authenticate(r)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		target := req.UserID
		if target == 0 {
			target = id.user.ID
		}
		if req.PasswordKind == model.PasswordChange {
			record, err = s.credentials.ChangePassword(r.Context(), id.user.ID, target, req.OldPassword, req.NewPassword)
		} else {
			record, err = s.credentials.CancelPassword(r.Context(), id.user.ID, target)
		}
		if err != nil {
			s.writeFailure(w, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "invalid_argument")
		return
	}
	view, err := s.fillPassword(r.Context(), record)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type schoolNewRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleSchoolNew(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req schoolNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	school, err := s.workflows.NewSchool(r.Context(), id.user.ID, req.Name, req.Description)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillSchool(r.Context(), school)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type adminshipNewRequest struct {
	UserID        int64               `json:"userId"`
	SchoolID      int64               `json:"schoolId"`
	AdminshipKind model.AdminshipKind `json:"adminshipKind"`
}

func (s *Server) handleAdminshipNew(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req adminshipNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	adminship, err := s.workflows.NewAdminship(r.Context(), id.user.ID, req.UserID, req.SchoolID, req.AdminshipKind)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillAdminship(r.Context(), adminship)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type adminshipNewKeyRequest struct {
	SchoolKeySecret string `json:"schoolKeySecret"`
}

func (s *Server) handleAdminshipNewKey(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req adminshipNewKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	adminship, err := s.workflows.NewAdminshipKey(r.Context(), id.user.ID, req.SchoolKeySecret)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillAdminship(r.Context(), adminship)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type schoolKeyNewRequest struct {
	SchoolID int64 `json:"schoolId"`
	MaxUses  int64 `json:"maxUses"`
	Duration int64 `json:"duration"`
}

type schoolKeyNewResponse struct {
	SchoolKey schoolKeyView `json:"schoolKey"`
	Secret    string        `json:"secret"`
}

func (s *Server) handleSchoolKeyNew(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req schoolKeyNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	key, secret, err := s.credentials.NewSchoolKey(r.Context(), id.user.ID, req.SchoolID, req.MaxUses, req.Duration)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillSchoolKey(r.Context(), key)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, schoolKeyNewResponse{SchoolKey: view, Secret: secret})
}

type schoolKeyCancelRequest struct {
	SchoolKeyID int64 `json:"schoolKeyId"`
}

func (s *Server) handleSchoolKeyCancel(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req schoolKeyCancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	cancel, err := s.credentials.CancelSchoolKey(r.Context(), id.user.ID, req.SchoolKeyID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillSchoolKey(r.Context(), cancel)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type locationNewRequest struct {
	SchoolID int64  `json:"schoolId"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
}

func (s *Server) handleLocationNew(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req locationNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	location, err := s.workflows.NewLocation(r.Context(), id.user.ID, req.SchoolID, req.Name, req.Address, req.Phone)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillLocation(r.Context(), location)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type courseNewRequest struct {
	SchoolID    int64  `json:"schoolId"`
	LocationID  int64  `json:"locationId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCourseNew(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req courseNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	course, err := s.workflows.NewCourse(r.Context(), id.user.ID, req.SchoolID, req.LocationID, req.Name, req.Description)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillCourse(r.Context(), course)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type courseKeyNewRequest struct {
	CourseID             int64                      `json:"courseId"`
	CourseMembershipKind model.CourseMembershipKind `json:"courseMembershipKind"`
	MaxUses              int64                      `json:"maxUses"`
	Duration             int64                      `json:"duration"`
}

type courseKeyNewResponse struct {
	CourseKey courseKeyView `json:"courseKey"`
	Secret    string        `json:"secret"`
}

func (s *Server) handleCourseKeyNew(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req courseKeyNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	key, secret, err := s.credentials.NewCourseKey(r.Context(), id.user.ID, req.CourseID, req.CourseMembershipKind, req.MaxUses, req.Duration)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillCourseKey(r.Context(), key)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, courseKeyNewResponse{CourseKey: view, Secret: secret})
}

type courseKeyCancelRequest struct {
	CourseKeyID int64 `json:"courseKeyId"`
}

func (s *Server) handleCourseKeyCancel(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req courseKeyCancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	cancel, err := s.credentials.CancelCourseKey(r.Context(), id.user.ID, req.CourseKeyID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillCourseKey(r.Context(), cancel)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type courseMembershipNewRequest struct {
	UserID               int64                      `json:"userId"`
	CourseID             int64                      `json:"courseId"`
	CourseMembershipKind model.CourseMembershipKind `json:"courseMembershipKind"`
}

func (s *Server) handleCourseMembershipNew(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req courseMembershipNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	membership, err := s.workflows.NewCourseMembership(r.Context(), id.user.ID, req.UserID, req.CourseID, req.CourseMembershipKind)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillCourseMembership(r.Context(), membership)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type courseMembershipNewKeyRequest struct {
	CourseKeySecret string `json:"courseKeySecret"`
}

func (s *Server) handleCourseMembershipNewKey(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req courseMembershipNewKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	membership, err := s.workflows.NewCourseMembershipKey(r.Context(), id.user.ID, req.CourseKeySecret)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillCourseMembership(r.Context(), membership)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type sessionNewRequest struct {
	CourseID        int64   `json:"courseId"`
	LocationID      int64   `json:"locationId,omitempty"`
	Name            string  `json:"name"`
	StartTime       int64   `json:"startTime"`
	Duration        int64   `json:"duration"`
	Hidden          bool    `json:"hidden"`
	AttendeeUserIDs []int64 `json:"attendeeUserIds,omitempty"`
}

type sessionNewResponse struct {
	Session      sessionView       `json:"session"`
	Committments []committmentView `json:"committments"`
}

func (s *Server) handleSessionNew(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req sessionNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	session, committments, err := s.workflows.NewSession(r.Context(), id.user.ID, req.CourseID, req.LocationID,
		req.Name, req.StartTime, req.Duration, req.Hidden, req.AttendeeUserIDs)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	sessionFilled, err := s.fillSession(r.Context(), session)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	views := make([]committmentView, 0, len(committments))
	for _, c := range committments {
		view, err := s.fillCommittment(r.Context(), c)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusCreated, sessionNewResponse{Session: sessionFilled, Committments: views})
}

type sessionRequestNewRequest struct {
	CourseID  int64  `json:"courseId"`
	StartTime int64  `json:"startTime"`
	Duration  int64  `json:"duration"`
	Message   string `json:"message"`
}

func (s *Server) handleSessionRequestNew(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req sessionRequestNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	request, err := s.workflows.NewSessionRequest(r.Context(), id.user.ID, req.CourseID, req.StartTime, req.Duration, req.Message)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillSessionRequest(r.Context(), request)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type sessionRequestResponseNewRequest struct {
	SessionRequestID int64  `json:"sessionRequestId"`
	Accepted         bool   `json:"accepted"`
	Message          string `json:"message"`
	SessionID        int64  `json:"sessionId,omitempty"`
}

func (s *Server) handleSessionRequestResponseNew(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req sessionRequestResponseNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	response, err := s.workflows.NewSessionRequestResponse(r.Context(), id.user.ID, req.SessionRequestID, req.Accepted, req.Message, req.SessionID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillSessionRequestResponse(r.Context(), response)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type committmentNewRequest struct {
	AttendeeUserID int64 `json:"attendeeUserId"`
	SessionID      int64 `json:"sessionId"`
	Cancellable    bool  `json:"cancellable"`
}

func (s *Server) handleCommittmentNew(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req committmentNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	committment, err := s.workflows.NewCommittment(r.Context(), id.user.ID, req.AttendeeUserID, req.SessionID, req.Cancellable)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillCommittment(r.Context(), committment)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type committmentResponseNewRequest struct {
	CommittmentID           int64                         `json:"committmentId"`
	CommittmentResponseKind model.CommittmentResponseKind `json:"committmentResponseKind"`
}

func (s *Server) handleCommittmentResponseNew(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req committmentResponseNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	response, err := s.workflows.NewCommittmentResponse(r.Context(), id.user.ID, req.CommittmentID, req.CommittmentResponseKind)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := s.fillCommittmentResponse(r.Context(), response)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

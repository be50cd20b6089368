package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"hourglass/internal/config"
	"hourglass/internal/credential"
	"hourglass/internal/crypto"
	"hourglass/internal/ledger/memory"
	"hourglass/internal/mail"
	"hourglass/internal/model"
	"hourglass/internal/workflow"
)

func newTestServer(t *testing.T, cfg config.Config) (*httptest.Server, *memory.Store) {
	t.Helper()
	if cfg.AuthRateLimit == 0 {
		cfg.AuthRateLimit = 1000
		cfg.AuthRateWindow = time.Minute
	}
	store := memory.New()
	log := zap.NewNop()
	credentials := credential.NewEngine(store, mail.NewLogMailer(log), mail.NewStaticDenylist(nil), log)
	workflows := workflow.NewEngine(store, log)
	srv := NewServer(cfg, store, credentials, workflows, log)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

// seedUser appends a user and a current password directly, skipping the
// verification challenge flow that the credential tests already cover.
func seedUser(t *testing.T, store *memory.Store, name, email, password string) model.User {
	t.Helper()
	ctx := t.Context()
	user := model.User{
		CreationTime: model.NowMillis(),
		Name:         name,
		Email:        email,
	}
	if err := store.AppendUser(ctx, &user); err != nil {
		t.Fatalf("append user: %v", err)
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	record := model.Password{
		CreationTime:  model.NowMillis(),
		CreatorUserID: user.ID,
		UserID:        user.ID,
		Kind:          model.PasswordChange,
		PasswordHash:  hash,
	}
	if err := store.AppendPassword(ctx, &record); err != nil {
		t.Fatalf("append password: %v", err)
	}
	return user
}

func postJSON(t *testing.T, ts *httptest.Server, path, token string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

// issueKey signs the seeded user in over the wire and returns the secret.
func issueKey(t *testing.T, ts *httptest.Server, email, password string) string {
	t.Helper()
	resp := postJSON(t, ts, "/api_key/new", "", map[string]interface{}{
		"email":    email,
		"password": password,
		"duration": int64(0),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("issue key: status %d", resp.StatusCode)
	}
	var out struct {
		Secret string `json:"secret"`
	}
	decodeBody(t, resp, &out)
	if out.Secret == "" {
		t.Fatalf("issue key: empty secret")
	}
	return out.Secret
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})
	resp := getJSON(t, ts, "/health", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestApiKeyIssueAndAuthenticate(t *testing.T) {
	ts, store := newTestServer(t, config.Config{})
	user := seedUser(t, store, "alice", "alice@example.com", "hunter2hunter2")
	token := issueKey(t, ts, "alice@example.com", "hunter2hunter2")

	resp := getJSON(t, ts, "/user", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list users: status %d, want 200", resp.StatusCode)
	}
	var users []model.User
	decodeBody(t, resp, &users)
	if len(users) != 1 || users[0].ID != user.ID {
		t.Fatalf("list users = %+v, want seeded user", users)
	}

	resp = getJSON(t, ts, "/user", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list: status %d, want 401", resp.StatusCode)
	}
}

func TestApiKeyWrongPassword(t *testing.T) {
	ts, store := newTestServer(t, config.Config{})
	seedUser(t, store, "alice", "alice@example.com", "hunter2hunter2")

	resp := postJSON(t, ts, "/api_key/new", "", map[string]interface{}{
		"email":    "alice@example.com",
		"password": "not-the-password",
		"duration": int64(0),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestApiKeyCancelOverWire(t *testing.T) {
	ts, store := newTestServer(t, config.Config{})
	seedUser(t, store, "alice", "alice@example.com", "hunter2hunter2")
	token := issueKey(t, ts, "alice@example.com", "hunter2hunter2")

	resp := postJSON(t, ts, "/api_key/cancel", token, map[string]interface{}{
		"apiKeySecret": token,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("cancel: status %d, want 201", resp.StatusCode)
	}

	resp = getJSON(t, ts, "/user", token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("cancelled key accepted: status %d, want 401", resp.StatusCode)
	}
}

func TestSchoolFlow(t *testing.T) {
	ts, store := newTestServer(t, config.Config{})
	founder := seedUser(t, store, "alice", "alice@example.com", "hunter2hunter2")
	token := issueKey(t, ts, "alice@example.com", "hunter2hunter2")

	resp := postJSON(t, ts, "/school/new", token, map[string]interface{}{
		"name":        "Ecole Centrale",
		"description": "test school",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("school/new: status %d, want 201", resp.StatusCode)
	}
	var school model.School
	decodeBody(t, resp, &school)

	resp = getJSON(t, ts, fmt.Sprintf("/adminship?schoolId=%d&onlyRecent=true", school.ID), token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list adminships: status %d, want 200", resp.StatusCode)
	}
	var adminships []model.Adminship
	decodeBody(t, resp, &adminships)
	if len(adminships) != 1 || adminships[0].UserID != founder.ID || adminships[0].Kind != model.AdminshipAdmin {
		t.Fatalf("adminships = %+v, want founder admin", adminships)
	}

	// The sole admin cannot remove themselves.
	resp = postJSON(t, ts, "/adminship/new", token, map[string]interface{}{
		"userId":        founder.ID,
		"schoolId":      school.ID,
		"adminshipKind": "CANCEL",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("orphaning cancel: status %d, want 409", resp.StatusCode)
	}
	var failure struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &failure)
	if failure.Error != "would_orphan" {
		t.Fatalf("error code = %q, want would_orphan", failure.Error)
	}
}

func TestMutationResponsesEmbedRelations(t *testing.T) {
	ts, store := newTestServer(t, config.Config{})
	founder := seedUser(t, store, "alice", "alice@example.com", "hunter2hunter2")
	token := issueKey(t, ts, "alice@example.com", "hunter2hunter2")

	resp := postJSON(t, ts, "/school/new", token, map[string]interface{}{
		"name": "Ecole Centrale", "description": "",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("school/new: status %d, want 201", resp.StatusCode)
	}
	var school struct {
		model.School
		Creator model.User `json:"creator"`
	}
	decodeBody(t, resp, &school)
	if school.Creator.ID != founder.ID || school.Creator.Name != "alice" {
		t.Fatalf("school creator = %+v, want the founding user embedded", school.Creator)
	}

	resp = postJSON(t, ts, "/course/new", token, map[string]interface{}{
		"schoolId": school.ID, "name": "Maths", "description": "",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("course/new: status %d, want 201", resp.StatusCode)
	}
	var course struct {
		model.Course
		School model.School `json:"school"`
	}
	decodeBody(t, resp, &course)
	if course.School.ID != school.ID || course.School.Name != "Ecole Centrale" {
		t.Fatalf("course school = %+v, want the parent school embedded", course.School)
	}
}

func TestSchoolKeyFlowOverWire(t *testing.T) {
	ts, store := newTestServer(t, config.Config{})
	seedUser(t, store, "alice", "alice@example.com", "hunter2hunter2")
	joiner := seedUser(t, store, "bob", "bob@example.com", "hunter2hunter2")
	adminToken := issueKey(t, ts, "alice@example.com", "hunter2hunter2")
	joinerToken := issueKey(t, ts, "bob@example.com", "hunter2hunter2")

	resp := postJSON(t, ts, "/school/new", adminToken, map[string]interface{}{
		"name": "Ecole Centrale", "description": "",
	})
	var school model.School
	decodeBody(t, resp, &school)

	resp = postJSON(t, ts, "/school_key/new", joinerToken, map[string]interface{}{
		"schoolId": school.ID, "maxUses": int64(1), "duration": int64(0),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin mint: status %d, want 403", resp.StatusCode)
	}

	resp = postJSON(t, ts, "/school_key/new", adminToken, map[string]interface{}{
		"schoolId": school.ID, "maxUses": int64(1), "duration": int64(0),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("school_key/new: status %d, want 201", resp.StatusCode)
	}
	var minted struct {
		SchoolKey struct {
			model.SchoolKey
			School model.School `json:"school"`
		} `json:"schoolKey"`
		Secret string `json:"secret"`
	}
	decodeBody(t, resp, &minted)
	if minted.Secret == "" || minted.SchoolKey.School.ID != school.ID {
		t.Fatalf("minted key = %+v, want secret and embedded school", minted)
	}

	resp = postJSON(t, ts, "/adminship/new_key", joinerToken, map[string]interface{}{
		"schoolKeySecret": minted.Secret,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("adminship/new_key: status %d, want 201", resp.StatusCode)
	}
	var adminship struct {
		model.Adminship
		User model.User `json:"user"`
	}
	decodeBody(t, resp, &adminship)
	if adminship.User.ID != joiner.ID || adminship.SchoolKeyID != minted.SchoolKey.ID {
		t.Fatalf("adminship = %+v, want joiner granted via the key", adminship)
	}

	// The redeemer now passes the admin gate on the key list.
	resp = getJSON(t, ts, fmt.Sprintf("/school_key?schoolId=%d", school.ID), joinerToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list school keys: status %d, want 200", resp.StatusCode)
	}

	// MaxUses 1 is spent.
	resp = postJSON(t, ts, "/adminship/new_key", joinerToken, map[string]interface{}{
		"schoolKeySecret": minted.Secret,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("exhausted key: status %d, want 409", resp.StatusCode)
	}
}

func TestCourseKeyListRequiresStanding(t *testing.T) {
	ts, store := newTestServer(t, config.Config{})
	seedUser(t, store, "alice", "alice@example.com", "hunter2hunter2")
	seedUser(t, store, "bob", "bob@example.com", "hunter2hunter2")
	adminToken := issueKey(t, ts, "alice@example.com", "hunter2hunter2")
	bobToken := issueKey(t, ts, "bob@example.com", "hunter2hunter2")

	resp := postJSON(t, ts, "/school/new", adminToken, map[string]interface{}{
		"name": "Ecole Centrale", "description": "",
	})
	var school model.School
	decodeBody(t, resp, &school)
	resp = postJSON(t, ts, "/course/new", adminToken, map[string]interface{}{
		"schoolId": school.ID, "name": "Maths", "description": "",
	})
	var course model.Course
	decodeBody(t, resp, &course)

	resp = getJSON(t, ts, "/course_key", adminToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing courseId: status %d, want 400", resp.StatusCode)
	}

	resp = getJSON(t, ts, fmt.Sprintf("/course_key?courseId=%d", course.ID), bobToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider list: status %d, want 403", resp.StatusCode)
	}

	resp = getJSON(t, ts, fmt.Sprintf("/course_key?courseId=%d", course.ID), adminToken)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin list: status %d, want 200", resp.StatusCode)
	}
}

func TestMalformedQueryParam(t *testing.T) {
	ts, store := newTestServer(t, config.Config{})
	seedUser(t, store, "alice", "alice@example.com", "hunter2hunter2")
	token := issueKey(t, ts, "alice@example.com", "hunter2hunter2")

	resp := getJSON(t, ts, "/user?minCreationTime=abc", token)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var failure struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &failure)
	if failure.Error != "invalid_argument" {
		t.Fatalf("error code = %q, want invalid_argument", failure.Error)
	}
}

func TestUnknownBodyFieldRejected(t *testing.T) {
	ts, store := newTestServer(t, config.Config{})
	seedUser(t, store, "alice", "alice@example.com", "hunter2hunter2")
	token := issueKey(t, ts, "alice@example.com", "hunter2hunter2")

	resp := postJSON(t, ts, "/school/new", token, map[string]interface{}{
		"name": "Ecole", "description": "", "bogus": true,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestIssuanceRateLimit(t *testing.T) {
	ts, store := newTestServer(t, config.Config{
		AuthRateLimit:  2,
		AuthRateWindow: time.Minute,
	})
	seedUser(t, store, "alice", "alice@example.com", "hunter2hunter2")

	for i := 0; i < 2; i++ {
		resp := postJSON(t, ts, "/api_key/new", "", map[string]interface{}{
			"email": "alice@example.com", "password": "hunter2hunter2", "duration": int64(0),
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("request %d: status %d, want 201", i, resp.StatusCode)
		}
	}
	resp := postJSON(t, ts, "/api_key/new", "", map[string]interface{}{
		"email": "alice@example.com", "password": "hunter2hunter2", "duration": int64(0),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
}

func TestSessionRequestFlowOverWire(t *testing.T) {
	ts, store := newTestServer(t, config.Config{})
	seedUser(t, store, "alice", "alice@example.com", "hunter2hunter2")
	student := seedUser(t, store, "bob", "bob@example.com", "hunter2hunter2")
	adminToken := issueKey(t, ts, "alice@example.com", "hunter2hunter2")
	studentToken := issueKey(t, ts, "bob@example.com", "hunter2hunter2")

	resp := postJSON(t, ts, "/school/new", adminToken, map[string]interface{}{
		"name": "Ecole Centrale", "description": "",
	})
	var school model.School
	decodeBody(t, resp, &school)
	resp = postJSON(t, ts, "/course/new", adminToken, map[string]interface{}{
		"schoolId": school.ID, "name": "Maths", "description": "",
	})
	var course model.Course
	decodeBody(t, resp, &course)
	resp = postJSON(t, ts, "/course_membership/new", adminToken, map[string]interface{}{
		"userId": student.ID, "courseId": course.ID, "courseMembershipKind": "STUDENT",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enroll student: status %d, want 201", resp.StatusCode)
	}

	start := model.NowMillis() + int64(time.Hour/time.Millisecond)
	resp = postJSON(t, ts, "/session_request/new", studentToken, map[string]interface{}{
		"courseId": course.ID, "startTime": start, "duration": int64(3600000), "message": "revision help",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("session_request/new: status %d, want 201", resp.StatusCode)
	}
	var request model.SessionRequest
	decodeBody(t, resp, &request)

	resp = postJSON(t, ts, "/session/new", adminToken, map[string]interface{}{
		"courseId": course.ID, "name": "revision", "startTime": start, "duration": int64(3600000),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("session/new: status %d, want 201", resp.StatusCode)
	}
	var created struct {
		Session model.Session `json:"session"`
	}
	decodeBody(t, resp, &created)

	resp = postJSON(t, ts, "/session_request_response/new", adminToken, map[string]interface{}{
		"sessionRequestId": request.ID, "accepted": true, "message": "see you there",
		"sessionId": created.Session.ID,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("accept: status %d, want 201", resp.StatusCode)
	}

	// At most one response per request.
	resp = postJSON(t, ts, "/session_request_response/new", adminToken, map[string]interface{}{
		"sessionRequestId": request.ID, "accepted": false, "message": "",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second response: status %d, want 409", resp.StatusCode)
	}

	resp = getJSON(t, ts, fmt.Sprintf("/committment?attendeeUserId=%d&responded=false", student.ID), adminToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list committments: status %d, want 200", resp.StatusCode)
	}
	var committments []model.Committment
	decodeBody(t, resp, &committments)
	if len(committments) != 1 {
		t.Fatalf("committments = %+v, want exactly one open commitment", committments)
	}
}

package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PetruchoEbovski/ask-answer-hub/internal/auth"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/store"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/util"
)

func newTestHTTPServer(fs *fakeStore) *HTTPServer {
	return NewHTTPServer(newTestService(fs), "*")
}

func issueTestToken(t *testing.T, userID, name string, roles ...string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:   userID,
		Name:  name,
		Roles: roles,
		JTI:   util.NewID("jti"),
		Exp:   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, srv *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRequestWithoutTokenIsUnauthorized(t *testing.T) {
	srv := newTestHTTPServer(&fakeStore{})
	rec := doRequest(t, srv, http.MethodGet, "/api/questions", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}
}

func TestRequestWithTamperedTokenIsUnauthorized(t *testing.T) {
	srv := newTestHTTPServer(&fakeStore{})
	token := issueTestToken(t, "usr-1", "User", "employee")
	rec := doRequest(t, srv, http.MethodGet, "/api/questions", token+"x", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}
}

func TestNegativeOffsetRejected(t *testing.T) {
	srv := newTestHTTPServer(&fakeStore{
		listQuestionsFn: func(ctx context.Context, filter store.QuestionFilter) ([]store.Question, error) {
			t.Fatal("store must not be queried with a negative offset")
			return nil, nil
		},
	})
	token := issueTestToken(t, "usr-1", "User", "employee")

	rec := doRequest(t, srv, http.MethodGet, "/api/questions?offset=-5", token, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got %d, want 422", rec.Code)
	}
}

func TestEmployeeCannotCreateDepartment(t *testing.T) {
	srv := newTestHTTPServer(&fakeStore{})
	token := issueTestToken(t, "usr-1", "User", "employee")
	rec := doRequest(t, srv, http.MethodPost, "/api/departments", token, `{"name":"IT"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminCreatesDepartment(t *testing.T) {
	fs := &fakeStore{
		getDepartmentFn: func(ctx context.Context, id string) (store.Department, error) {
			return store.Department{ID: id, Name: "IT"}, nil
		},
	}
	srv := newTestHTTPServer(fs)
	token := issueTestToken(t, "usr-1", "Admin", "employee", "admin")
	rec := doRequest(t, srv, http.MethodPost, "/api/departments", token, `{"name":"IT"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("got %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestEmployeeCannotChangeQuestionStatus(t *testing.T) {
	srv := newTestHTTPServer(&fakeStore{})
	token := issueTestToken(t, "usr-1", "User", "employee")
	rec := doRequest(t, srv, http.MethodPut, "/api/questions/qst-1/status", token, `{"status":"closed"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403: %s", rec.Code, rec.Body.String())
	}
}

func TestEmployeeCannotListUsers(t *testing.T) {
	srv := newTestHTTPServer(&fakeStore{})
	token := issueTestToken(t, "usr-1", "User", "employee")
	rec := doRequest(t, srv, http.MethodGet, "/api/admin/users", token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403: %s", rec.Code, rec.Body.String())
	}
}

func TestEmployeeAnswerIsForbidden(t *testing.T) {
	fs := &fakeStore{
		getQuestionFn: func(ctx context.Context, id string) (store.Question, error) {
			return store.Question{ID: id, Title: "Q", Content: "C", Status: "open"}, nil
		},
	}
	srv := newTestHTTPServer(fs)
	token := issueTestToken(t, "usr-1", "User", "employee")
	rec := doRequest(t, srv, http.MethodPost, "/api/questions/qst-1/answers", token, `{"content":"my two cents"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403: %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	srv := newTestHTTPServer(&fakeStore{})
	token := issueTestToken(t, "usr-1", "User", "employee")
	rec := doRequest(t, srv, http.MethodGet, "/api/nope", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rec.Code)
	}
}

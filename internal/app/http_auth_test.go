package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/PetruchoEbovski/ask-answer-hub/internal/authpw"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/store"
)

func TestSignUpIssuesTokenPair(t *testing.T) {
	srv := newTestHTTPServer(&fakeStore{})
	rec := doRequest(t, srv, http.MethodPost, "/api/auth/signup", "",
		`{"email":"new@example.test","password":"long enough password","displayName":"New Hire"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["token"] == "" || body["refreshToken"] == "" {
		t.Fatalf("token pair missing: %v", body)
	}
	roles, ok := body["roles"].([]any)
	if !ok || len(roles) != 1 || roles[0] != "employee" {
		t.Fatalf("new account should hold only the employee role, got %v", body["roles"])
	}
}

func TestSignInWrongPassword(t *testing.T) {
	hash, err := authpw.HashPassword("the right password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	fs := &fakeStore{
		getUserByEmailFn: func(ctx context.Context, email string) (store.User, error) {
			return store.User{ID: "usr-1", DisplayName: "U", Email: email, PasswordHash: hash, Roles: []string{"employee"}}, nil
		},
	}
	srv := newTestHTTPServer(fs)

	rec := doRequest(t, srv, http.MethodPost, "/api/auth/signin", "",
		`{"email":"u@example.test","password":"the wrong password"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401: %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	srv := newTestHTTPServer(&fakeStore{})
	rec := doRequest(t, srv, http.MethodPost, "/api/auth/refresh", "", `{"refreshToken":"rft_bogus"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401: %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	saved := map[string]string{}
	fs := &fakeStore{
		saveRefreshSessionFn: func(ctx context.Context, s store.RefreshSession) error {
			saved[s.TokenHash] = s.UserID
			return nil
		},
		getRefreshSessionFn: func(ctx context.Context, tokenHash string) (store.RefreshSession, error) {
			userID, ok := saved[tokenHash]
			if !ok {
				return store.RefreshSession{}, sql.ErrNoRows
			}
			return store.RefreshSession{TokenHash: tokenHash, UserID: userID}, nil
		},
		deleteRefreshSessionFn: func(ctx context.Context, tokenHash string) error {
			delete(saved, tokenHash)
			return nil
		},
		getUserByIDFn: func(ctx context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: "U", Email: "u@example.test", Roles: []string{"employee"}}, nil
		},
	}
	srv := newTestHTTPServer(fs)

	signIn, err := srv.service.issueSession(context.Background(), store.User{ID: "usr-1", DisplayName: "U", Roles: []string{"employee"}})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	rec := doRequest(t, srv, http.MethodPost, "/api/auth/refresh", "",
		`{"refreshToken":"`+signIn.RefreshToken+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	// The old token is single use.
	rec = doRequest(t, srv, http.MethodPost, "/api/auth/refresh", "",
		`{"refreshToken":"`+signIn.RefreshToken+`"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token accepted: %d", rec.Code)
	}
}

func TestSessionEndpointWithoutToken(t *testing.T) {
	srv := newTestHTTPServer(&fakeStore{})
	rec := doRequest(t, srv, http.MethodGet, "/api/session", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["authenticated"] != false {
		t.Fatalf("expected unauthenticated, got %v", body)
	}
}

func TestSessionEndpointWithToken(t *testing.T) {
	srv := newTestHTTPServer(&fakeStore{})
	token := issueTestToken(t, "usr-1", "User", "employee", "responder")
	rec := doRequest(t, srv, http.MethodGet, "/api/session", token, "")

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["authenticated"] != true || body["userId"] != "usr-1" {
		t.Fatalf("unexpected session payload: %v", body)
	}
}

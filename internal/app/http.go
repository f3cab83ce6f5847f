package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PetruchoEbovski/ask-answer-hub/internal/auth"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/search"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes, no session required
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleSignUp(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleSignIn(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		authSession, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, authSessionPayload(authSession))
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
			"roles":         rolesToStrings(session),
		})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	parts := splitPath(r.URL.Path)

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r, session)
		return
	}

	// Questions
	if r.URL.Path == "/api/questions" {
		switch r.Method {
		case http.MethodGet:
			filter := store.QuestionFilter{
				DepartmentID: strings.TrimSpace(r.URL.Query().Get("departmentId")),
				Status:       strings.TrimSpace(r.URL.Query().Get("status")),
			}
			var ok bool
			if filter.Limit, ok = queryInt(w, r, "limit", 0); !ok {
				return
			}
			if filter.Offset, ok = queryInt(w, r, "offset", 0); !ok {
				return
			}
			payload, err := s.service.ListQuestions(r.Context(), session, filter)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Title        string `json:"title"`
				Content      string `json:"content"`
				DepartmentID string `json:"departmentId"`
				Anonymous    bool   `json:"anonymous"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateQuestion(r.Context(), session, CreateQuestionInput{
				Title:        body.Title,
				Content:      body.Content,
				DepartmentID: body.DepartmentID,
				Anonymous:    body.Anonymous,
			})
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "questions" {
		questionID := parts[2]

		if len(parts) == 3 {
			switch r.Method {
			case http.MethodGet:
				payload, err := s.service.GetQuestion(r.Context(), session, questionID)
				s.respond(w, payload, err)
			case http.MethodDelete:
				s.respondNoBody(w, s.service.DeleteQuestion(r.Context(), session, questionID))
			default:
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			}
			return
		}

		if len(parts) == 4 {
			switch parts[3] {
			case "status":
				if r.Method != http.MethodPut {
					writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
					return
				}
				var body struct {
					Status string `json:"status"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				payload, err := s.service.UpdateQuestionStatus(r.Context(), session, questionID, body.Status)
				s.respond(w, payload, err)
				return
			case "notify":
				if r.Method != http.MethodPost {
					writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
					return
				}
				payload, err := s.service.RedispatchNotifications(r.Context(), session, questionID)
				s.respond(w, payload, err)
				return
			case "answers":
				if r.Method != http.MethodPost {
					writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
					return
				}
				var body struct {
					Content string `json:"content"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				payload, err := s.service.CreateAnswer(r.Context(), session, questionID, body.Content)
				if err != nil {
					status, code, message, details := mapError(err)
					writeError(w, status, code, message, details)
					return
				}
				writeJSON(w, http.StatusCreated, payload)
				return
			case "comments":
				if r.Method != http.MethodPost {
					writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
					return
				}
				var body struct {
					Content   string `json:"content"`
					AnswerID  string `json:"answerId"`
					Anonymous bool   `json:"anonymous"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				payload, err := s.service.CreateComment(r.Context(), session, questionID, CreateCommentInput{
					Content:   body.Content,
					AnswerID:  body.AnswerID,
					Anonymous: body.Anonymous,
				})
				if err != nil {
					status, code, message, details := mapError(err)
					writeError(w, status, code, message, details)
					return
				}
				writeJSON(w, http.StatusCreated, payload)
				return
			case "vote":
				switch r.Method {
				case http.MethodPut:
					var body struct {
						Type string `json:"type"`
					}
					if err := decodeBody(r, &body); err != nil {
						writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
						return
					}
					payload, err := s.service.CastVote(r.Context(), session, questionID, body.Type)
					s.respond(w, payload, err)
				case http.MethodDelete:
					payload, err := s.service.RemoveVote(r.Context(), session, questionID)
					s.respond(w, payload, err)
				default:
					writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				}
				return
			}
		}
	}

	// Answers
	if len(parts) == 3 && parts[0] == "api" && parts[1] == "answers" {
		answerID := parts[2]
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateAnswer(r.Context(), session, answerID, body.Content)
			s.respond(w, payload, err)
		case http.MethodDelete:
			s.respondNoBody(w, s.service.DeleteAnswer(r.Context(), session, answerID))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// Comments
	if len(parts) == 3 && parts[0] == "api" && parts[1] == "comments" && r.Method == http.MethodDelete {
		s.respondNoBody(w, s.service.DeleteComment(r.Context(), session, parts[2]))
		return
	}

	// Profiles
	if len(parts) == 4 && parts[0] == "api" && parts[1] == "users" && parts[3] == "profile" && r.Method == http.MethodGet {
		payload, err := s.service.GetPublicProfile(r.Context(), parts[2])
		s.respond(w, payload, err)
		return
	}
	if r.URL.Path == "/api/me" {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetMyProfile(r.Context(), session)
			s.respond(w, payload, err)
		case http.MethodPut:
			var body struct {
				DisplayName  string `json:"displayName"`
				DepartmentID string `json:"departmentId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateMyProfile(r.Context(), session, body.DisplayName, body.DepartmentID)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/me/avatar" {
		defer r.Body.Close()
		payload, err := s.service.UploadAvatar(r.Context(), session, r.Header.Get("Content-Type"), r.Body, r.ContentLength)
		s.respond(w, payload, err)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/departments" {
		payload, err := s.service.ListDepartments(r.Context(), session)
		s.respond(w, payload, err)
		return
	}

	if s.handleAdminRoutes(w, r, session, parts) {
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	authSession, err := s.service.SignUp(r.Context(), SignUpInput{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, authSessionPayload(authSession))
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	authSession, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, authSessionPayload(authSession))
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := search.Query{
		Text:               strings.TrimSpace(r.URL.Query().Get("q")),
		FilterDepartmentID: strings.TrimSpace(r.URL.Query().Get("departmentId")),
		FilterStatus:       strings.TrimSpace(r.URL.Query().Get("status")),
	}
	var ok bool
	if query.Limit, ok = queryInt(w, r, "limit", 20); !ok {
		return
	}
	if query.Offset, ok = queryInt(w, r, "offset", 0); !ok {
		return
	}
	response, err := s.service.SearchQuestions(r.Context(), session, query)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) respond(w http.ResponseWriter, payload map[string]any, err error) {
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) respondNoBody(w http.ResponseWriter, err error) {
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func authSessionPayload(a AuthSession) map[string]any {
	return map[string]any{
		"token":        a.Token,
		"refreshToken": a.RefreshToken,
		"userId":       a.UserID,
		"userName":     a.UserName,
		"roles":        a.Roles,
	}
}

func rolesToStrings(session Session) []string {
	out := make([]string, 0, len(session.Roles))
	for _, r := range session.Roles {
		out = append(out, string(r))
	}
	return out
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be a non-negative integer", nil)
		return 0, false
	}
	return parsed, true
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

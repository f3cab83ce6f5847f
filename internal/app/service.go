package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PetruchoEbovski/ask-answer-hub/internal/auth"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/authpw"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/config"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/notify"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/rbac"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/search"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/session"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/store"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/util"
)

const (
	maxTitleLength    = 500
	maxContentLength  = 10000
	maxCommentLength  = 2000
	maxDisplayNameLen = 120
)

var allowedQuestionStatuses = map[string]bool{
	"open":     true,
	"answered": true,
	"closed":   true,
}

var allowedVoteTypes = map[string]bool{
	"up":   true,
	"down": true,
}

var allowedRoles = map[string]bool{
	"employee":  true,
	"responder": true,
	"admin":     true,
}

// Session is the authenticated caller identity carried through a request.
type Session struct {
	UserID   string
	UserName string
	Roles    []rbac.Role
}

// AuthSession is the token pair handed out on sign-in and refresh.
type AuthSession struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Roles        []string
}

type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u store.User) error
	GetUserByID(ctx context.Context, id string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	GetPublicProfile(ctx context.Context, id string) (store.PublicProfile, error)
	UpdateUserProfile(ctx context.Context, id, displayName, avatarURL, departmentID string) (bool, error)
	DeleteUser(ctx context.Context, id string) (bool, error)
	GrantRole(ctx context.Context, userID, role string) error
	RevokeRole(ctx context.Context, userID, role string) (bool, error)

	CreateDepartment(ctx context.Context, d store.Department) error
	GetDepartment(ctx context.Context, id string) (store.Department, error)
	ListDepartments(ctx context.Context) ([]store.Department, error)
	UpdateDepartment(ctx context.Context, id, name, description string) (bool, error)
	DeleteDepartment(ctx context.Context, id string) (bool, error)
	AddDepartmentAdmin(ctx context.Context, departmentID, userID string) error
	RemoveDepartmentAdmin(ctx context.Context, departmentID, userID string) (bool, error)
	ListDepartmentAdmins(ctx context.Context, departmentID string) ([]store.User, error)

	CreateQuestion(ctx context.Context, q store.Question) error
	GetQuestion(ctx context.Context, id string) (store.Question, error)
	ListQuestions(ctx context.Context, f store.QuestionFilter) ([]store.Question, error)
	UpdateQuestionStatus(ctx context.Context, id, status string) (bool, error)
	DeleteQuestion(ctx context.Context, id string) (bool, error)

	CreateAnswer(ctx context.Context, a store.Answer) error
	GetAnswer(ctx context.Context, id string) (store.Answer, error)
	ListAnswers(ctx context.Context, questionID string) ([]store.Answer, error)
	UpdateAnswer(ctx context.Context, id, content string) (bool, error)
	DeleteAnswer(ctx context.Context, id string) (bool, error)

	CreateComment(ctx context.Context, c store.Comment) error
	ListComments(ctx context.Context, questionID string) ([]store.Comment, error)
	DeleteComment(ctx context.Context, id string) (bool, error)

	CastVote(ctx context.Context, questionID, userID, voteType string) (store.VoteTally, error)
	DeleteVote(ctx context.Context, questionID, userID string) (store.VoteTally, error)
	GetVote(ctx context.Context, questionID, userID string) (store.Vote, error)

	SaveRefreshSession(ctx context.Context, s store.RefreshSession) error
	GetRefreshSession(ctx context.Context, tokenHash string) (store.RefreshSession, error)
	DeleteRefreshSession(ctx context.Context, tokenHash string) error
	DeleteUserSessions(ctx context.Context, userID string) error
}

type refreshSessions interface {
	Save(ctx context.Context, tokenHash, userID string, ttl time.Duration) error
	Get(ctx context.Context, tokenHash string) (string, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

type questionNotifier interface {
	Dispatch(ctx context.Context, questionID string) (notify.Summary, error)
	DispatchAsAuthor(ctx context.Context, callerID, questionID string) (notify.Summary, error)
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexQuestion(q search.QuestionRecord)
	DeleteQuestion(id string)
}

type mailSender interface {
	SendAnswerNotification(to, recipientName, title, questionID string, official bool) error
}

type avatarStore interface {
	Upload(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error)
	Remove(ctx context.Context, objectPath string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshSessions
	notifier questionNotifier
	searcher searchIndex
	mailer   mailSender
	avatars  avatarStore
}

// New wires the service with refresh sessions kept in Postgres.
func New(cfg config.Config, dataStore *store.Postgres, notifier *notify.Dispatcher, searcher *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: pgSessions{store: dataStore},
		notifier: notifier,
		searcher: searcher,
	}
}

// NewWithSessionStore wires the service with a Redis refresh session store.
func NewWithSessionStore(cfg config.Config, dataStore *store.Postgres, sessions *session.RedisStore, notifier *notify.Dispatcher, searcher *search.Service) *Service {
	svc := New(cfg, dataStore, notifier, searcher)
	svc.sessions = sessions
	return svc
}

// SetMailer attaches the outbound mail service used for answer notifications.
func (s *Service) SetMailer(mailer mailSender) {
	s.mailer = mailer
}

// SetAvatarStore attaches the object storage used for profile avatars.
func (s *Service) SetAvatarStore(avatars avatarStore) {
	s.avatars = avatars
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// pgSessions keeps refresh sessions in Postgres when Redis is not
// configured.
type pgSessions struct {
	store dataStore
}

func (p pgSessions) Save(ctx context.Context, tokenHash, userID string, ttl time.Duration) error {
	return p.store.SaveRefreshSession(ctx, store.RefreshSession{
		TokenHash: tokenHash,
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl),
	})
}

func (p pgSessions) Get(ctx context.Context, tokenHash string) (string, error) {
	rec, err := p.store.GetRefreshSession(ctx, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", session.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return rec.UserID, nil
}

func (p pgSessions) Delete(ctx context.Context, tokenHash string) error {
	return p.store.DeleteRefreshSession(ctx, tokenHash)
}

func (p pgSessions) DeleteAllForUser(ctx context.Context, userID string) error {
	return p.store.DeleteUserSessions(ctx, userID)
}

// --- authentication ---

type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
}

func (s *Service) SignUp(ctx context.Context, input SignUpInput) (AuthSession, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	displayName := strings.TrimSpace(input.DisplayName)
	if email == "" || !strings.Contains(email, "@") {
		return AuthSession{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "A valid email is required", nil)
	}
	if displayName == "" || utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		return AuthSession{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Display name is required", nil)
	}

	hash, err := authpw.HashPassword(input.Password)
	if err != nil {
		return AuthSession{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return AuthSession{}, domainError(http.StatusConflict, "CONFLICT", "Email already registered", nil)
		}
		return AuthSession{}, err
	}
	user.Roles = []string{"employee"}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (AuthSession, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, sql.ErrNoRows) {
		return AuthSession{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials", nil)
	}
	if err != nil {
		return AuthSession{}, err
	}
	if err := authpw.CheckPassword(user.PasswordHash, password); err != nil {
		return AuthSession{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials", nil)
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented token is invalidated and
// a fresh pair is issued, so a leaked token can be used at most once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthSession, error) {
	hash := auth.HashToken(refreshToken)
	userID, err := s.sessions.Get(ctx, hash)
	if errors.Is(err, session.ErrNotFound) {
		return AuthSession{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
	}
	if err != nil {
		return AuthSession{}, err
	}
	if err := s.sessions.Delete(ctx, hash); err != nil {
		return AuthSession{}, err
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return AuthSession{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
	}
	if err != nil {
		return AuthSession{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	return s.sessions.Delete(ctx, auth.HashToken(refreshToken))
}

func (s *Service) issueSession(ctx context.Context, user store.User) (AuthSession, error) {
	claims := auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Roles: user.Roles,
		JTI:   util.NewID("jti"),
		Exp:   time.Now().Add(s.cfg.AccessTTL).Unix(),
	}
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return AuthSession{}, err
	}

	refreshToken := util.NewID("rft")
	if err := s.sessions.Save(ctx, auth.HashToken(refreshToken), user.ID, s.cfg.RefreshTTL); err != nil {
		return AuthSession{}, err
	}
	return AuthSession{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Roles:        user.Roles,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		UserID:   claims.Sub,
		UserName: claims.Name,
		Roles:    rbac.Normalize(claims.Roles),
	}, nil
}

// --- questions ---

type CreateQuestionInput struct {
	Title        string
	Content      string
	DepartmentID string
	Anonymous    bool
}

func (s *Service) CreateQuestion(ctx context.Context, session Session, input CreateQuestionInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	content := strings.TrimSpace(input.Content)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Title is required", nil)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Title is too long", map[string]any{"max": maxTitleLength})
	}
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Content is required", nil)
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Content is too long", map[string]any{"max": maxContentLength})
	}

	question := store.Question{
		ID:        util.NewID("qst"),
		Title:     title,
		Content:   content,
		Anonymous: input.Anonymous,
		Status:    "open",
	}
	if deptID := strings.TrimSpace(input.DepartmentID); deptID != "" {
		if _, err := s.store.GetDepartment(ctx, deptID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Department does not exist", nil)
			}
			return nil, err
		}
		question.DepartmentID = &deptID
	}
	if !input.Anonymous {
		userID := session.UserID
		question.AuthorID = &userID
	}

	if err := s.store.CreateQuestion(ctx, question); err != nil {
		return nil, err
	}
	s.indexQuestion(question)

	payload := map[string]any{"question": s.questionPayload(ctx, session, question)}
	if question.DepartmentID != nil && s.notifier != nil {
		summary, err := s.notifier.Dispatch(ctx, question.ID)
		if err != nil {
			log.Printf("app: notify for question %s: %v", question.ID, err)
		} else {
			payload["notification"] = map[string]any{
				"message":   summary.Message,
				"delivered": summary.SuccessCount,
				"total":     summary.Total,
			}
		}
	}
	return payload, nil
}

func (s *Service) GetQuestion(ctx context.Context, session Session, id string) (map[string]any, error) {
	question, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.ListAnswers(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, id)
	if err != nil {
		return nil, err
	}

	answerPayloads := make([]map[string]any, 0, len(answers))
	for _, a := range answers {
		answerPayloads = append(answerPayloads, s.answerPayload(ctx, a))
	}
	commentPayloads := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		commentPayloads = append(commentPayloads, s.commentPayload(ctx, c))
	}

	payload := map[string]any{
		"question": s.questionPayload(ctx, session, question),
		"answers":  answerPayloads,
		"comments": commentPayloads,
	}
	if vote, err := s.store.GetVote(ctx, id, session.UserID); err == nil {
		payload["myVote"] = vote.Type
	}
	return payload, nil
}

func (s *Service) ListQuestions(ctx context.Context, session Session, filter store.QuestionFilter) (map[string]any, error) {
	if filter.Status != "" && !allowedQuestionStatuses[filter.Status] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown status filter", nil)
	}
	questions, err := s.store.ListQuestions(ctx, filter)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(questions))
	for _, q := range questions {
		payloads = append(payloads, s.questionPayload(ctx, session, q))
	}
	return map[string]any{"questions": payloads}, nil
}

func (s *Service) UpdateQuestionStatus(ctx context.Context, session Session, id, status string) (map[string]any, error) {
	if !rbac.Decide(session.Roles, rbac.EntityQuestion, rbac.OpUpdate, false) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if !allowedQuestionStatuses[status] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown status", nil)
	}
	changed, err := s.store.UpdateQuestionStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Question not found", nil)
	}
	question, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	s.indexQuestion(question)
	return map[string]any{"question": s.questionPayload(ctx, session, question)}, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, session Session, id string) error {
	if !rbac.Decide(session.Roles, rbac.EntityQuestion, rbac.OpDelete, false) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	deleted, err := s.store.DeleteQuestion(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Question not found", nil)
	}
	if s.searcher != nil {
		s.searcher.DeleteQuestion(id)
	}
	return nil
}

// RedispatchNotifications re-sends the department notification fan-out for
// a question on the author's request.
func (s *Service) RedispatchNotifications(ctx context.Context, session Session, questionID string) (map[string]any, error) {
	if s.notifier == nil {
		return nil, domainError(http.StatusServiceUnavailable, "DEPENDENCY_ERROR", "Notifications are not configured", nil)
	}
	summary, err := s.notifier.DispatchAsAuthor(ctx, session.UserID, questionID)
	if errors.Is(err, notify.ErrNotAuthor) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the question author can resend notifications", nil)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"message":   summary.Message,
		"delivered": summary.SuccessCount,
		"total":     summary.Total,
	}, nil
}

func (s *Service) indexQuestion(q store.Question) {
	if s.searcher == nil {
		return
	}
	record := search.QuestionRecord{
		ID:      q.ID,
		Title:   q.Title,
		Content: q.Content,
		Status:  q.Status,
	}
	if q.DepartmentID != nil {
		record.DepartmentID = *q.DepartmentID
	}
	s.searcher.IndexQuestion(record)
}

func (s *Service) SearchQuestions(ctx context.Context, session Session, query search.Query) (search.Response, error) {
	if s.searcher == nil {
		return search.Response{Results: []search.Result{}, Query: query.Text}, nil
	}
	return s.searcher.Search(query), nil
}

// --- answers ---

func (s *Service) CreateAnswer(ctx context.Context, session Session, questionID, content string) (map[string]any, error) {
	if !rbac.Decide(session.Roles, rbac.EntityAnswer, rbac.OpCreate, false) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only responders may post answers", nil)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Content is required", nil)
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Content is too long", map[string]any{"max": maxContentLength})
	}

	question, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if question.Status == "closed" {
		return nil, domainError(http.StatusConflict, "CONFLICT", "Question is closed", nil)
	}

	answer := store.Answer{
		ID:         util.NewID("ans"),
		QuestionID: questionID,
		AuthorID:   session.UserID,
		Content:    content,
		// Derived from the caller's roles at submission time, never from
		// the request body.
		Official: rbac.CanAnswer(session.Roles),
	}
	if err := s.store.CreateAnswer(ctx, answer); err != nil {
		return nil, err
	}

	if question.Status == "open" {
		if _, err := s.store.UpdateQuestionStatus(ctx, questionID, "answered"); err != nil {
			log.Printf("app: mark question %s answered: %v", questionID, err)
		} else {
			question.Status = "answered"
			s.indexQuestion(question)
		}
	}
	s.notifyQuestionAuthor(ctx, question, answer)

	return map[string]any{"answer": s.answerPayload(ctx, answer)}, nil
}

func (s *Service) notifyQuestionAuthor(ctx context.Context, question store.Question, answer store.Answer) {
	if s.mailer == nil || question.AuthorID == nil || *question.AuthorID == answer.AuthorID {
		return
	}
	author, err := s.store.GetUserByID(ctx, *question.AuthorID)
	if err != nil {
		log.Printf("app: load question author %s: %v", *question.AuthorID, err)
		return
	}
	go func() {
		if err := s.mailer.SendAnswerNotification(author.Email, author.DisplayName, question.Title, question.ID, answer.Official); err != nil {
			log.Printf("app: answer notification for question %s: %v", question.ID, err)
		}
	}()
}

func (s *Service) UpdateAnswer(ctx context.Context, session Session, answerID, content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Content is required", nil)
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Content is too long", map[string]any{"max": maxContentLength})
	}

	answer, err := s.store.GetAnswer(ctx, answerID)
	if err != nil {
		return nil, err
	}
	owner := answer.AuthorID == session.UserID
	if !rbac.Decide(session.Roles, rbac.EntityAnswer, rbac.OpUpdate, owner) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	if _, err := s.store.UpdateAnswer(ctx, answerID, content); err != nil {
		return nil, err
	}
	answer.Content = content
	return map[string]any{"answer": s.answerPayload(ctx, answer)}, nil
}

func (s *Service) DeleteAnswer(ctx context.Context, session Session, answerID string) error {
	answer, err := s.store.GetAnswer(ctx, answerID)
	if err != nil {
		return err
	}
	owner := answer.AuthorID == session.UserID
	if !rbac.Decide(session.Roles, rbac.EntityAnswer, rbac.OpDelete, owner) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	_, err = s.store.DeleteAnswer(ctx, answerID)
	return err
}

// --- comments ---

type CreateCommentInput struct {
	Content   string
	AnswerID  string
	Anonymous bool
}

func (s *Service) CreateComment(ctx context.Context, session Session, questionID string, input CreateCommentInput) (map[string]any, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Content is required", nil)
	}
	if utf8.RuneCountInString(content) > maxCommentLength {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Content is too long", map[string]any{"max": maxCommentLength})
	}

	if _, err := s.store.GetQuestion(ctx, questionID); err != nil {
		return nil, err
	}

	comment := store.Comment{
		ID:         util.NewID("cmt"),
		QuestionID: questionID,
		Anonymous:  input.Anonymous,
		Content:    content,
	}
	if answerID := strings.TrimSpace(input.AnswerID); answerID != "" {
		answer, err := s.store.GetAnswer(ctx, answerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Answer does not exist", nil)
			}
			return nil, err
		}
		if answer.QuestionID != questionID {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Answer belongs to a different question", nil)
		}
		comment.AnswerID = &answerID
	}
	if !input.Anonymous {
		userID := session.UserID
		comment.AuthorID = &userID
	}

	if err := s.store.CreateComment(ctx, comment); err != nil {
		return nil, err
	}
	return map[string]any{"comment": s.commentPayload(ctx, comment)}, nil
}

func (s *Service) DeleteComment(ctx context.Context, session Session, commentID string) error {
	if !rbac.Decide(session.Roles, rbac.EntityComment, rbac.OpDelete, false) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	deleted, err := s.store.DeleteComment(ctx, commentID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Comment not found", nil)
	}
	return nil
}

// --- votes ---

func (s *Service) CastVote(ctx context.Context, session Session, questionID, voteType string) (map[string]any, error) {
	if !allowedVoteTypes[voteType] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Vote type must be up or down", nil)
	}
	tally, err := s.store.CastVote(ctx, questionID, session.UserID, voteType)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"upvotes":   tally.Upvotes,
		"downvotes": tally.Downvotes,
	}
	if vote, err := s.store.GetVote(ctx, questionID, session.UserID); err == nil {
		payload["myVote"] = vote.Type
	}
	return payload, nil
}

func (s *Service) RemoveVote(ctx context.Context, session Session, questionID string) (map[string]any, error) {
	tally, err := s.store.DeleteVote(ctx, questionID, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"upvotes":   tally.Upvotes,
		"downvotes": tally.Downvotes,
	}, nil
}

// --- profiles ---

func (s *Service) GetPublicProfile(ctx context.Context, id string) (map[string]any, error) {
	profile, err := s.store.GetPublicProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"profile": publicProfilePayload(profile)}, nil
}

func (s *Service) GetMyProfile(ctx context.Context, session Session) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"user": userPayload(user)}, nil
}

func (s *Service) UpdateMyProfile(ctx context.Context, session Session, displayName, departmentID string) (map[string]any, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Display name is required", nil)
	}
	if departmentID != "" {
		if _, err := s.store.GetDepartment(ctx, departmentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown department", nil)
			}
			return nil, err
		}
	}
	if _, err := s.store.UpdateUserProfile(ctx, session.UserID, displayName, "", departmentID); err != nil {
		return nil, err
	}
	return s.GetMyProfile(ctx, session)
}

func (s *Service) UploadAvatar(ctx context.Context, session Session, contentType string, body io.Reader, size int64) (map[string]any, error) {
	if s.avatars == nil {
		return nil, domainError(http.StatusServiceUnavailable, "DEPENDENCY_ERROR", "Avatar storage is not configured", nil)
	}
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	objectPath, err := s.avatars.Upload(ctx, session.UserID, contentType, body, size)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	if _, err := s.store.UpdateUserProfile(ctx, session.UserID, "", objectPath, ""); err != nil {
		return nil, err
	}
	if user.AvatarURL != "" {
		if err := s.avatars.Remove(ctx, user.AvatarURL); err != nil {
			log.Printf("app: remove old avatar for %s: %v", session.UserID, err)
		}
	}
	return map[string]any{"avatarUrl": objectPath}, nil
}

// --- payload builders ---

// questionPayload hides the author of anonymous questions. Even an admin
// reading the API never sees who asked.
func (s *Service) questionPayload(ctx context.Context, session Session, q store.Question) map[string]any {
	payload := map[string]any{
		"id":          q.ID,
		"title":       q.Title,
		"content":     q.Content,
		"anonymous":   q.Anonymous,
		"status":      q.Status,
		"upvotes":     q.Upvotes,
		"downvotes":   q.Downvotes,
		"answerCount": q.AnswerCount,
		"createdAt":   q.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":   q.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if q.DepartmentID != nil {
		payload["departmentId"] = *q.DepartmentID
	}
	if q.Anonymous || q.AuthorID == nil {
		payload["author"] = nil
		return payload
	}
	if profile, err := s.store.GetPublicProfile(ctx, *q.AuthorID); err == nil {
		payload["author"] = publicProfilePayload(profile)
	} else {
		payload["author"] = nil
	}
	return payload
}

func (s *Service) answerPayload(ctx context.Context, a store.Answer) map[string]any {
	payload := map[string]any{
		"id":         a.ID,
		"questionId": a.QuestionID,
		"content":    a.Content,
		"official":   a.Official,
		"createdAt":  a.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":  a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if profile, err := s.store.GetPublicProfile(ctx, a.AuthorID); err == nil {
		payload["author"] = publicProfilePayload(profile)
	} else {
		payload["author"] = nil
	}
	return payload
}

func (s *Service) commentPayload(ctx context.Context, c store.Comment) map[string]any {
	payload := map[string]any{
		"id":         c.ID,
		"questionId": c.QuestionID,
		"anonymous":  c.Anonymous,
		"content":    c.Content,
		"createdAt":  c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if c.AnswerID != nil {
		payload["answerId"] = *c.AnswerID
	}
	if c.Anonymous || c.AuthorID == nil {
		payload["author"] = nil
		return payload
	}
	if profile, err := s.store.GetPublicProfile(ctx, *c.AuthorID); err == nil {
		payload["author"] = publicProfilePayload(profile)
	} else {
		payload["author"] = nil
	}
	return payload
}

func publicProfilePayload(p store.PublicProfile) map[string]any {
	payload := map[string]any{
		"id":          p.ID,
		"displayName": p.DisplayName,
		"avatarUrl":   p.AvatarURL,
		"department":  nil,
	}
	if p.Department != nil {
		payload["department"] = *p.Department
	}
	return payload
}

func userPayload(u store.User) map[string]any {
	payload := map[string]any{
		"id":           u.ID,
		"displayName":  u.DisplayName,
		"email":        u.Email,
		"avatarUrl":    u.AvatarURL,
		"departmentId": nil,
		"roles":        u.Roles,
		"createdAt":    u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if u.DepartmentID != nil {
		payload["departmentId"] = *u.DepartmentID
	}
	return payload
}

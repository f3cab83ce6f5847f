package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- users ---

func (p *Postgres) CreateUser(ctx context.Context, u User) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, avatar_url)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`, u.ID, u.DisplayName, u.Email, u.PasswordHash, u.AvatarURL)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	// Every account starts as an employee.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES ($1, 'employee')
		ON CONFLICT DO NOTHING
	`, u.ID)
	if err != nil {
		return fmt.Errorf("grant employee role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

const userColumns = `
	u.id, u.display_name, u.email, u.password_hash,
	COALESCE(u.avatar_url, ''), u.department_id,
	COALESCE(ARRAY_AGG(r.role ORDER BY r.role) FILTER (WHERE r.role IS NOT NULL), '{}'),
	u.created_at, u.updated_at
`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	var roles []byte
	var dept sql.NullString
	err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.PasswordHash, &u.AvatarURL, &dept, &roles, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	if dept.Valid {
		u.DepartmentID = &dept.String
	}
	u.Roles = parseTextArray(roles)
	return u, nil
}

// parseTextArray decodes the {a,b,c} wire form of a Postgres text array.
// Role names never contain quoting or commas, so a simple split suffices.
func parseTextArray(raw []byte) []string {
	s := string(raw)
	if len(s) < 2 || s == "{}" {
		return []string{}
	}
	s = s[1 : len(s)-1]
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		LEFT JOIN user_roles r ON r.user_id = u.id
		WHERE u.id = $1
		GROUP BY u.id
	`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		LEFT JOIN user_roles r ON r.user_id = u.id
		WHERE LOWER(u.email) = LOWER($1)
		GROUP BY u.id
	`, email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (p *Postgres) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		LEFT JOIN user_roles r ON r.user_id = u.id
		GROUP BY u.id
		ORDER BY u.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (p *Postgres) GetPublicProfile(ctx context.Context, id string) (PublicProfile, error) {
	var prof PublicProfile
	var dept sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, COALESCE(u.avatar_url, ''), d.name
		FROM users u
		LEFT JOIN departments d ON d.id = u.department_id
		WHERE u.id = $1
	`, id).Scan(&prof.ID, &prof.DisplayName, &prof.AvatarURL, &dept)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PublicProfile{}, err
		}
		return PublicProfile{}, fmt.Errorf("get public profile: %w", err)
	}
	if dept.Valid {
		prof.Department = &dept.String
	}
	return prof, nil
}

func (p *Postgres) UpdateUserProfile(ctx context.Context, id, displayName, avatarURL, departmentID string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET
			display_name = COALESCE(NULLIF($2, ''), display_name),
			avatar_url = COALESCE(NULLIF($3, ''), avatar_url),
			department_id = COALESCE(NULLIF($4, ''), department_id),
			updated_at = NOW()
		WHERE id = $1
	`, id, displayName, avatarURL, departmentID)
	if err != nil {
		return false, fmt.Errorf("update user profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update user profile rows: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) DeleteUser(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete user rows: %w", err)
	}
	return n > 0, nil
}

// --- roles ---

func (p *Postgres) GrantRole(ctx context.Context, userID, role string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, role)
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

func (p *Postgres) RevokeRole(ctx context.Context, userID, role string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM user_roles WHERE user_id = $1 AND role = $2
	`, userID, role)
	if err != nil {
		return false, fmt.Errorf("revoke role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke role rows: %w", err)
	}
	return n > 0, nil
}

// --- departments ---

func (p *Postgres) CreateDepartment(ctx context.Context, d Department) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO departments (id, name, description) VALUES ($1, $2, $3)
	`, d.ID, d.Name, d.Description)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert department: %w", err)
	}
	return nil
}

func (p *Postgres) GetDepartment(ctx context.Context, id string) (Department, error) {
	var d Department
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at FROM departments WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Department{}, err
		}
		return Department{}, fmt.Errorf("get department: %w", err)
	}
	return d, nil
}

func (p *Postgres) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at FROM departments ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	departments := []Department{}
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		departments = append(departments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate departments: %w", err)
	}
	return departments, nil
}

func (p *Postgres) UpdateDepartment(ctx context.Context, id, name, description string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE departments SET
			name = COALESCE(NULLIF($2, ''), name),
			description = COALESCE(NULLIF($3, ''), description),
			updated_at = NOW()
		WHERE id = $1
	`, id, name, description)
	if err != nil {
		if isUniqueViolation(err) {
			return false, ErrConflict
		}
		return false, fmt.Errorf("update department: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update department rows: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) DeleteDepartment(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete department: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete department rows: %w", err)
	}
	return n > 0, nil
}

// AddDepartmentAdmin links a user to a department and grants the responder
// role in the same transaction, so a department admin can always post
// official answers.
func (p *Postgres) AddDepartmentAdmin(ctx context.Context, departmentID, userID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add department admin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO department_admins (department_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, departmentID, userID)
	if err != nil {
		return fmt.Errorf("insert department admin: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES ($1, 'responder')
		ON CONFLICT DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("grant responder role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add department admin: %w", err)
	}
	return nil
}

func (p *Postgres) RemoveDepartmentAdmin(ctx context.Context, departmentID, userID string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM department_admins WHERE department_id = $1 AND user_id = $2
	`, departmentID, userID)
	if err != nil {
		return false, fmt.Errorf("remove department admin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove department admin rows: %w", err)
	}
	return n > 0, nil
}

// ListDepartmentAdmins returns the admin users of a department with email
// addresses, in the order they were linked.
func (p *Postgres) ListDepartmentAdmins(ctx context.Context, departmentID string) ([]User, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT u.id, u.display_name, u.email
		FROM department_admins da
		JOIN users u ON u.id = da.user_id
		WHERE da.department_id = $1
		ORDER BY da.created_at
	`, departmentID)
	if err != nil {
		return nil, fmt.Errorf("list department admins: %w", err)
	}
	defer rows.Close()

	admins := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Email); err != nil {
			return nil, fmt.Errorf("scan department admin: %w", err)
		}
		admins = append(admins, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate department admins: %w", err)
	}
	return admins, nil
}

// --- questions ---

const questionColumns = `
	q.id, q.title, q.content, q.department_id, q.author_id, q.anonymous,
	q.status, q.upvotes, q.downvotes,
	(SELECT COUNT(*) FROM answers a WHERE a.question_id = q.id),
	q.created_at, q.updated_at
`

func scanQuestion(row interface{ Scan(...any) error }) (Question, error) {
	var q Question
	var dept, author sql.NullString
	err := row.Scan(&q.ID, &q.Title, &q.Content, &dept, &author, &q.Anonymous,
		&q.Status, &q.Upvotes, &q.Downvotes, &q.AnswerCount, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return Question{}, err
	}
	if dept.Valid {
		q.DepartmentID = &dept.String
	}
	if author.Valid {
		q.AuthorID = &author.String
	}
	return q, nil
}

func (p *Postgres) CreateQuestion(ctx context.Context, q Question) error {
	var dept, author any
	if q.DepartmentID != nil {
		dept = *q.DepartmentID
	}
	if q.AuthorID != nil {
		author = *q.AuthorID
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO questions (id, title, content, department_id, author_id, anonymous, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, q.ID, q.Title, q.Content, dept, author, q.Anonymous, q.Status)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (p *Postgres) GetQuestion(ctx context.Context, id string) (Question, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+questionColumns+` FROM questions q WHERE q.id = $1
	`, id)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Question{}, err
		}
		return Question{}, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

type QuestionFilter struct {
	DepartmentID string
	Status       string
	AuthorID     string
	Limit        int
	Offset       int
}

func (p *Postgres) ListQuestions(ctx context.Context, f QuestionFilter) ([]Question, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+questionColumns+`
		FROM questions q
		WHERE ($1 = '' OR q.department_id = $1)
		  AND ($2 = '' OR q.status = $2)
		  AND ($3 = '' OR q.author_id = $3)
		ORDER BY q.created_at DESC
		LIMIT $4 OFFSET $5
	`, f.DepartmentID, f.Status, f.AuthorID, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := []Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}

func (p *Postgres) UpdateQuestionStatus(ctx context.Context, id, status string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE questions SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return false, fmt.Errorf("update question status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update question status rows: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) DeleteQuestion(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete question: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete question rows: %w", err)
	}
	return n > 0, nil
}

// --- answers ---

func (p *Postgres) CreateAnswer(ctx context.Context, a Answer) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO answers (id, question_id, author_id, content, official)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.QuestionID, a.AuthorID, a.Content, a.Official)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (p *Postgres) GetAnswer(ctx context.Context, id string) (Answer, error) {
	var a Answer
	err := p.db.QueryRowContext(ctx, `
		SELECT id, question_id, author_id, content, official, created_at, updated_at
		FROM answers WHERE id = $1
	`, id).Scan(&a.ID, &a.QuestionID, &a.AuthorID, &a.Content, &a.Official, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Answer{}, err
		}
		return Answer{}, fmt.Errorf("get answer: %w", err)
	}
	return a, nil
}

func (p *Postgres) ListAnswers(ctx context.Context, questionID string) ([]Answer, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, question_id, author_id, content, official, created_at, updated_at
		FROM answers WHERE question_id = $1
		ORDER BY official DESC, created_at
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	answers := []Answer{}
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.AuthorID, &a.Content, &a.Official, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return answers, nil
}

func (p *Postgres) UpdateAnswer(ctx context.Context, id, content string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE answers SET content = $2, updated_at = NOW() WHERE id = $1
	`, id, content)
	if err != nil {
		return false, fmt.Errorf("update answer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update answer rows: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) DeleteAnswer(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM answers WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete answer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete answer rows: %w", err)
	}
	return n > 0, nil
}

// --- comments ---

func (p *Postgres) CreateComment(ctx context.Context, c Comment) error {
	var answer, author any
	if c.AnswerID != nil {
		answer = *c.AnswerID
	}
	if c.AuthorID != nil {
		author = *c.AuthorID
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO comments (id, question_id, answer_id, author_id, anonymous, content)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.QuestionID, answer, author, c.Anonymous, c.Content)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func scanComment(row interface{ Scan(...any) error }) (Comment, error) {
	var c Comment
	var answer, author sql.NullString
	err := row.Scan(&c.ID, &c.QuestionID, &answer, &author, &c.Anonymous, &c.Content, &c.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	if answer.Valid {
		c.AnswerID = &answer.String
	}
	if author.Valid {
		c.AuthorID = &author.String
	}
	return c, nil
}

func (p *Postgres) ListComments(ctx context.Context, questionID string) ([]Comment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, question_id, answer_id, author_id, anonymous, content, created_at
		FROM comments WHERE question_id = $1
		ORDER BY created_at
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

func (p *Postgres) DeleteComment(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete comment rows: %w", err)
	}
	return n > 0, nil
}

// --- votes ---

// CastVote records a vote and adjusts the question counters inside one
// transaction. The question row is locked first so concurrent votes
// serialize. Re-casting the same vote type removes the vote; casting the
// opposite type switches it.
func (p *Postgres) CastVote(ctx context.Context, questionID, userID, voteType string) (VoteTally, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return VoteTally{}, fmt.Errorf("begin cast vote: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var tally VoteTally
	err = tx.QueryRowContext(ctx, `
		SELECT upvotes, downvotes FROM questions WHERE id = $1 FOR UPDATE
	`, questionID).Scan(&tally.Upvotes, &tally.Downvotes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VoteTally{}, err
		}
		return VoteTally{}, fmt.Errorf("lock question for vote: %w", err)
	}

	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT vote_type FROM votes WHERE question_id = $1 AND user_id = $2
	`, questionID, userID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO votes (question_id, user_id, vote_type) VALUES ($1, $2, $3)
		`, questionID, userID, voteType); err != nil {
			return VoteTally{}, fmt.Errorf("insert vote: %w", err)
		}
		tally = tally.apply(voteType, 1)
	case err != nil:
		return VoteTally{}, fmt.Errorf("read existing vote: %w", err)
	case existing == voteType:
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM votes WHERE question_id = $1 AND user_id = $2
		`, questionID, userID); err != nil {
			return VoteTally{}, fmt.Errorf("remove vote: %w", err)
		}
		tally = tally.apply(voteType, -1)
	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE votes SET vote_type = $3, created_at = NOW()
			WHERE question_id = $1 AND user_id = $2
		`, questionID, userID, voteType); err != nil {
			return VoteTally{}, fmt.Errorf("switch vote: %w", err)
		}
		tally = tally.apply(existing, -1).apply(voteType, 1)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE questions SET upvotes = $2, downvotes = $3, updated_at = NOW() WHERE id = $1
	`, questionID, tally.Upvotes, tally.Downvotes); err != nil {
		return VoteTally{}, fmt.Errorf("update vote counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return VoteTally{}, fmt.Errorf("commit cast vote: %w", err)
	}
	return tally, nil
}

func (t VoteTally) apply(voteType string, delta int) VoteTally {
	switch voteType {
	case "up":
		t.Upvotes += delta
		if t.Upvotes < 0 {
			t.Upvotes = 0
		}
	case "down":
		t.Downvotes += delta
		if t.Downvotes < 0 {
			t.Downvotes = 0
		}
	}
	return t
}

// DeleteVote removes the caller's vote regardless of its type. Removing a
// vote that does not exist leaves the counters untouched.
func (p *Postgres) DeleteVote(ctx context.Context, questionID, userID string) (VoteTally, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return VoteTally{}, fmt.Errorf("begin delete vote: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var tally VoteTally
	err = tx.QueryRowContext(ctx, `
		SELECT upvotes, downvotes FROM questions WHERE id = $1 FOR UPDATE
	`, questionID).Scan(&tally.Upvotes, &tally.Downvotes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VoteTally{}, err
		}
		return VoteTally{}, fmt.Errorf("lock question for vote removal: %w", err)
	}

	var existing string
	err = tx.QueryRowContext(ctx, `
		DELETE FROM votes WHERE question_id = $1 AND user_id = $2 RETURNING vote_type
	`, questionID, userID).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return VoteTally{}, fmt.Errorf("delete vote: %w", err)
	}
	if err == nil {
		tally = tally.apply(existing, -1)
		if _, err := tx.ExecContext(ctx, `
			UPDATE questions SET upvotes = $2, downvotes = $3, updated_at = NOW() WHERE id = $1
		`, questionID, tally.Upvotes, tally.Downvotes); err != nil {
			return VoteTally{}, fmt.Errorf("update vote counters: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return VoteTally{}, fmt.Errorf("commit delete vote: %w", err)
	}
	return tally, nil
}

func (p *Postgres) GetVote(ctx context.Context, questionID, userID string) (Vote, error) {
	var v Vote
	err := p.db.QueryRowContext(ctx, `
		SELECT question_id, user_id, vote_type, created_at
		FROM votes WHERE question_id = $1 AND user_id = $2
	`, questionID, userID).Scan(&v.QuestionID, &v.UserID, &v.Type, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Vote{}, err
		}
		return Vote{}, fmt.Errorf("get vote: %w", err)
	}
	return v, nil
}

// --- refresh sessions (fallback when Redis is not configured) ---

func (p *Postgres) SaveRefreshSession(ctx context.Context, s RefreshSession) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id = $2, expires_at = $3
	`, s.TokenHash, s.UserID, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (p *Postgres) GetRefreshSession(ctx context.Context, tokenHash string) (RefreshSession, error) {
	var s RefreshSession
	err := p.db.QueryRowContext(ctx, `
		SELECT token_hash, user_id, expires_at, created_at
		FROM refresh_sessions WHERE token_hash = $1 AND expires_at > NOW()
	`, tokenHash).Scan(&s.TokenHash, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshSession{}, err
		}
		return RefreshSession{}, fmt.Errorf("get refresh session: %w", err)
	}
	return s, nil
}

func (p *Postgres) DeleteRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("delete refresh session: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	AvatarURL    string
	DepartmentID *string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicProfile is the projection of a user that any authenticated caller
// may read. It carries no email, no role grants and no timestamps.
// Department holds the resolved department name, nil when unset.
type PublicProfile struct {
	ID          string
	DisplayName string
	AvatarURL   string
	Department  *string
}

type Department struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Question struct {
	ID           string
	Title        string
	Content      string
	DepartmentID *string
	// AuthorID is nil when the question was posted anonymously. The
	// database never stores the author of an anonymous question.
	AuthorID    *string
	Anonymous   bool
	Status      string
	Upvotes     int
	Downvotes   int
	AnswerCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Answer struct {
	ID         string
	QuestionID string
	AuthorID   string
	Content    string
	Official   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Comment struct {
	ID         string
	QuestionID string
	AnswerID   *string
	AuthorID   *string
	Anonymous  bool
	Content    string
	CreatedAt  time.Time
}

type Vote struct {
	QuestionID string
	UserID     string
	Type       string
	CreatedAt  time.Time
}

// VoteTally is the post-mutation counter pair returned by vote operations
// so callers can render the new totals without a second read.
type VoteTally struct {
	Upvotes   int
	Downvotes int
}

type RefreshSession struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/PetruchoEbovski/ask-answer-hub/internal/util"
)

// Requires a disposable database:
//
//	ASKHUB_TEST_DATABASE_URL=postgres://... go test ./internal/store/
func openTestDB(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("ASKHUB_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ASKHUB_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunMigrations(ctx, db, "../../db/migrations"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgres(db)
}

func seedQuestionWithVoters(t *testing.T, pg *Postgres, voters int) (questionID string, userIDs []string) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < voters; i++ {
		u := User{
			ID:           util.NewID("usr"),
			DisplayName:  "Voter",
			Email:        util.NewID("voter") + "@example.test",
			PasswordHash: "x",
		}
		if err := pg.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
		userIDs = append(userIDs, u.ID)
	}

	questionID = util.NewID("qst")
	author := userIDs[0]
	q := Question{
		ID:       questionID,
		Title:    "Where does the parking budget go?",
		Content:  "Asking for the whole floor.",
		AuthorID: &author,
		Status:   "open",
	}
	if err := pg.CreateQuestion(ctx, q); err != nil {
		t.Fatalf("create question: %v", err)
	}
	return questionID, userIDs
}

func TestCastVoteToggleAndSwitch(t *testing.T) {
	pg := openTestDB(t)
	ctx := context.Background()
	questionID, users := seedQuestionWithVoters(t, pg, 1)
	user := users[0]

	tally, err := pg.CastVote(ctx, questionID, user, "up")
	if err != nil {
		t.Fatalf("first upvote: %v", err)
	}
	if tally.Upvotes != 1 || tally.Downvotes != 0 {
		t.Fatalf("after upvote got %+v", tally)
	}

	// Opposite type switches the vote atomically.
	tally, err = pg.CastVote(ctx, questionID, user, "down")
	if err != nil {
		t.Fatalf("switch vote: %v", err)
	}
	if tally.Upvotes != 0 || tally.Downvotes != 1 {
		t.Fatalf("after switch got %+v", tally)
	}

	// Same type again removes the vote.
	tally, err = pg.CastVote(ctx, questionID, user, "down")
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if tally.Upvotes != 0 || tally.Downvotes != 0 {
		t.Fatalf("after toggle got %+v", tally)
	}

	if _, err := pg.GetVote(ctx, questionID, user); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected no vote row, got %v", err)
	}
}

func TestCastVoteConcurrentCountersMatchLedger(t *testing.T) {
	pg := openTestDB(t)
	ctx := context.Background()
	const voters = 12
	questionID, users := seedQuestionWithVoters(t, pg, voters)

	var wg sync.WaitGroup
	errCh := make(chan error, voters)
	for _, user := range users {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			if _, err := pg.CastVote(ctx, questionID, user, "up"); err != nil {
				errCh <- err
			}
		}(user)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent vote: %v", err)
	}

	q, err := pg.GetQuestion(ctx, questionID)
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	if q.Upvotes != voters || q.Downvotes != 0 {
		t.Fatalf("counters drifted: upvotes=%d downvotes=%d want %d/0", q.Upvotes, q.Downvotes, voters)
	}
}

func TestCreateDepartmentDuplicateNameConflicts(t *testing.T) {
	pg := openTestDB(t)
	ctx := context.Background()

	name := "People Ops " + util.NewID("d")
	if err := pg.CreateDepartment(ctx, Department{ID: util.NewID("dep"), Name: name}); err != nil {
		t.Fatalf("create department: %v", err)
	}
	err := pg.CreateDepartment(ctx, Department{ID: util.NewID("dep"), Name: name})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAddDepartmentAdminGrantsResponderRole(t *testing.T) {
	pg := openTestDB(t)
	ctx := context.Background()

	u := User{ID: util.NewID("usr"), DisplayName: "Dept Admin", Email: util.NewID("da") + "@example.test", PasswordHash: "x"}
	if err := pg.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	dep := Department{ID: util.NewID("dep"), Name: "Facilities " + util.NewID("d")}
	if err := pg.CreateDepartment(ctx, dep); err != nil {
		t.Fatalf("create department: %v", err)
	}

	if err := pg.AddDepartmentAdmin(ctx, dep.ID, u.ID); err != nil {
		t.Fatalf("add department admin: %v", err)
	}

	got, err := pg.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	hasResponder := false
	for _, r := range got.Roles {
		if r == "responder" {
			hasResponder = true
		}
	}
	if !hasResponder {
		t.Fatalf("expected responder role after linking, got %v", got.Roles)
	}

	admins, err := pg.ListDepartmentAdmins(ctx, dep.ID)
	if err != nil {
		t.Fatalf("list department admins: %v", err)
	}
	if len(admins) != 1 || admins[0].ID != u.ID {
		t.Fatalf("unexpected admins: %+v", admins)
	}
}

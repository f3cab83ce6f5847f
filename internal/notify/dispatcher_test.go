package notify

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/PetruchoEbovski/ask-answer-hub/internal/store"
)

type fakeStore struct {
	getQuestionFn          func(ctx context.Context, id string) (store.Question, error)
	getDepartmentFn        func(ctx context.Context, id string) (store.Department, error)
	listDepartmentAdminsFn func(ctx context.Context, departmentID string) ([]store.User, error)
	getPublicProfileFn     func(ctx context.Context, id string) (store.PublicProfile, error)
}

func (f *fakeStore) GetQuestion(ctx context.Context, id string) (store.Question, error) {
	if f.getQuestionFn != nil {
		return f.getQuestionFn(ctx, id)
	}
	return store.Question{}, sql.ErrNoRows
}

func (f *fakeStore) GetDepartment(ctx context.Context, id string) (store.Department, error) {
	if f.getDepartmentFn != nil {
		return f.getDepartmentFn(ctx, id)
	}
	return store.Department{}, sql.ErrNoRows
}

func (f *fakeStore) ListDepartmentAdmins(ctx context.Context, departmentID string) ([]store.User, error) {
	if f.listDepartmentAdminsFn != nil {
		return f.listDepartmentAdminsFn(ctx, departmentID)
	}
	return nil, nil
}

func (f *fakeStore) GetPublicProfile(ctx context.Context, id string) (store.PublicProfile, error) {
	if f.getPublicProfileFn != nil {
		return f.getPublicProfileFn(ctx, id)
	}
	return store.PublicProfile{}, sql.ErrNoRows
}

type fakeSender struct {
	mu        sync.Mutex
	sent      []string
	askerSeen []string
	failTo    map[string]bool
}

func (f *fakeSender) SendQuestionNotification(to, recipientName, departmentName, askerName, title, questionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.askerSeen = append(f.askerSeen, askerName)
	if f.failTo[to] {
		return errors.New("smtp refused")
	}
	f.sent = append(f.sent, to)
	return nil
}

func deptQuestion(author string) store.Question {
	dept := "dep-1"
	q := store.Question{ID: "qst-1", Title: "Why is the VPN slow?", DepartmentID: &dept}
	if author != "" {
		q.AuthorID = &author
	} else {
		q.Anonymous = true
	}
	return q
}

func testStore(q store.Question, admins []store.User) *fakeStore {
	return &fakeStore{
		getQuestionFn: func(ctx context.Context, id string) (store.Question, error) {
			if id != q.ID {
				return store.Question{}, sql.ErrNoRows
			}
			return q, nil
		},
		getDepartmentFn: func(ctx context.Context, id string) (store.Department, error) {
			return store.Department{ID: "dep-1", Name: "IT"}, nil
		},
		listDepartmentAdminsFn: func(ctx context.Context, departmentID string) ([]store.User, error) {
			return admins, nil
		},
		getPublicProfileFn: func(ctx context.Context, id string) (store.PublicProfile, error) {
			return store.PublicProfile{ID: id, DisplayName: "Quinn"}, nil
		},
	}
}

func TestDispatchPartialFailure(t *testing.T) {
	admins := []store.User{
		{ID: "usr-a", DisplayName: "A", Email: "a@example.test"},
		{ID: "usr-b", DisplayName: "B", Email: "b@example.test"},
	}
	sender := &fakeSender{failTo: map[string]bool{"b@example.test": true}}
	d := NewDispatcher(testStore(deptQuestion("usr-author"), admins), sender)

	summary, err := d.Dispatch(context.Background(), "qst-1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if summary.SuccessCount != 1 || summary.Total != 2 {
		t.Fatalf("got %d/%d, want 1/2", summary.SuccessCount, summary.Total)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "a@example.test" {
		t.Fatalf("unexpected deliveries: %v", sender.sent)
	}
	for _, name := range sender.askerSeen {
		if name != "Quinn" {
			t.Fatalf("asker name = %q, want Quinn", name)
		}
	}
}

func TestDispatchAnonymousQuestionHidesAuthor(t *testing.T) {
	admins := []store.User{{ID: "usr-a", DisplayName: "A", Email: "a@example.test"}}
	sender := &fakeSender{}
	d := NewDispatcher(testStore(deptQuestion(""), admins), sender)

	summary, err := d.Dispatch(context.Background(), "qst-1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if summary.SuccessCount != 1 {
		t.Fatalf("got %d successes, want 1", summary.SuccessCount)
	}
	if len(sender.askerSeen) != 1 || sender.askerSeen[0] != "Anonymous" {
		t.Fatalf("asker names = %v, want [Anonymous]", sender.askerSeen)
	}
}

func TestDispatchNoDepartment(t *testing.T) {
	q := store.Question{ID: "qst-2", Title: "General musing"}
	sender := &fakeSender{}
	d := NewDispatcher(testStore(q, nil), sender)

	summary, err := d.Dispatch(context.Background(), "qst-2")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if summary.Total != 0 || len(sender.sent) != 0 {
		t.Fatalf("expected no deliveries, got %+v sent=%v", summary, sender.sent)
	}
}

func TestDispatchNoAdmins(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(testStore(deptQuestion("usr-author"), []store.User{}), sender)

	summary, err := d.Dispatch(context.Background(), "qst-1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if summary.Total != 0 || summary.SuccessCount != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}

func TestDispatchAsAuthorRejectsNonAuthor(t *testing.T) {
	admins := []store.User{{ID: "usr-a", DisplayName: "A", Email: "a@example.test"}}
	sender := &fakeSender{}
	d := NewDispatcher(testStore(deptQuestion("usr-author"), admins), sender)

	_, err := d.DispatchAsAuthor(context.Background(), "usr-impostor", "qst-1")
	if !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("no mail should be sent on rejection, got %v", sender.sent)
	}
}

func TestDispatchAsAuthorRejectsAnonymousQuestion(t *testing.T) {
	admins := []store.User{{ID: "usr-a", DisplayName: "A", Email: "a@example.test"}}
	sender := &fakeSender{}
	d := NewDispatcher(testStore(deptQuestion(""), admins), sender)

	_, err := d.DispatchAsAuthor(context.Background(), "usr-anyone", "qst-1")
	if !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor for anonymous question, got %v", err)
	}
}

func TestDispatchAsAuthorSucceedsForAuthor(t *testing.T) {
	admins := []store.User{{ID: "usr-a", DisplayName: "A", Email: "a@example.test"}}
	sender := &fakeSender{}
	d := NewDispatcher(testStore(deptQuestion("usr-author"), admins), sender)

	summary, err := d.DispatchAsAuthor(context.Background(), "usr-author", "qst-1")
	if err != nil {
		t.Fatalf("dispatch as author: %v", err)
	}
	if summary.SuccessCount != 1 || summary.Total != 1 {
		t.Fatalf("got %d/%d, want 1/1", summary.SuccessCount, summary.Total)
	}
}

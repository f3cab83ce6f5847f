package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/PetruchoEbovski/ask-answer-hub/internal/store"
)

// ErrNotAuthor reports a redispatch attempt by someone other than the
// question's author.
var ErrNotAuthor = errors.New("notify: caller is not the question author")

type Store interface {
	GetQuestion(ctx context.Context, id string) (store.Question, error)
	GetDepartment(ctx context.Context, id string) (store.Department, error)
	ListDepartmentAdmins(ctx context.Context, departmentID string) ([]store.User, error)
	GetPublicProfile(ctx context.Context, id string) (store.PublicProfile, error)
}

type Sender interface {
	SendQuestionNotification(to, recipientName, departmentName, askerName, title, questionID string) error
}

// Summary reports how a dispatch went. A partial failure is not an error:
// the question stays posted and the summary carries the delivered count.
type Summary struct {
	Message      string
	SuccessCount int
	Total        int
}

type Dispatcher struct {
	store  Store
	sender Sender
}

func NewDispatcher(s Store, sender Sender) *Dispatcher {
	return &Dispatcher{store: s, sender: sender}
}

// Dispatch emails every admin of the question's department. Deliveries run
// concurrently; individual send failures are logged and counted, never
// surfaced as an operation error. A question without a department
// dispatches to nobody.
func (d *Dispatcher) Dispatch(ctx context.Context, questionID string) (Summary, error) {
	q, err := d.store.GetQuestion(ctx, questionID)
	if err != nil {
		return Summary{}, err
	}
	if q.DepartmentID == nil {
		return Summary{Message: "question has no department, nobody to notify"}, nil
	}

	dept, err := d.store.GetDepartment(ctx, *q.DepartmentID)
	if err != nil {
		return Summary{}, err
	}
	admins, err := d.store.ListDepartmentAdmins(ctx, dept.ID)
	if err != nil {
		return Summary{}, err
	}
	if len(admins) == 0 {
		return Summary{Message: fmt.Sprintf("department %s has no admins to notify", dept.Name)}, nil
	}
	askerName, err := d.askerName(ctx, q)
	if err != nil {
		return Summary{}, err
	}

	var wg sync.WaitGroup
	results := make(chan error, len(admins))
	for _, admin := range admins {
		wg.Add(1)
		go func(admin store.User) {
			defer wg.Done()
			err := d.sender.SendQuestionNotification(admin.Email, admin.DisplayName, dept.Name, askerName, q.Title, q.ID)
			if err != nil {
				log.Printf("notify: question %s to %s: %v", q.ID, admin.Email, err)
			}
			results <- err
		}(admin)
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
		}
	}
	return Summary{
		Message:      fmt.Sprintf("notified %d of %d department admins", success, len(admins)),
		SuccessCount: success,
		Total:        len(admins),
	}, nil
}

// askerName resolves the display name shown in the notification mail.
// Anonymous questions have no author on record and always read "Anonymous".
func (d *Dispatcher) askerName(ctx context.Context, q store.Question) (string, error) {
	if q.Anonymous || q.AuthorID == nil {
		return "Anonymous", nil
	}
	profile, err := d.store.GetPublicProfile(ctx, *q.AuthorID)
	if err != nil {
		return "", fmt.Errorf("resolve question author %s: %w", *q.AuthorID, err)
	}
	return profile.DisplayName, nil
}

// DispatchAsAuthor re-runs the notification fan-out on behalf of the
// question's author, for example after admins were added to the
// department. Anonymous questions have no author on record and can never
// be redispatched this way.
func (d *Dispatcher) DispatchAsAuthor(ctx context.Context, callerID, questionID string) (Summary, error) {
	q, err := d.store.GetQuestion(ctx, questionID)
	if err != nil {
		return Summary{}, err
	}
	if q.AuthorID == nil || *q.AuthorID != callerID {
		return Summary{}, ErrNotAuthor
	}
	return d.Dispatch(ctx, questionID)
}

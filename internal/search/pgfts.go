package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery against the questions fts column with
// ts_rank ordering and ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	where := "q.fts @@ " + tsQuery
	if q.FilterDepartmentID != "" {
		where += fmt.Sprintf(" AND q.department_id = $%d", argN)
		args = append(args, q.FilterDepartmentID)
		argN++
	}
	if q.FilterStatus != "" {
		where += fmt.Sprintf(" AND q.status = $%d", argN)
		args = append(args, q.FilterStatus)
		argN++
	}

	countSQL := fmt.Sprintf(`SELECT count(*) FROM questions q WHERE %s`, where)
	dataSQL := fmt.Sprintf(`
		SELECT q.id, q.title,
			ts_headline('simple', coalesce(q.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			coalesce(q.department_id, ''), q.status,
			ts_rank(q.fts, %s) AS rank
		FROM questions q
		WHERE %s
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, tsQuery, tsQuery, where, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var rank float64
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.DepartmentID, &r.Status, &rank); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every question for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]QuestionRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, content, coalesce(department_id, ''), status FROM questions
	`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	questions := make([]QuestionRecord, 0)
	for rows.Next() {
		var q QuestionRecord
		if err := rows.Scan(&q.ID, &q.Title, &q.Content, &q.DepartmentID, &q.Status); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}

// Package pg implements every agent store on a single Postgres pool.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"steward.run/internal/audit"
	"steward.run/internal/broadcast"
	"steward.run/internal/host"
	"steward.run/internal/snippet"
)

type Store struct {
	db *sql.DB
}

var (
	_ audit.Store     = (*Store)(nil)
	_ snippet.Store   = (*Store)(nil)
	_ broadcast.Store = (*Store)(nil)
	_ host.Platform   = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// --- audit.Store ---

func (s *Store) Append(ctx context.Context, rec *audit.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log(id, time, operator, action, details, status)
		values ($1,$2,$3,$4,$5,$6)
	`, rec.ID, rec.Time, rec.Operator, rec.Action, rec.Details, rec.Status)
	return err
}

func (s *Store) Update(ctx context.Context, rec *audit.Record) error {
	res, err := s.db.ExecContext(ctx, `
		update audit_log set status=$2, details=$3 where id=$1
	`, rec.ID, rec.Status, rec.Details)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return audit.ErrNotFound
	}
	return nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, time, operator, action, details, status
		from audit_log
		order by time desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []audit.Record
	for rows.Next() {
		var rec audit.Record
		if err := rows.Scan(&rec.ID, &rec.Time, &rec.Operator, &rec.Action, &rec.Details, &rec.Status); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// --- snippet.Store ---

func (s *Store) Upsert(ctx context.Context, sn *snippet.Snippet) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id  int64
		seq int64
	)
	err = tx.QueryRowContext(ctx, `select id, seq from snippets where name=$1`, sn.Name).Scan(&id, &seq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := tx.QueryRowContext(ctx, `
			insert into snippets(name, code, kind, point, status, priority)
			values ($1,$2,$3,$4,$5,$6)
			returning id, seq
		`, sn.Name, sn.Code, sn.Kind, sn.Point, sn.Status, sn.Priority).Scan(&sn.ID, &sn.Seq); err != nil {
			return false, err
		}
		return true, tx.Commit()
	case err != nil:
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
		update snippets set code=$2, kind=$3, point=$4, status=$5, priority=$6
		where id=$1
	`, id, sn.Code, sn.Kind, sn.Point, sn.Status, sn.Priority); err != nil {
		return false, err
	}
	sn.ID = id
	sn.Seq = seq
	return false, tx.Commit()
}

func (s *Store) SetStatus(ctx context.Context, name, status string) error {
	res, err := s.db.ExecContext(ctx, `update snippets set status=$2 where name=$1`, name, status)
	if err != nil {
		return err
	}
	return oneRowOr(res, snippet.ErrNotFound)
}

func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `delete from snippets where name=$1`, name)
	if err != nil {
		return err
	}
	return oneRowOr(res, snippet.ErrNotFound)
}

func (s *Store) Get(ctx context.Context, name string) (snippet.Snippet, error) {
	var sn snippet.Snippet
	err := s.db.QueryRowContext(ctx, `
		select id, name, code, kind, point, status, priority, seq
		from snippets where name=$1
	`, name).Scan(&sn.ID, &sn.Name, &sn.Code, &sn.Kind, &sn.Point, &sn.Status, &sn.Priority, &sn.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return snippet.Snippet{}, snippet.ErrNotFound
	}
	if err != nil {
		return snippet.Snippet{}, err
	}
	return sn, nil
}

func (s *Store) ListActive(ctx context.Context) ([]snippet.Snippet, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, code, kind, point, status, priority, seq
		from snippets
		where status=$1
		order by seq asc
	`, snippet.StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []snippet.Snippet
	for rows.Next() {
		var sn snippet.Snippet
		if err := rows.Scan(&sn.ID, &sn.Name, &sn.Code, &sn.Kind, &sn.Point, &sn.Status, &sn.Priority, &sn.Seq); err != nil {
			return nil, err
		}
		res = append(res, sn)
	}
	return res, rows.Err()
}

// --- broadcast.Store ---

func (s *Store) UpsertSubscriber(ctx context.Context, sub *broadcast.Subscriber) error {
	return s.db.QueryRowContext(ctx, `
		insert into subscribers(email, name, status)
		values ($1,$2,$3)
		on conflict (email) do update set name=excluded.name, status=excluded.status
		returning id, created_at
	`, strings.ToLower(sub.Email), sub.Name, sub.Status).Scan(&sub.ID, &sub.CreatedAt)
}

func (s *Store) ListSubscribed(ctx context.Context) ([]broadcast.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, email, coalesce(name,''), status, created_at
		from subscribers
		where status=$1
		order by id asc
	`, broadcast.StatusSubscribed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []broadcast.Subscriber
	for rows.Next() {
		var sub broadcast.Subscriber
		if err := rows.Scan(&sub.ID, &sub.Email, &sub.Name, &sub.Status, &sub.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, sub)
	}
	return res, rows.Err()
}

// --- host.Options ---

func (s *Store) GetOption(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `select value from options where name=$1`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) SetOption(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into options(name, value) values ($1,$2)
		on conflict (name) do update set value=excluded.value
	`, name, value)
	return err
}

// --- host.Content ---

func (s *Store) FindRecord(ctx context.Context, id int64) (host.Record, error) {
	return s.scanRecord(s.db.QueryRowContext(ctx, `
		select id, title, slug, kind, body, updated_at from records where id=$1
	`, id))
}

func (s *Store) FindRecordByTitle(ctx context.Context, title string) (host.Record, error) {
	return s.scanRecord(s.db.QueryRowContext(ctx, `
		select id, title, slug, kind, body, updated_at
		from records where lower(title)=lower($1)
		order by id asc limit 1
	`, title))
}

func (s *Store) FindRecordBySlug(ctx context.Context, slug string) (host.Record, error) {
	return s.scanRecord(s.db.QueryRowContext(ctx, `
		select id, title, slug, kind, body, updated_at
		from records where lower(slug)=lower($1)
		order by id asc limit 1
	`, slug))
}

func (s *Store) CreateRecord(ctx context.Context, rec host.Record) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		insert into records(title, slug, kind, body, updated_at)
		values ($1,$2,$3,$4,now())
		returning id
	`, rec.Title, rec.Slug, rec.Kind, rec.Body).Scan(&id)
	return id, err
}

func (s *Store) UpdateRecordBody(ctx context.Context, id int64, body string) error {
	res, err := s.db.ExecContext(ctx, `
		update records set body=$2, updated_at=now() where id=$1
	`, id, body)
	if err != nil {
		return err
	}
	return oneRowOr(res, host.ErrNotFound)
}

func (s *Store) Cleanup(ctx context.Context, scope string) (map[string]int, error) {
	counts := map[string]int{}
	want := func(kind string) bool { return scope == "" || scope == "full" || scope == kind }

	switch scope {
	case "", "full", "revisions", "spam", "transients":
	default:
		return nil, host.ErrInvalidScope
	}

	if want("revisions") {
		n, err := s.execCount(ctx, `delete from records where kind='revision'`)
		if err != nil {
			return nil, err
		}
		counts["revisions"] = n
	}
	if want("spam") {
		n, err := s.execCount(ctx, `delete from comments where status='spam'`)
		if err != nil {
			return nil, err
		}
		counts["spam"] = n
	}
	if want("transients") {
		n, err := s.execCount(ctx, `
			delete from options
			where name like '\_transient\_%' or name like '\_site\_transient\_%'
		`)
		if err != nil {
			return nil, err
		}
		counts["transients"] = n
	}
	return counts, nil
}

// --- raw query surface for execute_system_code ---

// RunQuery executes an operator-supplied statement and renders the result set
// as JSON, or an empty string for statements without rows.
func (s *Store) RunQuery(ctx context.Context, query string) (string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode query result: %w", err)
	}
	return string(data), nil
}

// --- helpers ---

func (s *Store) scanRecord(row *sql.Row) (host.Record, error) {
	var rec host.Record
	err := row.Scan(&rec.ID, &rec.Title, &rec.Slug, &rec.Kind, &rec.Body, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return host.Record{}, host.ErrNotFound
	}
	if err != nil {
		return host.Record{}, err
	}
	return rec, nil
}

func (s *Store) execCount(ctx context.Context, query string) (int, error) {
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func oneRowOr(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

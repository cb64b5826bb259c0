package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"tagsync/internal/model"
	"tagsync/migrations"
)

const timeLayout = time.RFC3339Nano

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	loc *time.Location
	log *slog.Logger
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string, log *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", ErrStorage, err)
	}
	// One writer at a time; also keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: set WAL mode: %w", ErrStorage, err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return &SQLite{db: db, loc: time.Local, log: log}, nil
}

// SetLocation sets the zone timestamps are returned in. The default is
// the local zone.
func (s *SQLite) SetLocation(loc *time.Location) {
	s.loc = loc
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ReplaceAll deletes every stored submission and inserts subs in one
// transaction. Rows repeating an already inserted (site, id) are ignored.
func (s *SQLite) ReplaceAll(ctx context.Context, subs []model.Submission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM submissions`); err != nil {
		return fmt.Errorf("%w: delete submissions: %w", ErrStorage, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO submissions (site, id, title, posted_at, tags) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("%w: prepare insert: %w", ErrStorage, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, sub := range subs {
		tags, err := encodeTags(sub.Tags)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			string(sub.Site), sub.ID, sub.Title, sub.PostedAt.UTC().Format(timeLayout), tags,
		)
		if err != nil {
			return fmt.Errorf("%w: insert submission %s: %w", ErrStorage, sub.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStorage, err)
	}
	return nil
}

// ListAll returns all submissions in insertion order. Rows that cannot be
// decoded are logged and skipped.
func (s *SQLite) ListAll(ctx context.Context) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT site, id, title, posted_at, tags FROM submissions ORDER BY rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query submissions: %w", ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows, s.loc)
		if err != nil {
			s.log.Warn("skipping unreadable submission row", "error", err)
			continue
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate submissions: %w", ErrStorage, err)
	}
	return subs, nil
}

// UpdateTags overwrites the tags of the submission identified by site and id.
func (s *SQLite) UpdateTags(ctx context.Context, site model.Site, id int64, tags []string) error {
	encoded, err := encodeTags(tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET tags = ? WHERE site = ? AND id = ?`,
		encoded, string(site), id,
	)
	if err != nil {
		return fmt.Errorf("%w: update tags: %w", ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", ErrStorage, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: no submission %s", ErrStorage, model.Key{Site: site, ID: id})
	}
	return nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("%w: encode tags: %w", ErrStorage, err)
	}
	return string(b), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubmission(row scannable, loc *time.Location) (model.Submission, error) {
	var sub model.Submission
	var siteStr, postedStr, tagsStr string
	if err := row.Scan(&siteStr, &sub.ID, &sub.Title, &postedStr, &tagsStr); err != nil {
		return sub, fmt.Errorf("scan submission: %w", err)
	}

	site, err := model.ParseSite(siteStr)
	if err != nil {
		return sub, fmt.Errorf("submission %d: %w", sub.ID, err)
	}
	sub.Site = site

	postedAt, err := time.Parse(timeLayout, postedStr)
	if err != nil {
		return sub, fmt.Errorf("submission %s: posted_at: %w", sub.Key(), err)
	}
	sub.PostedAt = postedAt.In(loc)

	if err := json.Unmarshal([]byte(tagsStr), &sub.Tags); err != nil {
		return sub, fmt.Errorf("submission %s: tags: %w", sub.Key(), err)
	}
	if sub.Tags == nil {
		sub.Tags = []string{}
	}
	return sub, nil
}

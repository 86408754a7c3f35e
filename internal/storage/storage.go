// Package storage persists finished evaluation reports in sqlite.
package storage

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/Simonization/webservTester/internal/model"
)

//go:embed migrations/*.sql
var fs embed.FS

type Storage struct {
	db  *sqlx.DB
	log *slog.Logger
}

func New(dbFilename string, log *slog.Logger) (*Storage, error) {
	db, err := sqlx.Connect("sqlite", connectionString(dbFilename))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Storage{
		db:  db,
		log: log,
	}

	if err = s.migrateDB(db); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func connectionString(filename string) string {
	var cs string
	var options = []string{"_pragma=busy_timeout(5000)", "_pragma=journal_mode(WAL)", "_pragma=foreign_keys(1)", "_pragma=synchronous(normal)"}

	if filename != "" {
		cs = filename
	} else {
		cs = "file:" + randomAlphanumeric(16)
		options = append(options, "mode=memory", "cache=shared")
	}

	for i, o := range options {
		if i == 0 {
			cs += "?"
		} else {
			cs += "&"
		}
		cs += o
	}

	return cs
}

const alphaNumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphaNumericChars[rand.Intn(len(alphaNumericChars))]
	}
	return string(b)
}

func (s *Storage) migrateDB(db *sqlx.DB) error {
	d, err := iofs.New(fs, "migrations")
	if err != nil {
		return fmt.Errorf("load db migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("load migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate with instance: %w", err)
	}

	err = m.Up()

	if err == migrate.ErrNoChange {
		s.log.Debug("no migrations to apply, db is at the latest state")
	} else if err != nil {
		return fmt.Errorf("applying db migrations: %w", err)
	}

	return nil
}

// SaveReport persists a finished report and returns its id.
func (s *Storage) SaveReport(ctx context.Context, r model.Report) (int, error) {
	sections, err := json.Marshal(r.Sections)
	if err != nil {
		return -1, fmt.Errorf("marshaling sections: %w", err)
	}

	rows, err := s.db.NamedQuery(`INSERT INTO Report
	(id, sutBinary, verdict, score, triggeredBy, scheduledTime, startTime, endTime, passed, failed, skipped, sections) VALUES
	(COALESCE(NULLIF(:id, 0), (select COALESCE(max(id), 0)+1 from Report)),
	 :sutBinary, :verdict, :score, :triggeredBy, :scheduledTime, :startTime, :endTime, :passed, :failed, :skipped, :sections)
	RETURNING id`,
		map[string]any{
			"id":            r.ID,
			"sutBinary":     r.SUTBinary,
			"verdict":       string(r.Verdict),
			"score":         r.Score,
			"triggeredBy":   r.TriggeredBy,
			"scheduledTime": timeFormat(r.Scheduled),
			"startTime":     timeFormat(r.Start),
			"endTime":       timeFormat(r.End),
			"passed":        r.Passed,
			"failed":        r.Failed,
			"skipped":       r.Skipped,
			"sections":      string(sections),
		})
	if err != nil {
		return -1, err
	}
	defer rows.Close()

	if !rows.Next() {
		return -1, fmt.Errorf("retrieving inserted Report id")
	}

	var id int

	if err = rows.Scan(&id); err != nil {
		return -1, fmt.Errorf("retrieving inserted Report id: %w", err)
	}

	return id, nil
}

// LatestRunID returns the highest persisted report id, 0 when there is none.
// The run counter resumes from it across restarts.
func (s *Storage) LatestRunID(ctx context.Context) (int, error) {
	var id int

	err := s.db.GetContext(ctx, &id, `SELECT COALESCE(MAX(id), 0) FROM Report`)
	if err != nil {
		return 0, fmt.Errorf("loading latest run id: %w", err)
	}

	return id, nil
}

const reportColumns = `id, sutBinary, verdict, score, triggeredBy, scheduledTime, startTime, endTime, passed, failed, skipped, sections`

// LoadReport fetches one report by id.
func (s *Storage) LoadReport(ctx context.Context, id int) (model.Report, error) {
	rows, err := s.db.NamedQuery(`SELECT `+reportColumns+` FROM Report WHERE id = :id`,
		map[string]any{"id": id})
	if err != nil {
		return model.Report{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		return model.Report{}, model.NotFoundError{}
	}

	return scanReport(rows)
}

// ListReports returns the most recent reports, newest first.
func (s *Storage) ListReports(ctx context.Context, limit int) ([]model.Report, error) {
	reports := []model.Report{}

	rows, err := s.db.QueryxContext(ctx, `SELECT `+reportColumns+` FROM Report ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return reports, err
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}

		reports = append(reports, r)
	}

	return reports, nil
}

func scanReport(rows *sqlx.Rows) (model.Report, error) {
	var (
		r                     model.Report
		verdict               string
		scheduled, start, end string
		sections              []byte
	)

	err := rows.Scan(&r.ID, &r.SUTBinary, &verdict, &r.Score, &r.TriggeredBy,
		&scheduled, &start, &end, &r.Passed, &r.Failed, &r.Skipped, &sections)
	if err != nil {
		return model.Report{}, fmt.Errorf("scanning report: %w", err)
	}

	r.Verdict = model.Verdict(verdict)

	if r.Scheduled, err = timeParse(scheduled); err != nil {
		return model.Report{}, err
	}
	if r.Start, err = timeParse(start); err != nil {
		return model.Report{}, err
	}
	if r.End, err = timeParse(end); err != nil {
		return model.Report{}, err
	}
	r.DurationInMS = r.End.Sub(r.Start).Milliseconds()

	if err = json.Unmarshal(sections, &r.Sections); err != nil {
		return model.Report{}, fmt.Errorf("unmarshaling sections: %w", err)
	}

	return r, nil
}

func timeFormat(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func timeParse(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}

	return t, nil
}

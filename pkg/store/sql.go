package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	driver      string
	numbered    bool // $1, $2 placeholders instead of ?
	singleConn  bool
	description string
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func openSQL(d dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", d.description, err)
	}
	if d.singleConn {
		// Keeps ":memory:" databases alive and serialises writers.
		db.SetMaxOpenConns(1)
	}

	if err := CreateSchema(db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLStore{db: db, dialect: d}, nil
}

// timeLayout is fixed-width so that started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// AddRun stores a run, replacing the manifest of an existing run with the same ID.
func (s *SQLStore) AddRun(run *Run) error {
	manifestJSON, err := json.Marshal(run.Manifest)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	_, err = s.db.Exec(s.dialect.rebind(`
		INSERT INTO runs (id, started_at, root, manifest_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET manifest_json = excluded.manifest_json
	`),
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		run.Root,
		string(manifestJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// AddUnit records an emitted unit.
func (s *SQLStore) AddUnit(runID string, seq int, rec types.UnitRecord) error {
	_, err := s.db.Exec(s.dialect.rebind(`
		INSERT INTO units (run_id, seq, path, archive, member, lines, decode_status, blob_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, seq) DO NOTHING
	`),
		runID,
		seq,
		rec.EmitPath,
		rec.Source.ArchivePath,
		rec.Source.MemberPath,
		rec.Lines,
		string(rec.Status),
		rec.BlobID.Hex(),
	)
	if err != nil {
		return fmt.Errorf("inserting unit: %w", err)
	}
	return nil
}

// UnitExists checks if a run other than exceptRun has emitted a unit with
// this blob ID.
func (s *SQLStore) UnitExists(id types.BlobID, exceptRun string) (bool, error) {
	var count int
	err := s.db.QueryRow(s.dialect.rebind("SELECT COUNT(*) FROM units WHERE blob_id = ? AND run_id <> ?"), id.Hex(), exceptRun).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking unit existence: %w", err)
	}
	return count > 0, nil
}

// GetRun retrieves a run by ID.
func (s *SQLStore) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(s.dialect.rebind(`
		SELECT id, started_at, root, manifest_json FROM runs WHERE id = ?
	`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// GetRuns retrieves all runs, oldest first.
func (s *SQLStore) GetRuns() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, root, manifest_json
		FROM runs
		ORDER BY started_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedAt, manifestJSON string

	if err := row.Scan(&run.ID, &startedAt, &run.Root, &manifestJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	t, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing start time: %w", err)
	}
	run.StartedAt = t

	run.Manifest = &types.RunManifest{}
	if err := json.Unmarshal([]byte(manifestJSON), run.Manifest); err != nil {
		return nil, fmt.Errorf("unmarshaling manifest: %w", err)
	}

	return &run, nil
}

// GetUnits retrieves a run's units in stream order.
func (s *SQLStore) GetUnits(runID string) ([]types.UnitRecord, error) {
	rows, err := s.db.Query(s.dialect.rebind(`
		SELECT path, archive, member, lines, decode_status, blob_id
		FROM units
		WHERE run_id = ?
		ORDER BY seq
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("querying units: %w", err)
	}
	defer rows.Close()

	var units []types.UnitRecord
	for rows.Next() {
		var rec types.UnitRecord
		var status, blobIDHex string

		err := rows.Scan(
			&rec.EmitPath,
			&rec.Source.ArchivePath,
			&rec.Source.MemberPath,
			&rec.Lines,
			&status,
			&blobIDHex,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning unit: %w", err)
		}

		rec.Status = types.DecodeStatus(status)
		rec.BlobID, err = types.ParseBlobID(blobIDHex)
		if err != nil {
			return nil, fmt.Errorf("parsing blob ID: %w", err)
		}

		units = append(units, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating units: %w", err)
	}

	return units, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

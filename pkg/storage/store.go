package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sahithikokkula/sketchd/pkg/metrics"
	"github.com/sahithikokkula/sketchd/pkg/sketches"
)

var (
	// ErrNotFound is returned when no sketch is stored under a name.
	ErrNotFound = errors.New("sketch not found")
	// ErrExists is returned by Create when the name is taken.
	ErrExists = errors.New("sketch already exists")
	// ErrCorrupt is returned when a stored blob fails its checksum.
	ErrCorrupt = errors.New("stored sketch is corrupt")
)

// Parameters are the creation parameters of a stored sketch.
type Parameters struct {
	ItemType   string   `json:"item_type"`
	Fields     []string `json:"fields,omitempty"`
	TopN       int      `json:"topn,omitempty"`
	ErrorBound float64  `json:"error_bound"`
	Confidence float64  `json:"confidence"`
}

// Record is a named sketch together with its serialized form.
type Record struct {
	Name       string
	Type       sketches.SketchType
	Parameters Parameters
	Data       []byte
}

// Sketch decodes the stored bytes.
func (r *Record) Sketch() (sketches.Sketch, error) {
	return sketches.Deserialize(r.Type, r.Data)
}

// SketchInfo contains metadata about a stored sketch
type SketchInfo struct {
	Name        string              `json:"name"`
	Type        sketches.SketchType `json:"type"`
	Parameters  Parameters          `json:"parameters"`
	RawBytes    int64               `json:"raw_bytes"`
	StoredBytes int64               `json:"stored_bytes"`
	CreatedAt   int64               `json:"created_at"`
	UpdatedAt   int64               `json:"updated_at"`
}

// Store keeps sketches in sqlite, one row per name.
type Store struct {
	db    *sql.DB
	codec *blobCodec
}

// Open opens (or creates) the sqlite database at path and makes sure the
// sketch table exists. compressionLevel is a zstd level, 0 for the default.
func Open(ctx context.Context, path string, compressionLevel int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// a single connection serializes writers instead of surfacing SQLITE_BUSY
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if err := EnsureMetaTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure meta tables: %w", err)
	}

	codec, err := newBlobCodec(compressionLevel)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, codec: codec}, nil
}

// Close releases the database and the codec.
func (s *Store) Close() error {
	s.codec.close()
	return s.db.Close()
}

func EnsureMetaTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sketchd_sketches (
		name TEXT PRIMARY KEY,
		sketch_type TEXT NOT NULL,
		parameters TEXT NOT NULL,
		sketch_data BLOB NOT NULL,
		checksum INTEGER NOT NULL,
		raw_size INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`)
	return err
}

// Create stores a new sketch and fails with ErrExists if the name is taken.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	blob, checksum, params, err := s.encode(rec)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sketchd_sketches(name, sketch_type, parameters, sketch_data, checksum, raw_size)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		rec.Name, string(rec.Type), params, blob, int64(checksum), len(rec.Data))
	if err != nil {
		return fmt.Errorf("failed to insert sketch %q: %w", rec.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%q: %w", rec.Name, ErrExists)
	}
	return nil
}

// Upsert stores or replaces a sketch. The creation time survives updates.
func (s *Store) Upsert(ctx context.Context, rec *Record) error {
	blob, checksum, params, err := s.encode(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sketchd_sketches(name, sketch_type, parameters, sketch_data, checksum, raw_size)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(name)
		DO UPDATE SET sketch_type=excluded.sketch_type, parameters=excluded.parameters,
			sketch_data=excluded.sketch_data, checksum=excluded.checksum,
			raw_size=excluded.raw_size, updated_at=CURRENT_TIMESTAMP`,
		rec.Name, string(rec.Type), params, blob, int64(checksum), len(rec.Data))
	if err != nil {
		return fmt.Errorf("failed to upsert sketch %q: %w", rec.Name, err)
	}
	return nil
}

// Get retrieves a sketch by name.
func (s *Store) Get(ctx context.Context, name string) (*Record, error) {
	var (
		sketchType string
		params     string
		blob       []byte
		checksum   int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT sketch_type, parameters, sketch_data, checksum FROM sketchd_sketches
		WHERE name = ?`, name).Scan(&sketchType, &params, &blob, &checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sketch %q: %w", name, err)
	}

	rec := &Record{Name: name, Type: sketches.SketchType(sketchType)}
	if err := json.Unmarshal([]byte(params), &rec.Parameters); err != nil {
		return nil, fmt.Errorf("sketch %q has unreadable parameters: %v: %w", name, err, ErrCorrupt)
	}
	rec.Data, err = s.codec.unpack(blob, uint64(checksum))
	if err != nil {
		return nil, fmt.Errorf("sketch %q: %w", name, err)
	}
	return rec, nil
}

// List returns metadata of all stored sketches ordered by name.
func (s *Store) List(ctx context.Context) ([]SketchInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, sketch_type, parameters, raw_size, length(sketch_data),
		       strftime('%s', created_at), strftime('%s', updated_at)
		FROM sketchd_sketches
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sketches: %w", err)
	}
	defer rows.Close()

	sketchInfos := []SketchInfo{}
	for rows.Next() {
		var (
			info       SketchInfo
			sketchType string
			params     string
		)
		err := rows.Scan(&info.Name, &sketchType, &params, &info.RawBytes, &info.StoredBytes,
			&info.CreatedAt, &info.UpdatedAt)
		if err != nil {
			return nil, err
		}
		info.Type = sketches.SketchType(sketchType)
		if err := json.Unmarshal([]byte(params), &info.Parameters); err != nil {
			return nil, fmt.Errorf("sketch %q has unreadable parameters: %v: %w", info.Name, err, ErrCorrupt)
		}
		sketchInfos = append(sketchInfos, info)
	}
	return sketchInfos, rows.Err()
}

// Count returns the number of stored sketches.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sketchd_sketches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sketches: %w", err)
	}
	return n, nil
}

// Delete removes a sketch.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sketchd_sketches WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete sketch %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) encode(rec *Record) ([]byte, uint64, string, error) {
	if rec.Name == "" {
		return nil, 0, "", errors.New("sketch name is empty")
	}
	params, err := json.Marshal(rec.Parameters)
	if err != nil {
		return nil, 0, "", err
	}
	blob, checksum := s.codec.pack(rec.Data)
	metrics.ObserveBlob(string(rec.Type), len(rec.Data), len(blob))
	return blob, checksum, string(params), nil
}

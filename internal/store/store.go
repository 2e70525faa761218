package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dshills/cinematch/internal/codec"
	"github.com/dshills/cinematch/internal/logging"
	"github.com/dshills/cinematch/pkg/types"
)

// Options configures bundle opening.
type Options struct {
	// BaseDir is tried as the parent of a relative bundle path before the
	// current working directory.
	BaseDir string
}

// Store owns a loaded Persisted State Bundle: the movie metadata table, the
// embedding matrix, and the optional reduction transform.
//
// Metadata is read eagerly at Open; the embedding matrix stays on disk
// until Materialize (or a Row miss) forces it into memory. All fields are
// read-only after Open, so concurrent reads need no locking; matrix
// initialization latches only on success, so a failed or canceled read can
// be retried.
type Store struct {
	db   *sql.DB
	path string

	dim       int
	encoding  Encoding
	modelName string

	movies  []types.Movie
	ids     []int64
	idToPos map[int64]int

	transform *codec.Transform

	matMu    sync.Mutex
	matrix   [][]float32
	matReady atomic.Bool
}

// Open reads a bundle from path. Relative paths are resolved against
// opts.BaseDir and then the current working directory; if no candidate
// exists the error names every attempted path and wraps
// types.ErrBundleNotFound.
//
// Open loads the metadata table, the index-to-identifier mapping, and the
// projection transform, but never the embedding matrix itself.
func Open(path string, opts Options) (*Store, error) {
	resolved, err := resolvePath(path, opts.BaseDir)
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCorruptBundle, err)
	}

	s := &Store{db: db, path: resolved}
	if err := s.loadHeader(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.loadMovies(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.loadProjection(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info().
		Str("path", resolved).
		Int("movies", len(s.movies)).
		Int("dim", s.dim).
		Str("encoding", string(s.encoding)).
		Bool("projection", s.transform != nil).
		Msg("bundle opened")
	return s, nil
}

// resolvePath tries path as absolute, then relative to baseDir, then
// relative to the working directory.
func resolvePath(path, baseDir string) (string, error) {
	var attempted []string
	if filepath.IsAbs(path) {
		attempted = append(attempted, path)
	} else {
		if baseDir != "" {
			attempted = append(attempted, filepath.Join(baseDir, path))
		}
		if abs, err := filepath.Abs(path); err == nil {
			attempted = append(attempted, abs)
		} else {
			attempted = append(attempted, path)
		}
	}
	for _, candidate := range attempted {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", types.ErrBundleNotFound, strings.Join(attempted, ", "))
}

// openDatabase opens a SQLite bundle with appropriate settings.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite benefits from a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// loadHeader reads and validates bundle_meta. Loading is all-or-nothing:
// any missing or inconsistent header field rejects the whole bundle.
func (s *Store) loadHeader() error {
	rows, err := s.db.Query(`SELECT key, value FROM bundle_meta`)
	if err != nil {
		return fmt.Errorf("%w: reading bundle header: %v", types.ErrCorruptBundle, err)
	}
	defer func() { _ = rows.Close() }()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("%w: scanning bundle header: %v", types.ErrCorruptBundle, err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrCorruptBundle, err)
	}

	version, ok := meta[metaFormatVersion]
	if !ok {
		return fmt.Errorf("%w: missing %s", types.ErrCorruptBundle, metaFormatVersion)
	}
	if version != FormatVersion {
		return fmt.Errorf("%w: bundle declares %q, this build reads %q",
			types.ErrIncompatibleBundle, version, FormatVersion)
	}

	dim, err := strconv.Atoi(meta[metaDim])
	if err != nil || dim <= 0 {
		return fmt.Errorf("%w: invalid dim %q", types.ErrCorruptBundle, meta[metaDim])
	}

	encoding := Encoding(meta[metaEncoding])
	if encoding != EncodingUint8 && encoding != EncodingFloat32 {
		return fmt.Errorf("%w: unknown encoding %q", types.ErrCorruptBundle, meta[metaEncoding])
	}

	s.dim = dim
	s.encoding = encoding
	s.modelName = meta[metaModelName]
	return nil
}

// loadMovies reads the full metadata table and builds the explicit
// pos <-> movieID mapping. Cheap relative to the matrix: a few narrow
// columns per movie.
func (s *Store) loadMovies() error {
	var declared int
	if err := s.db.QueryRow(
		`SELECT value FROM bundle_meta WHERE key = ?`, metaMovieCount,
	).Scan(&declared); err != nil {
		return fmt.Errorf("%w: missing %s", types.ErrCorruptBundle, metaMovieCount)
	}

	rows, err := s.db.Query(
		`SELECT pos, movie_id, title, year, genres, avg_rating, rating_count, tags
		 FROM movies ORDER BY pos`)
	if err != nil {
		return fmt.Errorf("%w: reading movies: %v", types.ErrCorruptBundle, err)
	}
	defer func() { _ = rows.Close() }()

	movies := make([]types.Movie, 0, declared)
	ids := make([]int64, 0, declared)
	idToPos := make(map[int64]int, declared)

	for rows.Next() {
		var (
			pos         int
			movieID     int64
			title       string
			year        sql.NullInt64
			genresJSON  sql.NullString
			avgRating   float64
			ratingCount int64
			tagsJSON    sql.NullString
		)
		if err := rows.Scan(&pos, &movieID, &title, &year, &genresJSON, &avgRating, &ratingCount, &tagsJSON); err != nil {
			return fmt.Errorf("%w: scanning movie row: %v", types.ErrCorruptBundle, err)
		}
		if pos != len(movies) {
			return fmt.Errorf("%w: non-contiguous movie positions at pos %d", types.ErrCorruptBundle, pos)
		}

		m := types.Movie{
			ID:    movieID,
			Title: title,
			// Narrowed widths bound memory; values are unchanged.
			AvgRating:   float32(avgRating),
			RatingCount: int32(ratingCount),
		}
		if year.Valid {
			m.Year = int16(year.Int64)
		}
		if m.Genres, err = decodeStrings(genresJSON); err != nil {
			return fmt.Errorf("%w: movie %d genres: %v", types.ErrCorruptBundle, movieID, err)
		}
		if m.Tags, err = decodeStrings(tagsJSON); err != nil {
			return fmt.Errorf("%w: movie %d tags: %v", types.ErrCorruptBundle, movieID, err)
		}

		idToPos[movieID] = pos
		ids = append(ids, movieID)
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrCorruptBundle, err)
	}

	if len(movies) != declared {
		return fmt.Errorf("%w: header declares %d movies, table has %d",
			types.ErrCorruptBundle, declared, len(movies))
	}
	var embedded int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM embeddings`).Scan(&embedded); err != nil {
		return fmt.Errorf("%w: counting embeddings: %v", types.ErrCorruptBundle, err)
	}
	if embedded != declared {
		return fmt.Errorf("%w: %d movies but %d embedding rows",
			types.ErrCorruptBundle, declared, embedded)
	}

	s.movies = movies
	s.ids = ids
	s.idToPos = idToPos
	return nil
}

func (s *Store) loadProjection() error {
	var (
		inDim, outDim int
		blob          []byte
	)
	err := s.db.QueryRow(`SELECT in_dim, out_dim, weights FROM projection WHERE id = 1`).
		Scan(&inDim, &outDim, &blob)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading projection: %v", types.ErrCorruptBundle, err)
	}

	weights, err := codec.DecodeFloat32(blob)
	if err != nil {
		return fmt.Errorf("%w: projection weights: %v", types.ErrCorruptBundle, err)
	}
	t, err := codec.NewTransform(inDim, outDim, weights)
	if err != nil {
		return fmt.Errorf("%w: projection: %v", types.ErrCorruptBundle, err)
	}
	if outDim != s.dim {
		return fmt.Errorf("%w: projection outputs %d dims, matrix stores %d",
			types.ErrCorruptBundle, outDim, s.dim)
	}
	s.transform = t
	return nil
}

// Close releases the underlying database handle. The materialized matrix,
// if any, remains usable.
func (s *Store) Close() error {
	return s.db.Close()
}

// Count returns the number of movies in the bundle.
func (s *Store) Count() int { return len(s.movies) }

// Dim returns the stored embedding width.
func (s *Store) Dim() int { return s.dim }

// Encoding returns the on-disk vector representation.
func (s *Store) Encoding() Encoding { return s.encoding }

// ModelName returns the name of the model that produced the embeddings,
// or "" if the offline stage did not record one.
func (s *Store) ModelName() string { return s.modelName }

// Path returns the resolved bundle path.
func (s *Store) Path() string { return s.path }

// Projection returns the reduction transform persisted with the matrix,
// or nil when the bundle stores native-width vectors.
func (s *Store) Projection() *codec.Transform { return s.transform }

// Movies returns the full metadata table in position order. Callers must
// treat the slice as read-only.
func (s *Store) Movies() []types.Movie { return s.movies }

// Movie returns the metadata record at position i.
func (s *Store) Movie(i int) (types.Movie, error) {
	if i < 0 || i >= len(s.movies) {
		return types.Movie{}, fmt.Errorf("movie position %d out of range [0,%d)", i, len(s.movies))
	}
	return s.movies[i], nil
}

// PosForID resolves a movie identifier to its matrix position.
func (s *Store) PosForID(id int64) (int, bool) {
	pos, ok := s.idToPos[id]
	return pos, ok
}

// Materialize forces the embedding matrix into memory, dequantizing when
// the persisted form is quantized. Once a read succeeds the matrix is
// cached and every later call returns the same slices; a failed read (a
// canceled request context, most commonly) is not cached and the next call
// retries from disk. Context errors are returned as-is, not as corruption.
func (s *Store) Materialize(ctx context.Context) ([][]float32, error) {
	if s.matReady.Load() {
		return s.matrix, nil
	}
	s.matMu.Lock()
	defer s.matMu.Unlock()
	if s.matReady.Load() {
		return s.matrix, nil
	}

	matrix, err := s.readMatrix(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	s.matrix = matrix
	s.matReady.Store(true)
	logging.Debug().Int("rows", len(matrix)).Msg("embedding matrix materialized")
	return matrix, nil
}

func (s *Store) readMatrix(ctx context.Context) ([][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pos, vector FROM embeddings ORDER BY pos`)
	if err != nil {
		return nil, fmt.Errorf("%w: reading embeddings: %v", types.ErrCorruptBundle, err)
	}
	defer func() { _ = rows.Close() }()

	matrix := make([][]float32, len(s.movies))
	seen := 0
	for rows.Next() {
		var (
			pos  int
			blob []byte
		)
		if err := rows.Scan(&pos, &blob); err != nil {
			return nil, fmt.Errorf("%w: scanning embedding row: %v", types.ErrCorruptBundle, err)
		}
		if pos < 0 || pos >= len(matrix) {
			return nil, fmt.Errorf("%w: embedding pos %d out of range", types.ErrCorruptBundle, pos)
		}
		vec, err := s.decodeRow(blob)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding pos %d: %v", types.ErrCorruptBundle, pos, err)
		}
		matrix[pos] = vec
		seen++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCorruptBundle, err)
	}
	if seen != len(matrix) {
		return nil, fmt.Errorf("%w: expected %d embedding rows, decoded %d",
			types.ErrCorruptBundle, len(matrix), seen)
	}
	return matrix, nil
}

// Row returns the dequantized vector at position i. Served from the
// materialized matrix when available, else a single-row read.
func (s *Store) Row(ctx context.Context, i int) ([]float32, error) {
	if i < 0 || i >= len(s.movies) {
		return nil, fmt.Errorf("embedding position %d out of range [0,%d)", i, len(s.movies))
	}
	if s.matReady.Load() {
		return s.matrix[i], nil
	}

	var blob []byte
	if err := s.db.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE pos = ?`, i).Scan(&blob); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: embedding pos %d: %v", types.ErrCorruptBundle, i, err)
	}
	return s.decodeRow(blob)
}

// decodeRow turns an on-disk vector blob into a float32 vector, validating
// its width against the bundle header.
func (s *Store) decodeRow(blob []byte) ([]float32, error) {
	switch s.encoding {
	case EncodingUint8:
		if len(blob) != s.dim {
			return nil, fmt.Errorf("quantized row has %d bytes, want %d", len(blob), s.dim)
		}
		return codec.Dequantize(blob), nil
	case EncodingFloat32:
		vec, err := codec.DecodeFloat32(blob)
		if err != nil {
			return nil, err
		}
		if len(vec) != s.dim {
			return nil, fmt.Errorf("raw row has %d elements, want %d", len(vec), s.dim)
		}
		return vec, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", s.encoding)
	}
}

func decodeStrings(v sql.NullString) ([]string, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dshills/cinematch/internal/codec"
	"github.com/dshills/cinematch/pkg/types"
)

// WriteOptions configures bundle creation.
type WriteOptions struct {
	// Encoding selects the on-disk vector representation.
	// Defaults to EncodingUint8.
	Encoding Encoding

	// ModelName records which model produced the embeddings.
	ModelName string
}

// Write creates a bundle at path from an aligned movie table and embedding
// matrix, quantizing rows when the encoding is uint8. The transform may be
// nil. Writing happens inside a single transaction: a failed write leaves
// no partial bundle state behind.
//
// Write belongs to the offline preparation stage; serving code only reads.
func Write(path string, movies []types.Movie, matrix [][]float32, transform *codec.Transform, opts WriteOptions) error {
	if len(movies) != len(matrix) {
		return fmt.Errorf("movie count %d does not match matrix rows %d", len(movies), len(matrix))
	}
	if len(matrix) == 0 {
		return fmt.Errorf("refusing to write an empty bundle")
	}
	dim := len(matrix[0])
	for i, row := range matrix {
		if len(row) != dim {
			return fmt.Errorf("%w: row %d has %d elements, row 0 has %d",
				types.ErrDimensionMismatch, i, len(row), dim)
		}
	}
	if transform != nil && transform.OutDim() != dim {
		return fmt.Errorf("%w: transform outputs %d dims, matrix stores %d",
			types.ErrDimensionMismatch, transform.OutDim(), dim)
	}

	encoding := opts.Encoding
	if encoding == "" {
		encoding = EncodingUint8
	}
	if encoding != EncodingUint8 && encoding != EncodingFloat32 {
		return fmt.Errorf("unknown encoding %q", encoding)
	}

	db, err := openDatabase(path)
	if err != nil {
		return fmt.Errorf("failed to create bundle: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(schemaV1); err != nil {
		return fmt.Errorf("failed to create bundle schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := writeMeta(tx, dim, encoding, len(movies), opts.ModelName); err != nil {
		return err
	}
	if err := writeMovies(tx, movies); err != nil {
		return err
	}
	if err := writeMatrix(tx, matrix, encoding); err != nil {
		return err
	}
	if transform != nil {
		if _, err := tx.Exec(
			`INSERT INTO projection (id, in_dim, out_dim, weights) VALUES (1, ?, ?, ?)`,
			transform.InDim(), transform.OutDim(), codec.EncodeFloat32(transform.Weights()),
		); err != nil {
			return fmt.Errorf("failed to write projection: %w", err)
		}
	}

	return tx.Commit()
}

func writeMeta(tx *sql.Tx, dim int, encoding Encoding, count int, modelName string) error {
	meta := map[string]string{
		metaFormatVersion: FormatVersion,
		metaDim:           strconv.Itoa(dim),
		metaEncoding:      string(encoding),
		metaMovieCount:    strconv.Itoa(count),
		metaModelName:     modelName,
	}
	for k, v := range meta {
		if _, err := tx.Exec(`INSERT INTO bundle_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write bundle header: %w", err)
		}
	}
	return nil
}

func writeMovies(tx *sql.Tx, movies []types.Movie) error {
	stmt, err := tx.Prepare(
		`INSERT INTO movies (pos, movie_id, title, year, genres, avg_rating, rating_count, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for pos, m := range movies {
		tags := m.Tags
		if len(tags) > types.MaxTags {
			tags = tags[:types.MaxTags]
		}
		genresJSON, err := encodeStrings(m.Genres)
		if err != nil {
			return fmt.Errorf("movie %d genres: %w", m.ID, err)
		}
		tagsJSON, err := encodeStrings(tags)
		if err != nil {
			return fmt.Errorf("movie %d tags: %w", m.ID, err)
		}
		var year interface{}
		if m.Year != 0 {
			year = int64(m.Year)
		}
		if _, err := stmt.Exec(pos, m.ID, m.Title, year, genresJSON,
			float64(m.AvgRating), int64(m.RatingCount), tagsJSON); err != nil {
			return fmt.Errorf("failed to write movie %d: %w", m.ID, err)
		}
	}
	return nil
}

func writeMatrix(tx *sql.Tx, matrix [][]float32, encoding Encoding) error {
	stmt, err := tx.Prepare(`INSERT INTO embeddings (pos, vector) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for pos, row := range matrix {
		var blob []byte
		if encoding == EncodingUint8 {
			blob = codec.Quantize(row)
		} else {
			blob = codec.EncodeFloat32(row)
		}
		if _, err := stmt.Exec(pos, blob); err != nil {
			return fmt.Errorf("failed to write embedding %d: %w", pos, err)
		}
	}
	return nil
}

func encodeStrings(values []string) (interface{}, error) {
	if len(values) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

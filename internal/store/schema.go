package store

// FormatVersion is the bundle schema version this build reads and writes.
// A bundle declaring any other version is rejected at open time instead of
// failing somewhere inside deserialization.
const FormatVersion = "1"

// Encoding names the on-disk representation of embedding rows.
type Encoding string

const (
	// EncodingUint8 stores one quantized byte per vector element.
	EncodingUint8 Encoding = "uint8"

	// EncodingFloat32 stores raw little-endian float32 elements.
	EncodingFloat32 Encoding = "float32"
)

// Meta keys in the bundle_meta table.
const (
	metaFormatVersion = "format_version"
	metaDim           = "dim"
	metaEncoding      = "encoding"
	metaMovieCount    = "movie_count"
	metaModelName     = "model_name"
)

const schemaV1 = `
-- Self-describing bundle header
CREATE TABLE IF NOT EXISTS bundle_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Item metadata table. pos is the explicit row-index <-> identifier
-- mapping shared with the embeddings table; movie_id lookups must go
-- through it rather than relying on incidental ordering.
CREATE TABLE IF NOT EXISTS movies (
    pos          INTEGER PRIMARY KEY,
    movie_id     INTEGER NOT NULL UNIQUE,
    title        TEXT NOT NULL,
    year         INTEGER,
    genres       TEXT,
    avg_rating   REAL NOT NULL DEFAULT 0,
    rating_count INTEGER NOT NULL DEFAULT 0,
    tags         TEXT
);

CREATE INDEX IF NOT EXISTS idx_movies_movie_id ON movies(movie_id);

-- One embedding row per movie, same pos domain as movies.
CREATE TABLE IF NOT EXISTS embeddings (
    pos    INTEGER PRIMARY KEY,
    vector BLOB NOT NULL
);

-- Optional dimensionality-reduction transform; zero or one row.
CREATE TABLE IF NOT EXISTS projection (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    in_dim  INTEGER NOT NULL,
    out_dim INTEGER NOT NULL,
    weights BLOB NOT NULL
);
`

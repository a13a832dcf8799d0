package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/starford/notemind/internal/apperr"
	"github.com/starford/notemind/internal/checksum"
	"github.com/starford/notemind/internal/models"
)

// Header keys.
const (
	keyRowCount   = "row_count"
	keyDimensions = "dimensions"
	keyModel      = "model"
	keyChecksum   = "checksum"
)

// State is everything one synchronization pass commits: the scanned
// documents and the thought rows with their embeddings, in row order.
type State struct {
	Model      string
	Dimensions int
	Documents  []models.Document
	Thoughts   []models.Thought
}

// Rows returns the number of thought rows.
func (s *State) Rows() int { return len(s.Thoughts) }

// Save replaces the persisted state inside a single transaction, so a
// reader never sees thoughts and embeddings from different passes.
func (db *DB) Save(ctx context.Context, st *State) error {
	sum := checksum.NewRunning()
	blobs := make([][]byte, len(st.Thoughts))
	for i, t := range st.Thoughts {
		if len(t.Embedding) != st.Dimensions {
			return fmt.Errorf("index: save: row %d has %d dimensions, want %d: %w", i, len(t.Embedding), st.Dimensions, apperr.ErrDimensionMismatch)
		}
		blobs[i] = encodeVector(t.Embedding)
		sum.Add(blobs[i])
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, table := range []string{"documents", "thoughts", "embeddings", "header"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("index: clear %s: %w", table, err)
		}
	}

	docStmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (path, name, raw_text, checksum, tags) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare document insert: %w", err)
	}
	defer docStmt.Close()
	for _, d := range st.Documents {
		if _, err := docStmt.ExecContext(ctx, d.Path, d.Name, d.RawText, d.Checksum, encodeTags(d.Tags)); err != nil {
			return fmt.Errorf("index: insert document %s: %w", d.Path, err)
		}
	}

	thoughtStmt, err := tx.PrepareContext(ctx, `INSERT INTO thoughts (row, document_path, document_name, text, granularity, tags) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare thought insert: %w", err)
	}
	defer thoughtStmt.Close()
	embStmt, err := tx.PrepareContext(ctx, `INSERT INTO embeddings (row, vector) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare embedding insert: %w", err)
	}
	defer embStmt.Close()
	for i, t := range st.Thoughts {
		if _, err := thoughtStmt.ExecContext(ctx, i, t.DocumentPath, t.DocumentName, t.Text, string(t.Granularity), encodeTags(t.Tags)); err != nil {
			return fmt.Errorf("index: insert thought %d: %w", i, err)
		}
		if _, err := embStmt.ExecContext(ctx, i, blobs[i]); err != nil {
			return fmt.Errorf("index: insert embedding %d: %w", i, err)
		}
	}

	header := map[string]string{
		keyRowCount:   strconv.Itoa(len(st.Thoughts)),
		keyDimensions: strconv.Itoa(st.Dimensions),
		keyModel:      st.Model,
		keyChecksum:   sum.String(),
	}
	for k, v := range header {
		if _, err := tx.ExecContext(ctx, `INSERT INTO header (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("index: write header: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	return nil
}

// Load reads the persisted state. It returns (nil, nil) when nothing was
// ever saved and apperr.ErrCorruptState when the tables disagree with each
// other or with the header.
func (db *DB) Load(ctx context.Context) (*State, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // nothing to undo

	header, err := readHeader(ctx, tx)
	if err != nil {
		return nil, err
	}
	docs, err := readDocuments(ctx, tx)
	if err != nil {
		return nil, err
	}
	thoughts, err := readThoughts(ctx, tx)
	if err != nil {
		return nil, err
	}
	vectors, err := readEmbeddings(ctx, tx)
	if err != nil {
		return nil, err
	}

	if len(header) == 0 {
		if len(docs) == 0 && len(thoughts) == 0 && len(vectors) == 0 {
			return nil, nil
		}
		return nil, corrupt("header missing")
	}

	rowCount, err := strconv.Atoi(header[keyRowCount])
	if err != nil {
		return nil, corrupt("bad row_count %q", header[keyRowCount])
	}
	dims, err := strconv.Atoi(header[keyDimensions])
	if err != nil || dims < 0 {
		return nil, corrupt("bad dimensions %q", header[keyDimensions])
	}
	if len(thoughts) != rowCount || len(vectors) != rowCount {
		return nil, corrupt("row count mismatch: header %d, thoughts %d, embeddings %d", rowCount, len(thoughts), len(vectors))
	}

	sum := checksum.NewRunning()
	for i, blob := range vectors {
		sum.Add(blob)
		v, ok := decodeVector(blob, dims)
		if !ok {
			return nil, corrupt("embedding %d has %d bytes, want %d", i, len(blob), 4*dims)
		}
		thoughts[i].Embedding = v
	}
	if sum.String() != header[keyChecksum] {
		return nil, corrupt("embedding checksum mismatch")
	}

	known := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		known[d.Path] = struct{}{}
	}
	for i, t := range thoughts {
		if _, ok := known[t.DocumentPath]; !ok {
			return nil, corrupt("thought %d belongs to unknown document %s", i, t.DocumentPath)
		}
	}

	return &State{
		Model:      header[keyModel],
		Dimensions: dims,
		Documents:  docs,
		Thoughts:   thoughts,
	}, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("index: load: %s: %w", fmt.Sprintf(format, args...), apperr.ErrCorruptState)
}

func readHeader(ctx context.Context, tx *sql.Tx) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM header`)
	if err != nil {
		return nil, fmt.Errorf("index: read header: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func readDocuments(ctx context.Context, tx *sql.Tx) ([]models.Document, error) {
	rows, err := tx.QueryContext(ctx, `SELECT path, name, raw_text, checksum, tags FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: read documents: %w", err)
	}
	defer rows.Close()
	var out []models.Document
	for rows.Next() {
		var d models.Document
		var tags string
		if err := rows.Scan(&d.Path, &d.Name, &d.RawText, &d.Checksum, &tags); err != nil {
			return nil, err
		}
		if d.Tags, err = decodeTags(tags); err != nil {
			return nil, corrupt("document %s tags: %v", d.Path, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func readThoughts(ctx context.Context, tx *sql.Tx) ([]models.Thought, error) {
	rows, err := tx.QueryContext(ctx, `SELECT row, document_path, document_name, text, granularity, tags FROM thoughts ORDER BY row`)
	if err != nil {
		return nil, fmt.Errorf("index: read thoughts: %w", err)
	}
	defer rows.Close()
	var out []models.Thought
	for rows.Next() {
		var (
			row         int
			t           models.Thought
			granularity string
			tags        string
		)
		if err := rows.Scan(&row, &t.DocumentPath, &t.DocumentName, &t.Text, &granularity, &tags); err != nil {
			return nil, err
		}
		if row != len(out) {
			return nil, corrupt("thought rows not contiguous at %d", row)
		}
		t.Granularity = models.Granularity(granularity)
		if t.Tags, err = decodeTags(tags); err != nil {
			return nil, corrupt("thought %d tags: %v", row, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func readEmbeddings(ctx context.Context, tx *sql.Tx) ([][]byte, error) {
	rows, err := tx.QueryContext(ctx, `SELECT row, vector FROM embeddings ORDER BY row`)
	if err != nil {
		return nil, fmt.Errorf("index: read embeddings: %w", err)
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var (
			row  int
			blob []byte
		)
		if err := rows.Scan(&row, &blob); err != nil {
			return nil, err
		}
		if row != len(out) {
			return nil, corrupt("embedding rows not contiguous at %d", row)
		}
		out = append(out, blob)
	}
	return out, rows.Err()
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func decodeTags(s string) ([]string, error) {
	tags := []string{}
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// encodeVector stores v as little-endian float32.
func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte, dims int) ([]float32, bool) {
	if len(b) != 4*dims {
		return nil, false
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, true
}

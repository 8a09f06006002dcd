package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

// ErrNotFound is returned for lookups of documents that do not exist.
var ErrNotFound = errors.New("document not found")

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	title          TEXT NOT NULL,
	filename       TEXT NOT NULL,
	file_path      TEXT NOT NULL UNIQUE,
	content        TEXT NOT NULL DEFAULT '',
	content_hash   TEXT NOT NULL DEFAULT '',
	source_url     TEXT NOT NULL DEFAULT '',
	provider       TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	tags           TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	file_size      INTEGER NOT NULL DEFAULT 0,
	word_count     INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL,
	processed_at   TIMESTAMP,
	vector_indexed INTEGER NOT NULL DEFAULT 0,
	search_indexed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_documents_status   ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_provider ON documents(provider);
CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);
`

// Store is the document catalog: the source of truth for document
// identity, provider/category and index-status bookkeeping.
type Store struct {
	db     *sql.DB
	logger *logger_i.Logger
}

func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate catalog schema: %w", err)
	}

	logger := logger_i.NewLogger("Catalog")
	logger.Info("catalog opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(tags string) []string {
	if tags == "" {
		return nil
	}
	return strings.Split(tags, ",")
}

func (s *Store) Insert(ctx context.Context, doc *docmodel.Document) (int64, error) {
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = docmodel.StatusPending
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents
			(title, filename, file_path, content, content_hash, source_url,
			 provider, category, tags, status, file_size, word_count,
			 created_at, updated_at, vector_indexed, search_indexed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.Title, doc.Filename, doc.FilePath, doc.Content, doc.ContentHash,
		doc.SourceURL, doc.Provider, doc.Category, joinTags(doc.Tags),
		string(doc.Status), doc.FileSize, doc.WordCount,
		doc.CreatedAt, doc.UpdatedAt, doc.VectorIndexed, doc.SearchIndexed)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	doc.ID = id
	return id, nil
}

func (s *Store) Update(ctx context.Context, doc *docmodel.Document) error {
	doc.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET
			title = ?, filename = ?, file_path = ?, content = ?,
			content_hash = ?, source_url = ?, provider = ?, category = ?,
			tags = ?, status = ?, file_size = ?, word_count = ?,
			updated_at = ?, processed_at = ?, vector_indexed = ?, search_indexed = ?
		WHERE id = ?`,
		doc.Title, doc.Filename, doc.FilePath, doc.Content,
		doc.ContentHash, doc.SourceURL, doc.Provider, doc.Category,
		joinTags(doc.Tags), string(doc.Status), doc.FileSize, doc.WordCount,
		doc.UpdatedAt, doc.ProcessedAt, doc.VectorIndexed, doc.SearchIndexed,
		doc.ID)
	if err != nil {
		return fmt.Errorf("failed to update document %d: %w", doc.ID, err)
	}
	return requireRow(res)
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, status docmodel.DocumentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update status of document %d: %w", id, err)
	}
	return requireRow(res)
}

// SetIndexed flips both index flags in one write, keeping the
// vector_indexed == search_indexed invariant.
func (s *Store) SetIndexed(ctx context.Context, id int64, indexed bool) error {
	var processedAt any
	status := docmodel.StatusFailed
	if indexed {
		status = docmodel.StatusProcessed
		processedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET
			vector_indexed = ?, search_indexed = ?, status = ?,
			processed_at = COALESCE(?, processed_at), updated_at = ?
		WHERE id = ?`,
		indexed, indexed, string(status), processedAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set index flags of document %d: %w", id, err)
	}
	return requireRow(res)
}

// ClearIndexed drops both index flags and returns the document to the
// pending state. Used by deliberate reindex and reset flows, as opposed
// to SetIndexed(false) which records a failure.
func (s *Store) ClearIndexed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET
			vector_indexed = 0, search_indexed = 0, status = ?, updated_at = ?
		WHERE id = ?`,
		string(docmodel.StatusPending), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to clear index flags of document %d: %w", id, err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const docColumns = `
	id, title, filename, file_path, content, content_hash, source_url,
	provider, category, tags, status, file_size, word_count,
	created_at, updated_at, processed_at, vector_indexed, search_indexed`

func scanDocument(row interface{ Scan(...any) error }) (*docmodel.Document, error) {
	var doc docmodel.Document
	var tags, status string
	var processedAt sql.NullTime

	err := row.Scan(&doc.ID, &doc.Title, &doc.Filename, &doc.FilePath,
		&doc.Content, &doc.ContentHash, &doc.SourceURL, &doc.Provider,
		&doc.Category, &tags, &status, &doc.FileSize, &doc.WordCount,
		&doc.CreatedAt, &doc.UpdatedAt, &processedAt,
		&doc.VectorIndexed, &doc.SearchIndexed)
	if err != nil {
		return nil, err
	}
	doc.Tags = splitTags(tags)
	doc.Status = docmodel.DocumentStatus(status)
	if processedAt.Valid {
		doc.ProcessedAt = &processedAt.Time
	}
	return &doc, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*docmodel.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %d: %w", id, err)
	}
	return doc, nil
}

func (s *Store) GetByFilePath(ctx context.Context, filePath string) (*docmodel.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM documents WHERE file_path = ?`, filePath)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document by path %s: %w", filePath, err)
	}
	return doc, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	return requireRow(res)
}

// ListOptions narrow and page the catalog listing. Zero values mean
// "no constraint"; Limit 0 falls back to 100.
type ListOptions struct {
	Status   docmodel.DocumentStatus
	Provider string
	Category string
	Skip     int
	Limit    int
}

func (s *Store) List(ctx context.Context, opts ListOptions) ([]*docmodel.Document, int, error) {
	var where []string
	var args []any
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}
	if opts.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, opts.Provider)
	}
	if opts.Category != "" {
		where = append(where, "category = ?")
		args = append(args, opts.Category)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	listArgs := append(args, limit, opts.Skip)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+docColumns+` FROM documents`+clause+
			` ORDER BY id LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*docmodel.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// All streams every catalog row ordered by id; the bulk reindex sweep
// iterates real catalog ids rather than inventing transient ones.
func (s *Store) All(ctx context.Context) ([]*docmodel.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+docColumns+` FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load all documents: %w", err)
	}
	defer rows.Close()

	var docs []*docmodel.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Counts aggregates document totals by status for the stats endpoint.
func (s *Store) Counts(ctx context.Context) (total int, byStatus map[string]int, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to count documents: %w", err)
	}
	defer rows.Close()

	byStatus = map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, nil, err
		}
		byStatus[status] = n
		total += n
	}
	return total, byStatus, rows.Err()
}

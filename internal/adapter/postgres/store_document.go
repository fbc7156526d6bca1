package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/document"
	"github.com/quothlabs/quoth/internal/port/database"
)

const documentColumns = `id, project_id, file_path, title, content, checksum, doc_type, visibility, version, agent_id, last_updated`

func scanDocument(row interface{ Scan(...any) error }) (*document.Document, error) {
	var d document.Document
	err := row.Scan(&d.ID, &d.ProjectID, &d.FilePath, &d.Title, &d.Content,
		&d.Checksum, &d.DocType, &d.Visibility, &d.Version, &d.AgentID, &d.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) GetDocumentByPath(ctx context.Context, projectID, filePath string) (*document.Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE project_id = $1 AND file_path = $2`,
		projectID, filePath))
	if err != nil {
		return nil, mapErr("get document by path", err)
	}
	return d, nil
}

func (s *Store) GetDocumentByTitle(ctx context.Context, projectID, title string) (*document.Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE project_id = $1 AND lower(title) = lower($2)`,
		projectID, title))
	if err != nil {
		return nil, mapErr("get document by title", err)
	}
	return d, nil
}

// FindDocumentLike resolves a doc id fragment against path and title,
// preferring the most recently updated match.
func (s *Store) FindDocumentLike(ctx context.Context, projectID, fragment string) (*document.Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE project_id = $1 AND (file_path ILIKE '%' || $2 || '%' OR title ILIKE '%' || $2 || '%')
		 ORDER BY last_updated DESC
		 LIMIT 1`,
		projectID, fragment))
	if err != nil {
		return nil, mapErr("find document", err)
	}
	return d, nil
}

func (s *Store) FindSharedDocument(ctx context.Context, organizationID, fragment string) (*document.Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT d.id, d.project_id, d.file_path, d.title, d.content, d.checksum, d.doc_type, d.visibility, d.version, d.agent_id, d.last_updated
		 FROM documents d
		 JOIN projects p ON p.id = d.project_id
		 WHERE p.organization_id = $1 AND d.visibility = 'shared'
		   AND (d.file_path ILIKE '%' || $2 || '%' OR d.title ILIKE '%' || $2 || '%')
		 ORDER BY d.last_updated DESC
		 LIMIT 1`,
		organizationID, fragment))
	if err != nil {
		return nil, mapErr("find shared document", err)
	}
	return d, nil
}

func (s *Store) ListDocuments(ctx context.Context, projectID string) ([]document.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE project_id = $1 ORDER BY file_path`,
		projectID)
	if err != nil {
		return nil, mapErr("list documents", err)
	}
	defer rows.Close()

	var out []document.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, mapErr("scan document", err)
		}
		out = append(out, *d)
	}
	return out, mapErr("list documents", rows.Err())
}

func (s *Store) ListDocumentPaths(ctx context.Context, projectID string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT file_path FROM documents WHERE project_id = $1 ORDER BY last_updated DESC LIMIT $2`,
		projectID, limit)
	if err != nil {
		return nil, mapErr("list document paths", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, mapErr("scan document path", err)
		}
		out = append(out, p)
	}
	return out, mapErr("list document paths", rows.Err())
}

func (s *Store) UpdateDocumentType(ctx context.Context, documentID string, docType document.DocType) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET doc_type = $2 WHERE id = $1`,
		documentID, docType)
	if err != nil {
		return mapErr("update document type", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update document type: %w", domain.ErrNotFound)
	}
	return nil
}

// GetChunkHashes returns chunk_hash -> chunk_id for one document.
func (s *Store) GetChunkHashes(ctx context.Context, documentID string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT chunk_hash, id FROM chunks WHERE document_id = $1`,
		documentID)
	if err != nil {
		return nil, mapErr("get chunk hashes", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var hash, id string
		if err := rows.Scan(&hash, &id); err != nil {
			return nil, mapErr("scan chunk hash", err)
		}
		out[hash] = id
	}
	return out, mapErr("get chunk hashes", rows.Err())
}

// ApplyDocumentSync upserts the document row, deletes orphaned chunks,
// and inserts new chunks in one transaction. Concurrent syncs of the
// same (project, path) serialize on an advisory lock; if the winner
// already stored this checksum the transition degrades to a no-op.
func (s *Store) ApplyDocumentSync(ctx context.Context, sync database.DocumentSync) (*database.SyncOutcome, error) {
	doc := sync.Document

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapErr("begin sync", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`,
		doc.ProjectID, doc.FilePath)
	if err != nil {
		return nil, mapErr("acquire sync lock", err)
	}

	// Re-check under the lock: a concurrent writer may have stored the
	// same content between planning and here.
	existing, err := scanDocument(tx.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE project_id = $1 AND file_path = $2`,
		doc.ProjectID, doc.FilePath))
	if err == nil && existing.Checksum == doc.Checksum {
		return &database.SyncOutcome{Document: existing, NoOp: true}, nil
	}

	stored, err := scanDocument(tx.QueryRow(ctx, `
		INSERT INTO documents (project_id, file_path, title, content, checksum, doc_type, visibility, agent_id, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (project_id, file_path) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			checksum = EXCLUDED.checksum,
			doc_type = EXCLUDED.doc_type,
			visibility = EXCLUDED.visibility,
			agent_id = EXCLUDED.agent_id,
			version = documents.version + 1,
			last_updated = now()
		RETURNING `+documentColumns,
		doc.ProjectID, doc.FilePath, doc.Title, doc.Content, doc.Checksum,
		doc.DocType, doc.Visibility, doc.AgentID))
	if err != nil {
		return nil, mapErr("upsert document", err)
	}

	if len(sync.DeleteChunks) > 0 {
		_, err = tx.Exec(ctx,
			`DELETE FROM chunks WHERE document_id = $1 AND id = ANY($2)`,
			stored.ID, sync.DeleteChunks)
		if err != nil {
			return nil, mapErr("delete orphan chunks", err)
		}
	}

	for i := range sync.InsertChunks {
		c := &sync.InsertChunks[i]
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal chunk metadata: %w", err)
		}
		var emb any
		if len(c.Embedding) > 0 {
			emb = vectorLiteral(c.Embedding)
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO chunks (document_id, content_chunk, chunk_hash, embedding, embedding_model, metadata)
			VALUES ($1, $2, $3, $4::vector, $5, $6)
			RETURNING id`,
			stored.ID, c.Content, c.Hash, emb, c.EmbeddingModel, meta,
		).Scan(&c.ID)
		if err != nil {
			return nil, mapErr("insert chunk", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapErr("commit sync", err)
	}
	return &database.SyncOutcome{Document: stored}, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/quothlabs/quoth/internal/port/database"
)

func scanMatches(rows pgx.Rows, withScore bool) ([]database.MatchResult, error) {
	defer rows.Close()

	var out []database.MatchResult
	for rows.Next() {
		var m database.MatchResult
		var meta []byte
		var err error
		if withScore {
			err = rows.Scan(&m.ChunkID, &m.DocumentID, &m.Title, &m.FilePath, &m.Content, &meta, &m.Similarity)
		} else {
			err = rows.Scan(&m.ChunkID, &m.DocumentID, &m.Title, &m.FilePath, &m.Content, &meta)
		}
		if err != nil {
			return nil, mapErr("scan match", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				return nil, mapErr("decode chunk metadata", err)
			}
		}
		out = append(out, m)
	}
	return out, mapErr("iterate matches", rows.Err())
}

func (s *Store) MatchDocuments(ctx context.Context, q database.VectorQuery) ([]database.MatchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT * FROM match_documents($1, $2::vector, $3, $4, $5)`,
		q.ProjectID, vectorLiteral(q.Embedding), q.EmbeddingModel, q.Threshold, q.Count)
	if err != nil {
		return nil, mapErr("match documents", err)
	}
	return scanMatches(rows, true)
}

func (s *Store) MatchSharedDocuments(ctx context.Context, organizationID string, q database.VectorQuery) ([]database.MatchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT * FROM match_shared_documents($1, $2::vector, $3, $4, $5)`,
		organizationID, vectorLiteral(q.Embedding), q.EmbeddingModel, q.Threshold, q.Count)
	if err != nil {
		return nil, mapErr("match shared documents", err)
	}
	return scanMatches(rows, true)
}

func (s *Store) GetChunksByIDs(ctx context.Context, projectID string, chunkIDs []string) ([]database.MatchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT * FROM get_chunks_by_ids($1, $2::uuid[])`,
		projectID, chunkIDs)
	if err != nil {
		return nil, mapErr("get chunks by ids", err)
	}
	return scanMatches(rows, false)
}

// KeywordSearchChunks runs a full-text AND query over chunk content,
// project-scoped, ranked by ts_rank.
func (s *Store) KeywordSearchChunks(ctx context.Context, projectID string, tokens []string, limit int) ([]database.MatchResult, error) {
	query := strings.Join(tokens, " & ")
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, d.id, d.title, d.file_path, c.content_chunk, c.metadata,
		       ts_rank(to_tsvector('english', c.content_chunk), to_tsquery('english', $2))::double precision
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.project_id = $1
		  AND to_tsvector('english', c.content_chunk) @@ to_tsquery('english', $2)
		ORDER BY 7 DESC
		LIMIT $3`,
		projectID, query, limit)
	if err != nil {
		return nil, mapErr("keyword search", err)
	}
	return scanMatches(rows, true)
}

// SubstringSearchChunks is the last-resort degrade: case-insensitive
// substring match on a single token.
func (s *Store) SubstringSearchChunks(ctx context.Context, projectID, token string, limit int) ([]database.MatchResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, d.id, d.title, d.file_path, c.content_chunk, c.metadata
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.project_id = $1
		  AND c.content_chunk ILIKE '%' || $2 || '%'
		ORDER BY d.last_updated DESC
		LIMIT $3`,
		projectID, token, limit)
	if err != nil {
		return nil, mapErr("substring search", err)
	}
	return scanMatches(rows, false)
}

func (s *Store) CoverageCounts(ctx context.Context, projectID string) (total, withEmbeddings int, byType map[string]int, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE EXISTS (
		           SELECT 1 FROM chunks c WHERE c.document_id = d.id AND c.embedding IS NOT NULL))
		FROM documents d
		WHERE d.project_id = $1`,
		projectID,
	).Scan(&total, &withEmbeddings)
	if err != nil {
		return 0, 0, nil, mapErr("coverage counts", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT doc_type, count(*)
		FROM documents
		WHERE project_id = $1
		GROUP BY doc_type`,
		projectID)
	if err != nil {
		return 0, 0, nil, mapErr("coverage by type", err)
	}
	defer rows.Close()

	byType = make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return 0, 0, nil, mapErr("scan coverage row", err)
		}
		if t == "" {
			t = "uncategorized"
		}
		byType[t] = n
	}
	return total, withEmbeddings, byType, mapErr("coverage by type", rows.Err())
}

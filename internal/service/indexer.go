package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	qotel "github.com/quothlabs/quoth/internal/adapter/otel"
	"github.com/quothlabs/quoth/internal/chunk"
	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/document"
	"github.com/quothlabs/quoth/internal/port/database"
	"github.com/quothlabs/quoth/internal/port/embedder"
)

// SyncRequest carries one document revision into the index.
type SyncRequest struct {
	ProjectID  string
	FilePath   string
	Title      string
	Content    string
	AgentID    string
	Visibility document.Visibility
}

// SyncResult reports what the incremental index did with a revision.
type SyncResult struct {
	Document      *document.Document
	ChunksIndexed int
	ChunksReused  int
}

// IndexerService performs chunk-hash-diffed incremental syncs: only
// chunks whose hash changed are re-embedded; surviving chunks keep
// their stable id and embedding.
type IndexerService struct {
	store        database.Store
	embedder     embedder.Embedder
	logger       *slog.Logger
	embedSpacing time.Duration
}

// NewIndexerService creates the indexer. embedSpacing paces successive
// embed calls during one sync; zero means burst mode.
func NewIndexerService(store database.Store, emb embedder.Embedder, embedSpacing time.Duration, logger *slog.Logger) *IndexerService {
	return &IndexerService{
		store:        store,
		embedder:     emb,
		logger:       logger,
		embedSpacing: embedSpacing,
	}
}

// Sync applies one document revision. Unchanged content is a no-op;
// otherwise the document row is upserted, orphaned chunks deleted, and
// new chunks embedded and inserted in one transaction.
func (s *IndexerService) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	ctx, span := qotel.StartSyncSpan(ctx, req.ProjectID, req.FilePath)
	defer span.End()

	checksum := document.Checksum(req.Content)

	existing, err := s.store.GetDocumentByPath(ctx, req.ProjectID, req.FilePath)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("lookup document: %w", err)
		}
		existing = nil
	} else if existing.Checksum == checksum {
		return &SyncResult{Document: existing}, nil
	}

	docType, ok := document.TypeFromFrontmatter(req.Content)
	if !ok {
		docType = document.InferType(req.FilePath)
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = document.VisibilityProject
	}

	doc := &document.Document{
		ProjectID:  req.ProjectID,
		FilePath:   req.FilePath,
		Title:      req.Title,
		Content:    req.Content,
		Checksum:   checksum,
		DocType:    docType,
		Visibility: visibility,
		AgentID:    req.AgentID,
	}

	chunks := chunk.Split(req.FilePath, req.Content)

	stored := map[string]string{}
	if existing != nil {
		stored, err = s.store.GetChunkHashes(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("load chunk hashes: %w", err)
		}
	}

	newHashes := make(map[string]bool, len(chunks))
	var toEmbed []indexChunk
	for i, c := range chunks {
		h := chunk.Hash(c.Content)
		newHashes[h] = true
		if _, reused := stored[h]; !reused {
			toEmbed = append(toEmbed, indexChunk{index: i, hash: h, chunk: c})
		}
	}

	var toDelete []string
	for h, id := range stored {
		if !newHashes[h] {
			toDelete = append(toDelete, id)
		}
	}

	inserts := s.embedChunks(ctx, toEmbed)

	outcome, err := s.store.ApplyDocumentSync(ctx, database.DocumentSync{
		Document:     doc,
		DeleteChunks: toDelete,
		InsertChunks: inserts,
	})
	if err != nil {
		return nil, fmt.Errorf("apply sync: %w", err)
	}
	if outcome.NoOp {
		// A concurrent writer landed the same content first.
		return &SyncResult{Document: outcome.Document}, nil
	}

	return &SyncResult{
		Document:      outcome.Document,
		ChunksIndexed: len(inserts),
		ChunksReused:  len(chunks) - len(toEmbed),
	}, nil
}

type indexChunk struct {
	index int
	hash  string
	chunk chunk.Chunk
}

// embedChunks embeds the changed chunks, pacing calls to respect the
// provider's rate budget. A failed embed skips that chunk only; the
// document still completes as a partial index.
func (s *IndexerService) embedChunks(ctx context.Context, toEmbed []indexChunk) []document.Chunk {
	var out []document.Chunk
	for i, ic := range toEmbed {
		if i > 0 && s.embedSpacing > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(s.embedSpacing):
			}
		}

		contentType := chunk.Classify(ic.chunk.Content)
		vector, model, err := s.embedder.EmbedPassage(ctx, ic.chunk.Content, contentType)
		if err != nil && embedder.IsRetryable(err) {
			vector, model, err = s.embedder.EmbedPassage(ctx, ic.chunk.Content, contentType)
		}
		if err != nil {
			s.logger.Warn("chunk embed failed, skipping",
				"chunk_index", ic.index, "error", err)
			continue
		}

		out = append(out, document.Chunk{
			Content:        ic.chunk.Content,
			Hash:           ic.hash,
			Embedding:      vector,
			EmbeddingModel: model,
			Metadata: document.ChunkMetadata{
				ChunkIndex:    ic.index,
				Language:      ic.chunk.Meta.Language,
				StartLine:     ic.chunk.Meta.StartLine,
				EndLine:       ic.chunk.Meta.EndLine,
				ParentContext: ic.chunk.Meta.ParentContext,
				Source:        "incremental-sync",
				ContentType:   string(contentType),
			},
		})
	}
	return out
}

// Package ingest turns documents into searchable knowledge: clean, split
// into chunks, embed, and store in the vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/corvus-ai/corvid/internal/chunker"
	"github.com/corvus-ai/corvid/internal/log"
	"github.com/corvus-ai/corvid/internal/provider"
	"github.com/corvus-ai/corvid/internal/vectorindex"
)

// CollectionKnowledge is the vector collection holding ingested document
// chunks.
const CollectionKnowledge = "knowledge"

// embedBatchSize bounds one embedding request.
const embedBatchSize = 64

// ErrInvalidDocument reports a document missing an ID or content.
var ErrInvalidDocument = errors.New("ingest: invalid document")

// VectorWriter is the slice of the vector index the pipeline needs.
type VectorWriter interface {
	Upsert(ctx context.Context, ns vectorindex.Namespace, records []vectorindex.Record) error
	DeleteMatching(ctx context.Context, ns vectorindex.Namespace, filter map[string]any) (int64, error)
}

// Document is one unit of knowledge to ingest. ID must be stable across
// re-ingestion so updated documents replace their old chunks.
type Document struct {
	ID      string
	Title   string
	Content string

	// Metadata is carried into every chunk payload.
	Metadata map[string]any
}

// Result summarizes one ingestion.
type Result struct {
	DocumentID string
	Chunks     int
}

// Pipeline ingests documents for all tenants.
type Pipeline struct {
	embedder provider.Embedder
	vectors  VectorWriter
	opts     chunker.Options
	logger   log.Logger
}

// New creates a Pipeline. opts zero value selects the chunker defaults.
func New(embedder provider.Embedder, vectors VectorWriter, opts chunker.Options, logger log.Logger) *Pipeline {
	return &Pipeline{
		embedder: embedder,
		vectors:  vectors,
		opts:     opts,
		logger:   logger,
	}
}

// Ingest processes one document. Embedding happens before the index is
// touched, so an embedding failure leaves existing records intact; the
// chunk batch itself lands transactionally. Re-ingesting a document ID
// replaces all of its previous chunks.
//
// A document that cleans to nothing is not an error: it simply yields no
// records.
func (p *Pipeline) Ingest(ctx context.Context, tenant string, doc Document) (*Result, error) {
	if tenant == "" {
		return nil, fmt.Errorf("%w: empty tenant", ErrInvalidDocument)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("%w: empty document id", ErrInvalidDocument)
	}

	chunks, err := chunker.Split(doc.Content, doc.Title, p.opts)
	if err != nil {
		return nil, fmt.Errorf("split document %s: %w", doc.ID, err)
	}
	if len(chunks) == 0 {
		p.logger.Debug("document empty after cleaning", "tenant", tenant, "document_id", doc.ID)
		return &Result{DocumentID: doc.ID}, nil
	}

	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", doc.ID, err)
	}

	records := make([]vectorindex.Record, len(chunks))
	for i, c := range chunks {
		payload := map[string]any{
			"document_id":     doc.ID,
			"title":           c.Title,
			"content":         c.Content,
			"chunk_index":     c.Index,
			"chunk_total":     c.Total,
			"chunk_start":     c.Start,
			"chunk_end":       c.End,
			"overlap":         c.Overlap,
			"original_length": c.OriginalLength,
			"complete":        c.Complete,
		}
		for k, v := range doc.Metadata {
			if _, reserved := payload[k]; !reserved {
				payload[k] = v
			}
		}
		records[i] = vectorindex.Record{
			ID:      fmt.Sprintf("%s:%d", doc.ID, c.Index),
			Vector:  vectors[i],
			Payload: payload,
		}
	}

	ns := vectorindex.Namespace{Tenant: tenant, Collection: CollectionKnowledge}

	// Drop the old generation first so a shrunken document cannot leave
	// stale tail chunks behind.
	if _, err := p.vectors.DeleteMatching(ctx, ns, map[string]any{"document_id": doc.ID}); err != nil {
		return nil, fmt.Errorf("replace document %s: %w", doc.ID, err)
	}
	if err := p.vectors.Upsert(ctx, ns, records); err != nil {
		return nil, fmt.Errorf("store document %s: %w", doc.ID, err)
	}

	p.logger.Info("ingested document",
		"tenant", tenant, "document_id", doc.ID, "chunks", len(records))
	return &Result{DocumentID: doc.ID, Chunks: len(records)}, nil
}

// Remove deletes every chunk of a document.
func (p *Pipeline) Remove(ctx context.Context, tenant, documentID string) (int64, error) {
	if tenant == "" || documentID == "" {
		return 0, fmt.Errorf("%w: empty tenant or document id", ErrInvalidDocument)
	}
	ns := vectorindex.Namespace{Tenant: tenant, Collection: CollectionKnowledge}
	n, err := p.vectors.DeleteMatching(ctx, ns, map[string]any{"document_id": documentID})
	if err != nil {
		return 0, fmt.Errorf("remove document %s: %w", documentID, err)
	}
	p.logger.Info("removed document", "tenant", tenant, "document_id", documentID, "chunks", n)
	return n, nil
}

// Estimate reports how a document would chunk without touching the
// embedder or the index.
func (p *Pipeline) Estimate(doc Document) (chunker.Estimate, error) {
	return chunker.EstimateChunks(doc.Content, p.opts)
}

func (p *Pipeline) embedChunks(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		batch, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

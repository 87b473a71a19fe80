package assistant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/pkg/business"
)

// UploadDocument extracts, chunks, embeds and stores the file at path. The
// document id is name when given, otherwise the file's base name. Re-uploading
// an id replaces its chunks.
func (a *Assistant) UploadDocument(ctx context.Context, path, name string) (*UploadResult, error) {
	doc, err := a.processor.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", path, err)
	}
	doc.ID = strings.TrimSpace(name)
	if doc.ID == "" {
		doc.ID = doc.Filename
	}

	result, err := a.index(ctx, doc, a.processor.Chunk(doc.Content))
	if err != nil {
		return nil, err
	}

	if doc.Type.Tabular() {
		switch err := a.business.AddDocument(doc.ID, path, doc.Type); {
		case err == nil:
			result.BusinessData = true
		case errors.Is(err, business.ErrNoFinancialData):
			a.business.Remove(doc.ID)
			a.logger.Debug("no financial columns", zap.String("document_id", doc.ID))
		default:
			a.logger.Warn("business analysis failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	return result, nil
}

// IngestDocuments indexes documents that were already extracted, such as
// scraped pages. Each document must carry an ID. Documents without text are
// skipped.
func (a *Assistant) IngestDocuments(ctx context.Context, docs []models.Document, onProgress func(done, total int)) ([]UploadResult, error) {
	processed, err := a.processor.Process(docs)
	if err != nil {
		return nil, err
	}

	results := make([]UploadResult, 0, len(processed))
	for i, p := range processed {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if p.ID == "" {
			p.ID = p.Filename
		}
		result, err := a.index(ctx, p.Document, p.Chunks)
		switch {
		case errors.Is(err, ErrEmptyDocument):
			a.logger.Debug("skipping empty document", zap.String("document_id", p.ID))
		case err != nil:
			return results, err
		default:
			results = append(results, *result)
		}
		if onProgress != nil {
			onProgress(i+1, len(processed))
		}
	}
	return results, nil
}

// IngestURL crawls startURL and indexes every page found.
func (a *Assistant) IngestURL(ctx context.Context, startURL string, onProgress func(done, total int)) ([]UploadResult, error) {
	if a.scraper == nil {
		return nil, ErrScraperDisabled
	}
	docs, err := a.scraper.Scrape(ctx, startURL)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", startURL, err)
	}
	return a.IngestDocuments(ctx, docs, onProgress)
}

func (a *Assistant) index(ctx context.Context, doc models.Document, texts []string) (*UploadResult, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%s: %w", doc.Filename, ErrEmptyDocument)
	}

	uploaded := a.now().UTC()
	base := chunkMetadata(doc, uploaded)
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		meta := make(map[string]string, len(base))
		for k, v := range base {
			meta[k] = v
		}
		chunks[i] = models.Chunk{
			DocumentID: doc.ID,
			Index:      i,
			Content:    text,
			Metadata:   meta,
		}
	}

	vectors, err := a.embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s: %w", doc.ID, err)
	}
	// The old chunks stay searchable until the new ones are embedded.
	if _, err := a.store.DeleteDocument(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to replace document %s: %w", doc.ID, err)
	}
	ids, err := a.store.Add(ctx, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", doc.ID, err)
	}

	info := models.DocumentInfo{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Type:       doc.Type,
		Chunks:     len(chunks),
		UploadDate: uploaded,
		Size:       doc.Size,
		Source:     doc.URL,
	}
	if err := a.chats.Repository().PutDocument(ctx, info); err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", doc.ID, err)
	}

	a.logger.Info("indexed document",
		zap.String("document_id", doc.ID),
		zap.String("type", string(doc.Type)),
		zap.Int("chunks", len(chunks)))

	return &UploadResult{
		Success:       true,
		DocumentID:    doc.ID,
		ChunksCreated: len(chunks),
		ChunkIDs:      ids,
		Document:      info,
		Message:       fmt.Sprintf("Successfully processed %s into %d chunks", doc.Filename, len(chunks)),
	}, nil
}

// chunkMetadata is the metadata shared by every chunk of doc. The store adds
// the document id and chunk index itself.
func chunkMetadata(doc models.Document, uploaded time.Time) map[string]string {
	meta := map[string]string{
		models.MetaFilename:        doc.Filename,
		models.MetaType:            string(doc.Type),
		models.MetaUploadTimestamp: uploaded.Format(time.RFC3339),
	}
	switch doc.Type {
	case models.TypeExcel:
		if s, ok := doc.Metadata[models.MetaExcelSummary].(string); ok {
			meta[models.MetaExcelSummary] = s
		}
	case models.TypePDF, models.TypeWord:
		if pages, ok := doc.Metadata[models.MetaPages]; ok {
			meta[models.MetaPages] = fmt.Sprint(pages)
		}
	case models.TypeWeb:
		meta[models.MetaURL] = doc.URL
		meta[models.MetaTitle] = doc.Title
		if depth, ok := doc.Metadata["depth"].(int); ok {
			meta["depth"] = strconv.Itoa(depth)
		}
	}
	return meta
}

// embed splits texts into batches and embeds them on the worker pool. The
// first failing batch cancels the rest.
func (a *Assistant) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vectors := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(texts); start += a.config.EmbedBatchSize {
		end := min(start+a.config.EmbedBatchSize, len(texts))
		wg.Add(1)
		err := a.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			batch, err := a.embedder.EmbedDocuments(ctx, texts[start:end])
			if err != nil {
				fail(err)
				return
			}
			if len(batch) != end-start {
				fail(fmt.Errorf("got %d embeddings for %d texts", len(batch), end-start))
				return
			}
			copy(vectors[start:end], batch)
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("failed to submit embedding batch: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}

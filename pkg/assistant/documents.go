package assistant

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/pkg/business"
)

const DefaultSearchLimit = 10

// Documents lists the catalog, most recently uploaded first.
func (a *Assistant) Documents(ctx context.Context) ([]models.DocumentInfo, error) {
	docs, err := a.chats.Repository().ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].UploadDate.After(docs[j].UploadDate)
	})
	return docs, nil
}

// SearchDocuments returns the chunks closest to query, optionally within one
// document.
func (a *Assistant) SearchDocuments(ctx context.Context, query, documentID string, limit int) (*SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	hits, err := a.retrieve(ctx, query, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	result := &SearchResult{
		Query:   query,
		Results: make([]string, 0, len(hits)),
		Sources: []string{},
		Hits:    hits,
	}
	if result.Hits == nil {
		result.Hits = []models.SearchHit{}
	}
	seen := make(map[string]bool)
	for _, hit := range hits {
		result.Results = append(result.Results, hit.Content)
		if hit.DocumentID != "" && !seen[hit.DocumentID] {
			seen[hit.DocumentID] = true
			result.Sources = append(result.Sources, hit.DocumentID)
		}
	}
	result.TotalResults = len(hits)
	return result, nil
}

// DeleteDocument removes a document's chunks, catalog row and business data.
// It reports whether anything was found.
func (a *Assistant) DeleteDocument(ctx context.Context, documentID string) (bool, error) {
	stored, err := a.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("failed to delete chunks of %s: %w", documentID, err)
	}
	cataloged, err := a.chats.Repository().DeleteDocument(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("failed to delete catalog row of %s: %w", documentID, err)
	}
	analyzed := a.business.Remove(documentID)

	found := stored || cataloged || analyzed
	if found {
		a.logger.Info("deleted document", zap.String("document_id", documentID))
	}
	return found, nil
}

func (a *Assistant) BusinessInsights(query string) business.Insights {
	return a.business.Insights(query)
}

func (a *Assistant) Forecast(documentID string, periods int) (*business.Forecast, error) {
	return a.business.Forecast(documentID, periods)
}

package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/rstemml/crawlify-kleine-anfragen/models"
)

// SearchStore liefert die Vektoren für die semantische Suche.
type SearchStore interface {
	EmbeddingRows() ([]models.EmbeddingRow, error)
}

// SearchFilters schränken die Trefferliste auf Metadaten ein.
type SearchFilters struct {
	Ressort        string
	Beratungsstand string
}

// SearchResult ist ein Treffer der semantischen Suche.
type SearchResult struct {
	VorgangID      string  `json:"vorgang_id"`
	Titel          string  `json:"titel"`
	Datum          string  `json:"datum,omitempty"`
	Ressort        string  `json:"ressort,omitempty"`
	Beratungsstand string  `json:"beratungsstand,omitempty"`
	Abstrakt       string  `json:"abstrakt,omitempty"`
	Score          float64 `json:"score"`
}

// SearchService rankt Vorgänge per Kosinus-Ähnlichkeit gegen den
// Vektor der Suchanfrage. Der Bestand ist klein genug, dass ein
// linearer Scan über alle Vektoren reicht.
type SearchService struct {
	Store    SearchStore
	Provider EmbeddingProvider
	Logger   *zap.Logger
}

// NewSearchService erstellt den Such-Service.
func NewSearchService(store SearchStore, provider EmbeddingProvider, logger *zap.Logger) *SearchService {
	return &SearchService{Store: store, Provider: provider, Logger: logger}
}

// Search berechnet den Vektor der Anfrage und liefert die limit besten
// Treffer, optional gefiltert nach Ressort und Beratungsstand.
func (s *SearchService) Search(ctx context.Context, query string, limit int, filters SearchFilters) ([]SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("leere Suchanfrage")
	}
	if limit <= 0 {
		limit = 10
	}

	result, err := s.Provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("suchanfrage konnte nicht eingebettet werden: %w", err)
	}
	queryVec := result.Vectors[0]

	rows, err := s.Store.EmbeddingRows()
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		if filters.Ressort != "" && row.Ressort != filters.Ressort {
			continue
		}
		if filters.Beratungsstand != "" && row.Beratungsstand != filters.Beratungsstand {
			continue
		}
		score := cosineSim(queryVec, row.Vector)
		results = append(results, SearchResult{
			VorgangID:      row.VorgangID,
			Titel:          row.Titel,
			Datum:          row.Datum,
			Ressort:        row.Ressort,
			Beratungsstand: row.Beratungsstand,
			Abstrakt:       row.Abstrakt,
			Score:          score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosineSim berechnet die Kosinus-Ähnlichkeit zweier Vektoren.
// Unterschiedliche Längen oder Nullvektoren ergeben 0.
func cosineSim(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

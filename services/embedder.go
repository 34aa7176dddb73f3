package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rstemml/crawlify-kleine-anfragen/models"
)

// Obergrenze für den Text, aus dem ein Vektor berechnet wird. Längere
// Volltexte werden abgeschnitten, die Modelle sehen ohnehin nur den
// Anfang.
const embeddingTextLimit = 8000

// EmbeddingResult ist das Ergebnis eines Embedding-Aufrufs: ein Vektor
// pro Eingabetext plus das tatsächlich verwendete Modell.
type EmbeddingResult struct {
	Vectors [][]float64
	Model   string
}

// EmbeddingProvider berechnet Vektoren für Texte.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) (*EmbeddingResult, error)
}

// HTTPEmbedder spricht einen Embedding-Dienst über HTTP an.
type HTTPEmbedder struct {
	url        string
	model      string
	httpClient *http.Client
}

// NewHTTPEmbedder baut einen Embedder gegen den angegebenen Endpunkt.
func NewHTTPEmbedder(url, model string, timeout time.Duration) *HTTPEmbedder {
	return &HTTPEmbedder{
		url:        url,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Vectors [][]float64 `json:"vectors"`
	Model   string      `json:"model"`
}

// Embed schickt die Texte an den Dienst und liefert die Vektoren in
// derselben Reihenfolge zurück.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) (*EmbeddingResult, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("embedding-Request konnte nicht serialisiert werden: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding-Request konnte nicht gebaut werden: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding-Dienst nicht erreichbar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding-Dienst antwortete mit HTTP %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("embedding-Antwort ist kein gültiges JSON: %w", err)
	}
	if len(result.Vectors) != len(texts) {
		return nil, fmt.Errorf("embedding-Dienst lieferte %d Vektoren für %d Texte", len(result.Vectors), len(texts))
	}

	model := result.Model
	if model == "" {
		model = e.model
	}
	return &EmbeddingResult{Vectors: result.Vectors, Model: model}, nil
}

// EmbeddingStore sind die Datenbankzugriffe des Embedding-Laufs.
type EmbeddingStore interface {
	VorgaengeOhneEmbedding(version string, limit int) ([]models.Vorgang, error)
	VolltexteFuerVorgang(vorgangID string) ([]string, error)
	UpdateEmbedding(vorgangID string, vector []float64, version, text string) error
}

// EmbedService berechnet fehlende Vektoren und schreibt sie zurück.
type EmbedService struct {
	Store    EmbeddingStore
	Provider EmbeddingProvider
	Version  string
	Batch    int
	Logger   *zap.Logger
}

// NewEmbedService erstellt den Embedding-Service. Die Modellkennung
// dient zugleich als Versionsmarke der Vektoren.
func NewEmbedService(store EmbeddingStore, provider EmbeddingProvider, version string, batch int, logger *zap.Logger) *EmbedService {
	return &EmbedService{
		Store:    store,
		Provider: provider,
		Version:  version,
		Batch:    batch,
		Logger:   logger,
	}
}

// Run berechnet Vektoren für bis zu Batch Vorgänge ohne aktuellen
// Vektor und gibt die Anzahl der geschriebenen Vektoren zurück.
func (s *EmbedService) Run(ctx context.Context) (int, error) {
	rows, err := s.Store.VorgaengeOhneEmbedding(s.Version, s.Batch)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	texts := make([]string, len(rows))
	for i, v := range rows {
		texte, err := s.Store.VolltexteFuerVorgang(v.VorgangID)
		if err != nil {
			return 0, err
		}
		texts[i] = buildVorgangText(v.Titel, v.Abstrakt, texte)
	}

	result, err := s.Provider.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("vektoren konnten nicht berechnet werden: %w", err)
	}

	written := 0
	for i, v := range rows {
		if len(result.Vectors[i]) == 0 {
			continue
		}
		if err := s.Store.UpdateEmbedding(v.VorgangID, result.Vectors[i], s.Version, texts[i]); err != nil {
			return written, fmt.Errorf("vektor für %s konnte nicht gespeichert werden: %w", v.VorgangID, err)
		}
		written++
	}

	s.Logger.Info("Embedding-Lauf abgeschlossen",
		zap.Int("vektoren", written),
		zap.String("version", s.Version))
	return written, nil
}

// buildVorgangText setzt den Embedding-Text eines Vorgangs zusammen:
// Titel, Abstrakt und die Volltexte seiner Drucksachen, durch Leerzeilen
// getrennt und auf die Obergrenze gekappt.
func buildVorgangText(titel, abstrakt string, volltexte []string) string {
	parts := append([]string{titel, abstrakt}, volltexte...)
	text := joinNonEmpty("\n\n", parts...)
	runes := []rune(text)
	if len(runes) > embeddingTextLimit {
		return string(runes[:embeddingTextLimit])
	}
	return text
}

package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rstemml/crawlify-kleine-anfragen/models"
)

// memoryEmbeddingStore ist ein EmbeddingStore für Tests.
type memoryEmbeddingStore struct {
	rows      []models.Vorgang
	volltexte map[string][]string
	written   map[string][]float64
	versions  map[string]string
	texts     map[string]string
}

func newMemoryEmbeddingStore() *memoryEmbeddingStore {
	return &memoryEmbeddingStore{
		volltexte: map[string][]string{},
		written:   map[string][]float64{},
		versions:  map[string]string{},
		texts:     map[string]string{},
	}
}

func (m *memoryEmbeddingStore) VorgaengeOhneEmbedding(version string, limit int) ([]models.Vorgang, error) {
	rows := m.rows
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *memoryEmbeddingStore) VolltexteFuerVorgang(vorgangID string) ([]string, error) {
	return m.volltexte[vorgangID], nil
}

func (m *memoryEmbeddingStore) UpdateEmbedding(vorgangID string, vector []float64, version, text string) error {
	m.written[vorgangID] = vector
	m.versions[vorgangID] = version
	m.texts[vorgangID] = text
	return nil
}

func TestHTTPEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		vectors := make([][]float64, len(req.Texts))
		for i := range req.Texts {
			vectors[i] = []float64{float64(i), 1}
		}
		json.NewEncoder(w).Encode(embedResponse{Vectors: vectors, Model: "test-model"})
	}))
	defer server.Close()

	embedder := NewHTTPEmbedder(server.URL, "test-model", 5*time.Second)
	result, err := embedder.Embed(context.Background(), []string{"eins", "zwei"})
	require.NoError(t, err)
	assert.Equal(t, "test-model", result.Model)
	require.Len(t, result.Vectors, 2)
	assert.Equal(t, []float64{1, 1}, result.Vectors[1])
}

func TestHTTPEmbedderVectorCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Vectors: [][]float64{{1}}})
	}))
	defer server.Close()

	embedder := NewHTTPEmbedder(server.URL, "test-model", 5*time.Second)
	_, err := embedder.Embed(context.Background(), []string{"eins", "zwei"})
	require.Error(t, err)
}

type fakeProvider struct {
	texts []string
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) (*EmbeddingResult, error) {
	f.texts = texts
	vectors := make([][]float64, len(texts))
	for i := range texts {
		vectors[i] = []float64{float64(len(texts[i])), 1}
	}
	return &EmbeddingResult{Vectors: vectors, Model: "fake"}, nil
}

func TestEmbedServiceRun(t *testing.T) {
	store := newMemoryEmbeddingStore()
	store.rows = []models.Vorgang{
		{VorgangID: "V1", Titel: "Titel eins", Abstrakt: "Abstrakt eins"},
		{VorgangID: "V2", Titel: "Titel zwei"},
	}
	store.volltexte["V1"] = []string{"Volltext der Antwort"}

	provider := &fakeProvider{}
	svc := NewEmbedService(store, provider, "modell-v1", 100, zap.NewNop())

	count, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Der Text enthält Titel, Abstrakt und die Volltexte
	assert.Equal(t, "Titel eins\n\nAbstrakt eins\n\nVolltext der Antwort", provider.texts[0])
	assert.Equal(t, "Titel zwei", provider.texts[1])

	require.Contains(t, store.written, "V1")
	assert.Equal(t, "modell-v1", store.versions["V1"])
	assert.Equal(t, provider.texts[0], store.texts["V1"])
}

func TestEmbedServiceNothingToDo(t *testing.T) {
	store := newMemoryEmbeddingStore()
	provider := &fakeProvider{}
	svc := NewEmbedService(store, provider, "modell-v1", 100, zap.NewNop())

	count, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Nil(t, provider.texts)
}

func TestBuildVorgangTextCapsLength(t *testing.T) {
	long := strings.Repeat("ä", embeddingTextLimit+500)
	text := buildVorgangText("Titel", "", []string{long})
	assert.Equal(t, embeddingTextLimit, len([]rune(text)))
	assert.True(t, strings.HasPrefix(text, "Titel\n\n"))
}

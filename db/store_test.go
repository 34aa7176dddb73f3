package db

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"

	"github.com/rstemml/crawlify-kleine-anfragen/models"
)

// nonKeyColumns liefert die Spaltennamen eines Modells ohne Primärschlüssel.
func nonKeyColumns(t *testing.T, model any) []string {
	t.Helper()
	s, err := schema.Parse(model, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	var cols []string
	for _, f := range s.Fields {
		if f.PrimaryKey || f.DBName == "" {
			continue
		}
		cols = append(cols, f.DBName)
	}
	return cols
}

// Ein Upsert ersetzt die ganze Zeile: jede Nicht-Schlüssel-Spalte des
// Modells muss in der Konfliktliste stehen, sonst behalten bestehende
// Zeilen beim erneuten Abgleich stille Altwerte. Einzige Ausnahme sind
// Vektor und Modellversion, die pflegt der Embedding-Lauf.
func TestVorgangUpsertCoversAllColumns(t *testing.T) {
	preserved := map[string]bool{"embedding": true, "embedding_version": true}

	var expected []string
	for _, c := range nonKeyColumns(t, &models.Vorgang{}) {
		if !preserved[c] {
			expected = append(expected, c)
		}
	}

	assert.ElementsMatch(t, expected, vorgangUpdateColumns)
	assert.Contains(t, vorgangUpdateColumns, "embedding_text")
	assert.NotContains(t, vorgangUpdateColumns, "embedding")
	assert.NotContains(t, vorgangUpdateColumns, "embedding_version")
}

func TestDrucksacheUpsertCoversAllColumns(t *testing.T) {
	assert.ElementsMatch(t, nonKeyColumns(t, &models.Drucksache{}), drucksacheUpdateColumns)
}

func TestDrucksacheTextUpsertCoversAllColumns(t *testing.T) {
	assert.ElementsMatch(t, nonKeyColumns(t, &models.DrucksacheText{}), drucksacheTextUpdateColumns)
}

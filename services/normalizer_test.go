package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVorgangCanonicalFields(t *testing.T) {
	item := map[string]any{
		"id":             "305584",
		"vorgangstyp":    "Kleine Anfrage",
		"titel":          "Digitale Verwaltung",
		"datum":          "2024-03-01",
		"beratungsstand": "Beantwortet",
		"wahlperiode":    float64(20),
		"initiatoren":    []any{"Fraktion A", "Fraktion B"},
		"ressort":        "BMI",
		"schlagworte":    []any{"Digitalisierung"},
		"abstrakt":       "Fragen zur Digitalisierung der Verwaltung.",
	}

	v := NormalizeVorgang(item)
	assert.Equal(t, "305584", v.VorgangID)
	assert.Equal(t, "Kleine Anfrage", v.Vorgangstyp)
	assert.Equal(t, "Digitale Verwaltung", v.Titel)
	assert.Equal(t, "2024-03-01", v.Datum)
	assert.Equal(t, "Beantwortet", v.Beratungsstand)
	assert.Equal(t, "20", v.Legislature)
	assert.Equal(t, "BMI", v.Ressort)
	assert.Equal(t, "DIP", v.Quelle)
	assert.Equal(t, "Digitale Verwaltung\n\nFragen zur Digitalisierung der Verwaltung.", v.EmbeddingText)

	var initiatoren []string
	require.NoError(t, json.Unmarshal(v.Initiatoren, &initiatoren))
	assert.Equal(t, []string{"Fraktion A", "Fraktion B"}, initiatoren)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(v.RawJSON, &raw))
	assert.Equal(t, "305584", raw["id"])
}

func TestNormalizeVorgangAlternateFieldNames(t *testing.T) {
	// Alternative Feldnamen aus älteren API-Ständen
	item := map[string]any{
		"vorgangId":     "42",
		"type":          "Kleine Anfrage",
		"title":         "Alt benannt",
		"date":          "2023-01-01",
		"stand":         "Offen",
		"legislature":   "19",
		"initiator":     "Fraktion C",
		"federfuehrung": "BMF",
		"keywords":      []any{"Steuern"},
		"kurztext":      "Kurzfassung",
	}

	v := NormalizeVorgang(item)
	assert.Equal(t, "42", v.VorgangID)
	assert.Equal(t, "Kleine Anfrage", v.Vorgangstyp)
	assert.Equal(t, "Alt benannt", v.Titel)
	assert.Equal(t, "2023-01-01", v.Datum)
	assert.Equal(t, "Offen", v.Beratungsstand)
	assert.Equal(t, "19", v.Legislature)
	assert.Equal(t, "BMF", v.Ressort)
	assert.Equal(t, "Kurzfassung", v.Abstrakt)

	// Einzelner String wird zur einelementigen Liste
	var initiatoren []string
	require.NoError(t, json.Unmarshal(v.Initiatoren, &initiatoren))
	assert.Equal(t, []string{"Fraktion C"}, initiatoren)
}

func TestNormalizeVorgangMissingID(t *testing.T) {
	v := NormalizeVorgang(map[string]any{"titel": "Ohne ID"})
	assert.Empty(t, v.VorgangID)
	assert.Empty(t, v.Vorgangstyp)
}

func TestBuildEmbeddingText(t *testing.T) {
	assert.Equal(t, "Titel\n\nAbstrakt", BuildEmbeddingText("Titel", "Abstrakt"))
	assert.Equal(t, "Titel", BuildEmbeddingText("Titel", ""))
	assert.Equal(t, "Abstrakt", BuildEmbeddingText("", "Abstrakt"))
	assert.Equal(t, "", BuildEmbeddingText("", ""))
}

func TestNormalizeDrucksache(t *testing.T) {
	item := map[string]any{
		"id":            "11-22",
		"titel":         "Antwort der Bundesregierung",
		"drucksachetyp": "Antwort",
		"drucksache_nr": "20/1234",
		"datum":         "2024-03-15",
		"dokument": map[string]any{
			"url": "https://dserver.bundestag.de/btd/20/12/2001234.pdf",
			"typ": "application/pdf",
		},
	}

	d := NormalizeDrucksache(item, "305584")
	assert.Equal(t, "11-22", d.DrucksacheID)
	assert.Equal(t, "305584", d.VorgangID)
	assert.Equal(t, "Antwort", d.Drucksachetyp)
	assert.Equal(t, "20/1234", d.DrucksacheNummer)
	assert.Equal(t, "https://dserver.bundestag.de/btd/20/12/2001234.pdf", d.DokURL)
	assert.Equal(t, "application/pdf", d.DokumentTyp)
}

func TestNormalizeDrucksacheAlternateFieldNames(t *testing.T) {
	item := map[string]any{
		"drucksacheId":   "33",
		"dokumentart":    "Kleine Anfrage",
		"dokumentnummer": "20/999",
		"dokument": map[string]any{
			"link": "https://example.test/doc.pdf",
			"mime": "application/pdf",
		},
	}

	d := NormalizeDrucksache(item, "1")
	assert.Equal(t, "33", d.DrucksacheID)
	assert.Equal(t, "Kleine Anfrage", d.Drucksachetyp)
	assert.Equal(t, "20/999", d.DrucksacheNummer)
	assert.Equal(t, "https://example.test/doc.pdf", d.DokURL)
	assert.Equal(t, "application/pdf", d.DokumentTyp)
}

func TestNormalizeDrucksacheText(t *testing.T) {
	item := map[string]any{
		"drucksache_id": "11-22",
		"text":          "Vorbemerkung der Fragesteller ...",
		"format":        "text/plain",
	}

	x := NormalizeDrucksacheText(item)
	assert.Equal(t, "11-22", x.DrucksacheID)
	assert.Equal(t, "Vorbemerkung der Fragesteller ...", x.Volltext)
	assert.Equal(t, "text/plain", x.TextFormat)

	// id-Fallback, wenn der Payload nur das generische Feld kennt
	x = NormalizeDrucksacheText(map[string]any{"id": "7", "volltext": "Text"})
	assert.Equal(t, "7", x.DrucksacheID)
	assert.Equal(t, "Text", x.Volltext)
}

func TestFirstStringTrimsWhitespace(t *testing.T) {
	// Nur-Leerraum zählt als fehlend, sonst entstünden Zeilen mit
	// quasi-leerem Primärschlüssel
	assert.Equal(t, "", firstString(map[string]any{"id": "   "}, "id"))
	assert.Equal(t, "42", firstString(map[string]any{"id": " ", "vorgang_id": " 42 "}, "id", "vorgang_id"))

	v := NormalizeVorgang(map[string]any{"id": "  ", "titel": "Ohne brauchbare ID"})
	assert.Empty(t, v.VorgangID)
}

func TestFirstStringNumericValues(t *testing.T) {
	// JSON-Zahlen werden zu Strings, IDs kommen teils numerisch
	assert.Equal(t, "305584", firstString(map[string]any{"id": float64(305584)}, "id"))
	assert.Equal(t, "1.5", firstString(map[string]any{"id": 1.5}, "id"))
	assert.Equal(t, "", firstString(map[string]any{"id": true}, "id"))
}

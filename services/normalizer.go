package services

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/rstemml/crawlify-kleine-anfragen/models"
)

// Die DIP-API liefert dieselben Informationen je nach Endpunkt und
// API-Version unter verschiedenen Feldnamen. Die Normalisierung probiert
// pro Zielspalte eine feste Kette von Kandidaten und nimmt den ersten
// brauchbaren Wert. Der Roh-Payload wird daneben vollständig mitgeführt,
// damit bei Schema-Drift nichts verloren geht.

// firstString liefert den ersten nicht-leeren String-Wert unter den
// angegebenen Schlüsseln, ohne umschließenden Leerraum. Zahlwerte
// (etwa IDs) werden zu Strings.
func firstString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := item[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10)
			}
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// firstList liefert die erste nicht-leere Liste unter den angegebenen
// Schlüsseln. Ein einzelner String wird als einelementige Liste gewertet.
func firstList(item map[string]any, keys ...string) []any {
	for _, key := range keys {
		switch v := item[key].(type) {
		case []any:
			if len(v) > 0 {
				return v
			}
		case string:
			if v != "" {
				return []any{v}
			}
		}
	}
	return nil
}

// joinNonEmpty verbindet die nicht-leeren Teile mit dem Trenner.
func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// jsonOrNil serialisiert einen Wert als JSON-Spalte, nil bleibt nil.
func jsonOrNil(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(buf)
}

func rawJSON(item map[string]any) datatypes.JSON {
	buf, err := json.Marshal(item)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(buf)
}

// NormalizeVorgang bildet ein rohes Vorgang-Dokument auf das
// Datenbankschema ab. Eine leere VorgangID oder ein leerer Vorgangstyp
// bedeutet: Datensatz überspringen (entscheidet der Aufrufer).
func NormalizeVorgang(item map[string]any) *models.Vorgang {
	v := &models.Vorgang{
		VorgangID:      firstString(item, "id", "vorgang_id", "vorgangId"),
		Vorgangstyp:    firstString(item, "vorgangstyp", "vorgangsTyp", "type"),
		Titel:          firstString(item, "titel", "title", "kurzbezeichnung"),
		Datum:          firstString(item, "datum", "date", "datum_aktualisierung"),
		Beratungsstand: firstString(item, "beratungsstand", "status", "stand"),
		Legislature:    firstString(item, "wahlperiode", "legislature"),
		Ressort:        firstString(item, "ressort", "zustandigkeit", "federfuehrung"),
		Abstrakt:       firstString(item, "abstrakt", "abstract", "kurztext"),
		Quelle:         "DIP",
		Initiatoren:    jsonOrNil(firstList(item, "initiatoren", "initiator")),
		Schlagworte:    jsonOrNil(firstList(item, "schlagworte", "keywords")),
		RawJSON:        rawJSON(item),
		UpdatedAt:      time.Now().UTC(),
	}
	v.EmbeddingText = BuildEmbeddingText(v.Titel, v.Abstrakt)
	return v
}

// BuildEmbeddingText baut den Text, aus dem später der Vektor eines
// Vorgangs berechnet wird: Titel und Abstrakt, durch Leerzeile getrennt.
func BuildEmbeddingText(titel, abstrakt string) string {
	return joinNonEmpty("\n\n", titel, abstrakt)
}

// NormalizeDrucksache bildet ein rohes Drucksachen-Dokument ab. Die
// Zuordnung zum Vorgang kommt vom Aufrufer, der Payload selbst nennt
// sie nicht zuverlässig.
func NormalizeDrucksache(item map[string]any, vorgangID string) *models.Drucksache {
	d := &models.Drucksache{
		DrucksacheID:     firstString(item, "id", "drucksache_id", "drucksacheId"),
		VorgangID:        vorgangID,
		Titel:            firstString(item, "titel", "title", "kurzbezeichnung"),
		Drucksachetyp:    firstString(item, "drucksachetyp", "dokumentart", "typ"),
		DrucksacheNummer: firstString(item, "drucksache_nr", "drucksache_nummer", "dokumentnummer"),
		Datum:            firstString(item, "datum", "date"),
		RawJSON:          rawJSON(item),
		UpdatedAt:        time.Now().UTC(),
	}
	// Verschachteltes Dokument-Objekt mit URL und MIME-Typ
	if dok, ok := item["dokument"].(map[string]any); ok {
		d.DokURL = firstString(dok, "url", "dok_url", "link")
		d.DokumentTyp = firstString(dok, "typ", "type", "mime")
	}
	return d
}

// NormalizeDrucksacheText bildet ein rohes Volltext-Dokument ab.
func NormalizeDrucksacheText(item map[string]any) *models.DrucksacheText {
	return &models.DrucksacheText{
		DrucksacheID: firstString(item, "drucksache_id", "drucksacheId", "id"),
		Volltext:     firstString(item, "text", "volltext", "content"),
		TextFormat:   firstString(item, "format", "text_format", "mime"),
		RawJSON:      rawJSON(item),
		UpdatedAt:    time.Now().UTC(),
	}
}

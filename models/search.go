package models

// EmbeddingRow ist die schlanke Lesesicht für die semantische Suche:
// Vektor plus Anzeige-Metadaten, ohne Volltexte und Roh-Payload.
type EmbeddingRow struct {
	VorgangID        string
	Vector           []float64
	EmbeddingVersion string
	Titel            string
	Datum            string
	Ressort          string
	Beratungsstand   string
	Abstrakt         string
}

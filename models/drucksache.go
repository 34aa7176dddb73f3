package models

import (
	"time"

	"gorm.io/datatypes"
)

// Drucksache ist ein Dokument zu einem Vorgang (z.B. die Anfrage oder ihre Antwort).
// Die Zuordnung zum Vorgang (vorgang_id) wird beim Einfügen vom Aufrufer gesetzt,
// da der DIP-Payload sie nicht zuverlässig selbst meldet.
type Drucksache struct {
	DrucksacheID string `json:"drucksache_id" gorm:"column:drucksache_id;primaryKey"`
	VorgangID    string `json:"vorgang_id" gorm:"column:vorgang_id;not null;index"`

	Titel            string `json:"titel,omitempty" gorm:"type:text"`
	Drucksachetyp    string `json:"drucksachetyp,omitempty" gorm:"index"`
	DrucksacheNummer string `json:"drucksache_nummer,omitempty"`
	Datum            string `json:"datum,omitempty"`
	DokURL           string `json:"dok_url,omitempty"`
	DokumentTyp      string `json:"dokument_typ,omitempty"`

	RawJSON   datatypes.JSON `json:"raw_json" gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (Drucksache) TableName() string {
	return "drucksache"
}

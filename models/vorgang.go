package models

import (
	"time"

	"gorm.io/datatypes"
)

// Vorgang repräsentiert einen parlamentarischen Vorgang (z.B. eine Kleine Anfrage).
// Primärschlüssel ist die vom DIP vergebene Vorgangs-ID.
type Vorgang struct {
	VorgangID   string `json:"vorgang_id" gorm:"column:vorgang_id;primaryKey"`
	Vorgangstyp string `json:"vorgangstyp" gorm:"not null;index"`

	Titel          string `json:"titel,omitempty" gorm:"type:text"`
	Datum          string `json:"datum,omitempty" gorm:"index"`
	Beratungsstand string `json:"beratungsstand,omitempty" gorm:"index"`
	Legislature    string `json:"legislature,omitempty"`
	Ressort        string `json:"ressort,omitempty" gorm:"index"`
	Abstrakt       string `json:"abstrakt,omitempty" gorm:"type:text"`
	Quelle         string `json:"quelle" gorm:"not null;default:'DIP'"`

	// Listen als JSON-Spalten (leer = NULL)
	Initiatoren datatypes.JSON `json:"initiatoren,omitempty" gorm:"type:jsonb"`
	Schlagworte datatypes.JSON `json:"schlagworte,omitempty" gorm:"type:jsonb"`

	// Wird von einem separaten Prozess befüllt
	EmbeddingText    string         `json:"embedding_text,omitempty" gorm:"type:text"`
	Embedding        datatypes.JSON `json:"embedding,omitempty" gorm:"type:jsonb"`
	EmbeddingVersion string         `json:"embedding_version,omitempty" gorm:"index"`

	RawJSON   datatypes.JSON `json:"raw_json" gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (Vorgang) TableName() string {
	return "vorgang"
}

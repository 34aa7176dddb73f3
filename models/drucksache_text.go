package models

import (
	"time"

	"gorm.io/datatypes"
)

// DrucksacheText ist der Volltext einer Drucksache (1:1-Erweiterung).
type DrucksacheText struct {
	DrucksacheID string `json:"drucksache_id" gorm:"column:drucksache_id;primaryKey"`

	Volltext   string `json:"volltext,omitempty" gorm:"type:text"`
	TextFormat string `json:"text_format,omitempty"`

	RawJSON   datatypes.JSON `json:"raw_json" gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (DrucksacheText) TableName() string {
	return "drucksache_text"
}

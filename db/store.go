package db

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rstemml/crawlify-kleine-anfragen/models"
)

// Store bündelt alle Datenbankzugriffe der Pipeline. Alle Schreibpfade
// sind idempotente Upserts, ein erneuter Lauf über dieselben Seiten
// erzeugt keine Duplikate.
type Store struct {
	DB *gorm.DB
}

// NewStore erstellt einen Store.
func NewStore(database *gorm.DB) *Store {
	return &Store{DB: database}
}

// Beim Konflikt werden alle Nicht-Schlüssel-Spalten überschrieben.
// Einzige Ausnahme: embedding und embedding_version gehören dem
// Embedding-Lauf, ein erneuter Abgleich darf vorhandene Vektoren nicht
// löschen. Das normalisierte embedding_text wird mit überschrieben,
// damit es nach Titel- oder Abstrakt-Änderungen nicht veraltet.
var vorgangUpdateColumns = []string{
	"vorgangstyp", "titel", "datum", "beratungsstand", "legislature",
	"ressort", "abstrakt", "quelle", "initiatoren", "schlagworte",
	"embedding_text", "raw_json", "updated_at",
}

var drucksacheUpdateColumns = []string{
	"vorgang_id", "titel", "drucksachetyp", "drucksache_nummer",
	"datum", "dok_url", "dokument_typ", "raw_json", "updated_at",
}

var drucksacheTextUpdateColumns = []string{
	"volltext", "text_format", "raw_json", "updated_at",
}

// UpsertVorgang fügt einen Vorgang ein oder aktualisiert ihn anhand
// seiner ID.
func (s *Store) UpsertVorgang(v *models.Vorgang) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vorgang_id"}},
		DoUpdates: clause.AssignmentColumns(vorgangUpdateColumns),
	}).Create(v).Error
}

// UpsertDrucksache fügt eine Drucksache ein oder aktualisiert sie.
func (s *Store) UpsertDrucksache(d *models.Drucksache) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "drucksache_id"}},
		DoUpdates: clause.AssignmentColumns(drucksacheUpdateColumns),
	}).Create(d).Error
}

// UpsertDrucksacheText fügt einen Volltext ein oder aktualisiert ihn.
func (s *Store) UpsertDrucksacheText(t *models.DrucksacheText) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "drucksache_id"}},
		DoUpdates: clause.AssignmentColumns(drucksacheTextUpdateColumns),
	}).Create(t).Error
}

// VorgangIDs liefert alle gespeicherten Vorgangs-IDs.
func (s *Store) VorgangIDs() ([]string, error) {
	var ids []string
	err := s.DB.Model(&models.Vorgang{}).Pluck("vorgang_id", &ids).Error
	return ids, err
}

// VorgaengeOhneDrucksachen liefert die IDs der jüngsten Vorgänge, zu
// denen noch keine Drucksache verknüpft ist. Kandidaten für die
// Dokumenten-Verknüpfung.
func (s *Store) VorgaengeOhneDrucksachen(limit int) ([]string, error) {
	var ids []string
	err := s.DB.Model(&models.Vorgang{}).
		Joins("LEFT JOIN drucksache ON drucksache.vorgang_id = vorgang.vorgang_id").
		Where("drucksache.drucksache_id IS NULL").
		Order("vorgang.datum DESC").
		Limit(limit).
		Pluck("vorgang.vorgang_id", &ids).Error
	return ids, err
}

// DrucksachenOhneText liefert Drucksachen, zu denen noch kein Volltext
// gespeichert ist.
func (s *Store) DrucksachenOhneText() ([]models.Drucksache, error) {
	var rows []models.Drucksache
	err := s.DB.Model(&models.Drucksache{}).
		Joins("LEFT JOIN drucksache_text ON drucksache_text.drucksache_id = drucksache.drucksache_id").
		Where("drucksache_text.drucksache_id IS NULL").
		Order("drucksache.datum DESC").
		Find(&rows).Error
	return rows, err
}

// Stats sind die Bestandszahlen für CLI und API.
type Stats struct {
	Vorgaenge    int64 `json:"vorgaenge"`
	Drucksachen  int64 `json:"drucksachen"`
	Volltexte    int64 `json:"volltexte"`
	MitEmbedding int64 `json:"mit_embedding"`
}

// Stats zählt die Bestände aller drei Tabellen.
func (s *Store) Stats() (*Stats, error) {
	var st Stats
	if err := s.DB.Model(&models.Vorgang{}).Count(&st.Vorgaenge).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.Drucksache{}).Count(&st.Drucksachen).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.DrucksacheText{}).Count(&st.Volltexte).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.Vorgang{}).
		Where("embedding IS NOT NULL").
		Count(&st.MitEmbedding).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

// VorgangDetail ist ein Vorgang samt seiner verknüpften Drucksachen.
type VorgangDetail struct {
	Vorgang     models.Vorgang      `json:"vorgang"`
	Drucksachen []models.Drucksache `json:"drucksachen"`
}

// VorgangDetail lädt einen Vorgang mit seinen Drucksachen.
func (s *Store) VorgangDetail(vorgangID string) (*VorgangDetail, error) {
	var detail VorgangDetail
	err := s.DB.Where("vorgang_id = ?", vorgangID).First(&detail.Vorgang).Error
	if err != nil {
		return nil, err
	}
	err = s.DB.Where("vorgang_id = ?", vorgangID).
		Order("datum DESC").
		Find(&detail.Drucksachen).Error
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// VorgaengeOhneEmbedding liefert Vorgänge, die noch keinen Vektor in der
// aktuellen Version haben.
func (s *Store) VorgaengeOhneEmbedding(version string, limit int) ([]models.Vorgang, error) {
	var rows []models.Vorgang
	err := s.DB.Model(&models.Vorgang{}).
		Where("embedding IS NULL OR embedding_version <> ?", version).
		Order("datum DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// VolltexteFuerVorgang liefert alle Volltexte der Drucksachen eines
// Vorgangs, neueste zuerst.
func (s *Store) VolltexteFuerVorgang(vorgangID string) ([]string, error) {
	var texte []string
	err := s.DB.Model(&models.DrucksacheText{}).
		Joins("JOIN drucksache ON drucksache.drucksache_id = drucksache_text.drucksache_id").
		Where("drucksache.vorgang_id = ?", vorgangID).
		Order("drucksache.datum DESC").
		Pluck("drucksache_text.volltext", &texte).Error
	return texte, err
}

// UpdateEmbedding schreibt den Vektor eines Vorgangs zurück.
func (s *Store) UpdateEmbedding(vorgangID string, vector []float64, version, text string) error {
	buf, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("vektor konnte nicht serialisiert werden: %w", err)
	}
	return s.DB.Model(&models.Vorgang{}).
		Where("vorgang_id = ?", vorgangID).
		Updates(map[string]any{
			"embedding":         datatypes.JSON(buf),
			"embedding_version": version,
			"embedding_text":    text,
			"updated_at":        time.Now().UTC(),
		}).Error
}

// EmbeddingRows lädt alle Vorgänge mit Vektor als schlanke Lesesicht
// für die semantische Suche.
func (s *Store) EmbeddingRows() ([]models.EmbeddingRow, error) {
	var vorgaenge []models.Vorgang
	err := s.DB.Model(&models.Vorgang{}).
		Where("embedding IS NOT NULL").
		Find(&vorgaenge).Error
	if err != nil {
		return nil, err
	}

	rows := make([]models.EmbeddingRow, 0, len(vorgaenge))
	for _, v := range vorgaenge {
		var vec []float64
		if err := json.Unmarshal(v.Embedding, &vec); err != nil || len(vec) == 0 {
			continue
		}
		rows = append(rows, models.EmbeddingRow{
			VorgangID:        v.VorgangID,
			Vector:           vec,
			EmbeddingVersion: v.EmbeddingVersion,
			Titel:            v.Titel,
			Datum:            v.Datum,
			Ressort:          v.Ressort,
			Beratungsstand:   v.Beratungsstand,
			Abstrakt:         v.Abstrakt,
		})
	}
	return rows, nil
}

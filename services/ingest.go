package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/rstemml/crawlify-kleine-anfragen/config"
	"github.com/rstemml/crawlify-kleine-anfragen/dip"
	"github.com/rstemml/crawlify-kleine-anfragen/models"
	"github.com/rstemml/crawlify-kleine-anfragen/storage"
)

// Drucksachentypen, die für Kleine Anfragen relevant sind: die Anfrage
// selbst und die Antwort der Bundesregierung.
var drucksacheTypen = []string{"Kleine Anfrage", "Antwort"}

// RecordStore sind die Datenbankzugriffe, die der Abgleich braucht.
type RecordStore interface {
	UpsertVorgang(*models.Vorgang) error
	UpsertDrucksache(*models.Drucksache) error
	UpsertDrucksacheText(*models.DrucksacheText) error
	VorgangIDs() ([]string, error)
	VorgaengeOhneDrucksachen(limit int) ([]string, error)
	DrucksachenOhneText() ([]models.Drucksache, error)
}

// RunOptions steuern, welche Phasen ein Abgleich durchläuft.
type RunOptions struct {
	// Full ignoriert den gespeicherten Cursor und beginnt von vorn.
	Full bool

	SkipVorgaenge   bool
	SkipDrucksachen bool
	SkipVolltexte   bool
}

// IngestStats sind die Zähler eines Abgleich-Laufs.
type IngestStats struct {
	Pages         int `json:"pages"`
	Vorgaenge     int `json:"vorgaenge"`
	Drucksachen   int `json:"drucksachen"`
	Volltexte     int `json:"volltexte"`
	Uebersprungen int `json:"uebersprungen"`
	TextFehler    int `json:"text_fehler"`
}

// IngestService orchestriert den dreiphasigen Abgleich: Vorgänge holen,
// Drucksachen verknüpfen, Volltexte nachladen.
type IngestService struct {
	Cfg      *config.Config
	Client   *dip.Client
	Store    RecordStore
	Archiver *storage.Archiver
	Logger   *zap.Logger
}

// NewIngestService erstellt den Abgleich-Service.
func NewIngestService(cfg *config.Config, client *dip.Client, store RecordStore, archiver *storage.Archiver, logger *zap.Logger) *IngestService {
	return &IngestService{
		Cfg:      cfg,
		Client:   client,
		Store:    store,
		Archiver: archiver,
		Logger:   logger,
	}
}

// Run führt einen kompletten Abgleich aus. Ein EmptyResponseError aus
// einer der Phasen wird unverändert durchgereicht, damit der Aufrufer
// ihn als Auth-Problem erkennen kann.
func (s *IngestService) Run(ctx context.Context, opts RunOptions) (*IngestStats, error) {
	stats := &IngestStats{}

	if !opts.SkipVorgaenge {
		if err := s.fetchVorgaenge(ctx, stats, opts.Full); err != nil {
			ingestRunsTotal.WithLabelValues("fehler").Inc()
			return stats, fmt.Errorf("vorgangs-Abgleich fehlgeschlagen: %w", err)
		}
	}
	if !opts.SkipDrucksachen {
		if err := s.fetchDrucksachen(ctx, stats, opts.Full); err != nil {
			ingestRunsTotal.WithLabelValues("fehler").Inc()
			return stats, fmt.Errorf("drucksachen-Verknüpfung fehlgeschlagen: %w", err)
		}
	}
	if !opts.SkipVolltexte {
		if err := s.fetchVolltexte(ctx, stats); err != nil {
			ingestRunsTotal.WithLabelValues("fehler").Inc()
			return stats, fmt.Errorf("volltext-Abgleich fehlgeschlagen: %w", err)
		}
	}

	ingestRunsTotal.WithLabelValues("ok").Inc()
	s.Logger.Info("Abgleich abgeschlossen",
		zap.Int("seiten", stats.Pages),
		zap.Int("vorgaenge", stats.Vorgaenge),
		zap.Int("drucksachen", stats.Drucksachen),
		zap.Int("volltexte", stats.Volltexte),
		zap.Int("uebersprungen", stats.Uebersprungen),
		zap.Int("text_fehler", stats.TextFehler))
	return stats, nil
}

// fetchVorgaenge läuft per Cursor über alle Kleinen Anfragen. Nach jeder
// verarbeiteten Seite wird der Cursor gespeichert, ein abgebrochener Lauf
// setzt beim nächsten Mal dort wieder auf.
func (s *IngestService) fetchVorgaenge(ctx context.Context, stats *IngestStats, full bool) error {
	cursor := ""
	if !full {
		state, err := storage.LoadCursorState(s.Cfg.CursorStatePath)
		if err != nil {
			return err
		}
		cursor = state.Value()
	}
	if cursor != "" {
		s.Logger.Info("Setze Vorgangs-Abgleich am gespeicherten Cursor fort")
	}

	it := s.Client.VorgangPages(cursor)
	index := 0
	for it.Next(ctx) {
		page := it.Page()

		// Erst archivieren, dann normalisieren: der Roh-Payload muss
		// auch dann erhalten bleiben, wenn die Verarbeitung scheitert.
		if _, err := s.Archiver.ArchivePage(ctx, page.Raw, index, "vorgang"); err != nil {
			return err
		}

		for _, item := range page.Items {
			v := NormalizeVorgang(item)
			if v.VorgangID == "" || v.Vorgangstyp == "" {
				stats.Uebersprungen++
				continue
			}
			if err := s.Store.UpsertVorgang(v); err != nil {
				return fmt.Errorf("vorgang %s konnte nicht gespeichert werden: %w", v.VorgangID, err)
			}
			stats.Vorgaenge++
			recordsUpsertedTotal.WithLabelValues("vorgang").Inc()
		}

		if err := storage.SaveCursorState(s.Cfg.CursorStatePath, page.Cursor); err != nil {
			return err
		}
		stats.Pages++
		pagesFetchedTotal.WithLabelValues("vorgang").Inc()
		index++
	}
	return it.Err()
}

// fetchDrucksachen sucht für Vorgänge ohne verknüpfte Dokumente die
// passenden Drucksachen. Die API erlaubt keine Filterung nach
// Vorgangsbezug, daher scannen wir die Trefferlisten der relevanten
// Dokumenttypen und gleichen die Rückverweise gegen die Zielmenge ab.
// Best-Effort: der Scan endet spätestens nach dem Seitenlimit.
func (s *IngestService) fetchDrucksachen(ctx context.Context, stats *IngestStats, full bool) error {
	var targets []string
	var err error
	if full {
		targets, err = s.Store.VorgangIDs()
	} else {
		targets, err = s.Store.VorgaengeOhneDrucksachen(s.Cfg.DrucksacheTargetLimit)
	}
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return nil
	}
	s.Logger.Info("Suche Drucksachen für unverknüpfte Vorgänge",
		zap.Int("anzahl", len(targets)))

	for _, typ := range drucksacheTypen {
		// Jeder Dokumenttyp scannt die volle Zielmenge: ein Vorgang
		// braucht sowohl die Anfrage als auch die Antwort.
		pending := make(map[string]bool, len(targets))
		for _, id := range targets {
			pending[id] = true
		}

		filter := url.Values{}
		filter.Set("f.drucksachetyp", typ)
		prefix := "drucksache_" + strings.ReplaceAll(strings.ToLower(typ), " ", "_")

		it := s.Client.DrucksachePages(filter, "")
		index := 0
		for len(pending) > 0 && index < s.Cfg.DrucksachePageLimit && it.Next(ctx) {
			page := it.Page()
			if _, err := s.Archiver.ArchivePage(ctx, page.Raw, index, prefix); err != nil {
				return err
			}

			for _, item := range page.Items {
				match := matchVorgangsbezug(item, pending)
				if match == "" {
					continue
				}
				d := NormalizeDrucksache(item, match)
				if d.DrucksacheID == "" {
					stats.Uebersprungen++
					continue
				}
				if err := s.Store.UpsertDrucksache(d); err != nil {
					// Vorgang bleibt in der Zielmenge, der nächste
					// Treffer bekommt eine neue Chance.
					s.Logger.Error("Drucksache konnte nicht gespeichert werden",
						zap.String("drucksache_id", d.DrucksacheID),
						zap.Error(err))
					ingestErrorsTotal.Inc()
					continue
				}
				delete(pending, match)
				stats.Drucksachen++
				recordsUpsertedTotal.WithLabelValues("drucksache").Inc()
			}

			stats.Pages++
			pagesFetchedTotal.WithLabelValues("drucksache").Inc()
			index++
		}
		if err := it.Err(); err != nil {
			return err
		}
		if len(pending) > 0 {
			s.Logger.Info("Scan-Limit erreicht, restliche Vorgänge beim nächsten Lauf",
				zap.String("drucksachetyp", typ),
				zap.Int("offen", len(pending)))
		}
	}
	return nil
}

// matchVorgangsbezug prüft die Rückverweise einer Drucksache gegen die
// Zielmenge und liefert die erste getroffene Vorgangs-ID.
func matchVorgangsbezug(item map[string]any, pending map[string]bool) string {
	refs, ok := item["vorgangsbezug"].([]any)
	if !ok {
		return ""
	}
	for _, ref := range refs {
		m, ok := ref.(map[string]any)
		if !ok {
			continue
		}
		refID := firstString(m, "id", "vorgang_id", "vorgangId")
		if refID != "" && pending[refID] {
			return refID
		}
	}
	return ""
}

// fetchVolltexte lädt Volltexte für Drucksachen nach, die noch keinen
// haben. Fehler einzelner Dokumente werden geloggt und übersprungen,
// nur die Leere-Antwort-Anomalie bricht die Phase ab: sie betrifft
// garantiert auch alle folgenden Abrufe.
func (s *IngestService) fetchVolltexte(ctx context.Context, stats *IngestStats) error {
	rows, err := s.Store.DrucksachenOhneText()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	s.Logger.Info("Lade Volltexte nach", zap.Int("anzahl", len(rows)))

	for _, d := range rows {
		item, err := s.Client.FetchDrucksacheText(ctx, d.DrucksacheID)
		if err != nil {
			var empty *dip.EmptyResponseError
			if errors.As(err, &empty) {
				return err
			}
			s.Logger.Warn("Volltext konnte nicht geladen werden",
				zap.String("drucksache_id", d.DrucksacheID),
				zap.Error(err))
			stats.TextFehler++
			ingestErrorsTotal.Inc()
			continue
		}
		if item == nil {
			continue
		}

		t := NormalizeDrucksacheText(item)
		if t.DrucksacheID == "" {
			t.DrucksacheID = d.DrucksacheID
		}
		if t.Volltext == "" {
			stats.Uebersprungen++
			continue
		}
		if err := s.Store.UpsertDrucksacheText(t); err != nil {
			s.Logger.Warn("Volltext konnte nicht gespeichert werden",
				zap.String("drucksache_id", d.DrucksacheID),
				zap.Error(err))
			stats.TextFehler++
			ingestErrorsTotal.Inc()
			continue
		}
		stats.Volltexte++
		recordsUpsertedTotal.WithLabelValues("drucksache_text").Inc()
	}
	return nil
}

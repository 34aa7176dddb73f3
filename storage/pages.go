package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// WritePageRaw archiviert einen unveränderten API-Roh-Payload als
// formatierte JSON-Datei und gibt den Dateipfad zurück. Die laufende
// Nummer im Namen hält die Abrufreihenfolge nachvollziehbar.
func WritePageRaw(raw map[string]any, dir string, index int, prefix string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("archiv-Verzeichnis konnte nicht angelegt werden: %w", err)
	}
	name := fmt.Sprintf("%s_page_%05d.json", prefix, index)
	path := filepath.Join(dir, name)

	buf, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return "", fmt.Errorf("roh-Payload konnte nicht serialisiert werden: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("archiv-Datei konnte nicht geschrieben werden: %w", err)
	}
	return path, nil
}

// Archiver schreibt Rohseiten auf die lokale Platte und spiegelt sie
// optional nach S3. Der S3-Spiegel ist Best-Effort: ein Fehler dort
// bricht den Abgleich nicht ab.
type Archiver struct {
	Dir    string
	S3     *S3Client
	Logger *zap.Logger
}

// NewArchiver baut einen Archiver, s3 darf nil sein.
func NewArchiver(dir string, s3 *S3Client, logger *zap.Logger) *Archiver {
	return &Archiver{Dir: dir, S3: s3, Logger: logger}
}

// ArchivePage schreibt eine Rohseite lokal weg und lädt sie danach
// gegebenenfalls nach S3 hoch.
func (a *Archiver) ArchivePage(ctx context.Context, raw map[string]any, index int, prefix string) (string, error) {
	path, err := WritePageRaw(raw, a.Dir, index, prefix)
	if err != nil {
		return "", err
	}

	if a.S3 != nil {
		key := "raw/" + filepath.Base(path)
		if err := a.S3.UploadFile(ctx, path, key); err != nil {
			a.Logger.Warn("S3-Spiegel fehlgeschlagen, lokale Kopie bleibt erhalten",
				zap.String("datei", path),
				zap.Error(err))
		}
	}
	return path, nil
}

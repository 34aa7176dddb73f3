package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CookieMaxAge ist die Spanne, in der gecachte Challenge-Cookies als
// noch gültig gelten. Danach wird die Challenge im Zweifel neu gelöst.
const CookieMaxAge = time.Hour

// CookieData sind die Cookies einer gelösten Enodia-Challenge samt
// Herkunft und Zeitstempel. ExtractedAt ist Unix-Sekunden, damit die
// Datei auch von anderen Werkzeugen gelesen werden kann.
type CookieData struct {
	Cookies     map[string]string `json:"cookies"`
	Domain      string            `json:"domain"`
	ExtractedAt float64           `json:"extracted_at"`
}

// Fresh meldet, ob die Cookies jünger als maxAge sind.
func (d *CookieData) Fresh(maxAge time.Duration) bool {
	if d == nil || len(d.Cookies) == 0 {
		return false
	}
	age := time.Since(time.Unix(int64(d.ExtractedAt), 0))
	return age >= 0 && age < maxAge
}

// SaveCookies schreibt die Cookie-Daten als JSON-Datei, Verzeichnisse
// werden bei Bedarf angelegt.
func SaveCookies(path string, data *CookieData) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cookie-Verzeichnis konnte nicht angelegt werden: %w", err)
	}
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("cookies konnten nicht serialisiert werden: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("cookie-Datei konnte nicht geschrieben werden: %w", err)
	}
	return nil
}

// LoadCookies liest eine zuvor gespeicherte Cookie-Datei.
func LoadCookies(path string) (*CookieData, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data CookieData
	if err := json.Unmarshal(buf, &data); err != nil {
		return nil, fmt.Errorf("cookie-Datei %s ist nicht lesbar: %w", path, err)
	}
	return &data, nil
}

// ClearCookies löscht die gespeicherten Cookies. Fehlt die Datei,
// ist das kein Fehler.
func ClearCookies(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CursorState ist der persistierte Paginierungs-Fortschritt eines
// Abgleichs. Der Cursor ist ein Zeiger, damit "noch nie gelaufen"
// (null) von "leerer Cursor" unterscheidbar bleibt.
type CursorState struct {
	Cursor *string `json:"cursor"`
}

// Value liefert den Cursor als String, leer wenn keiner gespeichert ist.
func (s *CursorState) Value() string {
	if s == nil || s.Cursor == nil {
		return ""
	}
	return *s.Cursor
}

// LoadCursorState liest den gespeicherten Cursor. Eine fehlende Datei
// ist kein Fehler, der Abgleich beginnt dann von vorn.
func LoadCursorState(path string) (*CursorState, error) {
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &CursorState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cursor-Datei konnte nicht gelesen werden: %w", err)
	}
	var state CursorState
	if err := json.Unmarshal(buf, &state); err != nil {
		return nil, fmt.Errorf("cursor-Datei %s ist nicht lesbar: %w", path, err)
	}
	return &state, nil
}

// SaveCursorState schreibt den Cursor atomar genug für unseren Zweck:
// erst in eine Temporärdatei, dann umbenennen. Ein leerer Cursor wird
// als null gespeichert.
func SaveCursorState(path, cursor string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("state-Verzeichnis konnte nicht angelegt werden: %w", err)
	}
	state := CursorState{}
	if cursor != "" {
		state.Cursor = &cursor
	}
	buf, err := json.MarshalIndent(&state, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("cursor-Datei konnte nicht geschrieben werden: %w", err)
	}
	return os.Rename(tmp, path)
}

// ClearCursorState löscht den gespeicherten Cursor, der nächste Lauf
// beginnt von vorn. Eine fehlende Datei ist kein Fehler.
func ClearCursorState(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

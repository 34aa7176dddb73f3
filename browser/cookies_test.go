package browser

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cookies.json")
	data := &CookieData{
		Cookies:     map[string]string{"enodia": "abc", "session": "xyz"},
		Domain:      "search.dip.bundestag.de",
		ExtractedAt: float64(time.Now().Unix()),
	}

	require.NoError(t, SaveCookies(path, data))

	loaded, err := LoadCookies(path)
	require.NoError(t, err)
	assert.Equal(t, data.Cookies, loaded.Cookies)
	assert.Equal(t, data.Domain, loaded.Domain)
	assert.True(t, loaded.Fresh(time.Hour))
}

func TestFresh(t *testing.T) {
	now := float64(time.Now().Unix())

	fresh := &CookieData{Cookies: map[string]string{"a": "b"}, ExtractedAt: now - 60}
	assert.True(t, fresh.Fresh(time.Hour))

	stale := &CookieData{Cookies: map[string]string{"a": "b"}, ExtractedAt: now - 2*3600}
	assert.False(t, stale.Fresh(time.Hour))

	// Ohne Cookies nie frisch, egal wie jung
	empty := &CookieData{ExtractedAt: now}
	assert.False(t, empty.Fresh(time.Hour))

	var nilData *CookieData
	assert.False(t, nilData.Fresh(time.Hour))
}

func TestLoadCookiesMissingFile(t *testing.T) {
	_, err := LoadCookies(filepath.Join(t.TempDir(), "fehlt.json"))
	require.Error(t, err)
}

func TestClearCookies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, SaveCookies(path, &CookieData{Cookies: map[string]string{"a": "b"}}))

	require.NoError(t, ClearCookies(path))
	_, err := LoadCookies(path)
	require.Error(t, err)

	// Fehlende Datei ist kein Fehler
	require.NoError(t, ClearCookies(path))
}

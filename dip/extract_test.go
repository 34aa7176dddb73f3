package dip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractItems(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want int
	}{
		{
			name: "documents-Schlüssel",
			raw: map[string]any{
				"documents": []any{map[string]any{"id": "1"}, map[string]any{"id": "2"}},
			},
			want: 2,
		},
		{
			name: "vorgang-Schlüssel",
			raw: map[string]any{
				"vorgang": []any{map[string]any{"id": "1"}},
			},
			want: 1,
		},
		{
			name: "generischer Fallback auf erstes Listenfeld",
			raw: map[string]any{
				"numFound": float64(1),
				"treffer":  []any{map[string]any{"id": "1"}},
			},
			want: 1,
		},
		{
			name: "Nicht-Objekte werden verworfen",
			raw: map[string]any{
				"documents": []any{map[string]any{"id": "1"}, "kaputt", float64(3)},
			},
			want: 1,
		},
		{
			name: "keine Liste vorhanden",
			raw:  map[string]any{"numFound": float64(0)},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := extractItems(tt.raw)
			assert.Len(t, items, tt.want)
		})
	}
}

func TestExtractItemsPrefersKnownKeys(t *testing.T) {
	// Bekannte Schlüssel gewinnen gegen den generischen Fallback,
	// auch wenn ein anderes Listenfeld daneben liegt.
	raw := map[string]any{
		"facetten":  []any{map[string]any{"name": "x"}},
		"documents": []any{map[string]any{"id": "1"}, map[string]any{"id": "2"}},
	}
	items := extractItems(raw)
	assert.Len(t, items, 2)
	assert.Equal(t, "1", items[0]["id"])
}

func TestExtractCursor(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"cursor", map[string]any{"cursor": "abc"}, "abc"},
		{"next_cursor", map[string]any{"next_cursor": "def"}, "def"},
		{"nextCursor", map[string]any{"nextCursor": "ghi"}, "ghi"},
		{"next", map[string]any{"next": "jkl"}, "jkl"},
		{"leerer Cursor zählt nicht", map[string]any{"cursor": "", "next": "mno"}, "mno"},
		{"kein Cursor", map[string]any{"numFound": float64(3)}, ""},
		{"falscher Typ", map[string]any{"cursor": float64(7)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractCursor(tt.raw))
		})
	}
}

func TestPageNumFound(t *testing.T) {
	assert.Equal(t, 42, (&Page{Raw: map[string]any{"numFound": float64(42)}}).NumFound())
	assert.Equal(t, 0, (&Page{Raw: map[string]any{"numFound": "42"}}).NumFound())
	assert.Equal(t, 0, (&Page{Raw: map[string]any{}}).NumFound())
	assert.Equal(t, 0, (&Page{}).NumFound())
}

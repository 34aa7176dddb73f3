package dip

// Page ist eine einzelne Antwortseite der DIP-API: die extrahierten
// Einzeldokumente, der Cursor für die Folgeseite und der unveränderte
// Roh-Payload für das Archiv.
type Page struct {
	Items  []map[string]any
	Cursor string
	Raw    map[string]any
}

// NumFound liest die vom Server gemeldete Treffermenge aus dem Roh-Payload.
// Fehlt das Feld oder ist es kein Zahlwert, wird 0 geliefert.
func (p *Page) NumFound() int {
	if p == nil || p.Raw == nil {
		return 0
	}
	switch v := p.Raw["numFound"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

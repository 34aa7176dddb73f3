package dip

// Die DIP-API liefert ihre Trefferliste je nach Endpunkt unter
// unterschiedlichen Schlüsseln. Bekannte Schlüssel werden in dieser
// Reihenfolge probiert, danach greift der generische Fallback auf das
// erste Feld mit Listenwert.
var itemKeys = []string{"documents", "vorgang", "results", "data", "items"}

var cursorKeys = []string{"cursor", "next_cursor", "nextCursor", "next"}

// extractItems holt die Dokumentliste aus einem Antwort-Payload.
// Elemente, die keine Objekte sind, werden verworfen.
func extractItems(raw map[string]any) []map[string]any {
	for _, key := range itemKeys {
		if list, ok := raw[key].([]any); ok {
			return toItemList(list)
		}
	}
	// Fallback: erstes Feld, dessen Wert eine Liste ist
	for _, v := range raw {
		if list, ok := v.([]any); ok {
			return toItemList(list)
		}
	}
	return nil
}

func toItemList(list []any) []map[string]any {
	items := make([]map[string]any, 0, len(list))
	for _, el := range list {
		if m, ok := el.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items
}

// extractCursor holt den Paginierungs-Cursor aus einem Antwort-Payload.
// Leerer String bedeutet: keine Folgeseite.
func extractCursor(raw map[string]any) string {
	for _, key := range cursorKeys {
		if s, ok := raw[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

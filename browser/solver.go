package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Solver löst die Enodia-Challenge des DIP und liefert die dabei
// gesetzten Cookies. Implementierungen dürfen lange dauern, der
// übergebene Kontext begrenzt die Wartezeit.
type Solver interface {
	Solve(ctx context.Context, challengeURL string) (*CookieData, error)
}

// RemoteSolver spricht einen Headless-Browser-Sidecar über HTTP an.
// Der Sidecar lädt die Challenge-Seite, wartet auf die JavaScript-Lösung
// und gibt die Session-Cookies zurück.
type RemoteSolver struct {
	endpoint   string
	httpClient *http.Client
}

// NewRemoteSolver baut einen Solver gegen den angegebenen Sidecar-Endpunkt.
func NewRemoteSolver(endpoint string, timeout time.Duration) *RemoteSolver {
	return &RemoteSolver{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type solveRequest struct {
	URL string `json:"url"`
}

type solveResponse struct {
	Cookies map[string]string `json:"cookies"`
	Error   string            `json:"error,omitempty"`
}

// Solve schickt die Challenge-URL an den Sidecar und wandelt das
// Ergebnis in CookieData um.
func (s *RemoteSolver) Solve(ctx context.Context, challengeURL string) (*CookieData, error) {
	body, err := json.Marshal(solveRequest{URL: challengeURL})
	if err != nil {
		return nil, fmt.Errorf("solver-Request konnte nicht serialisiert werden: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/solve", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("solver-Request konnte nicht gebaut werden: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solver-Sidecar nicht erreichbar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solver-Sidecar antwortete mit HTTP %d", resp.StatusCode)
	}

	var result solveResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("solver-Antwort ist kein gültiges JSON: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("solver meldete Fehler: %s", result.Error)
	}
	if len(result.Cookies) == 0 {
		return nil, fmt.Errorf("solver lieferte keine Cookies")
	}

	domain := ""
	if u, err := url.Parse(challengeURL); err == nil {
		domain = u.Hostname()
	}

	return &CookieData{
		Cookies:     result.Cookies,
		Domain:      domain,
		ExtractedAt: float64(time.Now().Unix()),
	}, nil
}

package dip

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rstemml/crawlify-kleine-anfragen/browser"
	"github.com/rstemml/crawlify-kleine-anfragen/config"
)

// Pfad, auf den die Anti-Bot-Schutzschicht des DIP weiterleitet.
const enodiaChallengePath = "/.enodia/challenge"

// Statuscodes, bei denen ein erneuter Versuch sinnvoll ist.
var retryStatusCodes = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// EmptyResponseError signalisiert eine Anomalie: der Server meldet Treffer
// (numFound > 0), liefert aber keine Dokumente aus. In der Praxis bedeutet
// das abgelaufene Challenge-Cookies, nicht "keine Daten".
type EmptyResponseError struct {
	NumFound int
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("DIP lieferte 0 Dokumente trotz numFound=%d, vermutlich abgelaufene Challenge-Cookies (Abhilfe: crawlify solve-challenge)", e.NumFound)
}

// Client kapselt den Zugriff auf die DIP-API des Bundestags:
// Cursor-Paginierung, Retry mit exponentiellem Backoff und die
// Behandlung der Enodia-Challenge.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	pageSize   int
	maxRetries int
	backoff    time.Duration

	httpClient *http.Client
	logger     *zap.Logger

	solver          browser.Solver
	cookieStatePath string
	autoSolve       bool
	// Die Challenge wird pro Client-Lebensdauer höchstens einmal gelöst.
	// Schlägt die zweite Anfrage danach erneut fehl, stimmt etwas
	// Grundsätzliches und blindes Weiterlösen würde es nur verschleiern.
	challengeSolved bool
}

// NewClient baut einen DIP-Client aus der Konfiguration. Gecachte
// Challenge-Cookies werden übernommen, sofern sie noch frisch sind.
func NewClient(cfg *config.Config, logger *zap.Logger, solver browser.Solver) (*Client, error) {
	if cfg.DIPAPIKey == "" {
		return nil, fmt.Errorf("DIP_API_KEY ist nicht gesetzt")
	}
	base, err := url.Parse(cfg.DIPBaseURL)
	if err != nil {
		return nil, fmt.Errorf("ungültige DIP-Basis-URL %q: %w", cfg.DIPBaseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar konnte nicht angelegt werden: %w", err)
	}

	c := &Client{
		baseURL:    base,
		apiKey:     cfg.DIPAPIKey,
		pageSize:   cfg.DIPPageSize,
		maxRetries: cfg.DIPMaxRetries,
		backoff:    cfg.DIPBackoffBase,
		httpClient: &http.Client{
			Timeout: cfg.DIPTimeout,
			Jar:     jar,
		},
		logger:          logger,
		solver:          solver,
		cookieStatePath: cfg.CookieStatePath,
		autoSolve:       cfg.AutoSolveChallenge,
	}

	if data, err := browser.LoadCookies(cfg.CookieStatePath); err == nil && data.Fresh(browser.CookieMaxAge) {
		c.injectCookies(data)
		logger.Info("Gecachte Challenge-Cookies geladen",
			zap.Int("anzahl", len(data.Cookies)))
	}

	return c, nil
}

func (c *Client) injectCookies(data *browser.CookieData) {
	cookies := make([]*http.Cookie, 0, len(data.Cookies))
	for name, value := range data.Cookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	c.httpClient.Jar.SetCookies(c.baseURL, cookies)
}

// isChallenge erkennt, ob wir statt der API-Antwort auf der
// Enodia-Challenge-Seite gelandet sind (Redirects werden verfolgt,
// entscheidend ist daher die finale URL).
func isChallenge(resp *http.Response) bool {
	return resp.Request != nil &&
		strings.Contains(resp.Request.URL.Path, enodiaChallengePath)
}

// solveChallenge löst die Challenge über den Headless-Browser-Sidecar,
// übernimmt die Cookies in die Session und persistiert sie für spätere Läufe.
func (c *Client) solveChallenge(ctx context.Context, challengeURL string) error {
	if !c.autoSolve {
		return fmt.Errorf("enodia-Challenge erkannt, automatisches Lösen ist deaktiviert (Abhilfe: crawlify solve-challenge)")
	}
	if c.challengeSolved {
		return fmt.Errorf("enodia-Challenge erneut erkannt, obwohl sie in dieser Session bereits gelöst wurde")
	}
	c.logger.Warn("Enodia-Challenge erkannt, starte Browser-Solver",
		zap.String("url", challengeURL))

	data, err := c.solver.Solve(ctx, challengeURL)
	if err != nil {
		return fmt.Errorf("challenge konnte nicht gelöst werden: %w", err)
	}
	c.injectCookies(data)
	c.challengeSolved = true

	if err := browser.SaveCookies(c.cookieStatePath, data); err != nil {
		c.logger.Warn("Challenge-Cookies konnten nicht gespeichert werden", zap.Error(err))
	} else {
		c.logger.Info("Challenge gelöst, Cookies gespeichert",
			zap.Int("anzahl", len(data.Cookies)))
	}
	return nil
}

// sleepBackoff wartet base * 2^attempt plus bis zu 20 Prozent Jitter,
// bricht aber sofort ab, wenn der Kontext beendet wird.
func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := c.backoff * (1 << attempt)
	delay += time.Duration(rand.Float64() * 0.2 * float64(delay))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// getJSON holt einen API-Pfad mit Retries. Challenge-Behandlung verbraucht
// kein Retry-Budget: nach erfolgreichem Lösen wird die Anfrage sofort
// wiederholt.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path

	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("apikey", c.apiKey)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	attempt := 0
	for {
		var lastErr error

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("request konnte nicht gebaut werden: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("DIP-Anfrage %s fehlgeschlagen: %w", path, err)
		} else if isChallenge(resp) {
			challengeURL := resp.Request.URL.String()
			resp.Body.Close()
			if err := c.solveChallenge(ctx, challengeURL); err != nil {
				return nil, err
			}
			// kostet keinen Versuch
			continue
		} else if retryStatusCodes[resp.StatusCode] {
			resp.Body.Close()
			lastErr = fmt.Errorf("DIP antwortete mit HTTP %d auf %s", resp.StatusCode, path)
		} else if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("DIP antwortete mit HTTP %d auf %s", resp.StatusCode, path)
		} else {
			var raw map[string]any
			err := json.NewDecoder(resp.Body).Decode(&raw)
			resp.Body.Close()
			if err == nil {
				return raw, nil
			}
			lastErr = fmt.Errorf("DIP-Antwort auf %s ist kein gültiges JSON: %w", path, err)
		}

		attempt++
		if attempt > c.maxRetries {
			return nil, fmt.Errorf("aufgegeben nach %d Versuchen: %w", attempt, lastErr)
		}
		c.logger.Warn("DIP-Anfrage wird wiederholt",
			zap.String("pfad", path),
			zap.Int("versuch", attempt),
			zap.Error(lastErr))
		if err := c.sleepBackoff(ctx, attempt-1); err != nil {
			return nil, err
		}
	}
}

// PageIterator läuft im Scanner-Stil über die Seiten eines Endpunkts:
//
//	it := client.VorgangPages(cursor)
//	for it.Next(ctx) {
//	    page := it.Page()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type PageIterator struct {
	client *Client
	path   string
	params url.Values

	cursor      string
	failOnEmpty bool

	page *Page
	err  error
	done bool
}

func (c *Client) pages(path string, params url.Values, cursor string) *PageIterator {
	p := url.Values{}
	for k, vs := range params {
		p[k] = vs
	}
	p.Set("size", strconv.Itoa(c.pageSize))
	return &PageIterator{
		client:      c,
		path:        path,
		params:      p,
		cursor:      cursor,
		failOnEmpty: true,
	}
}

// DisableEmptyCheck schaltet die Leere-Seite-Anomalieprüfung ab.
// Gedacht für Diagnosezwecke, nicht für den regulären Abgleich.
func (it *PageIterator) DisableEmptyCheck() *PageIterator {
	it.failOnEmpty = false
	return it
}

// Next holt die nächste Seite. false bedeutet Ende oder Fehler, danach Err() prüfen.
func (it *PageIterator) Next(ctx context.Context) bool {
	if it.done || it.err != nil {
		return false
	}

	params := url.Values{}
	for k, vs := range it.params {
		params[k] = vs
	}
	if it.cursor != "" {
		params.Set("cursor", it.cursor)
	}

	raw, err := it.client.getJSON(ctx, it.path, params)
	if err != nil {
		it.err = err
		return false
	}

	page := &Page{
		Items:  extractItems(raw),
		Cursor: extractCursor(raw),
		Raw:    raw,
	}

	if len(page.Items) == 0 {
		if it.failOnEmpty && page.NumFound() > 0 {
			it.err = &EmptyResponseError{NumFound: page.NumFound()}
		}
		it.done = true
		return false
	}

	// Unveränderter oder leerer Cursor markiert die letzte Seite.
	if page.Cursor == "" || page.Cursor == it.cursor {
		it.done = true
	} else {
		it.cursor = page.Cursor
	}

	it.page = page
	return true
}

// Page liefert die zuletzt von Next geholte Seite.
func (it *PageIterator) Page() *Page {
	return it.page
}

// Err liefert den Fehler, der die Iteration beendet hat, falls vorhanden.
func (it *PageIterator) Err() error {
	return it.err
}

// VorgangPages iteriert über alle Vorgänge vom Typ "Kleine Anfrage",
// optional ab einem gespeicherten Cursor.
func (c *Client) VorgangPages(cursor string) *PageIterator {
	params := url.Values{}
	params.Set("f.vorgangstyp", "Kleine Anfrage")
	return c.pages("/vorgang", params, cursor)
}

// DrucksachePages iteriert über Drucksachen mit beliebigem Filter.
func (c *Client) DrucksachePages(filter url.Values, cursor string) *PageIterator {
	return c.pages("/drucksache", filter, cursor)
}

// DrucksacheTextPages iteriert über Drucksachen-Volltexte mit beliebigem Filter.
func (c *Client) DrucksacheTextPages(filter url.Values, cursor string) *PageIterator {
	return c.pages("/drucksache-text", filter, cursor)
}

// FetchDrucksacheText holt den Volltext einer einzelnen Drucksache über
// die ID-Filterung. nil ohne Fehler bedeutet: kein Volltext vorhanden.
func (c *Client) FetchDrucksacheText(ctx context.Context, drucksacheID string) (map[string]any, error) {
	params := url.Values{}
	params.Set("f.id", drucksacheID)
	it := c.pages("/drucksache-text", params, "")
	if it.Next(ctx) {
		return it.Page().Items[0], nil
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

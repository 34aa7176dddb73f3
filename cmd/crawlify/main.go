package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rstemml/crawlify-kleine-anfragen/browser"
	"github.com/rstemml/crawlify-kleine-anfragen/config"
	"github.com/rstemml/crawlify-kleine-anfragen/db"
	"github.com/rstemml/crawlify-kleine-anfragen/dip"
	"github.com/rstemml/crawlify-kleine-anfragen/services"
	"github.com/rstemml/crawlify-kleine-anfragen/storage"
)

// Exit-Codes des update-Kommandos, damit Wrapper-Skripte und systemd
// die Fehlerklasse unterscheiden können.
const (
	exitOK     = 0
	exitError  = 1
	exitLocked = 2
	exitAuth   = 3
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "crawlify",
		Short:         "Abgleich Kleiner Anfragen aus dem DIP des Bundestags",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newUpdateCmd(),
		newFetchVorgangCmd(),
		newSolveChallengeCmd(),
		newClearCookiesCmd(),
		newEmbedCmd(),
		newSearchCmd(),
		newStatsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Fehler:", err)
		os.Exit(exitError)
	}
}

type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *db.Store
	client *dip.Client
}

// setup baut die gemeinsame Infrastruktur der Kommandos auf.
// withDB und withClient steuern, was tatsächlich gebraucht wird.
func setup(withDB, withClient bool) (*app, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("logger konnte nicht initialisiert werden: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("konfiguration konnte nicht geladen werden: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	if withDB {
		database, err := db.Connect(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(database); err != nil {
			return nil, fmt.Errorf("migration fehlgeschlagen: %w", err)
		}
		a.store = db.NewStore(database)
	}

	if withClient {
		solver := browser.NewRemoteSolver(cfg.SolverURL, cfg.SolverTimeout)
		a.client, err = dip.NewClient(cfg, logger, solver)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) newIngestService() (*services.IngestService, error) {
	var s3Client *storage.S3Client
	var err error
	if a.cfg.ArchiveToS3 {
		s3Client, err = storage.NewS3Client(a.cfg)
		if err != nil {
			return nil, err
		}
	}
	archiver := storage.NewArchiver(a.cfg.RawDir, s3Client, a.logger)
	return services.NewIngestService(a.cfg, a.client, a.store, archiver, a.logger), nil
}

// acquireLock legt die Lock-Datei exklusiv an. Existiert sie bereits,
// läuft ein anderer Abgleich.
func acquireLock(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(f, os.Getpid())
	f.Close()
	return func() { os.Remove(path) }, nil
}

func newUpdateCmd() *cobra.Command {
	var full bool
	var skipVorgaenge, skipDrucksachen, skipVolltexte bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Kompletten Abgleich ausführen (Vorgänge, Drucksachen, Volltexte)",
		Run: func(cmd *cobra.Command, args []string) {
			a, err := setup(true, true)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Fehler:", err)
				os.Exit(exitError)
			}
			defer a.logger.Sync()

			release, err := acquireLock(a.cfg.LockPath)
			if err != nil {
				if os.IsExist(err) {
					fmt.Fprintln(os.Stderr, "Ein anderer Abgleich läuft bereits:", a.cfg.LockPath)
					os.Exit(exitLocked)
				}
				fmt.Fprintln(os.Stderr, "Fehler:", err)
				os.Exit(exitError)
			}

			svc, err := a.newIngestService()
			if err != nil {
				release()
				fmt.Fprintln(os.Stderr, "Fehler:", err)
				os.Exit(exitError)
			}

			stats, err := svc.Run(context.Background(), services.RunOptions{
				Full:            full,
				SkipVorgaenge:   skipVorgaenge,
				SkipDrucksachen: skipDrucksachen,
				SkipVolltexte:   skipVolltexte,
			})
			release()
			if err != nil {
				var empty *dip.EmptyResponseError
				if errors.As(err, &empty) {
					fmt.Fprintln(os.Stderr, "Auth-Problem:", err)
					os.Exit(exitAuth)
				}
				fmt.Fprintln(os.Stderr, "Fehler:", err)
				os.Exit(exitError)
			}

			fmt.Printf("Fertig: %d Seiten, %d Vorgänge, %d Drucksachen, %d Volltexte, %d übersprungen, %d Textfehler\n",
				stats.Pages, stats.Vorgaenge, stats.Drucksachen, stats.Volltexte, stats.Uebersprungen, stats.TextFehler)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Gespeicherten Cursor ignorieren und von vorn beginnen")
	cmd.Flags().BoolVar(&skipVorgaenge, "skip-vorgaenge", false, "Vorgangs-Phase überspringen")
	cmd.Flags().BoolVar(&skipDrucksachen, "skip-drucksachen", false, "Drucksachen-Phase überspringen")
	cmd.Flags().BoolVar(&skipVolltexte, "skip-volltexte", false, "Volltext-Phase überspringen")
	return cmd
}

func newFetchVorgangCmd() *cobra.Command {
	var pages int
	var noEmptyCheck bool

	cmd := &cobra.Command{
		Use:   "fetch-vorgang",
		Short: "Vorgangsseiten abrufen und archivieren, ohne Datenbank",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false, true)
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			archiver := storage.NewArchiver(a.cfg.RawDir, nil, a.logger)

			it := a.client.VorgangPages("")
			if noEmptyCheck {
				it.DisableEmptyCheck()
			}

			fetched := 0
			for fetched < pages && it.Next(context.Background()) {
				page := it.Page()
				path, err := archiver.ArchivePage(context.Background(), page.Raw, fetched, "vorgang")
				if err != nil {
					return err
				}
				fmt.Printf("Seite %d: %d Dokumente, numFound=%d, cursor=%q -> %s\n",
					fetched+1, len(page.Items), page.NumFound(), page.Cursor, path)
				fetched++
			}
			return it.Err()
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 1, "Anzahl der abzurufenden Seiten")
	cmd.Flags().BoolVar(&noEmptyCheck, "no-empty-check", false, "Leere-Seite-Anomalieprüfung abschalten (Diagnose)")
	return cmd
}

func newSolveChallengeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "solve-challenge",
		Short: "Enodia-Challenge manuell lösen und Cookies speichern",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			solver := browser.NewRemoteSolver(cfg.SolverURL, cfg.SolverTimeout)
			data, err := solver.Solve(context.Background(), cfg.DIPBaseURL)
			if err != nil {
				return err
			}
			if err := browser.SaveCookies(cfg.CookieStatePath, data); err != nil {
				return err
			}
			fmt.Printf("Challenge gelöst, %d Cookies gespeichert in %s\n", len(data.Cookies), cfg.CookieStatePath)
			return nil
		},
	}
}

func newClearCookiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cookies",
		Short: "Gespeicherte Challenge-Cookies löschen",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := browser.ClearCookies(cfg.CookieStatePath); err != nil {
				return err
			}
			fmt.Println("Cookies gelöscht.")
			return nil
		},
	}
}

func newEmbedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "embed",
		Short: "Fehlende Vektoren für Vorgänge berechnen",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(true, false)
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			embedder := services.NewHTTPEmbedder(a.cfg.EmbeddingURL, a.cfg.EmbeddingModel, a.cfg.EmbeddingTimeout)
			svc := services.NewEmbedService(a.store, embedder, a.cfg.EmbeddingModel, a.cfg.EmbeddingBatch, a.logger)

			count, err := svc.Run(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("%d Vektoren berechnet.\n", count)
			return nil
		},
	}
}

func newSearchCmd() *cobra.Command {
	var limit int
	var ressort, beratungsstand string

	cmd := &cobra.Command{
		Use:   "search <anfrage>",
		Short: "Semantische Suche über die Vorgänge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(true, false)
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			embedder := services.NewHTTPEmbedder(a.cfg.EmbeddingURL, a.cfg.EmbeddingModel, a.cfg.EmbeddingTimeout)
			svc := services.NewSearchService(a.store, embedder, a.logger)

			results, err := svc.Search(context.Background(), args[0], limit, services.SearchFilters{
				Ressort:        ressort,
				Beratungsstand: beratungsstand,
			})
			if err != nil {
				return err
			}

			for i, r := range results {
				fmt.Printf("%2d. [%0.3f] %s (%s)\n", i+1, r.Score, r.Titel, r.VorgangID)
				if r.Datum != "" || r.Ressort != "" {
					fmt.Printf("     %s  %s\n", r.Datum, r.Ressort)
				}
			}
			if len(results) == 0 {
				fmt.Println("Keine Treffer.")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximale Trefferzahl")
	cmd.Flags().StringVar(&ressort, "ressort", "", "Nach Ressort filtern")
	cmd.Flags().StringVar(&beratungsstand, "beratungsstand", "", "Nach Beratungsstand filtern")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Bestandszahlen der Datenbank anzeigen",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(true, false)
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			stats, err := a.store.Stats()
			if err != nil {
				return err
			}
			fmt.Println("Vorgänge:      " + strconv.FormatInt(stats.Vorgaenge, 10))
			fmt.Println("Drucksachen:   " + strconv.FormatInt(stats.Drucksachen, 10))
			fmt.Println("Volltexte:     " + strconv.FormatInt(stats.Volltexte, 10))
			fmt.Println("Mit Embedding: " + strconv.FormatInt(stats.MitEmbedding, 10))
			return nil
		},
	}
}

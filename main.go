package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rstemml/crawlify-kleine-anfragen/browser"
	"github.com/rstemml/crawlify-kleine-anfragen/config"
	"github.com/rstemml/crawlify-kleine-anfragen/db"
	"github.com/rstemml/crawlify-kleine-anfragen/dip"
	"github.com/rstemml/crawlify-kleine-anfragen/services"
	"github.com/rstemml/crawlify-kleine-anfragen/storage"
)

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database
	database, err := db.Connect(cfg)
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	if err := db.Migrate(database); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}
	store := db.NewStore(database)

	// Setup DIP-Client mit Challenge-Solver
	solver := browser.NewRemoteSolver(cfg.SolverURL, cfg.SolverTimeout)
	client, err := dip.NewClient(cfg, logging, solver)
	if err != nil {
		logging.Fatal("DIP client creation failed", zap.Error(err))
	}

	// Setup Rohseiten-Archiv, optional mit S3-Spiegel
	var s3Client *storage.S3Client
	if cfg.ArchiveToS3 {
		s3Client, err = storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
	}
	archiver := storage.NewArchiver(cfg.RawDir, s3Client, logging)

	// Setup Services
	ingestService := services.NewIngestService(cfg, client, store, archiver, logging)
	embedder := services.NewHTTPEmbedder(cfg.EmbeddingURL, cfg.EmbeddingModel, cfg.EmbeddingTimeout)
	embedService := services.NewEmbedService(store, embedder, cfg.EmbeddingModel, cfg.EmbeddingBatch, logging)
	searchService := services.NewSearchService(store, embedder, logging)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupAPIRoutes(router, store, ingestService, embedService, searchService, logging)

	// Setup Cron: nächtlicher Abgleich
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled ingest job...")
		stats, err := ingestService.Run(context.Background(), services.RunOptions{})
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
		} else {
			logging.Info("Cron job completed",
				zap.Int("vorgaenge", stats.Vorgaenge),
				zap.Int("drucksachen", stats.Drucksachen),
				zap.Int("volltexte", stats.Volltexte))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupAPIRoutes(router *gin.Engine, store *db.Store, ingestService *services.IngestService, embedService *services.EmbedService, searchService *services.SearchService, log *zap.Logger) {
	rg := router.Group("/api")

	rg.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "crawlify"})
	})

	rg.GET("/stats", func(c *gin.Context) {
		stats, err := store.Stats()
		if err != nil {
			log.Error("Database query for stats failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	rg.GET("/vorgang/:id", func(c *gin.Context) {
		detail, err := store.VorgangDetail(c.Param("id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "vorgang not found"})
				return
			}
			log.Error("Database query for vorgang failed", zap.String("id", c.Param("id")), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, detail)
	})

	rg.POST("/search", func(c *gin.Context) {
		var req struct {
			Query          string `json:"query" binding:"required"`
			Limit          int    `json:"limit"`
			Ressort        string `json:"ressort"`
			Beratungsstand string `json:"beratungsstand"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'query' field is required."})
			return
		}

		results, err := searchService.Search(c.Request.Context(), req.Query, req.Limit, services.SearchFilters{
			Ressort:        req.Ressort,
			Beratungsstand: req.Beratungsstand,
		})
		if err != nil {
			log.Error("Semantic search failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
	})

	rg.POST("/ingest/run", func(c *gin.Context) {
		var req struct {
			Full bool `json:"full"`
		}
		// Leerer Body ist erlaubt
		_ = c.ShouldBindJSON(&req)

		go func() {
			stats, err := ingestService.Run(context.Background(), services.RunOptions{Full: req.Full})
			if err != nil {
				ingestService.Logger.Error("Async ingest failed", zap.Error(err))
			} else {
				ingestService.Logger.Info("Async ingest completed",
					zap.Int("vorgaenge", stats.Vorgaenge),
					zap.Int("drucksachen", stats.Drucksachen),
					zap.Int("volltexte", stats.Volltexte))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Ingest triggered."})
	})

	rg.POST("/embed/run", func(c *gin.Context) {
		go func() {
			count, err := embedService.Run(context.Background())
			if err != nil {
				embedService.Logger.Error("Async embedding run failed", zap.Error(err))
			} else {
				embedService.Logger.Info("Async embedding run completed", zap.Int("vektoren", count))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Embedding run triggered."})
	})
}

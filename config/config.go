package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"crawlify"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"8080"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// DIP-API (Dokumentations- und Informationssystem des Bundestags)
	DIPBaseURL     string        `envconfig:"DIP_BASE_URL" default:"https://search.dip.bundestag.de/api/v1"`
	DIPAPIKey      string        `envconfig:"DIP_API_KEY"`
	DIPTimeout     time.Duration `envconfig:"DIP_TIMEOUT" default:"20s"`
	DIPMaxRetries  int           `envconfig:"DIP_MAX_RETRIES" default:"5"`
	DIPBackoffBase time.Duration `envconfig:"DIP_BACKOFF_BASE" default:"600ms"`
	DIPPageSize    int           `envconfig:"DIP_PAGE_SIZE" default:"100"`

	// Ablage für Rohseiten und Pipeline-Zustand
	RawDir          string `envconfig:"RAW_DIR" default:"data/raw"`
	CursorStatePath string `envconfig:"CURSOR_STATE_PATH" default:"state/vorgang_cursor.json"`
	CookieStatePath string `envconfig:"COOKIE_STATE_PATH" default:"state/cookies.json"`
	LockPath        string `envconfig:"LOCK_PATH" default:"state/update.lock"`

	// Enodia-Challenge-Solver (Headless-Browser-Sidecar)
	AutoSolveChallenge bool          `envconfig:"AUTO_SOLVE_CHALLENGE" default:"true"`
	SolverURL          string        `envconfig:"CHALLENGE_SOLVER_URL" default:"http://localhost:9222"`
	SolverTimeout      time.Duration `envconfig:"CHALLENGE_SOLVER_TIMEOUT" default:"90s"`

	// Grenzen für die Drucksachen-Verknüpfung (Best-Effort-Scan)
	DrucksacheTargetLimit int `envconfig:"DRUCKSACHE_TARGET_LIMIT" default:"50"`
	DrucksachePageLimit   int `envconfig:"DRUCKSACHE_PAGE_LIMIT" default:"50"`

	// Embedding-Dienst (text -> vector), außerhalb des Kerns
	EmbeddingURL     string        `envconfig:"EMBEDDING_URL" default:"http://localhost:8100/embed"`
	EmbeddingModel   string        `envconfig:"EMBEDDING_MODEL" default:"intfloat/multilingual-e5-small"`
	EmbeddingTimeout time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"120s"`
	EmbeddingBatch   int           `envconfig:"EMBEDDING_BATCH" default:"1000"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`

	// Optionaler S3-Spiegel für das Rohseiten-Archiv
	ArchiveToS3    bool   `envconfig:"ARCHIVE_TO_S3" default:"false"`
	StratoS3Key    string `envconfig:"STRATO_S3_KEY"`
	StratoS3Secret string `envconfig:"STRATO_S3_SECRET"`
	StratoS3URL    string `envconfig:"STRATO_S3_URL"`
	StratoS3Region string `envconfig:"STRATO_S3_REGION"`
	StratoS3Bucket string `envconfig:"STRATO_S3_BUCKET"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}

package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rstemml/crawlify-kleine-anfragen/config"
	"github.com/rstemml/crawlify-kleine-anfragen/models"
)

// Connect öffnet die PostgreSQL-Verbindung. Der GORM-Logger bleibt
// stumm, geloggt wird über zap in den Services.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	database, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("datenbankverbindung fehlgeschlagen: %w", err)
	}
	return database, nil
}

// Migrate legt die Tabellen an bzw. zieht das Schema nach.
func Migrate(database *gorm.DB) error {
	return database.AutoMigrate(
		&models.Vorgang{},
		&models.Drucksache{},
		&models.DrucksacheText{},
	)
}

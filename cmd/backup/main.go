package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kelseyhightower/envconfig"
)

// Eigenständiges Backup-Werkzeug: pg_dump der Vorgangs-Datenbank,
// komprimiert nach S3, mit Rotation der ältesten Stände. Läuft als
// Cron-Container neben dem Dienst.
type BackupConfig struct {
	PostgresHost     string `envconfig:"POSTGRES_HOST" required:"true"`
	PostgresUser     string `envconfig:"POSTGRES_USER" required:"true"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"crawlify"`
	BackupBucket     string `envconfig:"BACKUP_S3_BUCKET" required:"true"`
	BackupEndpoint   string `envconfig:"BACKUP_S3_ENDPOINT" required:"true"`
	BackupAccessKey  string `envconfig:"BACKUP_S3_ACCESS_KEY" required:"true"`
	BackupSecretKey  string `envconfig:"BACKUP_S3_SECRET_KEY" required:"true"`
	BackupRegion     string `envconfig:"BACKUP_S3_REGION" required:"true"`
	BackupPrefix     string `envconfig:"BACKUP_S3_PREFIX" default:"backups/"`
	KeepBackups      int    `envconfig:"KEEP_BACKUPS" default:"7"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Backup fehlgeschlagen: %v", err)
	}
	log.Println("Backup-Prozess erfolgreich abgeschlossen.")
}

func run() error {
	log.Println("Starte Backup-Prozess...")

	var cfg BackupConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("konfiguration konnte nicht geladen werden: %w", err)
	}

	ctx := context.Background()

	dumpData, err := createDump(cfg)
	if err != nil {
		return fmt.Errorf("DB-Dump konnte nicht erstellt werden: %w", err)
	}

	s3Client, err := createS3Client(ctx, cfg)
	if err != nil {
		return fmt.Errorf("S3-Client konnte nicht erstellt werden: %w", err)
	}

	key := fmt.Sprintf("%s%s-%s.sql.gz", cfg.BackupPrefix, cfg.PostgresDB,
		time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	if err := uploadToS3(ctx, s3Client, cfg, key, dumpData); err != nil {
		return fmt.Errorf("upload nach S3 fehlgeschlagen: %w", err)
	}
	log.Printf("Backup hochgeladen: s3://%s/%s (%d Bytes)", cfg.BackupBucket, key, len(dumpData))

	if err := rotateBackups(ctx, s3Client, cfg); err != nil {
		return fmt.Errorf("rotation alter Backups fehlgeschlagen: %w", err)
	}
	return nil
}

func createDump(cfg BackupConfig) ([]byte, error) {
	cmd := exec.Command("pg_dump",
		"-h", cfg.PostgresHost,
		"-U", cfg.PostgresUser,
		"-d", cfg.PostgresDB,
		"-w", // Passwort kommt über PGPASSWORD
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", cfg.PostgresPassword))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := io.Copy(gzipWriter, stdout); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func createS3Client(ctx context.Context, cfg BackupConfig) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: cfg.BackupEndpoint,
		}, nil
	})

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.BackupAccessKey, cfg.BackupSecretKey, "")),
		config.WithRegion(cfg.BackupRegion),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

func uploadToS3(ctx context.Context, client *s3.Client, cfg BackupConfig, key string, data []byte) error {
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(cfg.BackupBucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

// rotateBackups behält die jüngsten KeepBackups Dumps unter dem Präfix
// und löscht den Rest. Fremde Objekte im Bucket bleiben unangetastet.
func rotateBackups(ctx context.Context, client *s3.Client, cfg BackupConfig) error {
	output, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.BackupBucket),
		Prefix: aws.String(cfg.BackupPrefix),
	})
	if err != nil {
		return err
	}

	var dumps []backupObject
	for _, obj := range output.Contents {
		if obj.Key != nil && strings.HasSuffix(*obj.Key, ".sql.gz") {
			dumps = append(dumps, backupObject{key: *obj.Key, lastModified: *obj.LastModified})
		}
	}

	if len(dumps) <= cfg.KeepBackups {
		log.Printf("Höchstens %d Backups vorhanden, keine Rotation nötig.", cfg.KeepBackups)
		return nil
	}

	sort.Slice(dumps, func(i, j int) bool {
		return dumps[i].lastModified.After(dumps[j].lastModified)
	})

	for _, obj := range dumps[cfg.KeepBackups:] {
		log.Printf("Lösche altes Backup: %s", obj.key)
		_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(cfg.BackupBucket),
			Key:    aws.String(obj.key),
		})
		if err != nil {
			log.Printf("Fehler beim Löschen von %s: %v", obj.key, err)
		}
	}

	return nil
}

type backupObject struct {
	key          string
	lastModified time.Time
}

package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"triage-copilot/config"
	"triage-copilot/models"
	"triage-copilot/storage"
)

const exportPrefix = "issues-export-"

// exportRow ist eine NDJSON-Zeile des Exports: Issue plus Label-Set.
type exportRow struct {
	models.Issue
	Labels []string `json:"labels"`
}

func main() {
	log.Println("Starte Issue-Export...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}
	if cfg.ExportS3Bucket == "" {
		log.Fatal("EXPORT_S3_BUCKET ist nicht konfiguriert")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Fehler bei der Datenbank-Verbindung: %v", err)
	}

	data, count, err := buildExport(db)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des Exports: %v", err)
	}
	log.Printf("%d Issues exportiert (%d Bytes komprimiert)", count, len(data))

	client, err := storage.NewS3Client(cfg)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des S3-Clients: %v", err)
	}

	ctx := context.Background()
	key := fmt.Sprintf("%s%s.ndjson.gz", exportPrefix, time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	link, err := storage.UploadExport(ctx, client, cfg.ExportS3Bucket, key, data, cfg)
	if err != nil {
		log.Fatalf("Fehler beim Hochladen nach S3: %v", err)
	}
	log.Printf("Export erfolgreich hochgeladen: %s", link)

	deleted, err := storage.RotateExports(ctx, client, cfg.ExportS3Bucket, exportPrefix, cfg.ExportKeepCount)
	if err != nil {
		log.Fatalf("Fehler bei der Rotation alter Exporte: %v", err)
	}
	for _, old := range deleted {
		log.Printf("Alter Export gelöscht: %s", old)
	}

	log.Println("Issue-Export erfolgreich abgeschlossen.")
}

func buildExport(db *gorm.DB) ([]byte, int, error) {
	var issues []models.Issue
	if err := db.Order("id asc").Find(&issues).Error; err != nil {
		return nil, 0, err
	}

	var labels []models.Label
	if err := db.Find(&labels).Error; err != nil {
		return nil, 0, err
	}
	labelsByIssue := make(map[uint][]string, len(issues))
	for _, label := range labels {
		labelsByIssue[label.IssueID] = append(labelsByIssue[label.IssueID], label.Label)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	encoder := json.NewEncoder(gz)
	for _, issue := range issues {
		row := exportRow{Issue: issue, Labels: labelsByIssue[issue.ID]}
		if row.Labels == nil {
			row.Labels = []string{}
		}
		if err := encoder.Encode(row); err != nil {
			return nil, 0, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(issues), nil
}

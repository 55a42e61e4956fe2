package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"redis:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Embedding-Provider: "http" gegen einen OpenAI-kompatiblen Endpoint,
	// "deterministic" für Sandbox und Tests.
	EmbeddingProvider  string `envconfig:"EMBEDDING_PROVIDER" default:"http"`
	EmbeddingBaseURL   string `envconfig:"EMBEDDING_BASE_URL" default:"http://embeddings:8081"`
	EmbeddingAPIKey    string `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL" default:"sentence-transformers/all-MiniLM-L6-v2"`
	EmbeddingDimension int    `envconfig:"EMBEDDING_DIMENSION" default:"384"`

	GitHubWebhookSecret string `envconfig:"GITHUB_WEBHOOK_SECRET"`
	JiraWebhookSecret   string `envconfig:"JIRA_WEBHOOK_SECRET"`

	GitHubToken string `envconfig:"GITHUB_TOKEN"`
	JiraBaseURL string `envconfig:"JIRA_BASE_URL"`
	JiraEmail   string `envconfig:"JIRA_EMAIL"`
	JiraToken   string `envconfig:"JIRA_API_TOKEN"`

	// Backfill-Sweep für Issues ohne Embedding
	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"*/15 * * * *"`

	ExportS3Key     string `envconfig:"EXPORT_S3_KEY"`
	ExportS3Secret  string `envconfig:"EXPORT_S3_SECRET"`
	ExportS3URL     string `envconfig:"EXPORT_S3_URL"`
	ExportS3Region  string `envconfig:"EXPORT_S3_REGION"`
	ExportS3Bucket  string `envconfig:"EXPORT_S3_BUCKET"`
	ExportKeepCount int    `envconfig:"EXPORT_KEEP_COUNT" default:"4"`

	APISecretKey string `envconfig:"API_SECRET_KEY"`
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

package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"triage-copilot/config"
	"triage-copilot/embeddings"
	"triage-copilot/models"
	"triage-copilot/queue"
	"triage-copilot/services"
	"triage-copilot/trackers/github"
	"triage-copilot/trackers/jira"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	issuesIngestedCounter prometheus.Counter
	searchesCounter       prometheus.Counter
)

func init() {
	issuesIngestedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "issues_ingested_total",
			Help: "Total number of issues upserted via webhooks.",
		},
	)
	searchesCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "retrieval_queries_total",
			Help: "Total number of vector and hybrid retrieval queries.",
		},
	)
	prometheus.MustRegister(issuesIngestedCounter, searchesCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		// Webhooks authentifizieren sich über ihre eigenen Signaturen
		if strings.HasPrefix(c.Request.URL.Path, "/webhooks/") {
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

func newEmbeddingProvider(cfg *config.Config, logging *zap.Logger) embeddings.Provider {
	if cfg.EmbeddingProvider == "deterministic" {
		return embeddings.NewDeterministicProvider(cfg.EmbeddingModel, cfg.EmbeddingDimension)
	}
	return embeddings.NewHTTPProvider(cfg, logging)
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

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to issue database.")

	// Extension muss vor AutoMigrate existieren, sonst kennt Postgres den
	// Spaltentyp vector nicht
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
		logging.Fatal("Failed to create pgvector extension", zap.Error(err))
	}
	logging.Info("Running database auto-migration...")
	db.AutoMigrate(&models.Issue{}, &models.Label{}, &models.IssueVector{}, &models.SimilarIssue{})

	rdb := queue.NewClient(cfg)
	provider := newEmbeddingProvider(cfg, logging)

	ingestService := services.NewIngestService(db, rdb, logging)
	retrieveService := services.NewRetrieveService(db, logging)
	viewerService := services.NewViewerService(db, logging)
	triageService := services.NewTriageService(retrieveService, provider, services.NoOpReranker{}, logging)
	bootstrapService := services.NewBootstrapService(db, rdb, ingestService, provider, logging)

	if err := bootstrapService.EnsureSchema(context.Background(), provider.Dimension()); err != nil {
		logging.Fatal("Schema bootstrap failed", zap.Error(err))
	}

	githubClient := github.NewClient(cfg, logging)
	jiraClient := jira.NewClient(cfg, logging)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	setupWebhookRoutes(router, cfg, ingestService, logging)
	setupSearchRoutes(router, retrieveService, provider, logging)
	setupTriageRoutes(router, db, triageService, githubClient, jiraClient, logging)
	setupViewerRoutes(router, viewerService, logging)

	// Backfill-Sweep: die Queue ist ack-los, der Sweep fängt verlorene Jobs ein
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		count, err := bootstrapService.EnqueueMissing(context.Background())
		if err != nil {
			logging.Error("Backfill sweep failed", zap.Error(err))
		} else if count > 0 {
			logging.Info("Backfill sweep completed", zap.Int("enqueued", count))
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

// verifyGitHubSignature prüft die HMAC-SHA256-Signatur des Webhook-Bodies.
func verifyGitHubSignature(secret string, body []byte, signature string) bool {
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func setupWebhookRoutes(router *gin.Engine, cfg *config.Config, ingest *services.IngestService, log *zap.Logger) {
	rg := router.Group("/webhooks")

	handlePayload := func(c *gin.Context, payload services.IssuePayload) {
		id, err := ingest.StoreIssue(c.Request.Context(), payload)
		if err != nil {
			log.Error("Failed to store webhook issue", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if err := ingest.EnqueueEmbedding(c.Request.Context(), id, false); err != nil {
			// Der Sweep holt das Embedding später nach
			log.Warn("Failed to enqueue embed job", zap.Uint("issue_id", id), zap.Error(err))
		}
		issuesIngestedCounter.Inc()
		c.JSON(http.StatusAccepted, gin.H{"issue_id": id})
	}

	rg.GET("/github/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "github-webhook"})
	})
	rg.GET("/jira/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "jira-webhook"})
	})

	rg.POST("/github", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		if cfg.GitHubWebhookSecret != "" {
			if !verifyGitHubSignature(cfg.GitHubWebhookSecret, body, c.GetHeader("X-Hub-Signature-256")) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
				return
			}
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(body, &raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		payload, err := services.NormalizeGitHubIssue(raw)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		handlePayload(c, payload)
	})

	rg.POST("/jira", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		if cfg.JiraWebhookSecret != "" {
			token := c.GetHeader("X-Atlassian-Webhook-Identifier")
			if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.JiraWebhookSecret)) != 1 {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
				return
			}
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(body, &raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		payload, err := services.NormalizeJiraIssue(raw)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		handlePayload(c, payload)
	})
}

func setupSearchRoutes(router *gin.Engine, retrieve *services.RetrieveService, provider embeddings.Provider, log *zap.Logger) {
	router.GET("/search", func(c *gin.Context) {
		query := c.Query("q")
		if strings.TrimSpace(query) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
			return
		}

		k := 10
		if raw := c.Query("k"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid k"})
				return
			}
			k = parsed
		}
		if k > 200 {
			k = 200
		}

		hybrid := true
		if raw := c.Query("hybrid"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hybrid flag"})
				return
			}
			hybrid = parsed
		}

		alpha := 0.5
		if raw := c.Query("alpha"); raw != "" {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil || parsed < 0 || parsed > 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "alpha must be between 0 and 1"})
				return
			}
			alpha = parsed
		}

		embedding, err := provider.Embed(c.Request.Context(), query)
		if err != nil {
			log.Error("Failed to embed search query", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "embedding provider unavailable"})
			return
		}

		var results []models.RetrievalResult
		if hybrid {
			results, err = retrieve.HybridSearch(c.Request.Context(), embedding, query, k, alpha, provider.Model())
		} else {
			results, err = retrieve.VectorSearch(c.Request.Context(), embedding, k, provider.Model())
		}
		if err != nil {
			log.Error("Retrieval query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		searchesCounter.Inc()
		c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
	})
}

func setupTriageRoutes(router *gin.Engine, db *gorm.DB, triage *services.TriageService, gh *github.Client, jc *jira.Client, log *zap.Logger) {
	rg := router.Group("/triage")

	// Propose akzeptiert entweder eine issue_id (Vorschlag für ein bereits
	// ingestiertes Issue) oder direkt Titel und Body eines noch fremden.
	rg.POST("/propose", func(c *gin.Context) {
		var req struct {
			IssueID uint   `json:"issue_id"`
			Title   string `json:"title"`
			Body    string `json:"body"`
			TopK    int    `json:"top_k"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if req.IssueID != 0 {
			var issue models.Issue
			if err := db.First(&issue, req.IssueID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					c.JSON(http.StatusNotFound, gin.H{"error": "issue not found"})
					return
				}
				log.Error("DB error loading issue for triage", zap.Uint("issue_id", req.IssueID), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
				return
			}
			req.Title = issue.Title
			req.Body = issue.Body
		}
		if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Body) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "either issue_id or title/body is required"})
			return
		}
		if req.TopK <= 0 {
			req.TopK = 5
		}
		if req.TopK > 50 {
			req.TopK = 50
		}

		proposal, err := triage.Propose(c.Request.Context(), req.Title, req.Body, req.TopK)
		if err != nil {
			log.Error("Triage proposal failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assemble proposal"})
			return
		}
		c.JSON(http.StatusOK, proposal)
	})

	// Approve schreibt Labels und optional einen Kommentar zurück an den
	// Quell-Tracker des Issues hinter der Route.
	rg.POST("/approve", func(c *gin.Context) {
		var req struct {
			Route     string   `json:"route" binding:"required"`
			Labels    []string `json:"labels"`
			Assignees []string `json:"assignees"`
			Comment   string   `json:"comment"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'route' field is required."})
			return
		}

		source, externalKey, ok := services.ParseRoute(req.Route)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unparseable route"})
			return
		}

		ctx := c.Request.Context()
		var err error
		switch source {
		case "github":
			// External Key "owner/repo#N"
			repoPart, numberPart, found := strings.Cut(externalKey, "#")
			if !found {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unparseable route"})
				return
			}
			number, convErr := strconv.Atoi(numberPart)
			if convErr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unparseable route"})
				return
			}
			err = gh.AddLabels(ctx, repoPart, number, req.Labels)
			if err == nil {
				err = gh.Assign(ctx, repoPart, number, req.Assignees)
			}
			if err == nil && req.Comment != "" {
				err = gh.PostComment(ctx, repoPart, number, req.Comment)
			}
		case "jira":
			err = jc.AddLabels(ctx, externalKey, req.Labels)
			if err == nil {
				err = jc.Assign(ctx, externalKey, req.Assignees)
			}
			if err == nil && req.Comment != "" {
				err = jc.PostComment(ctx, externalKey, req.Comment)
			}
		}
		if err != nil {
			log.Error("Tracker write-back failed",
				zap.String("route", req.Route), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "tracker write-back failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "approved", "route": req.Route})
	})
}

func setupViewerRoutes(router *gin.Engine, viewer *services.ViewerService, log *zap.Logger) {
	rg := router.Group("/api")

	rg.GET("/routes", func(c *gin.Context) {
		routes, err := viewer.ListCanonicalRoutes(c.Request.Context())
		if err != nil {
			log.Error("Failed to list canonical routes", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"routes": routes, "count": len(routes)})
	})

	rg.GET("/issues/by-route/*route", func(c *gin.Context) {
		route := c.Param("route")
		record, err := viewer.FetchIssueByRoute(c.Request.Context(), route)
		if err != nil {
			log.Error("Route lookup failed", zap.String("route", route), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "no issue at this route",
				"hint":  "expected /gh/{owner}/{repo}/issues/{number} or /jira/{site}/{project}/{key}",
			})
			return
		}
		c.JSON(http.StatusOK, record)
	})

	rg.GET("/issues/search", func(c *gin.Context) {
		filters := models.ViewerFilters{
			Query:      c.Query("q"),
			Sources:    c.QueryArray("source"),
			Repos:      c.QueryArray("repo"),
			Projects:   c.QueryArray("project"),
			Labels:     c.QueryArray("label"),
			States:     c.QueryArray("state"),
			Priorities: c.QueryArray("priority"),
		}
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = parsed
		}
		if limit > 200 {
			limit = 200
		}

		items, err := viewer.SearchViewerIssues(c.Request.Context(), filters, limit)
		if err != nil {
			log.Error("Viewer search failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/social-publisher/internal/buffer"
	"github.com/social-publisher/internal/config"
	"github.com/social-publisher/internal/dispatch"
	"github.com/social-publisher/internal/lifecycle"
	"github.com/social-publisher/internal/logstore"
	"github.com/social-publisher/internal/models"
	"github.com/social-publisher/internal/status"
	"github.com/social-publisher/internal/storage"
	"github.com/social-publisher/internal/storage/sqlite"
	"github.com/social-publisher/pkg/logger"
	"github.com/social-publisher/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	repo    storage.Repository
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "publisher-server",
		Short: "Status publishing bridge between a content store and a scheduling API",
		Long: `Receives content-saved events, resolves configured status templates per
social profile and dispatches them to the scheduling API, keeping a
per-item log of outcomes.`,
		RunE: runServer,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting publisher server")

	// Initialize storage
	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Wire the dispatch pipeline
	limiter := ratelimit.NewMultiLimiter()
	limiter.AddLimiter(ratelimit.LimiterStatusAPI, float64(cfg.RateLimit.APIRequestsPerMinute)/60.0, 5)

	api := buffer.NewClient(cfg.API.BaseURL, time.Duration(cfg.API.TimeoutSeconds)*time.Second, limiter, log)

	// Seed API tokens: environment-injected credential wins, otherwise the
	// stored one. The dispatcher refreshes tokens on every cycle anyway.
	if cfg.API.AccessToken != "" {
		expiry, _ := time.Parse(time.RFC3339, cfg.API.TokenExpiresAt)
		api.SetTokens(cfg.API.AccessToken, cfg.API.RefreshToken, expiry)
	} else if cred, err := repo.GetCredential(context.Background(), dispatch.CredentialProvider); err == nil && cred.Valid() {
		api.SetTokens(cred.AccessToken, cred.RefreshToken, cred.Expiry)
	}

	builder := status.NewBuilder(cfg.Networks.CharacterLimits, cfg.Publisher.SiteName, cfg.Publisher.SettingsPath, log)
	logs := logstore.New(repo, log)
	dispatcher := dispatch.New(repo, api, builder, logs, cfg.Publisher.LogEnabled, cfg.API.ProfileCacheTTL, log)
	detector := lifecycle.New(repo, dispatcher, cfg.UpdateCooldown(), log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repost scheduler
	var scheduler *cron.Cron
	if cfg.Scheduler.RepostEnabled {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.Scheduler.RepostCron, func() {
			runReposts(ctx, dispatcher)
		}); err != nil {
			return fmt.Errorf("invalid repost cron expression: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Info().Str("cron", cfg.Scheduler.RepostCron).Msg("Repost scheduler started")
	}

	// HTTP server
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handlers{
		detector:   detector,
		dispatcher: dispatcher,
		logs:       logs,
		api:        api,
		cacheTTL:   cfg.API.ProfileCacheTTL,
	}
	h.register(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runReposts dispatches the repost action for recently published items.
// Items without repost configuration are skipped quietly.
func runReposts(ctx context.Context, dispatcher *dispatch.Dispatcher) {
	maxAge, err := time.ParseDuration(cfg.Scheduler.RepostMaxAge)
	if err != nil {
		maxAge = 30 * 24 * time.Hour
	}

	items, err := repo.ListPublishedItems(ctx, time.Now().Add(-maxAge))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list items for repost")
		return
	}

	for _, item := range items {
		entries, err := dispatcher.Publish(ctx, item.ID, models.ActionRepost)
		if err != nil {
			var nothingEnabled *status.NothingEnabledError
			if errors.As(err, &nothingEnabled) {
				continue
			}
			log.Warn().Err(err).Int64("item_id", item.ID).Msg("Repost dispatch failed")
			continue
		}
		if len(entries) > 0 {
			log.Info().Int64("item_id", item.ID).Int("sent", len(entries)).Msg("Reposted item")
		}
	}
}

type handlers struct {
	detector   *lifecycle.Detector
	dispatcher *dispatch.Dispatcher
	logs       *logstore.Store
	api        *buffer.Client
	cacheTTL   time.Duration
}

func (h *handlers) register(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.POST("/events/content-saved", h.contentSaved)
	v1.POST("/items/:id/publish", h.publish)
	v1.GET("/items/:id/log", h.getLog)
	v1.GET("/items/:id/log/export", h.exportLog)
	v1.DELETE("/items/:id/log", h.clearLog)
	v1.DELETE("/items/:id/log/pending", h.clearPendingLog)
	v1.GET("/profiles", h.profiles)
}

type contentSavedRequest struct {
	ItemID              int64  `json:"item_id" binding:"required"`
	NewStatus           string `json:"new_status" binding:"required"`
	OldStatus           string `json:"old_status"`
	IsAPIRequest        bool   `json:"is_api_request"`
	SupportsBlockEditor bool   `json:"supports_block_editor"`
}

func (h *handlers) contentSaved(c *gin.Context) {
	var req contentSavedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.detector.OnContentSaved(c.Request.Context(), req.ItemID, req.NewStatus, req.OldStatus, req.IsAPIRequest, req.SupportsBlockEditor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

type publishRequest struct {
	Action models.Action `json:"action" binding:"required"`
}

func (h *handlers) publish(c *gin.Context) {
	itemID, err := itemIDParam(c)
	if err != nil {
		return
	}

	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entries, err := h.dispatcher.Publish(c.Request.Context(), itemID, req.Action)
	if err != nil {
		var nothingEnabled *status.NothingEnabledError
		if errors.As(err, &nothingEnabled) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *handlers) getLog(c *gin.Context) {
	itemID, err := itemIDParam(c)
	if err != nil {
		return
	}

	entries, err := h.logs.Get(c.Request.Context(), itemID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type entryView struct {
		models.LogEntry
		State models.LogState `json:"state"`
	}
	views := make([]entryView, len(entries))
	for i, entry := range entries {
		views[i] = entryView{LogEntry: entry, State: entry.State()}
	}

	c.JSON(http.StatusOK, gin.H{"entries": views})
}

func (h *handlers) exportLog(c *gin.Context) {
	itemID, err := itemIDParam(c)
	if err != nil {
		return
	}

	payload, err := h.logs.Export(c.Request.Context(), itemID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="log.json"`)
	c.Data(http.StatusOK, "application/json", payload)
}

func (h *handlers) clearLog(c *gin.Context) {
	itemID, err := itemIDParam(c)
	if err != nil {
		return
	}

	if err := h.logs.Clear(c.Request.Context(), itemID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) clearPendingLog(c *gin.Context) {
	itemID, err := itemIDParam(c)
	if err != nil {
		return
	}

	if err := h.logs.ClearPending(c.Request.Context(), itemID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) profiles(c *gin.Context) {
	force := c.Query("refresh") == "true"
	profiles, err := h.api.Profiles(c.Request.Context(), force, h.cacheTTL)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

func itemIDParam(c *gin.Context) (int64, error) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return 0, err
	}
	return itemID, nil
}

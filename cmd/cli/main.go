package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

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
	"github.com/social-publisher/internal/tags"
	"github.com/social-publisher/pkg/logger"
	"github.com/social-publisher/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	repo    storage.Repository

	api        *buffer.Client
	builder    *status.Builder
	logs       *logstore.Store
	dispatcher *dispatch.Dispatcher
	detector   *lifecycle.Detector
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "publisher",
		Short: "Compose and dispatch social statuses for content items",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if repo != nil {
				repo.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	rootCmd.AddCommand(
		publishCmd(),
		eventCmd(),
		resolveCmd(),
		profilesCmd(),
		logCmd(),
		authCmd(),
		itemCmd(),
		settingsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup() error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	limiter := ratelimit.NewMultiLimiter()
	limiter.AddLimiter(ratelimit.LimiterStatusAPI, float64(cfg.RateLimit.APIRequestsPerMinute)/60.0, 5)

	api = buffer.NewClient(cfg.API.BaseURL, time.Duration(cfg.API.TimeoutSeconds)*time.Second, limiter, log)
	if cred, err := repo.GetCredential(context.Background(), dispatch.CredentialProvider); err == nil && cred.Valid() {
		api.SetTokens(cred.AccessToken, cred.RefreshToken, cred.Expiry)
	}

	builder = status.NewBuilder(cfg.Networks.CharacterLimits, cfg.Publisher.SiteName, cfg.Publisher.SettingsPath, log)
	logs = logstore.New(repo, log)
	dispatcher = dispatch.New(repo, api, builder, logs, cfg.Publisher.LogEnabled, cfg.API.ProfileCacheTTL, log)
	detector = lifecycle.New(repo, dispatcher, cfg.UpdateCooldown(), log)

	return nil
}

func publishCmd() *cobra.Command {
	var action string

	cmd := &cobra.Command{
		Use:   "publish <item-id>",
		Short: "Run a dispatch cycle for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}

			entries, err := dispatcher.Publish(cmd.Context(), itemID, models.Action(action))
			if err != nil {
				return err
			}
			if entries == nil {
				fmt.Println("Nothing configured for this content type.")
				return nil
			}

			for i, entry := range entries {
				fmt.Printf("%d. [%s] %s: %s\n", i+1, entry.State(), entry.ProfileName, entry.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", string(models.ActionPublish), "lifecycle action (publish, update, repost)")
	return cmd
}

func eventCmd() *cobra.Command {
	var (
		newStatus   string
		oldStatus   string
		apiRequest  bool
		blockEditor bool
	)

	cmd := &cobra.Command{
		Use:   "event <item-id>",
		Short: "Feed a content-saved event through the lifecycle detector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			return detector.OnContentSaved(cmd.Context(), itemID, newStatus, oldStatus, apiRequest, blockEditor)
		},
	}

	cmd.Flags().StringVar(&newStatus, "new-status", lifecycle.StatusPublished, "status after the save")
	cmd.Flags().StringVar(&oldStatus, "old-status", "draft", "status before the save")
	cmd.Flags().BoolVar(&apiRequest, "api", false, "save arrived via the REST API")
	cmd.Flags().BoolVar(&blockEditor, "block-editor", false, "content type supports the block editor")
	return cmd
}

func resolveCmd() *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "resolve <item-id> <message>",
		Short: "Preview tag resolution for a status message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}

			item, err := repo.GetContentItem(cmd.Context(), itemID)
			if err != nil {
				return err
			}

			resolver := tags.NewResolver(item, cfg.Publisher.SiteName)
			fmt.Println(resolver.ResolveText(args[1], builder.CharacterLimit(service)))
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "target service, used for the character limit lookup")
	return cmd
}

func profilesCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List connected social profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := api.Profiles(cmd.Context(), refresh, cfg.API.ProfileCacheTTL)
			if err != nil {
				return err
			}

			for _, profile := range profiles {
				state := "disabled"
				if profile.Enabled {
					state = "enabled"
				}
				fmt.Printf("%-24s %-12s %s (%s)\n", profile.ID, profile.Service, profile.Label(), state)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the profile cache")
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect and manage per-item dispatch logs",
	}

	show := &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show the dispatch log for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}

			entries, err := logs.Get(cmd.Context(), itemID)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No status updates have been sent for this item.")
				return nil
			}

			for i, entry := range entries {
				fmt.Printf("%d. %s [%s] %s: %s\n",
					i+1, entry.Date.Format(time.RFC3339), entry.State(), entry.ProfileName, entry.Text())
			}
			return nil
		},
	}

	var out string
	export := &cobra.Command{
		Use:   "export <item-id>",
		Short: "Export the dispatch log as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}

			payload, err := logs.Export(cmd.Context(), itemID)
			if err != nil {
				return err
			}

			if out == "" {
				fmt.Println(string(payload))
				return nil
			}
			return os.WriteFile(out, payload, 0644)
		},
	}
	export.Flags().StringVar(&out, "out", "", "write to file instead of stdout")

	var pendingOnly bool
	clear := &cobra.Command{
		Use:   "clear <item-id>",
		Short: "Clear the dispatch log for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}

			if pendingOnly {
				return logs.ClearPending(cmd.Context(), itemID)
			}
			return logs.Clear(cmd.Context(), itemID)
		},
	}
	clear.Flags().BoolVar(&pendingOnly, "pending", false, "only drop unconfirmed scheduled entries")

	cmd.AddCommand(show, export, clear)
	return cmd
}

func authCmd() *cobra.Command {
	var (
		accessToken  string
		refreshToken string
		expiresAt    string
	)

	set := &cobra.Command{
		Use:   "set",
		Short: "Store the scheduling API credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			if accessToken == "" {
				return errors.New("--access-token is required")
			}

			expiry := time.Time{}
			if expiresAt != "" {
				parsed, err := time.Parse(time.RFC3339, expiresAt)
				if err != nil {
					return fmt.Errorf("invalid --expires-at: %w", err)
				}
				expiry = parsed
			}

			return repo.SaveCredential(cmd.Context(), &models.Credential{
				Provider:     dispatch.CredentialProvider,
				AccessToken:  accessToken,
				RefreshToken: refreshToken,
				Expiry:       expiry,
			})
		},
	}
	set.Flags().StringVar(&accessToken, "access-token", "", "API access token")
	set.Flags().StringVar(&refreshToken, "refresh-token", "", "API refresh token")
	set.Flags().StringVar(&expiresAt, "expires-at", "", "token expiry, RFC3339")

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the scheduling API credential",
	}
	cmd.AddCommand(set)
	return cmd
}

func itemCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import a content item from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var item models.ContentItem
			if err := json.Unmarshal(raw, &item); err != nil {
				return fmt.Errorf("invalid item file: %w", err)
			}

			if err := repo.CreateContentItem(cmd.Context(), &item); err != nil {
				return err
			}
			fmt.Printf("Imported item %d (%s)\n", item.ID, item.Title)
			return nil
		},
	}

	cmd := &cobra.Command{
		Use:   "item",
		Short: "Manage content items",
	}
	cmd.AddCommand(importCmd)
	return cmd
}

func settingsCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import <content-type> <file.json>",
		Short: "Import status settings for a content type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			var settings models.Settings
			if err := json.Unmarshal(raw, &settings); err != nil {
				return fmt.Errorf("invalid settings file: %w", err)
			}

			if settings.HasDuplicateStatuses() {
				fmt.Println("Warning: duplicate status messages found within a profile/action group.")
			}

			return repo.SaveSettings(cmd.Context(), args[0], settings)
		},
	}

	check := &cobra.Command{
		Use:   "check <content-type>",
		Short: "Validate stored settings for a content type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := repo.GetSettings(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if settings == nil {
				fmt.Printf("No settings stored for content type %q.\n", args[0])
				return nil
			}

			if settings.HasDuplicateStatuses() {
				fmt.Println("Duplicate status messages found within a profile/action group.")
			} else {
				fmt.Println("Settings OK.")
			}
			return nil
		},
	}

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage status settings",
	}
	cmd.AddCommand(importCmd, check)
	return cmd
}

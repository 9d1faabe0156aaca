package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/controltower/notifier/internal/config"
	"github.com/controltower/notifier/internal/dispatch"
	"github.com/controltower/notifier/internal/engine"
	"github.com/controltower/notifier/internal/metrics"
	"github.com/controltower/notifier/internal/scheduler"
	"github.com/controltower/notifier/internal/server"
	"github.com/controltower/notifier/internal/store"
	"github.com/controltower/notifier/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config     *config.Config
	storage    store.Storage
	metrics    *metrics.Manager
	dispatcher *dispatch.Dispatcher
	resolver   *engine.Resolver
	evaluator  *engine.Evaluator
	alerter    *engine.Alerter
	scheduler  *scheduler.Scheduler
	server     *server.HTTPServer
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging
	return utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File)
}

func (app *Application) initializeComponents() error {
	logger := utils.GetLogger()
	logger.Info("Initializing application components")

	// Storage
	if err := store.ValidateStorageConfig(&app.config.Storage); err != nil {
		return err
	}
	storage, err := store.NewStorage(&app.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := storage.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := storage.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}
	app.storage = storage

	// Metrics
	app.metrics = metrics.NewManager()

	// Dispatcher and engine
	app.dispatcher = dispatch.NewDispatcher(&app.config.SMTP, &app.config.Chat, app.metrics)
	app.resolver = engine.NewResolver(storage, app.config.Notifications.BroadcastRole, app.metrics)
	app.evaluator = engine.NewEvaluator(storage, app.resolver, app.dispatcher, app.metrics)
	app.alerter = engine.NewAlerter(storage, app.resolver, app.dispatcher,
		app.config.Chat.DefaultWebhookURL, app.metrics)

	// Scheduler
	if app.config.Scheduler.Enabled {
		app.scheduler = scheduler.NewScheduler(&app.config.Scheduler, app.evaluator)
	}

	// HTTP server
	app.server = server.NewHTTPServer(&app.config.Server, storage, app.evaluator,
		app.alerter, app.dispatcher, app.scheduler, app.metrics, AppVersion)

	logger.Info("All components initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	logger := utils.GetLogger()

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if app.scheduler != nil {
		if err := app.scheduler.Start(app.ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	logger.WithField("address",
		fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port)).
		Info("Control Tower notifier started")
	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	logger := utils.GetLogger()
	logger.Info("Stopping Control Tower notifier")

	app.cancel()

	if app.scheduler != nil {
		if err := app.scheduler.Stop(); err != nil {
			logger.WithField("error", err).Error("Failed to stop scheduler")
		}
	}

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			logger.WithField("error", err).Error("Failed to stop HTTP server")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			logger.WithField("error", err).Error("Failed to close storage")
		}
	}

	logger.Info("Control Tower notifier stopped")
	return nil
}

// CLI Commands

var rootCmd = &cobra.Command{
	Use:     "notifier",
	Short:   "Control Tower deployment notification engine",
	Long:    `Decides, for each tracked deployment, who should be notified, through which channel, and under what triggering conditions.`,
	Version: AppVersion,
	RunE:    runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the notifier service (HTTP API + daily scheduler)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	return app.Stop()
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one daily reminder batch and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Scheduler.Enabled = false

		app, err := NewApplication(cfg)
		if err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		defer app.Stop()

		result, err := app.evaluator.RunDaily(app.ctx, time.Now())
		if err != nil {
			return fmt.Errorf("reminder batch failed: %w", err)
		}

		fmt.Printf("Processed: %d\nSent: %d\nSkipped: %d\nErrors: %d\nDuration: %s\n",
			result.Processed, result.Sent, result.Skipped, result.Errors, result.Duration)
		return nil
	},
}

var testEmailCmd = &cobra.Command{
	Use:   "test-email",
	Short: "Send a test email to verify SMTP configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.File); err != nil {
			return err
		}

		sender := dispatch.NewEmailSender(&cfg.SMTP, nil)
		result := sender.TestConfig(context.Background())
		if !result.Sent {
			return fmt.Errorf("test email failed: %s %s", result.Reason, result.Error)
		}

		fmt.Println("Test email sent successfully")
		return nil
	},
}

var testWebhookCmd = &cobra.Command{
	Use:   "test-webhook [url]",
	Short: "Post a test message to a Google Chat webhook",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.File); err != nil {
			return err
		}

		webhookURL := cfg.Chat.DefaultWebhookURL
		if len(args) > 0 {
			webhookURL = args[0]
		}
		if webhookURL == "" {
			return fmt.Errorf("no webhook URL configured or provided")
		}

		sender := dispatch.NewChatSender(&cfg.Chat, nil)
		result := sender.TestWebhook(context.Background(), webhookURL)
		if !result.Sent {
			return fmt.Errorf("test webhook failed: %s %s", result.Reason, result.Error)
		}

		fmt.Println("Test message posted successfully")
		return nil
	},
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Println("Configuration is valid!")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("SMTP configured: %t\n", cfg.SMTP.Host != "")
		fmt.Printf("Default chat webhook configured: %t\n", cfg.Chat.DefaultWebhookURL != "")
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(testEmailCmd)
	rootCmd.AddCommand(testWebhookCmd)
	rootCmd.AddCommand(validateConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

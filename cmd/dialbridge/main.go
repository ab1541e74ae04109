package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/dialbridge/dialbridge/internal/bridge"
	"github.com/dialbridge/dialbridge/internal/config"
	"github.com/dialbridge/dialbridge/internal/httpapi"
	"github.com/dialbridge/dialbridge/internal/store"
	"github.com/dialbridge/dialbridge/internal/tools"
	"github.com/dialbridge/dialbridge/internal/ultravox"
	"github.com/dialbridge/dialbridge/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "dialbridge",
	Short: "dialbridge - real-time bridge between phone calls and a voice AI agent",
	Long: `dialbridge answers telephony media streams over WebSocket, relays the
caller's audio to a conversational AI agent, and plays the agent's
speech back into the call, transcoding between the two sides' formats.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger(cmd)

		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger.Info("Starting bridge server",
			slog.String("service", "dialbridge"),
			slog.String("version", version.Version),
			slog.String("commit", version.GitCommit),
			slog.String("listen_addr", cfg.ListenAddr),
			slog.String("public_host", cfg.PublicHost))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	var oa *openai.Client
	if cfg.OpenAIAPIKey != "" {
		oa = openai.NewClient(cfg.OpenAIAPIKey)
	} else {
		logger.Warn("OPENAI_API_KEY not set; knowledge answers and summaries are disabled")
	}

	dispatcher := tools.NewDispatcher(logger)
	dispatcher.Register(tools.ToolHangUp, tools.NewHangUpHandler())
	dispatcher.Register(tools.ToolScheduleMeeting,
		tools.NewScheduleMeetingHandler(cfg.ScheduleWebhookURL, http.DefaultClient, logger))
	dispatcher.Register(tools.ToolQuestionAnswer,
		tools.NewQuestionAnswerHandler(oa, st, tools.QAConfig{}, logger))

	var summarizer bridge.Summarizer
	if oa != nil {
		summarizer = tools.NewOpenAISummarizer(oa, openai.GPT4oMini)
	}

	originator := ultravox.NewClient(ultravox.ClientConfig{
		APIKey:  cfg.UltravoxAPIKey,
		BaseURL: cfg.UltravoxBaseURL,
		Model:   cfg.UltravoxModel,
		Voice:   cfg.UltravoxVoice,
		Timeout: time.Duration(cfg.OriginationTimeoutS) * time.Second,
	}, logger)

	br, err := bridge.New(bridge.Config{
		Originator: originator,
		Dialer: bridge.AgentDialerFunc(func(ctx context.Context, joinURL string) (bridge.AgentSession, error) {
			return ultravox.Dial(ctx, joinURL, logger)
		}),
		Store:              st,
		Dispatcher:         dispatcher,
		Summarizer:         summarizer,
		SystemPrompt:       cfg.SystemPrompt,
		Logger:             logger,
		OriginationTimeout: time.Duration(cfg.OriginationTimeoutS) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	api := httpapi.NewServer(br, st, httpapi.Config{
		PublicHost:   cfg.PublicHost,
		FirstMessage: cfg.FirstMessage,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown incomplete", slog.String("error", err.Error()))
		return srv.Close()
	}
	return nil
}

// openStore chooses the call-history backend: Postgres when a DSN is
// configured, otherwise the in-memory store for local development.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; call history is in-memory only")
		return store.NewMemory(), nil
	}
	return store.NewPostgres(ctx, cfg.DatabaseURL, logger)
}

// setupLogger builds the process logger. Flags win over the
// DIALBRIDGE_LOG_FORMAT / DIALBRIDGE_LOG_LEVEL environment variables.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	logFormat, _ := cmd.Flags().GetString("log-format")
	logLevel, _ := cmd.Flags().GetString("log-level")
	if logFormat == "" {
		logFormat = os.Getenv("DIALBRIDGE_LOG_FORMAT")
	}
	if logLevel == "" {
		logLevel = os.Getenv("DIALBRIDGE_LOG_LEVEL")
	}

	opts := &slog.HandlerOptions{}
	switch logLevel {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if logFormat == "console" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func init() {
	rootCmd.PersistentFlags().String("log-format", "", "Log output format: json or console (default json)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (default info)")

	rootCmd.AddCommand(versionCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

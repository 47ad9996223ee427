package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pbaille/studylog/internal/api"
	"github.com/pbaille/studylog/internal/chat"
	"github.com/pbaille/studylog/internal/classify"
	"github.com/pbaille/studylog/internal/config"
	"github.com/pbaille/studylog/internal/logging"
	"github.com/pbaille/studylog/internal/relay"
	"github.com/pbaille/studylog/internal/store"
)

var (
	dbPath     string
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "studylog",
		Short:         "Study assistant that files every question under a subject and unit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default from config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/studylog/config.yaml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(daysCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(subjectsCmd())
	rootCmd.AddCommand(subjectCmd())
	rootCmd.AddCommand(unitCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(moveCmd())
	rootCmd.AddCommand(collapseCmd())
	rootCmd.AddCommand(memoCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(importCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	return cfg, nil
}

func getStore() (*store.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

func newRelay(cfg *config.Config, logger *zap.Logger) (*relay.Client, error) {
	return relay.New(relay.Config{
		APIKey:       cfg.LLM.APIKey.Value(),
		BaseURL:      cfg.LLM.BaseURL,
		Model:        cfg.LLM.Model,
		MaxTokens:    cfg.LLM.MaxTokens,
		BatchTimeout: cfg.LLM.BatchTimeout.Duration(),
		RateLimit:    cfg.LLM.RateLimit,
		RateBurst:    cfg.LLM.RateBurst,
	}, relay.WithLogger(logger))
}

func chatConfig(cfg *config.Config) chat.Config {
	return chat.Config{
		Model:       cfg.LLM.Model,
		VisionModel: cfg.LLM.VisionModel,
		Format:      classify.Format(cfg.Classifier.Format),
	}
}

func serveCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logging.Sync(logger) }()

			s, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer s.Close()
			logger.Info("store opened", zap.String("path", s.Path()))

			var (
				r        chat.Relay
				sessions *chat.Sessions
			)
			client, err := newRelay(cfg, logger)
			switch {
			case errors.Is(err, relay.ErrNoAPIKey):
				logger.Warn("no API key configured, relay endpoints disabled")
			case err != nil:
				return err
			default:
				r = client
				sessions = chat.NewSessions(client, s, chatConfig(cfg), logger)
			}

			server, err := api.NewServer(s, r, sessions, logger, &api.Config{
				Host:        cfg.Server.Host,
				Port:        cfg.Server.Port,
				VisionModel: cfg.LLM.VisionModel,
			})
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown server: %w", err)
			}
			logger.Info("server stopped", zap.Strings("in_flight_days", sessionDays(sessions)))
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

func sessionDays(s *chat.Sessions) []string {
	if s == nil {
		return nil
	}
	return s.Active()
}

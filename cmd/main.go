package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NgigiN/ledgerbot/internal/config"
	"github.com/NgigiN/ledgerbot/internal/console"
	"github.com/NgigiN/ledgerbot/internal/discord"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var (
	logger  *zap.Logger
	verbose bool
	envFile string
	token   string
)

var rootCmd = &cobra.Command{
	Use:           "ledgerbot",
	Short:         "A chat bookkeeper that keeps an income and expense ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
			logger.Debug("No env file, using process environment", zap.String("path", envFile))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var discordCmd = &cobra.Command{
	Use:   "discord",
	Short: "Run the bot in a Discord channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if token != "" {
			cfg.DiscordBotToken = token
		}
		if err := cfg.ValidateDiscord(); err != nil {
			return err
		}
		return runDiscord(cmd.Context(), cfg)
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Talk to the bot from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runConsole(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an env file loaded before the environment is read")
	discordCmd.Flags().StringVar(&token, "token", "", "Discord bot token (overrides DISCORD_BOT_TOKEN)")

	rootCmd.AddCommand(discordCmd, consoleCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runDiscord(ctx context.Context, cfg *config.Config) error {
	bot, err := discord.NewBot(discord.Options{
		Token:        cfg.DiscordBotToken,
		ChannelID:    cfg.DiscordChannelId,
		AllowedUsers: cfg.AllowedUsers,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize the discord bot: %w", err)
	}

	app, err := newApp(ctx, cfg, bot, cfg.DiscordChannelId)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := bot.Start(); err != nil {
		return err
	}
	defer bot.Stop()
	logger.Info("Bot is running", zap.String("channel", cfg.DiscordChannelId), zap.Int("allowed_users", len(cfg.AllowedUsers)))

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	health := discord.NewHealthServer(cfg.HealthAddr, bot.HealthHandler())
	g.Go(func() error {
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return health.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		// The dispatcher ending (e.g. termination token) stops the whole bot.
		defer cancel()
		return app.dispatcher.Run(runCtx, bot)
	})

	err = g.Wait()
	logger.Info("Bot stopped")
	return err
}

func runConsole(ctx context.Context, cfg *config.Config) error {
	con := console.New(os.Stdin, os.Stdout, "> ")
	defer con.Close()
	app, err := newApp(ctx, cfg, con, console.ChatID)
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Fprintf(os.Stdout, "Ledger ready. Type %s to quit.\n", cfg.TerminationToken)
	return app.dispatcher.Run(ctx, con)
}

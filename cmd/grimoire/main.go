package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"grimoire/internal/bot"
	"grimoire/internal/config"
	"grimoire/internal/db"
	"grimoire/internal/game"
	"grimoire/internal/store"
	"grimoire/internal/task"
)

func main() {
	root := &cobra.Command{
		Use:           "grimoire",
		Short:         "Discord spell-collecting game bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), registerCommandsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to the gateway and serve interactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadBotFromEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	st := store.NewPostgres(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}

	lock := task.NewLock()
	catalog := game.DefaultCatalog()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	server, err := bot.NewServer(cfg.DiscordToken, lock, logger)
	if err != nil {
		return err
	}
	session := server.Session()

	shops := bot.NewShopHandler(session, st, catalog, lock, rng, logger, cfg.ShopRestockEvery, cfg.ShopRetryBackoff)
	trades := bot.NewTradeHandler(session, st, catalog, lock, logger, cfg.TradeOfferTTL)

	server.AddHandler(bot.NewChecklistHandler(session, st, catalog))
	server.AddHandler(bot.NewDailyHandler(session, st, catalog, rng, cfg.DailyCooldown))
	server.AddHandler(bot.NewGiveHandler(session, st, catalog))
	server.AddHandler(bot.NewGrimoireHandler(session, st, catalog))
	server.AddHandler(bot.NewMergeHandler(session, st, catalog))
	server.AddHandler(shops)
	server.AddHandler(trades)

	admin := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: bot.NewAdminRouter(shops, trades, logger),
	}
	go func() {
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", "err", err)
		}
	}()

	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("bot started", "admin_addr", cfg.AdminAddr)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin shutdown failed", "err", err)
	}
	return server.Shutdown(shutdownCtx)
}

func registerCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register-commands",
		Short: "Overwrite the application's global slash commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadBotFromEnv()
			if err != nil {
				return err
			}
			if cfg.ApplicationID == "" {
				return fmt.Errorf("DISCORD_APP_ID is required")
			}

			session, err := discordgo.New("Bot " + cfg.DiscordToken)
			if err != nil {
				return err
			}
			registered, err := bot.RegisterCommands(session, cfg.ApplicationID)
			if err != nil {
				return err
			}

			color.Green("registered %d commands", len(registered))
			for _, c := range registered {
				fmt.Printf("  /%s\n", c.Name)
			}
			return nil
		},
	}
}

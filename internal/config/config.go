package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type BotConfig struct {
	DiscordToken     string
	ApplicationID    string
	DatabaseURL      string
	AdminAddr        string
	ShopRestockEvery time.Duration
	ShopRetryBackoff time.Duration
	TradeOfferTTL    time.Duration
	DailyCooldown    time.Duration
}

func LoadBotFromEnv() (BotConfig, error) {
	cfg := BotConfig{
		DiscordToken:     strings.TrimSpace(os.Getenv("DISCORD_TOKEN")),
		ApplicationID:    strings.TrimSpace(os.Getenv("DISCORD_APP_ID")),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AdminAddr:        envDefault("GRIMOIRE_ADMIN_ADDR", ":8080"),
		ShopRestockEvery: envDurationDefault("GRIMOIRE_SHOP_RESTOCK_EVERY", 24*time.Hour),
		ShopRetryBackoff: envDurationDefault("GRIMOIRE_SHOP_RETRY_BACKOFF", 5*time.Second),
		TradeOfferTTL:    envDurationDefault("GRIMOIRE_TRADE_OFFER_TTL", time.Hour),
		DailyCooldown:    envDurationDefault("GRIMOIRE_DAILY_COOLDOWN", 20*time.Hour),
	}
	if cfg.DiscordToken == "" {
		return cfg, fmt.Errorf("DISCORD_TOKEN is required")
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

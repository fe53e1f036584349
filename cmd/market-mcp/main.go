package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DevRickLin/feishu-market-bot/internal/conf"
	"github.com/DevRickLin/feishu-market-bot/internal/mcp"
)

// Populated at build-time via -ldflags flag.
var version = "dev"

// market-mcp serves the marketplace admin tools over MCP stdio and relays
// every call to the admin API of a running marketbot.
func main() {
	// stdout carries the protocol, logs go to stderr
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("component", "market-mcp").Logger()

	_ = godotenv.Load()

	cfg, err := conf.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := mcp.NewClient(cfg.API.URL)
	server := mcp.NewServer(client, version)

	log.Info().Str("api_url", cfg.API.URL).Msg("serving MCP over stdio")
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("mcp server stopped")
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ObiAU/mentionwatch/internal/aggregator"
	"github.com/ObiAU/mentionwatch/internal/cache"
	"github.com/ObiAU/mentionwatch/internal/config"
	"github.com/ObiAU/mentionwatch/internal/logging"
	"github.com/ObiAU/mentionwatch/internal/models"
	"github.com/ObiAU/mentionwatch/internal/sources"
	"github.com/ObiAU/mentionwatch/internal/telegram"
	"github.com/ObiAU/mentionwatch/internal/window"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	seen := cache.New()

	notifier, err := telegram.NewBot(cfg.BotToken, cfg.ChatDestinationID,
		telegram.WithRate(cfg.SendRatePerSec),
		telegram.WithLogger(logging.Component(logger, "telegram")),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create telegram notifier")
	}

	twitter := sources.NewTwitterClient(cfg.SearchAPIToken,
		sources.WithBaseURL(cfg.SearchEndpoint),
		sources.WithTimeout(cfg.HTTPTimeout),
		sources.WithTwitterLogger(logging.Component(logger, "twitter")),
	)

	tracker := window.New(cfg.Lookback(), cfg.PollInterval, window.WithEndLag(cfg.EndTimeLag))
	accounts := sources.TrackedAccountSet{}
	accountSource := sources.NewAccountSource(twitter, tracker,
		sources.WithAccounts(accounts),
		sources.WithMaxResults(cfg.MaxResults),
		sources.WithFollowerFloor(cfg.FollowerFloor),
		sources.WithSeenCache(seen),
		sources.WithLogger(logging.Component(logger, "source")),
	)
	for _, account := range cfg.TrackedAccounts {
		accountSource.AddAccount(account)
	}

	poller := aggregator.New(cfg.PollInterval,
		[]models.Source{accountSource},
		[]models.NotificationSink{notifier},
		aggregator.WithServerPort(cfg.ServerPort),
		aggregator.WithStats("cache", seen),
		aggregator.WithStats("windows", tracker),
		aggregator.WithLogger(logging.Component(logger, "poller")),
	)

	logger.Info().
		Int("accounts", len(accounts)).
		Dur("interval", cfg.PollInterval).
		Msg("starting mention watcher")
	if err := poller.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("poll loop stopped with error")
		os.Exit(1)
	}
	logger.Info().Int("cycles", poller.Cycles()).Msg("mention watcher stopped gracefully")
}

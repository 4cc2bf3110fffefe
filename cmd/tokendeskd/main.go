// tokendeskd is the service tier of the tokendesk trading terminal: it
// proxies the market-data provider behind TTL caches and drives the trade
// lifecycle against the account-abstraction bridge.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tokendesk/account"
	"tokendesk/balance"
	"tokendesk/config"
	"tokendesk/marketdata"
	"tokendesk/observability"
	"tokendesk/observability/logging"
	telemetry "tokendesk/observability/otel"
	"tokendesk/server"
	"tokendesk/trade"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tokendeskd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.Setup("tokendeskd", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "tokendeskd",
			Environment: cfg.Environment,
			Endpoint:    cfg.OTLPEndpoint,
			Insecure:    true,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("telemetry shutdown", "err", err)
			}
		}()
	}

	metrics := observability.Default()

	if !cfg.ProviderConfigured() {
		logger.Warn("no provider API key configured; data endpoints will fail closed")
	}
	provider, err := marketdata.NewClient(marketdata.ClientConfig{
		BaseURL:  cfg.ProviderBaseURL,
		APIKey:   cfg.ProviderAPIKey,
		ChainHex: cfg.ChainHex,
	}, metrics)
	if err != nil {
		return fmt.Errorf("build provider client: %w", err)
	}

	markets, err := marketdata.NewGateway(provider, nil, marketdata.GatewayConfig{
		PriceTTL:    cfg.PriceTTL,
		MetadataTTL: cfg.MetadataTTL,
		HistoryTTL:  cfg.HistoryTTL,
		TrendingTTL: cfg.TrendingTTL,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("build market gateway: %w", err)
	}

	reconciler, err := balance.NewReconciler(markets, cfg.PollDelay, cfg.RefreshRetries, cfg.SettleRetries, logger, metrics)
	if err != nil {
		return fmt.Errorf("build reconciler: %w", err)
	}

	var (
		estimator *trade.Estimator
		executor  *trade.Executor
	)
	if cfg.SDKBridgeURL != "" {
		bridge, err := account.NewRemote(account.RemoteConfig{
			BaseURL:   cfg.SDKBridgeURL,
			ProjectID: cfg.SDKProjectID,
			ClientKey: cfg.SDKClientKey,
			AppID:     cfg.SDKAppID,
		})
		if err != nil {
			return fmt.Errorf("build sdk bridge: %w", err)
		}
		estimator = trade.NewEstimator(bridge, logger)
		executor, err = trade.NewExecutor(trade.ExecutorConfig{
			SDK:           bridge,
			Signer:        bridge,
			Balances:      markets,
			Reconciler:    reconciler,
			ChainID:       cfg.SDKChainID,
			ExplorerTxURL: cfg.ExplorerTxURL,
			Logger:        logger,
			Metrics:       metrics,
		})
		if err != nil {
			return fmt.Errorf("build trade executor: %w", err)
		}
	} else {
		logger.Info("no sdk bridge configured; trade routes disabled")
	}

	srv, err := server.New(server.Config{
		ListenAddress:      cfg.ListenAddress,
		ProviderConfigured: cfg.ProviderConfigured(),
		ChainID:            cfg.SDKChainID,
		RequestsPerMinute:  cfg.RateLimitPerMinute,
		Burst:              cfg.RateLimitBurst,
	}, markets, estimator, executor, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	return srv.Run(ctx)
}

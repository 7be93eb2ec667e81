package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/diwise/ngsild-client/internal/pkg/application/loader"
	"github.com/diwise/ngsild-client/internal/pkg/infrastructure/router"
	"github.com/diwise/ngsild-client/internal/pkg/presentation/api"
	"github.com/diwise/ngsild-client/pkg/ngsild/client"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const appName string = "entity-loader"

func main() {
	appVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), appName, appVersion, "json")
	defer cleanup()

	brokerURL := env.GetVariableOrDefault(ctx, "CONTEXT_BROKER_URL", "http://localhost:8080")
	configPath := env.GetVariableOrDefault(ctx, "LOADER_CONFIG_FILE", "/opt/diwise/config/entities.yaml")
	policiesPath := env.GetVariableOrDefault(ctx, "LOADER_POLICIES_FILE", "/opt/diwise/config/authz.rego")
	servicePort := env.GetVariableOrDefault(ctx, "SERVICE_PORT", "8080")

	cfg, err := loadConfigurationFromFile(configPath)
	if err != nil {
		log.Error("failed to load loader configuration", "err", err.Error())
		os.Exit(1)
	}

	cb := newContextBrokerClient(ctx, brokerURL, cfg)
	l := loader.New(cfg, cb)

	r := router.New(appName)

	policies, err := os.Open(policiesPath)
	if err != nil {
		log.Error("failed to open authz policies", "err", err.Error())
		os.Exit(1)
	}

	err = api.RegisterHandlers(ctx, r, policies, cfg.Tenant, l)
	policies.Close()
	if err != nil {
		log.Error("failed to register handlers", "err", err.Error())
		os.Exit(1)
	}

	go runSyncLoop(ctx, l)

	log.Info("starting to listen for connections", "port", servicePort)

	err = http.ListenAndServe(":"+servicePort, r)
	if err != nil {
		log.Error("failed to listen for connections", "err", err.Error())
		os.Exit(1)
	}
}

func newContextBrokerClient(ctx context.Context, brokerURL string, cfg *loader.Config) client.ContextBrokerClient {
	debug := env.GetVariableOrDefault(ctx, "NGSILD_CLIENT_DEBUG", "false")

	if cfg.Tenant != "" && cfg.Tenant != client.DefaultNGSITenant {
		return client.NewContextBrokerClient(brokerURL, client.Debug(debug), client.Tenant(cfg.Tenant))
	}

	return client.NewContextBrokerClient(brokerURL, client.Debug(debug))
}

// runSyncLoop performs an initial sync and then repeats it every
// SYNC_INTERVAL seconds. An interval of zero means sync exactly once.
func runSyncLoop(ctx context.Context, l loader.EntityLoader) {
	log := logging.GetFromContext(ctx)

	if err := l.Sync(ctx); err != nil {
		log.Error("entity sync failed", "err", err.Error())
	}

	interval := env.GetVariableOrDefault(ctx, "SYNC_INTERVAL", "0")
	seconds, err := strconv.Atoi(interval)
	if err != nil || seconds <= 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(seconds) * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := l.Sync(ctx); err != nil {
			log.Error("entity sync failed", "err", err.Error())
		}
	}
}

func loadConfigurationFromFile(path string) (*loader.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return loader.LoadConfiguration(f)
}

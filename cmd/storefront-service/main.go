// cmd/storefront-service/main.go
package main

import (
	"context"
	"flag"
	"os"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/storefront"
)

const serviceName = "storefront-service"

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "configs/storefront.yaml"), "path to the YAML config file")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}

	var components *storefront.Components
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Config:      cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) ([]bootstrap.Worker, error) {
			var err error
			components, err = storefront.Build(context.Background(), serviceName, appCtx.Config)
			if err != nil {
				return nil, err
			}
			components.Handler().Mount(appCtx.Router)

			var workers []bootstrap.Worker
			if appCtx.Config.Sweeper.Enabled {
				workers = append(workers, components.SweeperWorker(appCtx.Config.Sweeper.Interval, appCtx.Config.Sweeper.ErrorBackoff))
			}
			return workers, nil
		},
		OnShutdown: func(ctx context.Context) {
			if components != nil {
				components.Close(ctx)
			}
		},
	})
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

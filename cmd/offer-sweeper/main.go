// cmd/offer-sweeper/main.go
// 独立的过期优惠清理任务, 与 storefront-service 共用同一个数据库和锁
package main

import (
	"context"
	"flag"
	"os"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/storefront"
)

const serviceName = "offer-sweeper"

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "configs/storefront.yaml"), "path to the YAML config file")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}

	err = bootstrap.RunWorker(serviceName, cfg, func(ctx context.Context) error {
		if cfg.Storage.Driver != "mysql" {
			logger.L().Warn().Str("driver", cfg.Storage.Driver).Msg("sweeper is running against non-shared storage")
		}
		components, err := storefront.Build(ctx, serviceName, cfg)
		if err != nil {
			return err
		}
		defer components.Close(context.Background())

		if *once {
			result, err := components.Sweeper.RunOnce(ctx)
			if err != nil {
				return err
			}
			logger.L().Info().Int64("expired_offers_deleted", result.ExpiredOffersDeleted).
				Int64("carts_updated", result.CartsUpdated).Msg("sweep finished")
			return nil
		}
		return components.Sweeper.Run(ctx, cfg.Sweeper.BatchInterval, cfg.Sweeper.BatchErrorBackoff)
	})
	if err != nil {
		logger.L().Fatal().Err(err).Msg("offer sweeper exited with error")
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

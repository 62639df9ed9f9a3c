package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/nacos"
	"storefront/internal/pkg/tracing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// AppCtx 是注册路由和后台任务时可用的公共组件。
type AppCtx struct {
	Router chi.Router
	Config *Config
	Nacos  *nacos.Client
}

// Worker 是随服务一起运行的后台任务, ctx 取消时应尽快返回。
type Worker func(ctx context.Context) error

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Config      *Config
	// RegisterHandlers 注册 HTTP 路由, 返回需要随服务运行的后台任务
	RegisterHandlers func(appCtx AppCtx) ([]Worker, error)
	// OnShutdown 在 HTTP 服务关闭之后调用, 用于释放连接
	OnShutdown func(ctx context.Context)
}

const shutdownTimeout = 10 * time.Second

// StartService 封装了通用的启动和优雅关停逻辑, 出错时退出进程。
func StartService(info AppInfo) {
	if err := Run(info); err != nil {
		logger.L().Fatal().Err(err).Str("service", info.ServiceName).Msg("service exited with error")
	}
}

// Run 启动服务, 阻塞直到收到 SIGINT/SIGTERM 或某个组件失败。
func Run(info AppInfo) error {
	cfg := info.Config
	if cfg == nil {
		cfg = GetCurrentConfig()
	}
	logger.Init(info.ServiceName, cfg.App.LogLevel, cfg.App.PrettyLog)

	// 1. Tracer
	shutdownTracer, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		return err
	}

	// 2. 服务注册
	var (
		nacosClient *nacos.Client
		instance    nacos.Instance
	)
	if cfg.Infra.Nacos.Enabled {
		nacosClient, err = nacos.NewClient(nacos.Options{
			Addrs:       cfg.Infra.Nacos.Addrs,
			NamespaceID: cfg.Infra.Nacos.Namespace,
			GroupName:   cfg.Infra.Nacos.Group,
		})
		if err != nil {
			return err
		}
		ip, err := nacos.OutboundIP()
		if err != nil {
			return err
		}
		instance = nacos.Instance{ServiceName: info.ServiceName, IP: ip, Port: cfg.App.Port}
	}

	// 3. 路由
	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	router.Use(metrics.HTTPMiddleware(routePattern))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	var workers []Worker
	if info.RegisterHandlers != nil {
		workers, err = info.RegisterHandlers(AppCtx{Router: router, Config: cfg, Nacos: nacosClient})
		if err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.L().Info().Msgf("%s listening on :%d", info.ServiceName, cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, w := range workers {
		g.Go(func() error { return w(gctx) })
	}

	if nacosClient != nil {
		if err := nacosClient.Register(instance); err != nil {
			stop()
			_ = server.Close()
			_ = g.Wait()
			return err
		}
	}

	// 4. 优雅关停: 先注销, 再停 HTTP, 最后刷新 trace
	g.Go(func() error {
		<-gctx.Done()
		logger.L().Info().Msgf("shutting down service %s...", info.ServiceName)
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if nacosClient != nil {
			if err := nacosClient.Deregister(instance); err != nil {
				logger.L().Error().Err(err).Msg("error deregistering from nacos")
			}
			nacosClient.Close()
		}
		if err := server.Shutdown(sctx); err != nil {
			logger.L().Error().Err(err).Msg("error shutting down http server")
		}
		if info.OnShutdown != nil {
			info.OnShutdown(sctx)
		}
		if err := shutdownTracer(sctx); err != nil {
			logger.L().Error().Err(err).Msg("error shutting down tracer provider")
		}
		return nil
	})

	err = g.Wait()
	logger.L().Info().Msgf("service %s stopped", info.ServiceName)
	return err
}

// RunWorker 用于没有 HTTP 路由的独立任务进程。
func RunWorker(serviceName string, cfg *Config, worker Worker) error {
	logger.Init(serviceName, cfg.App.LogLevel, cfg.App.PrettyLog)
	shutdownTracer, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = worker(ctx)

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if terr := shutdownTracer(sctx); terr != nil {
		logger.L().Error().Err(terr).Msg("error shutting down tracer provider")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

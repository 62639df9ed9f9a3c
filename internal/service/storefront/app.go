// Package storefront 按配置组装购物车优惠服务的各个组件。
package storefront

import (
	"context"
	"time"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/redis"
	"storefront/internal/service/storefront/application"
	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/domain/port"
	"storefront/internal/service/storefront/infrastructure"
	"storefront/internal/service/storefront/infrastructure/adapter"
	"storefront/internal/service/storefront/infrastructure/memory"
	"storefront/internal/service/storefront/infrastructure/rule"
	"storefront/internal/service/storefront/interfaces"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

// Components 是一个进程内共享的全部依赖
type Components struct {
	UoW     domain.UnitOfWork
	Locker  port.CartLocker
	Events  port.EventPublisher
	Payment port.PaymentAuthority
	Rules   *rule.CELRuleEngineAdapter

	Carts    *application.CartService
	Offers   *application.OfferService
	Checkout *application.CheckoutService
	Orders   *application.OrderService
	Admin    *application.AdminService
	Sweeper  *application.ExpirySweeper

	closers []func(ctx context.Context)
}

// Build 依次创建存储, 锁, 事件发布, 支付和业务服务。失败时释放已创建的资源
func Build(ctx context.Context, serviceName string, cfg *bootstrap.Config) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close(context.Background())
		}
	}()
	log := logger.Ctx(ctx)

	// 1. 存储
	switch cfg.Storage.Driver {
	case "mysql":
		db, err := infrastructure.OpenMySQL(cfg.Storage)
		if err != nil {
			return nil, err
		}
		c.UoW = infrastructure.NewGormUnitOfWork(db)
		c.onClose(func(context.Context) {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
	default:
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		c.UoW = memory.NewStore()
	}

	// 2. 购物车锁
	var locker port.CartLocker
	switch cfg.Lock.Driver {
	case "redis":
		client, err := redis.NewClient(ctx, redis.Config{Addr: cfg.Infra.Redis.Addr, Password: cfg.Infra.Redis.Password, DB: cfg.Infra.Redis.DB})
		if err != nil {
			return nil, err
		}
		c.onClose(func(context.Context) { _ = client.Close() })
		if locker, err = adapter.NewRedisLocker(ctx, client, cfg.Lock.TTL); err != nil {
			return nil, err
		}
	case "zookeeper":
		conn, err := adapter.NewZookeeperConn(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			return nil, err
		}
		c.onClose(func(context.Context) { conn.Close() })
		locker = adapter.NewZookeeperLocker(conn)
	default:
		locker = adapter.NewLocalLocker()
	}
	c.Locker = adapter.NewTimeoutLocker(locker, cfg.Lock.WaitTimeout)

	// 3. 事件
	if len(cfg.Infra.Kafka.Brokers) > 0 {
		publisher := adapter.NewKafkaEventPublisher(mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topic))
		c.onClose(func(context.Context) {
			if err := publisher.Close(); err != nil {
				logger.L().Error().Err(err).Msg("failed to close kafka writer")
			}
		})
		c.Events = publisher
	} else {
		c.Events = adapter.NoopPublisher{}
	}

	// 4. 支付, 未配置时只接受货到付款
	tracer := otel.Tracer(serviceName)
	if cfg.Payment.BaseURL != "" {
		c.Payment = adapter.NewPaymentHTTPAdapter(httpclient.NewClient(tracer, cfg.Payment.Timeout), cfg.Payment.BaseURL)
	}

	// 5. 规则引擎与业务服务
	if c.Rules, err = rule.NewCELRuleEngineAdapter(); err != nil {
		return nil, errors.Wrap(err, "init rule engine")
	}
	refundPercent := decimal.NewFromFloat(cfg.Order.RefundPercent)

	c.Sweeper = application.NewExpirySweeper(c.UoW, c.Locker, c.Events, tracer, nil)
	c.Carts = application.NewCartService(c.UoW, c.Locker, c.Events, tracer, nil)
	c.Offers = application.NewOfferService(c.UoW, c.Locker, c.Events, domain.NewCalculator(c.Rules), tracer, nil)
	c.Checkout = application.NewCheckoutService(c.UoW, c.Locker, c.Events, c.Payment, cfg.Payment.Timeout, tracer, nil)
	c.Orders = application.NewOrderService(c.UoW, c.Events, c.Payment, cfg.Payment.Timeout, refundPercent, tracer, nil)
	c.Admin = application.NewAdminService(c.UoW, c.Events, c.Rules, c.Sweeper, tracer, nil)
	return c, nil
}

func (c *Components) onClose(fn func(ctx context.Context)) {
	c.closers = append(c.closers, fn)
}

// Close 按创建的逆序释放资源
func (c *Components) Close(ctx context.Context) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i](ctx)
	}
	c.closers = nil
}

// Handler 返回挂载路由用的 HTTP 处理器
func (c *Components) Handler() *interfaces.StorefrontHandler {
	return interfaces.NewStorefrontHandler(c.Carts, c.Offers, c.Checkout, c.Orders, c.Admin)
}

// SweeperWorker 把清理循环包装成 bootstrap 的后台任务
func (c *Components) SweeperWorker(interval, backoff time.Duration) bootstrap.Worker {
	return func(ctx context.Context) error {
		return c.Sweeper.Run(ctx, interval, backoff)
	}
}

// cmd/cash-service/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"cashkeyboard/internal/pkg/bootstrap"
	"cashkeyboard/internal/pkg/config"
	"cashkeyboard/internal/pkg/logger"
	"cashkeyboard/internal/pkg/mq"
	"cashkeyboard/internal/pkg/redis"
	cashapp "cashkeyboard/internal/service/cash/application"
	cashdomain "cashkeyboard/internal/service/cash/domain"
	cashinfra "cashkeyboard/internal/service/cash/infrastructure"
	cashadapter "cashkeyboard/internal/service/cash/infrastructure/adapter"
	"cashkeyboard/internal/service/cash/infrastructure/rule"
	cashiface "cashkeyboard/internal/service/cash/interfaces"
	couponapp "cashkeyboard/internal/service/coupon/application"
	couponinfra "cashkeyboard/internal/service/coupon/infrastructure"
	couponadapter "cashkeyboard/internal/service/coupon/infrastructure/adapter"
	couponiface "cashkeyboard/internal/service/coupon/interfaces"
	productinfra "cashkeyboard/internal/service/product/infrastructure"
)

const (
	expirySweepInterval   = 10 * time.Minute
	expirySweepBatchLimit = 200
	limitPurgeInterval    = 24 * time.Hour

	expiryReminderInterval = 24 * time.Hour
	expiryReminderWindow   = 72 * time.Hour

	reconcileInterval = 1 * time.Hour
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	configPath := flag.String("config", "configs/cash-service.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init("cash-service")
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Service.Name)

	// 1. 基础设施
	db, err := gorm.Open(mysql.Open(cfg.Infra.MySQL.DSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to connect mysql")
	}
	if err := db.AutoMigrate(
		&cashinfra.CashAccountModel{},
		&cashinfra.CashTransactionModel{},
		&cashinfra.DailyLimitModel{},
		&couponinfra.CouponModel{},
		&productinfra.ProductModel{},
	); err != nil {
		logger.L().Fatal().Err(err).Msg("failed to migrate schema")
	}

	redisClient, err := redis.NewClient(context.Background(), cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize redis client")
	}

	couponEventWriter := mq.NewWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.CouponTopic)

	// 2. 适配器
	sourceGuard, err := cashadapter.NewSourceGuardRedisAdapter(redisClient)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize source guard")
	}
	fraudChecker, err := rule.NewCELFraudCheckerFromFile(cfg.Cash.FraudRulesPath)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize fraud rules")
	}
	eventPublisher := couponadapter.NewCouponEventKafkaAdapter(couponEventWriter)

	// 3. 业务服务
	tracer := otel.Tracer(cfg.Service.Name)
	cashService := cashapp.NewCashService(
		cashinfra.NewGormUnitOfWork(db),
		sourceGuard,
		fraudChecker,
		cashdomain.NewRewardEngine(),
		tracer,
	)
	couponService := couponapp.NewCouponService(
		couponinfra.NewGormUnitOfWork(db),
		eventPublisher,
		tracer,
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.Service.Name,
		Port:        cfg.Service.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			cashiface.NewCashHandler(cashService).RegisterRoutes(appCtx.Mux)
			couponiface.NewCouponHandler(couponService).RegisterRoutes(appCtx.Mux)
		},
		BackgroundJobs: []bootstrap.BackgroundJob{
			bootstrap.Periodic("coupon-expiry-sweep", expirySweepInterval, func(ctx context.Context) error {
				_, err := couponService.MarkExpiredCoupons(ctx, expirySweepBatchLimit)
				return err
			}),
			bootstrap.Periodic("daily-limit-purge", limitPurgeInterval, func(ctx context.Context) error {
				_, err := cashService.PurgeOldDailyLimits(ctx, cfg.Cash.DailyLimitRetentionDays)
				return err
			}),
			bootstrap.Periodic("coupon-expiry-reminder", expiryReminderInterval, func(ctx context.Context) error {
				_, err := couponService.NotifyExpiringSoon(ctx, expiryReminderWindow)
				return err
			}),
			bootstrap.Periodic("cash-reconcile", reconcileInterval, func(ctx context.Context) error {
				_, err := cashService.SnapshotTotalCash(ctx)
				return err
			}),
		},
		OnShutdown: func(ctx context.Context) {
			if err := eventPublisher.Close(); err != nil {
				logger.L().Warn().Err(err).Msg("error closing kafka writer")
			}
			if err := redisClient.Close(); err != nil {
				logger.L().Warn().Err(err).Msg("error closing redis client")
			}
		},
	})
}

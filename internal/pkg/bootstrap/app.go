// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"cashkeyboard/internal/pkg/config"
	"cashkeyboard/internal/pkg/logger"
	"cashkeyboard/internal/pkg/tracing"
)

type AppCtx struct {
	Mux *http.ServeMux
}

// BackgroundJob 随服务启动，ctx 取消后必须尽快返回。
type BackgroundJob func(ctx context.Context) error

// AppInfo 包含了启动服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 注册服务自己的 HTTP 路由
	BackgroundJobs   []BackgroundJob     // 过期清扫等后台任务
	OnShutdown       func(ctx context.Context)
}

// StartService 封装了通用的启动和优雅关停逻辑。
// HTTP 服务器和后台任务挂在同一个 errgroup 下，
// 任何一个出错或收到退出信号都会带动整体关停。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)

	tp, err := tracing.InitTracerProvider(info.ServiceName, config.GetCurrentConfig().Infra.Jaeger.Endpoint)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.L().Info().Int("port", info.Port).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	for _, job := range info.BackgroundJobs {
		job := job
		g.Go(func() error {
			return job(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.L().Error().Err(err).Msg("service stopped with error")
	}

	// 关停流程：业务清理在前，tracer 最后关，保证缓冲的 trace 发出去
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if info.OnShutdown != nil {
		info.OnShutdown(shutdownCtx)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.L().Error().Err(err).Msg("error shutting down tracer provider")
	}

	logger.L().Info().Msgf("%s gracefully shut down", info.ServiceName)
}

// Periodic 把一个周期任务包装成 BackgroundJob。
// 失败只记日志，下个周期照常运行。
func Periodic(name string, interval time.Duration, fn func(ctx context.Context) error) BackgroundJob {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					logger.L().Warn().Err(err).Str("job", name).Msg("background job failed")
				}
			}
		}
	}
}

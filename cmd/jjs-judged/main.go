// Command jjs-judged is the Judge Controller's host process (spec §1):
// it wires storage/cache/queue collaborators, starts the worker-process
// pool, subscribes to the judge-request topic, and serves the status/
// health HTTP surface — the direct analogue of the teacher's
// cmd/judge-service/main.go, minus the database and gRPC problem-service
// client the spec's Non-goals drop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"jjsgo/internal/common/cache"
	"jjsgo/internal/common/mq"
	"jjsgo/internal/common/storage"
	"jjsgo/internal/judge/controller"
	"jjsgo/pkg/utils/logger"
)

const defaultConfigPath = "configs/jjs-judged.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(ctx, "init redis failed", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = redisCache.Close() }()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(ctx, "init minio failed", zap.Error(err))
		os.Exit(1)
	}

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
	if err != nil {
		logger.Error(ctx, "init kafka failed", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = mqClient.Close() }()

	problemLoader := controller.NewProblemLoader(controller.ProblemLoaderConfig{
		Storage:  objStorage,
		Cache:    redisCache,
		Bucket:   appCfg.Problem.Bucket,
		LocalDir: appCfg.Problem.LocalDir,
		MetaTTL:  appCfg.Problem.MetaTTL,
	})
	toolchainLoader := controller.NewToolchainLoader(controller.ToolchainLoaderConfig{
		Storage:  objStorage,
		Bucket:   appCfg.Problem.ToolchainBucket,
		LocalDir: appCfg.Problem.ToolchainDir,
	})

	ctrl, err := controller.New(controller.Config{
		WorkerCount:      appCfg.Worker.PoolSize,
		WorkerBinaryPath: appCfg.Worker.BinaryPath,
		ScratchDir:       appCfg.Worker.ScratchDir,
		InvokerID:        appCfg.Worker.InvokerID,
		ProblemLoader:    problemLoader,
		ToolchainLoader:  toolchainLoader,
	})
	if err != nil {
		logger.Error(ctx, "init judge controller failed", zap.Error(err))
		os.Exit(1)
	}
	defer ctrl.Close()

	statusProvider := controller.NewInMemoryTaskSource()
	svcCtx := controller.NewServiceContext(ctrl, mqClient, appCfg.Kafka.StatusTopic, statusProvider)

	subscribeCtx, cancelSubscribe := context.WithCancel(ctx)
	defer cancelSubscribe()
	if err := controller.Subscribe(subscribeCtx, svcCtx, appCfg.Kafka.JudgeTopic, &mq.SubscribeOptions{
		ConsumerGroup: appCfg.Kafka.ConsumerGroup,
		PrefetchCount: appCfg.Kafka.PrefetchCount,
		Concurrency:   appCfg.Kafka.Concurrency,
		MaxRetries:    appCfg.Kafka.MaxRetries,
		RetryDelay:    appCfg.Kafka.RetryDelay,
		MessageTTL:    appCfg.Kafka.MessageTTL,
	}); err != nil {
		logger.Error(ctx, "subscribe judge topic failed", zap.Error(err))
		os.Exit(1)
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(ctx, "start kafka consumer failed", zap.Error(err))
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      controller.NewHTTPServer(statusProvider),
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "jjs-judged http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutting down jjs-judged")
		_ = mqClient.Stop()
		shutdownTimeoutCtx, cancel := context.WithTimeout(context.Background(), appCfg.Server.WriteTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownTimeoutCtx)
	}
}

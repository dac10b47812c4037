package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"algoarena/internal/auth"
	"algoarena/internal/common/cache"
	"algoarena/internal/common/db"
	commonmw "algoarena/internal/common/http/middleware"
	"algoarena/internal/common/metrics"
	"algoarena/internal/common/mq"
	"algoarena/internal/common/storage"
	duelController "algoarena/internal/duel/controller"
	duelRepository "algoarena/internal/duel/repository"
	duelService "algoarena/internal/duel/service"
	"algoarena/internal/duel/transport"
	"algoarena/internal/judge/sandbox"
	sandboxConfig "algoarena/internal/judge/sandbox/config"
	"algoarena/internal/judge/sandbox/engine"
	"algoarena/internal/judge/sandbox/runner"
	judgeService "algoarena/internal/judge/service"
	problemController "algoarena/internal/problem/controller"
	problemRepository "algoarena/internal/problem/repository"
	problemService "algoarena/internal/problem/service"
	"algoarena/internal/server"
	submitController "algoarena/internal/submit/controller"
	submitRepository "algoarena/internal/submit/repository"
	submitService "algoarena/internal/submit/service"
	"algoarena/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stores are the shared infrastructure clients of one process.
type stores struct {
	db      *db.MySQL
	cache   *cache.RedisCache
	storage *storage.MinIOStorage
}

func openStores(ctx context.Context, cfg *AppConfig) (*stores, error) {
	mysqlDB, err := db.NewMySQLWithConfig(&cfg.Database)
	if err != nil {
		return nil, err
	}
	redisCache, err := cache.NewRedisCacheWithConfig(&cfg.Redis)
	if err != nil {
		_ = mysqlDB.Close()
		return nil, err
	}
	s := &stores{db: mysqlDB, cache: redisCache}
	objStorage, err := storage.NewMinIOStorage(cfg.MinIO)
	if err != nil {
		s.close()
		return nil, err
	}
	if err := objStorage.EnsureBucket(ctx, cfg.Source.Bucket); err != nil {
		s.close()
		return nil, err
	}
	s.storage = objStorage
	return s, nil
}

func (s *stores) close() {
	_ = s.cache.Close()
	_ = s.db.Close()
}

// newJudge builds the sandbox pipeline and the judging service on top of it.
// The engine is returned too so its probe can back the health check.
func newJudge(cfg *AppConfig, reg *metrics.Registry) (*judgeService.Service, engine.Engine, error) {
	langRepo := sandboxConfig.NewLocalRepository(cfg.Language.Languages, cfg.Language.Profiles)
	eng, err := engine.NewEngine(cfg.Sandbox, langRepo)
	if err != nil {
		return nil, nil, err
	}
	worker := sandbox.NewWorker(runner.NewRunner(eng, reg), langRepo, langRepo)
	svc, err := judgeService.NewService(cfg.Judge, worker, langRepo, reg, clockwork.NewRealClock())
	if err != nil {
		return nil, nil, err
	}
	return svc, eng, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()
	if cfg.Logger.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "init stores failed", zap.Error(err))
		return err
	}
	defer st.close()

	reg := metrics.NewRegistry()
	judge, eng, err := newJudge(cfg, reg)
	if err != nil {
		logger.Error(ctx, "init judge failed", zap.Error(err))
		return err
	}

	problems := problemService.NewProblemService(problemRepository.NewProblemRepository(st.db, st.cache))
	submits, err := submitService.NewSubmitService(submitService.Config{
		SubmissionRepo:  submitRepository.NewSubmissionRepository(st.db, st.cache),
		Storage:         st.storage,
		Judge:           judge,
		Problems:        problems,
		SourceBucket:    cfg.Source.Bucket,
		SourceKeyPrefix: cfg.Source.KeyPrefix,
		Timeouts:        cfg.Source.Timeouts,
	})
	if err != nil {
		logger.Error(ctx, "init submit service failed", zap.Error(err))
		return err
	}
	authn, err := auth.NewService(cfg.Auth)
	if err != nil {
		return err
	}

	health := []server.HealthCheck{
		{Name: "mysql", Check: st.db.Ping},
		{Name: "redis", Check: st.cache.Ping},
		{Name: "sandbox", Check: eng.Probe},
	}
	var events duelService.EventPublisher
	if len(cfg.Events.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(cfg.Events.Kafka)
		if err != nil {
			logger.Error(ctx, "init kafka producer failed", zap.Error(err))
			return err
		}
		defer func() {
			_ = producer.Close()
		}()
		events = duelRepository.NewEventPublisher(producer, cfg.Events.FinishedTopic)
		health = append(health, server.HealthCheck{Name: "kafka", Check: producer.Ping})
	} else {
		logger.Warn(ctx, "no kafka brokers configured, duel results are not published")
	}

	hub := transport.NewHub(cfg.WebSocket, reg)
	rooms, err := duelService.NewRegistry(cfg.Duel, duelService.Deps{
		Clock:    clockwork.NewRealClock(),
		Notifier: hub,
		Judge:    judge,
		Problems: problems,
		IDs:      duelRepository.NewRoomIDStore(st.cache, 0, cfg.Server.InstanceID),
		Events:   events,
		Recorder: submits,
		Metrics:  reg,
	})
	if err != nil {
		logger.Error(ctx, "init duel registry failed", zap.Error(err))
		return err
	}

	router := server.NewRouter(server.Deps{
		Auth:        authn,
		CORS:        cfg.Server.CORS,
		Limiter:     commonmw.NewRateLimiter(st.cache, 0),
		Limits:      cfg.Server.RateLimits,
		Rooms:       duelController.NewRoomController(rooms),
		Problems:    problemController.NewProblemController(problems),
		Submissions: submitController.NewSubmitController(submits),
		WebSocket:   transport.NewHandler(hub, rooms, authn).ServeWS,
		Metrics:     reg.Handler(),
		Health:      health,
	})
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		logger.Info(ctx, "duel server started", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		reg.CollectHost(gctx, cfg.Metrics.HostInterval, cfg.Metrics.DiskPath)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "shutting down duel server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "http shutdown failed", zap.Error(err))
		}
		hub.CloseAll()
		if err := rooms.Close(shutdownCtx); err != nil {
			logger.Warn(ctx, "duel registry did not drain", zap.Error(err))
		}
		if err := judge.Wait(shutdownCtx); err != nil {
			logger.Warn(ctx, "judge workers did not drain", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"vtt-engine/internal/config"
	"vtt-engine/internal/database"
	"vtt-engine/internal/engine"
	"vtt-engine/internal/realtime"
	"vtt-engine/internal/repo"
	"vtt-engine/internal/service"
	"vtt-engine/internal/store"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.Log)

	// 데이터베이스 연결
	db, err := database.Connect()
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ Database connection failed")
	}
	if err := database.Ping(db); err != nil {
		logger.Fatal().Err(err).Msg("❌ Database ping failed")
	}
	logger.Info().Msg("✅ Database connected successfully")

	// 이니셔티브 스키마는 선택적. 실패해도 클라이언트는 뜬다
	if err := database.MigrateInitiative(db); err != nil {
		logger.Warn().Err(err).Msg("⚠️ Initiative tables unavailable")
	}

	// 실시간 채널 연결
	rt, err := realtime.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ Redis connection failed")
	}
	defer rt.Close()

	stores := store.NewSet()
	r := repo.New(db, rt, logger)
	svcs := service.New(r, stores, rt, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 세션 입장 또는 생성
	sessionID, err := joinOrCreate(ctx, cfg.Client, svcs, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ Session setup failed")
	}

	// 동기화 엔진 기동
	eng := engine.New(stores, rt, func(ctx context.Context) error {
		return svcs.Session.LoadSessionData(ctx, sessionID)
	}, logger)
	eng.RetryInterval = cfg.Client.RetryInterval
	go eng.Run(ctx, sessionID)

	// 상태 엔드포인트
	app := newStatusApp(stores)
	go func() {
		if err := app.Listen(cfg.Server.Port); err != nil {
			logger.Error().Err(err).Msg("status server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svcs.Session.LeaveSession(leaveCtx); err != nil {
		logger.Warn().Err(err).Msg("leave session failed")
	}
	_ = app.Shutdown()
}

func newLogger(cfg config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out = zerolog.New(os.Stdout)
	if cfg.Pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}
	return out.Level(level).With().Timestamp().Logger()
}

// joinOrCreate 조인 코드가 있으면 입장, 없으면 새 세션 생성
func joinOrCreate(ctx context.Context, cfg config.Client, svcs *service.Services, logger zerolog.Logger) (string, error) {
	if cfg.JoinCode != "" {
		sess, err := svcs.Session.JoinSession(ctx, cfg.JoinCode, cfg.Username)
		if err != nil {
			return "", err
		}
		return sess.ID, nil
	}

	name := cfg.SessionName
	if name == "" {
		name = "New Session"
	}
	sess, err := svcs.Session.CreateSession(ctx, name, cfg.Username)
	if err != nil {
		return "", err
	}
	logger.Info().Str("join_code", sess.JoinCode).Msg("share this code with your players")
	return sess.ID, nil
}

// newStatusApp 연결 상태/세션 요약 조회용 엔드포인트
func newStatusApp(stores *store.Set) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	app.Get("/status", func(c *fiber.Ctx) error {
		sess := stores.Session.Session()
		status := fiber.Map{
			"connection": string(stores.Session.Status()),
			"players":    len(stores.Session.Players()),
			"maps":       len(stores.Map.Maps()),
			"initiative": stores.Initiative.Enabled(),
		}
		if sess != nil {
			status["session_id"] = sess.ID
			status["session_name"] = sess.Name
			status["active_map_id"] = stores.Map.ActiveMapID()
		}
		return c.JSON(status)
	})

	return app
}

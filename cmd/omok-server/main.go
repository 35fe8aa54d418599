package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/omok-room-server/internal/adminapi"
	appcfg "github.com/park285/omok-room-server/internal/config"
	"github.com/park285/omok-room-server/internal/lobby"
	"github.com/park285/omok-room-server/internal/msgcat"
	"github.com/park285/omok-room-server/internal/notify"
	"github.com/park285/omok-room-server/internal/obslog"
	"github.com/park285/omok-room-server/internal/protocol"
	"github.com/park285/omok-room-server/internal/results"
	"github.com/park285/omok-room-server/internal/room"
	"github.com/park285/omok-room-server/internal/session"
	"github.com/park285/omok-room-server/internal/wsserver"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("message catalog error", zap.Error(err))
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Finished-game archive
	var repo results.Repository
	if cfg.DatabaseURL != "" {
		pg, err := results.NewPostgresRepository(rootCtx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("results repo init error", zap.Error(err))
		}
		repo = pg
	} else {
		repo = results.NewMemoryRepository(0)
	}
	recOpts := results.RecorderOptions{Repository: repo, Catalog: catalog, Logger: logger, AttachBoard: true}
	if cfg.ResultWebhookURL != "" {
		recOpts.Publisher = notify.NewClient(cfg.ResultWebhookURL, notify.WithBearer(cfg.ResultWebhookToken), notify.WithRetry(3))
	}
	recorder := results.NewRecorder(recOpts)
	recorder.Start()

	hub := wsserver.NewHub()
	regCfg := room.Config{
		BoardSize:    cfg.BoardSize,
		TickInterval: cfg.TickInterval,
		Notifier:     protocol.NewBroadcaster(hub, logger),
		Logger:       logger,
		OnFinish:     recorder.Enqueue,
	}
	var codes *lobby.Store
	if cfg.RedisURL != "" {
		codes, err = lobby.NewStoreFromURL(rootCtx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("lobby store init error", zap.Error(err))
		}
		regCfg.Reserver = codes
		logger.Info("lobby_store_enabled", zap.String("owner", codes.Owner()))
	}
	reg := room.NewRegistry(regCfg)
	gw := session.New(reg, session.Options{Grace: cfg.ReconnectGrace, Logger: logger})
	handler := protocol.NewHandler(protocol.Options{
		Registry: reg,
		Gateway:  gw,
		Catalog:  catalog,
		Logger:   logger,
		GameTime: cfg.ClampGameTime,
	})
	ws := wsserver.New(hub, handler, gw, wsserver.Options{OriginPatterns: cfg.AllowedOrigins, Logger: logger})

	go reg.RunSweeper(rootCtx, cfg.SweepInterval, cfg.IdleRoomTTL)

	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("ws_listen", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ws listener stopped", zap.Error(err))
			stop()
		}
	}()

	var admin *adminapi.Server
	if cfg.AdminAddr != "" {
		ln, err := net.Listen("tcp", cfg.AdminAddr)
		if err != nil {
			logger.Fatal("admin listen error", zap.Error(err))
		}
		admin = adminapi.New(adminapi.Options{
			Registry: reg,
			Results:  repo,
			Logger:   logger,
			Sessions: gw.Pending,
			Conns:    hub.Len,
		})
		go func() {
			if err := admin.Serve(ln); err != nil {
				logger.Error("admin listener stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("omok_server_ready",
		zap.Int("board_size", cfg.BoardSize),
		zap.Int("default_game_time", cfg.DefaultGameTime),
		zap.Duration("grace", cfg.ReconnectGrace),
		zap.Int("pid", os.Getpid()),
	)
	<-rootCtx.Done()
	logger.Info("omok_server_shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = ws.Shutdown(shutdownCtx)
	if admin != nil {
		_ = admin.Shutdown(shutdownCtx)
	}
	reg.CloseAll()
	recorder.Close()
	if codes != nil {
		_ = codes.Close()
	}
	_ = repo.Close()
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/tradechat/internal/blob"
	"github.com/mbeoliero/tradechat/internal/config"
	"github.com/mbeoliero/tradechat/internal/gateway"
	"github.com/mbeoliero/tradechat/internal/handler"
	"github.com/mbeoliero/tradechat/internal/middleware"
	"github.com/mbeoliero/tradechat/internal/repository"
	"github.com/mbeoliero/tradechat/internal/router"
	"github.com/mbeoliero/tradechat/internal/service"
	"github.com/mbeoliero/tradechat/pkg/constant"
	"github.com/mbeoliero/tradechat/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "config loaded: mode=%s, database=%s, blob=%s, redis=%v",
		cfg.Server.Mode, cfg.Database.Driver, cfg.Blob.Driver, cfg.Redis.Enabled)

	if err := idgen.Init(cfg.Server.MachineId); err != nil {
		log.CtxError(ctx, "failed to initialize id generator: %v", err)
		panic(err)
	}

	// Initialize Redis key prefix
	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	// Initialize repositories
	repos, err := repository.NewRepositories(cfg)
	if err != nil {
		log.CtxError(ctx, "failed to initialize repositories: %v", err)
		panic(err)
	}
	defer repos.Close()

	// Check database connection
	if err := repos.CheckConnection(ctx); err != nil {
		log.CtxError(ctx, "database connection check failed: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "database connection established")

	store, err := blob.NewStore(ctx, &cfg.Blob)
	if err != nil {
		log.CtxError(ctx, "failed to initialize blob store: %v", err)
		panic(err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	// Initialize services
	hydrator := service.NewHydrator(repos, store)
	convService := service.NewConversationService(repos, hydrator)
	attService := service.NewAttachmentService(repos, store, &cfg.Attachment, hydrator)
	msgService := service.NewMessageService(repos, convService, attService, hydrator, &cfg.Message)
	readService := service.NewReadService(repos, convService)

	limiter := middleware.NewPartyLimiter(&cfg.RateLimit)

	// Initialize WebSocket server; it is also the fan-out notifier and presence source
	wsServer := gateway.NewWsServer(cfg, repos.Redis, convService, msgService, readService)
	wsServer.SetLimiter(limiter)
	msgService.SetNotifier(wsServer)
	readService.SetNotifier(wsServer)
	convService.SetPresence(wsServer.PartyMap())

	wsServer.Run(ctx)
	log.CtxInfo(ctx, "websocket server started")

	handlers := &router.Handlers{
		Message:      handler.NewMessageHandler(msgService, attService),
		Conversation: handler.NewConversationHandler(convService, msgService, readService),
	}

	// Multipart bodies carry up to MaxPerMessage files plus form fields
	maxBody := int(cfg.Attachment.MaxSize)*cfg.Attachment.MaxPerMessage + 1<<20

	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
		server.WithMaxRequestBodySize(maxBody),
	)

	router.SetupRouter(h, cfg, handlers, wsServer, limiter)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)

	go func() {
		h.Spin()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")
	cancel()

	if err := h.Shutdown(context.Background()); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}

	log.CtxInfo(ctx, "server stopped: dropped_events=%d", wsServer.GetDroppedEventCount())
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/api"
	"github.com/fathima-sithara/classroom-chat/internal/auth"
	"github.com/fathima-sithara/classroom-chat/internal/cache"
	"github.com/fathima-sithara/classroom-chat/internal/config"
	"github.com/fathima-sithara/classroom-chat/internal/events"
	"github.com/fathima-sithara/classroom-chat/internal/metrics"
	"github.com/fathima-sithara/classroom-chat/internal/middleware"
	"github.com/fathima-sithara/classroom-chat/internal/repository"
	"github.com/fathima-sithara/classroom-chat/internal/service"
	"github.com/fathima-sithara/classroom-chat/internal/storage"
	"github.com/fathima-sithara/classroom-chat/internal/utils"
	"github.com/fathima-sithara/classroom-chat/internal/ws"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.IsDevelopment(), cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mc, err := repository.NewMongoClient(ctx, cfg.Mongo.URI, 30*time.Second, logger)
	if err != nil {
		sugar.Fatalf("mongo init: %v", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	db := mc.Database(cfg.Mongo.Database)

	rdb, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 30*time.Second)
	if err != nil {
		sugar.Fatalf("redis init: %v", err)
	}
	defer rdb.Close()

	chats, err := repository.NewChatMongo(ctx, db.Collection(cfg.Mongo.ChatsCollection))
	if err != nil {
		sugar.Fatalf("chat indexes: %v", err)
	}
	messages, err := repository.NewMessageMongo(ctx, db.Collection(cfg.Mongo.MessagesCollection))
	if err != nil {
		sugar.Fatalf("message indexes: %v", err)
	}
	directory := repository.NewDirectoryMongo(db.Collection(cfg.Mongo.UsersCollection), db.Collection(cfg.Mongo.StudentProfilesCollection))
	uploads := repository.NewUploadMongo(db.Collection(cfg.Mongo.UploadsCollection))

	bus, err := newBus(cfg, rdb, logger)
	if err != nil {
		sugar.Fatalf("event bus: %v", err)
	}
	defer bus.Close()

	validator, err := auth.NewJWTValidator(cfg.JWT.PublicKeyPath, cfg.JWT.Alg, cfg.JWT.HSSecret)
	if err != nil {
		sugar.Fatalf("jwt init: %v", err)
	}

	notify := service.NewNotifier(bus, logger)
	chatSvc := service.NewChatService(chats, messages, directory, cache.NewRedisStudentCache(rdb, cfg.StudentCacheTTL(), logger), notify, logger)
	msgSvc := service.NewMessageService(chats, messages, notify, logger)

	var uploadSvc *service.UploadService
	if cfg.S3.Bucket != "" {
		store, err := storage.NewS3Store(ctx, storage.S3Options{
			Region:     cfg.S3.Region,
			Bucket:     cfg.S3.Bucket,
			Endpoint:   cfg.S3.Endpoint,
			PublicRead: cfg.S3.PublicRead,
			PresignTTL: cfg.PresignTTL(),
		}, logger)
		if err != nil {
			sugar.Fatalf("s3 init: %v", err)
		}
		uploadSvc = service.NewUploadService(store, uploads, "/api/chat/upload", logger)
	} else {
		sugar.Warn("s3.bucket not set, uploads disabled")
	}

	hub := ws.NewHub(logger)
	go func() {
		if err := bus.Subscribe(ctx, hub.Deliver); err != nil && ctx.Err() == nil {
			sugar.Errorf("event subscriber stopped: %v", err)
		}
	}()

	ipLimiter := middleware.NewIPRateLimiter(cfg.RateLimit.IPPerMinute, cfg.RateLimit.IPPerMinute/6+1, logger)
	go ipLimiter.Cleanup(ctx.Done())
	sendLimiter := middleware.NewRedisRateLimiter(rdb, "chat:send", cfg.RateLimit.SendPerMinute, time.Minute, logger)

	app := api.NewApp(api.Deps{
		Chats:          chatSvc,
		Messages:       msgSvc,
		Uploads:        uploadSvc,
		Auth:           validator,
		IPLimiter:      ipLimiter,
		SendLimiter:    sendLimiter.PerUser(),
		WS:             ws.NewServer(hub, validator, chatSvc, logger),
		Log:            logger,
		BodyLimit:      cfg.App.BodyLimitMB * 1024 * 1024,
		RequestTimeout: cfg.RequestTimeout(),
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		sugar.Infof("chat service listening on %s (events: %s)", addr, cfg.Events.Driver)
		if err := app.Listen(addr); err != nil {
			sugar.Fatalf("server listen: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		sugar.Errorf("shutdown: %v", err)
	}
}

func newBus(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (events.Bus, error) {
	switch cfg.Events.Driver {
	case "kafka":
		// one group per instance so every instance sees every event
		group := fmt.Sprintf("%s-%s", cfg.Kafka.GroupPrefix, uuid.NewString())
		return events.NewKafkaBus(cfg.Kafka.Brokers, cfg.Kafka.Topic, group, logger), nil
	case "nats":
		return events.NewNatsBus(cfg.Nats.URL, cfg.Nats.SubjectPrefix, logger)
	case "local":
		return events.NewLocalBus(), nil
	default:
		return events.NewRedisBus(rdb, cfg.Events.ChannelPrefix, logger), nil
	}
}

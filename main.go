package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"genfity-floor-services/internal/config"
	"genfity-floor-services/internal/db"
	"genfity-floor-services/internal/floor"
	httpapi "genfity-floor-services/internal/http"
	"genfity-floor-services/internal/http/handlers"
	"genfity-floor-services/internal/logger"
	"genfity-floor-services/internal/queue"
	"genfity-floor-services/internal/storage"
	"genfity-floor-services/internal/tickets"
	"genfity-floor-services/internal/ws"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type cartBackend interface {
	floor.CartRepository
	floor.SubmissionLedger
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var store floor.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("database connection failed", zap.Error(err))
		}
		defer pool.Close()
		if cfg.DatabaseMigrate {
			if err := db.AutoMigrate(ctx, pool, 5, log); err != nil {
				log.Fatal("database migration failed", zap.Error(err))
			}
		}
		store = storage.NewPostgresStore(pool)
	} else {
		if cfg.Production() {
			log.Fatal("DATABASE_URL is required in production")
		}
		log.Warn("DATABASE_URL is empty; floor state is kept in memory")
		store = floor.NewMemoryStore()
	}

	var carts cartBackend
	if cfg.RedisURL != "" {
		rc, err := storage.NewRedisCarts(cfg.RedisURL, cfg.CartTTL, cfg.IdempotencyTTL)
		if err == nil {
			err = rc.Ping(ctx)
		}
		if err != nil {
			if cfg.Production() {
				log.Fatal("redis connection failed", zap.Error(err))
			}
			log.Warn("redis connection failed; carts are kept in memory", zap.Error(err))
			carts = floor.NewMemoryCarts()
		} else {
			defer rc.Close()
			carts = rc
		}
	} else {
		log.Info("carts are kept in memory (REDIS_URL is empty)")
		carts = floor.NewMemoryCarts()
	}

	// Subscribers are attached once every service exists; the services read
	// the slice through the pointer on each publish.
	var publishers floor.Publishers
	opts := []floor.Option{floor.WithLogger(log), floor.WithPublisher(&publishers)}

	registry := floor.NewRegistry(store, opts...)
	lifecycle := floor.NewLifecycle(store, opts...)
	cartStore := floor.NewCartStore(carts, carts, lifecycle, opts...)
	coordinator := floor.NewCoordinator(store, cartStore, opts...)

	var archive tickets.ObjectStore
	objectCfg := storage.Config{
		Endpoint:        cfg.ObjectStoreEndpoint,
		Region:          cfg.ObjectStoreRegion,
		AccessKeyID:     cfg.ObjectStoreAccessKeyID,
		SecretAccessKey: cfg.ObjectStoreSecretAccessKey,
		Bucket:          cfg.ObjectStoreBucket,
		PublicBaseURL:   cfg.ObjectStorePublicBaseURL,
		StorageClass:    cfg.ObjectStoreStorageClass,
	}
	if objectCfg.Enabled() {
		objectStore, err := storage.NewObjectStore(ctx, objectCfg)
		if err != nil {
			log.Warn("object store unavailable; tickets will not be archived", zap.Error(err))
		} else {
			archive = objectStore
			log.Info("ticket archive enabled", zap.String("bucket", cfg.ObjectStoreBucket))
		}
	}
	ticketService := tickets.NewService(tickets.Renderer{
		Venue:    cfg.VenueName,
		Timezone: cfg.Timezone,
		Currency: cfg.Currency,
	}, lifecycle, archive, log)

	wsServer := ws.New(log, cfg, registry, coordinator, lifecycle)
	publishers = append(publishers, wsServer, ticketService)

	if cfg.RabbitMQURL != "" {
		qc, err := queue.New(cfg.RabbitMQURL)
		if err == nil {
			if err = queue.EnsureFloorTopology(ctx, qc); err != nil {
				_ = qc.Close()
			}
		}
		if err != nil {
			if cfg.Production() {
				log.Fatal("rabbitmq setup failed", zap.Error(err))
			}
			log.Warn("rabbitmq setup failed; continuing without broker", zap.Error(err))
		} else {
			defer qc.Close()
			publishers = append(publishers, queue.NewEventPublisher(qc))
			log.Info("rabbitmq enabled", zap.String("exchange", queue.EventsExchange), zap.String("paymentsQueue", queue.PaymentsQueue))

			if cfg.RabbitMQWorkerMode == "daemon" {
				log.Info("payment consumer enabled", zap.String("mode", "daemon"))
				go func() {
					err := qc.ConsumeWithRetry(ctx, queue.PaymentsQueue, func(ctx context.Context, body []byte) error {
						return queue.ProcessPaymentEvent(ctx, lifecycle, log, body)
					}, 5, 5*time.Second)
					if err != nil && ctx.Err() == nil {
						log.Error("payment consumer stopped", zap.Error(err))
					}
				}()
			} else {
				log.Info("payment consumer disabled", zap.String("mode", cfg.RabbitMQWorkerMode))
			}
		}
	} else {
		log.Info("floor events stay in process (RABBITMQ_URL is empty)")
	}

	h := &handlers.Handler{
		Registry:    registry,
		Coordinator: coordinator,
		Carts:       cartStore,
		Lifecycle:   lifecycle,
		Tickets:     ticketService,
		Logger:      log,
		Config:      cfg,
	}
	apiServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewRouter(h, log, cfg, wsServer),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("floor api ready", zap.String("base", "/api"))
		log.Info("floor ws ready", zap.String("base", "/ws/floor"))
		log.Info("floor service listening", zap.String("addr", cfg.HTTPAddr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctxShutdown); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
	stopWorkers()
	ticketService.Wait()
}

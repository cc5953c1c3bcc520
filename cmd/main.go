package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"pawedaran"
	"pawedaran/internal/clients"
	"pawedaran/internal/config"
	"pawedaran/internal/repository"
	"pawedaran/internal/service"
	"pawedaran/internal/transport/auth"
	"pawedaran/internal/transport/rest"
	"pawedaran/internal/transport/websocket"
	"pawedaran/pkg/database/postgres"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const exportFileMaxAge = 30 * time.Minute

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system env or defaults")
	}

	// top-level context which we can cancel on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	db := mustInitPostgres(ctx, cfg.Postgres)
	defer postgres.Close(db)

	if err := postgres.RunMigrations(cfg.Postgres.URL(), pawedaran.MigrationsFS, "migrations"); err != nil {
		log.Fatalf("migrations error: %v", err)
	}

	redisClient := mustInitRedis(cfg.Redis)
	defer redisClient.Close()

	proofs, exportFiles, localDirs := mustInitStorage(ctx, cfg)

	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)
	wsClient := clients.NewWebSocketClient(wsHub)

	var events service.EventPublisher
	if cfg.Kafka.Enabled {
		publisher := mustInitKafka(ctx, cfg.Kafka)
		defer publisher.Close()
		events = publisher
	}

	promoRepo := repository.NewPromoRepository(db)
	debtRepo := repository.NewDebtRepository(db)
	tokenRepo := repository.NewPersonalAccessTokenRepository(db)

	promoSvc := service.NewPromoService(promoRepo, redisClient, cfg.PromoCacheTTL, time.Now, uuid.NewString)
	debtSvc := service.NewDebtService(debtRepo, redisClient, exportFiles, wsClient, events, cfg.ExportTTL, time.Now, uuid.NewString)
	exportSvc := service.NewExportService(redisClient)

	handler := rest.NewHandler(promoSvc, debtSvc, exportSvc, proofs, wsHub)
	router := handler.InitRouterWithAuth(auth.TokenMiddleware(tokenRepo))

	// /files stays public so links handed to the browser work without a token
	root := chi.NewRouter()
	if localDirs != nil {
		root.Get(cfg.Storage.PublicPrefix+"/{folder}/{file}", serveLocalFile(localDirs))
	}
	root.Mount("/", router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      withCORS(root),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run HTTP server in goroutine so we can listen for shutdown signals
	srvErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%s\n", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	if local, ok := exportFiles.(*clients.StorageClient); ok {
		go cleanupExports(ctx, local)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvErr:
		if err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("Shutdown signal received: %v", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server Shutdown error: %v", err)
		}

		// stops the websocket hub and the cleanup ticker
		cancel()

		log.Println("Shutdown complete")
	}
}

func mustInitPostgres(ctx context.Context, cfg config.PostgresConfig) *sql.DB {
	db, err := postgres.NewPostgresConnection(ctx, postgres.ConnectionInfo{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Username:     cfg.User,
		DBName:       cfg.DBName,
		SSLMode:      cfg.SSLMode,
		Password:     cfg.Password,
		MaxOpenConns: 20,
		MaxIdleConns: 5,
	})
	if err != nil {
		log.Fatalf("postgres init error: %v", err)
	}
	return db
}

func mustInitRedis(cfg config.RedisConfig) *clients.RedisClient {
	client, err := clients.NewRedisClient(clients.RedisConfig{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
		Timeout:     cfg.Timeout,
		Prefix:      cfg.Prefix,
	})
	if err != nil {
		log.Fatalf("redis init error: %v", err)
	}
	return client
}

func mustInitKafka(ctx context.Context, cfg config.KafkaConfig) *clients.KafkaPublisher {
	publisher, err := clients.NewKafkaPublisher(clients.KafkaConfig{
		Brokers:           cfg.Brokers,
		ClientID:          cfg.ClientID,
		Topic:             cfg.Topic,
		Partitions:        cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
		PublishTimeout:    cfg.PublishTimeout,
	})
	if err != nil {
		log.Fatalf("kafka init error: %v", err)
	}

	ensureCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := publisher.EnsureTopic(ensureCtx); err != nil {
		// producing still works when the topic is managed elsewhere
		log.Printf("[KAFKA] ensure topic %s: %v", cfg.Topic, err)
	}
	return publisher
}

// mustInitStorage returns the proof and export stores of the configured driver. For the
// local driver it also returns the served folders keyed by their URL segment.
func mustInitStorage(ctx context.Context, cfg config.AppConfig) (service.FileStorage, service.FileStorage, map[string]*clients.StorageClient) {
	if cfg.Storage.Driver == "s3" {
		s3Client, err := clients.NewS3Client(ctx, clients.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			UseSSL:          cfg.S3.UseSSL,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			URLTTL:          cfg.S3.URLTTL,
		})
		if err != nil {
			log.Fatalf("s3 init error: %v", err)
		}
		return s3Client.WithPrefix("proofs/"), s3Client.WithPrefix("exports/"), nil
	}

	dirs := map[string]*clients.StorageClient{}
	for _, folder := range []string{"proofs", "exports"} {
		local, err := clients.NewLocalStorage(
			filepath.Join(cfg.Storage.Dir, folder),
			cfg.Storage.PublicPrefix+"/"+folder,
			cfg.Storage.ExternalURL,
		)
		if err != nil {
			log.Fatalf("storage init error: %v", err)
		}
		dirs[folder] = local
	}
	return dirs["proofs"], dirs["exports"], dirs
}

func serveLocalFile(dirs map[string]*clients.StorageClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storage, ok := dirs[chi.URLParam(r, "folder")]
		if !ok {
			http.NotFound(w, r)
			return
		}

		file := chi.URLParam(r, "file")
		path, err := storage.Open(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "failed to access file", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", clients.OriginalName(file)))
		http.ServeFile(w, r, path)
	}
}

// cleanupExports removes generated workbooks once their status has long expired.
// Payment proofs are kept.
func cleanupExports(ctx context.Context, storage *clients.StorageClient) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := storage.CleanupOlderThan(exportFileMaxAge); err != nil {
				log.Printf("[EXPORT] storage cleanup error: %v", err)
			}
		}
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"

	specpkg "github.com/pvboard/pvboard/api"
	"github.com/pvboard/pvboard/internal/api"
	"github.com/pvboard/pvboard/internal/api/handler"
	"github.com/pvboard/pvboard/internal/config"
	"github.com/pvboard/pvboard/internal/database"
	"github.com/pvboard/pvboard/internal/media"
	"github.com/pvboard/pvboard/internal/project"
	"github.com/pvboard/pvboard/internal/teammember"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the environment is read")
	migrateOnly := flag.Bool("migrate", false, "apply the storage schema and exit")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := openStorage(startCtx, cfg)
	cancelStart()
	if err != nil {
		slog.Error("failed to initialize storage", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer store.close()

	if *migrateOnly {
		slog.Info("storage schema applied", "driver", cfg.StorageDriver)
		return
	}

	projects := store.projects
	if cfg.RedisURL != "" {
		rdb, err := openRedis(cfg.RedisURL)
		if err != nil {
			slog.Warn("redis cache disabled", "error", err)
		} else {
			defer rdb.Close()
			projects = project.NewCachedRepository(projects, rdb, cfg.CacheTTL)
			slog.Info("project cache enabled", "ttl", cfg.CacheTTL.String())
		}
	}

	mediaStore, mediaHandler, err := openMediaStore(cfg)
	if err != nil {
		slog.Error("failed to initialize media store", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.UploadTempDir, 0o755); err != nil {
		slog.Error("failed to create upload temp directory", "dir", cfg.UploadTempDir, "error", err)
		os.Exit(1)
	}

	memberService := teammember.NewService(store.members)
	projectService := project.NewService(projects, store.members, media.NewUploader(mediaStore, cfg.MediaUploadTimeout), project.Config{
		LogoFolder:              cfg.MediaFolder,
		CompensateOrphanedLogos: cfg.CompensateOrphanedLogos,
	})

	router := api.NewRouter(api.RouterDeps{
		DBPinger:     store.pinger,
		Driver:       cfg.StorageDriver,
		Version:      cfg.Version,
		OpenAPISpec:  specpkg.OpenAPISpec,
		Projects:     projectService,
		TeamMembers:  memberService,
		TempDir:      cfg.UploadTempDir,
		MaxLogoBytes: cfg.MaxLogoBytes,
		Media:        mediaHandler,
		APIKeyHash:   cfg.APIKeyHash,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting pvboard server", "port", cfg.Port, "version", cfg.Version, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("server error", "error", err)
		store.close()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server stopped gracefully")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(logHandler))
}

// storage bundles the repositories of the selected driver with its health
// check and shutdown hook.
type storage struct {
	pinger   handler.DBPinger
	members  teammember.Repository
	projects project.Repository
	close    func()
}

// openStorage connects to the configured backend and brings its schema up
// to date.
func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.StorageDriver {
	case config.DriverMongo:
		mdb, err := database.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := mdb.EnsureIndexes(ctx); err != nil {
			_ = mdb.Close(context.Background())
			return nil, err
		}
		return &storage{
			pinger:   mdb,
			members:  teammember.NewMongoRepository(mdb.Database()),
			projects: project.NewMongoRepository(mdb.Database()),
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := mdb.Close(ctx); err != nil {
					slog.Error("failed to disconnect from mongodb", "error", err)
				}
			},
		}, nil
	default:
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &storage{
			pinger:   db,
			members:  teammember.NewRepository(db.Pool()),
			projects: project.NewRepository(db.Pool()),
			close:    db.Close,
		}, nil
	}
}

func openRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// openMediaStore picks Cloudinary when credentials are configured and the
// local filesystem store otherwise. The returned handler serves local assets
// and is nil for Cloudinary.
func openMediaStore(cfg *config.Config) (media.Store, http.Handler, error) {
	if cfg.CloudinaryEnabled() {
		cld, err := media.NewCloudinaryStore(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cld.Ping(ctx); err != nil {
			slog.Warn("cloudinary is not reachable; logo uploads may fail", "error", err)
		}
		slog.Info("using cloudinary media store", "folder", cfg.MediaFolder)
		return cld, nil, nil
	}

	local, err := media.NewLocalStore(cfg.MediaLocalDir, cfg.MediaPublicBaseURL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("using local media store", "dir", cfg.MediaLocalDir, "baseUrl", cfg.MediaPublicBaseURL)
	return local, local.Handler(), nil
}

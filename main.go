package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v2"

	"diapredict/artifact"
	"diapredict/db"
	dhttp "diapredict/http"
	"diapredict/inference"
	"diapredict/logging"
	"diapredict/monitoring"
)

type Config struct {
	Server struct {
		Port            int      `yaml:"port"`
		TimeoutSeconds  int      `yaml:"timeout_seconds"`
		MaxRequestBytes int64    `yaml:"max_request_bytes"`
		AllowedOrigins  []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Artifact struct {
		Path                   string `yaml:"path"`
		RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds"`
		CacheSize              int    `yaml:"cache_size"`
		Watch                  bool   `yaml:"watch"`
	} `yaml:"artifact"`
	Training struct {
		Dataset   string  `yaml:"dataset"`
		Seed      int64   `yaml:"seed"`
		TestRatio float64 `yaml:"test_ratio"`
		MinRows   int     `yaml:"min_rows"`
	} `yaml:"training"`
	Log logging.Config `yaml:"log"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		logging.DefaultLogger().Fatalf("Failed to load config: %v", err)
	}

	log := logging.NewLogger(config.Log)
	defer log.Sync()
	dhttp.SetLogger(log)

	// 2. Initialize database
	if err := db.InitDB(config.Database.Path); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()
	log.Infof("Database initialized at %s", config.Database.Path)

	// 3. Inference engine over the artifact store
	store := artifact.NewStore(config.Artifact.Path)
	engine := inference.NewEngine(store, inference.Options{
		TTL:       time.Duration(config.Artifact.RefreshIntervalSeconds) * time.Second,
		CacheSize: config.Artifact.CacheSize,
	})
	dhttp.SetEngine(engine)
	dhttp.SetArtifactStore(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Artifact.Watch {
		if err := engine.WatchArtifact(logging.WithLogger(ctx, log)); err != nil {
			// The TTL path still picks up new bundles, keep serving.
			log.Warnf("Artifact watcher unavailable: %v", err)
		} else {
			log.Infof("Watching artifact %s", config.Artifact.Path)
		}
	}
	if err := engine.Warmup(logging.WithLogger(ctx, log)); err != nil {
		log.Warnf("No model bundle loaded yet: %v", err)
	}

	// 4. Live report feed
	feed := monitoring.NewFeed(log)
	go feed.Start()
	defer feed.Stop()
	dhttp.SetFeed(feed)

	dhttp.SetTrainingConfig(dhttp.TrainingConfig{
		DatasetPath: config.Training.Dataset,
		Seed:        config.Training.Seed,
		TestRatio:   config.Training.TestRatio,
		MinRows:     config.Training.MinRows,
	})

	// 5. Start HTTP server
	server := dhttp.NewServer(dhttp.ServerConfig{
		Port:            config.Server.Port,
		Timeout:         time.Duration(config.Server.TimeoutSeconds) * time.Second,
		MaxRequestBytes: config.Server.MaxRequestBytes,
		AllowedOrigins:  config.Server.AllowedOrigins,
	})
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 6. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	if err := server.Stop(); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Exiting")
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

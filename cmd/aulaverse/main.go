// Command aulaverse runs the multiverse role-play engine as an MCP server on
// stdio.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aulaverse/aulaverse/internal/game/market"
	"github.com/aulaverse/aulaverse/internal/game/service"
	"github.com/aulaverse/aulaverse/internal/mcp"
	"github.com/aulaverse/aulaverse/internal/narrative"
	"github.com/aulaverse/aulaverse/internal/platform/config"
	"github.com/aulaverse/aulaverse/internal/platform/otel"
	"github.com/aulaverse/aulaverse/internal/storage"
	"github.com/aulaverse/aulaverse/internal/storage/bbolt"
	"github.com/aulaverse/aulaverse/internal/storage/jsonfile"
)

type envConfig struct {
	DataDir        string `env:"AULAVERSE_DATA_DIR" envDefault:"data"`
	StorageBackend string `env:"AULAVERSE_STORAGE" envDefault:"jsonfile"`
	BoltPath       string `env:"AULAVERSE_BBOLT_PATH" envDefault:"data/aulaverse.db"`
	ChatURL        string `env:"AULAVERSE_CHAT_URL"`
	ChatModel      string `env:"AULAVERSE_CHAT_MODEL" envDefault:"gpt-oss:120b"`
	ChatAPIKey     string `env:"AULAVERSE_CHAT_API_KEY"`
	GeneratorRPM   int    `env:"AULAVERSE_GENERATOR_RPM" envDefault:"80"`
}

func main() {
	log.SetPrefix("[AULAVERSE] ")

	var cfg envConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("load configuration: %v", err)
	}

	dataDir := flag.String("data", "", "data directory (overrides AULAVERSE_DATA_DIR)")
	backend := flag.String("storage", "", "storage backend: jsonfile or bbolt (overrides AULAVERSE_STORAGE)")
	flag.Parse()
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *backend != "" {
		cfg.StorageBackend = *backend
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "aulaverse")
	if err != nil {
		config.Exitf("set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("shut down tracing: %v", err)
		}
	}()

	stores, closeStore, err := openStores(cfg)
	if err != nil {
		config.Exitf("open storage: %v", err)
	}
	defer closeStore()

	var generator narrative.Generator
	if cfg.ChatURL != "" {
		generator, err = narrative.NewChatGenerator(narrative.ChatConfig{
			ChatURL: cfg.ChatURL,
			Model:   cfg.ChatModel,
			APIKey:  cfg.ChatAPIKey,
		})
		if err != nil {
			config.Exitf("configure generator: %v", err)
		}
	} else {
		log.Printf("AULAVERSE_CHAT_URL is unset; narrated actions are disabled")
	}

	engine := service.New(stores, generator,
		service.WithRateWindow(narrative.NewRateWindow(cfg.GeneratorRPM, time.Minute)),
	)
	shop := &market.Shop{
		Characters: stores.Characters,
		Market:     stores.Market,
		Events:     stores.Events,
		Applicator: engine.Applicator(),
	}

	log.Printf("serving MCP on stdio (storage=%s)", cfg.StorageBackend)
	if err := mcp.New(engine, shop).Serve(ctx); err != nil {
		config.Exitf("serve MCP: %v", err)
	}
}

// openStores opens the configured storage backend and returns its stores
// plus a close function.
func openStores(cfg envConfig) (storage.Stores, func(), error) {
	switch cfg.StorageBackend {
	case "bbolt":
		store, err := bbolt.Open(cfg.BoltPath)
		if err != nil {
			return storage.Stores{}, nil, err
		}
		return store.Stores(), func() {
			if err := store.Close(); err != nil {
				log.Printf("close storage: %v", err)
			}
		}, nil
	default:
		store, err := jsonfile.Open(cfg.DataDir)
		if err != nil {
			return storage.Stores{}, nil, err
		}
		return store.Stores(), func() {}, nil
	}
}

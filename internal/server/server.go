package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"pointplay/internal/cache"
	"pointplay/internal/config"
	"pointplay/internal/cooldown"
	"pointplay/internal/engine"
	"pointplay/internal/feed"
	"pointplay/internal/ledger"
)

type FiberServer struct {
	*fiber.App

	cfg          config.Config
	cache        cache.Service
	feed         *feed.Adapter
	ledger       *ledger.Client
	hub          *engine.Hub
	orchestrator *engine.Orchestrator
	archive      *engine.Archive
}

func New(cfg config.Config) *FiberServer {
	redisService := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if redisService == nil {
		log.Fatal("[SERVER] Redis is required for cooldown persistence")
	}

	priceFeed := feed.New(cfg.FeedURL)
	if err := priceFeed.Start(); err != nil {
		// Direction commits fail with "feed unavailable" until the
		// process is restarted with a reachable stream.
		log.Printf("[SERVER] Price feed degraded at startup: %v", err)
	}

	ledgerClient := ledger.NewClient(cfg.LedgerBaseURL, cfg.LedgerToken)

	hub := engine.NewHub()
	archive := engine.NewArchive(redisService.GetClient())
	src := engine.NewSource()

	gate := cooldown.NewTracker(
		cooldown.NewRedisStore(redisService.GetClient()),
		map[string]time.Duration{string(engine.VariantSpin): engine.SPIN_COOLDOWN},
	)

	orchestrator := engine.NewOrchestrator()
	orchestrator.Register(engine.NewDirectionEngine(engine.DefaultDirectionConfig(), priceFeed, ledgerClient, hub, archive))
	orchestrator.Register(engine.NewCrashEngine(engine.DefaultCrashConfig(), src, ledgerClient, hub, archive))
	orchestrator.Register(engine.NewSpinEngine(engine.DefaultSpinConfig(), src, ledgerClient, hub, archive, gate))

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "pointplay",
			AppName:       "pointplay",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		cfg:          cfg,
		cache:        redisService,
		feed:         priceFeed,
		ledger:       ledgerClient,
		hub:          hub,
		orchestrator: orchestrator,
		archive:      archive,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()
	if err := orchestrator.StartAll(context.Background()); err != nil {
		log.Printf("[SERVER] Failed to start engines: %v", err)
	}

	log.Println("[SERVER] Round engines started")

	return server
}

// Shutdown tears active rounds down without settlement and releases
// connections.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if s.orchestrator != nil {
		if err := s.orchestrator.StopAll(); err != nil {
			log.Printf("[SERVER] Error stopping engines: %v", err)
		}
	}
	if s.feed != nil {
		s.feed.Stop()
	}
	if s.cache != nil {
		s.cache.Close()
	}

	return s.App.Shutdown()
}

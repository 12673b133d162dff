package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/basefi-lab/dca-executor/internal/api"
	"github.com/basefi-lab/dca-executor/internal/config"
	"github.com/basefi-lab/dca-executor/internal/database"
	"github.com/basefi-lab/dca-executor/internal/services"
	"github.com/sirupsen/logrus"
)

// Build information (set via ldflags)
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)

func main() {
	var showVersion = flag.Bool("version", false, "Show version information")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if *showVersion {
		log.Printf("DCA Executor Service")
		log.Printf("Version: %s", Version)
		log.Printf("Commit: %s", CommitHash)
		log.Printf("Built: %s", BuildTime)
		return
	}

	// Configuration is validated once here; nothing serves until it is sound.
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}
	if cfg.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	db, err := database.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer db.Close()

	chainService, err := services.NewChainService(cfg.RPCURL, cfg.ExecutorPrivateKey, cfg.ForwarderAddress)
	if err != nil {
		log.Fatal("Failed to initialize chain service: ", err)
	}
	defer chainService.Close()

	planService := services.NewPlanService(db.DB)
	quoteService := services.NewQuoteService(cfg.AggregatorBaseURL, cfg.AggregatorAPIKey, cfg.ForwarderAddress)
	executorService := services.NewExecutorService(planService, quoteService, chainService, cfg.USDCAddress, log)

	apiServer := api.NewAPIServer(db.DB, planService, executorService, cfg.APIAuthSecret, log)

	go func() {
		log.WithField("port", cfg.Port).Info("API server starting")
		if err := apiServer.Start(cfg.Port); err != nil {
			log.Fatal("Failed to start API server: ", err)
		}
	}()

	// Set up graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info("Shutting down server...")
	if err := apiServer.Shutdown(); err != nil {
		log.WithError(err).Error("Error shutting down API server")
	}
	log.Info("Server shut down successfully")
}

package main

import (
	"io"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/logger"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"drops/internal/config"
	"drops/internal/handlers"
	"drops/internal/oracle"
	"drops/internal/services"
	"drops/internal/vault"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading environment variables directly")
	}
	defer logger.Init("drops", true, false, io.Discard).Close()

	cfg := config.FromEnv()
	clock := clockwork.NewRealClock()

	// 1. Custody and randomness collaborators.
	v := vault.New()
	orc := oracle.New(clock, cfg.OracleDelay)

	// 2. The engine itself.
	svc := services.NewDropService(v, orc, clock, services.Config{
		EscrowAccount:  cfg.EscrowAccount,
		FeeReceiver:    cfg.FeeReceiver,
		AdminAddress:   cfg.AdminAddress,
		PlatformFeeBps: cfg.PlatformFeeBps,
		PayoutMode:     cfg.PayoutMode,
	})
	orc.SetFulfiller(svc.OnRandomnessFulfilled)

	// 3. HTTP surface.
	r := gin.Default()
	httpHandler := handlers.NewHTTPHandler(svc, v)
	httpHandler.RegisterRoutes(r)

	// 4. Background sweep for drops stranded by a never-fulfilled
	// randomness request. There is no escape hatch for these; operators
	// get told instead.
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(cfg.StrandedAfter),
		gocron.NewTask(func() {
			if ids := svc.StrandedDrops(cfg.StrandedAfter); len(ids) > 0 {
				logger.Warningf("stranded drops awaiting fulfillment: %v", ids)
			}
		}),
	)
	if err != nil {
		log.Fatalf("failed to schedule stranded-drop sweep: %v", err)
	}
	sched.Start()
	defer func() { _ = sched.Shutdown() }()

	logger.Infof("drops engine listening on %s (fee %d bps, payout mode %s)", cfg.Addr, cfg.PlatformFeeBps, cfg.PayoutMode)
	if err := r.Run(cfg.Addr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}

package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/avdeyev/biblio-programs/internal/config"
	"github.com/avdeyev/biblio-programs/internal/database"
	"github.com/avdeyev/biblio-programs/internal/handler"
	"github.com/avdeyev/biblio-programs/internal/middleware"
	"github.com/avdeyev/biblio-programs/internal/queue"
	"github.com/avdeyev/biblio-programs/internal/repository"
	"github.com/avdeyev/biblio-programs/internal/router"
	"github.com/avdeyev/biblio-programs/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Bootstrap(ctx, db); err != nil {
		cancel()
		log.Fatalf("bootstrap schema: %v", err)
	}
	cancel()

	// Redis is optional; with no client the limiter and cache become
	// pass-throughs.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting and response cache disabled")
	}

	// Activity consumer drains the registration queue in the background.
	if os.Getenv("RABBITMQ_URL") != "" || os.Getenv("AMQP_URL") != "" {
		go queue.StartActivityConsumer()
	}

	regRepo := repository.NewRegistrationRepo(db)
	histRepo := repository.NewHistoryRepo(db)
	patronRepo := repository.NewPatronRepo(db)
	tokenRepo := repository.NewTokenRepo(db)

	publish := os.Getenv("RABBITMQ_URL") != "" || os.Getenv("AMQP_URL") != ""
	regSvc := service.NewRegistrationService(db, regRepo, histRepo, publish)

	authH := handler.NewAuthHandler(cfg, patronRepo, tokenRepo)
	regH := handler.NewRegistrationHandler(regSvc)
	staffH := handler.NewStaffHandler(regSvc)

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPatron(e, regH, cfg.JWTSecret, limiter)
	router.RegisterStaff(e, staffH, cfg.JWTSecret, limiter, cache)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"beeper/backend/internal/alarm"
	"beeper/backend/internal/config"
	"beeper/backend/internal/db"
	"beeper/backend/internal/handler"
	"beeper/backend/internal/mqtt"
	"beeper/backend/internal/notify"
	"beeper/backend/internal/repository"
	"beeper/backend/internal/router"
	"beeper/backend/internal/service"
	"beeper/backend/internal/summary"
	"beeper/backend/internal/timer"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}
	cfg := config.Load()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	profile, err := config.LoadProfile(cfg.TimerProfile)
	if err != nil {
		log.Fatalf("load timer profile: %v", err)
	}
	strategy, err := timer.New(profile, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		log.Fatalf("build timer: %v", err)
	}
	log.Printf("timer strategy %s (min %v, avg %v, max %v)", profile.Strategy, profile.MinDelay, profile.AvgDelay, profile.MaxDelay)

	beepRepo := repository.NewBeepRepository(database, time.Now)
	uptimeRepo := repository.NewUptimeRepository(database, time.Now, cfg.MinUptime, 0)
	stateRepo := repository.NewStateRepository(database, time.Now)

	notifier := newNotifier(cfg.Notifier)
	beepAlarm := alarm.New("beep", time.Now)
	responseAlarm := alarm.New("response", time.Now)

	scheduler := service.NewSchedulerService(beepRepo, uptimeRepo, stateRepo, service.SchedulerOptions{
		Timer:           strategy,
		Notifier:        notifier,
		BeepAlarm:       beepAlarm,
		ResponseAlarm:   responseAlarm,
		ResponseTimeout: cfg.ResponseTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Reconcile(ctx); err != nil {
		log.Fatalf("reconcile scheduler: %v", err)
	}

	var summaryPub summary.Publisher
	if cfg.MQTTBroker != "" {
		pub, err := mqtt.NewRealPublisher(cfg.MQTTBroker, cfg.MQTTClientID, scheduler.HandleCallState)
		if err != nil {
			log.Printf("mqtt disabled: %v", err)
		} else {
			defer pub.Close()
			summaryPub = pub

			bridge := mqtt.NewBridge(pub, 64)
			unsubscribe := scheduler.Subscribe(bridge.Handle)
			defer unsubscribe()
			go bridge.Run(ctx)

			if state, err := scheduler.State(ctx); err == nil {
				bridge.Handle(service.Event{Type: service.EventStatusChanged, Status: state.Status, At: time.Now()})
			}
			log.Printf("mqtt connected to %s", cfg.MQTTBroker)
		}
	}

	reporter, err := summary.New(cfg.SummaryCron, scheduler, summaryPub)
	if err != nil {
		log.Printf("daily summary disabled: %v", err)
	} else {
		go reporter.Run(ctx)
	}

	authService := service.NewAuthService(cfg.APISecret, cfg.TokenTTL)
	authHandler := handler.NewAuthHandler(authService)
	schedulerHandler := handler.NewSchedulerHandler(scheduler)

	engine := router.New(authService, authHandler, schedulerHandler, cfg.CORSOrigins, cfg.APISubjects)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: engine}

	go func() {
		log.Printf("backend listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("run server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown server: %v", err)
	}
	// The scheduled beep stays persisted; the next start re-arms it.
	for _, a := range []*alarm.Alarm{beepAlarm, responseAlarm} {
		if at, ok := a.Armed(); ok {
			log.Printf("%s alarm due %s dropped", a.Name(), at.Format(time.RFC3339))
		}
		a.Cancel()
	}
}

func newNotifier(kind string) notify.Notifier {
	if kind != "desktop" {
		return notify.LogNotifier{}
	}
	desktop, err := notify.NewDesktopNotifier("beeper")
	if err != nil {
		log.Printf("desktop notifications unavailable, logging instead: %v", err)
		return notify.LogNotifier{}
	}
	return desktop
}

// carebridge is the participant lifecycle service: referral intake,
// versioned plan documents, the onboarding readiness gate, manager review,
// the conversion transaction, and e-signature envelopes.
//
// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal services.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"carebridge/internal/docgen"
	envelopehandler "carebridge/internal/envelope/handler"
	envelopeservice "carebridge/internal/envelope/service"
	envelopestore "carebridge/internal/envelope/store"
	"carebridge/internal/envelope/tokenindex"
	"carebridge/internal/gate"
	jwttoken "carebridge/internal/jwt_token"
	"carebridge/internal/lifecycle"
	"carebridge/internal/notify"
	participanthandler "carebridge/internal/participant/handler"
	participantservice "carebridge/internal/participant/service"
	participantstore "carebridge/internal/participant/store"
	plandochandler "carebridge/internal/plandoc/handler"
	plandocservice "carebridge/internal/plandoc/service"
	plandocstore "carebridge/internal/plandoc/store"
	"carebridge/internal/platform/config"
	"carebridge/internal/platform/httpserver"
	"carebridge/internal/platform/logger"
	"carebridge/internal/platform/metrics"
	"carebridge/internal/platform/postgres"
	platformredis "carebridge/internal/platform/redis"
	"carebridge/internal/quote"
	referralhandler "carebridge/internal/referral/handler"
	referralservice "carebridge/internal/referral/service"
	referralstore "carebridge/internal/referral/store"
	reviewhandler "carebridge/internal/review/handler"
	reviewservice "carebridge/internal/review/service"
	reviewstore "carebridge/internal/review/store"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Persistence. Without DATABASE_URL the service runs on in-memory
	// stores, which is the development and test mode.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	var outboxDB *sql.DB
	if pool != nil {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		outboxDB, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("outbox connection failed", "error", err)
			os.Exit(1)
		}
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	// Lifecycle events: always log; add the NATS sink and the postgres
	// outbox when their backends are configured.
	sinks := lifecycle.MultiSink{lifecycle.LogSink{Logger: log}}
	var natsSink *lifecycle.NATSSink
	if cfg.NATSURL != "" {
		natsSink, err = lifecycle.NewNATSSink(cfg.NATSURL)
		if err != nil {
			log.Error("nats connection failed", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, natsSink)
	}
	if outboxDB != nil {
		sinks = append(sinks, lifecycle.NewOutboxSink(outboxDB))
	}
	events := lifecycle.NewPublisher(sinks,
		lifecycle.WithAsyncBuffer(256),
		lifecycle.WithLogger(log),
	)

	// Stores.
	var (
		docStore         plandocservice.Store
		reviewStore      reviewservice.Store
		participantStore participantservice.Store
		envelopeStore    envelopeservice.Store
		referralStore    referralservice.Store
	)
	if pool != nil {
		docStore = plandocstore.NewPostgres(pool)
		reviewStore = reviewstore.NewPostgres(pool)
		participantStore = participantstore.NewPostgres(pool)
		envelopeStore = envelopestore.NewPostgres(pool)
		referralStore = referralstore.NewPostgres(pool)
	} else {
		memParticipants := participantstore.NewInMemory()
		docStore = plandocstore.NewInMemory()
		reviewStore = reviewstore.NewInMemory()
		participantStore = memParticipants
		envelopeStore = envelopestore.NewInMemory()
		referralStore = referralstore.NewInMemory(memParticipants)
	}

	// External collaborators: in-process reference implementations.
	artifacts := docgen.NewMemory()
	quotes := quote.NewMemory()

	gateEval := gate.New(gateDocs(docStore), quotes, artifacts,
		gate.WithLogger(log), gate.WithMetrics(m))

	reviewSvc := reviewservice.New(reviewStore,
		reviewservice.WithLogger(log),
		reviewservice.WithEventPublisher(events),
		reviewservice.WithMetrics(m),
	)
	docSvc := plandocservice.New(docStore,
		plandocservice.WithLogger(log),
		plandocservice.WithEventPublisher(events),
		plandocservice.WithMetrics(m),
	)
	participantSvc := participantservice.New(participantStore, reviewSvc, gateEval,
		participantservice.WithLogger(log),
		participantservice.WithEventPublisher(events),
		participantservice.WithMetrics(m),
	)
	referralSvc := referralservice.New(referralStore,
		referralservice.WithLogger(log),
		referralservice.WithEventPublisher(events),
		referralservice.WithMetrics(m),
	)

	envelopeOpts := []envelopeservice.Option{
		envelopeservice.WithLogger(log),
		envelopeservice.WithEventPublisher(events),
		envelopeservice.WithMetrics(m),
		envelopeservice.WithNotifier(notify.NewLog(cfg.PublicBaseURL, log)),
		envelopeservice.WithDefaultTTLDays(cfg.EnvelopeTTLDays()),
	}
	if redisClient != nil {
		envelopeOpts = append(envelopeOpts, envelopeservice.WithTokenIndex(tokenindex.New(redisClient.Client)))
	}
	envelopeSvc := envelopeservice.New(envelopeStore, envelopeOpts...)

	jwtSvc := jwttoken.NewJWTService(cfg.JWTSigningKey, "carebridge", "carebridge-staff")

	router := newRouter(routerDeps{
		logger:  log,
		jwt:     jwtSvc,
		devAuth: cfg.DevAuth,
		health: func() map[string]string {
			status := map[string]string{"status": "ok", "store": "memory"}
			if pool != nil {
				status["store"] = "postgres"
			}
			if redisClient != nil {
				if err := redisClient.Health(ctx); err != nil {
					status["redis"] = "unhealthy"
				} else {
					status["redis"] = "ok"
				}
			}
			return status
		},
		protected: []registrar{
			referralhandler.New(referralSvc, log),
			plandochandler.New(docSvc, log),
			reviewhandler.New(reviewSvc, log),
			participanthandler.New(participantSvc, log),
			envelopehandler.New(envelopeSvc, log),
			docgen.NewHandler(artifacts, log),
			quote.NewHandler(quotes, log),
		},
		public: envelopehandler.NewPublic(envelopeSvc, log),
	})

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting carebridge", "addr", cfg.Addr, "postgres", pool != nil, "redis", redisClient != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	events.Close()
	if natsSink != nil {
		_ = natsSink.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if outboxDB != nil {
		_ = outboxDB.Close()
	}
	if pool != nil {
		pool.Close()
	}
}

// gateDocs narrows the plandoc store to the read-only slice the gate needs.
func gateDocs(s plandocservice.Store) gate.DocumentStore { return s }

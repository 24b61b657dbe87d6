package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"

	config "github.com/avvvet/casino-services/configs"
	"github.com/avvvet/casino-services/internal/casino/broker"
	"github.com/avvvet/casino-services/internal/casino/clock"
	settings "github.com/avvvet/casino-services/internal/casino/config"
	"github.com/avvvet/casino-services/internal/casino/engine"
	handlers "github.com/avvvet/casino-services/internal/casino/handlers"
	"github.com/avvvet/casino-services/internal/casino/ledger"
	"github.com/avvvet/casino-services/internal/casino/notify"
	"github.com/avvvet/casino-services/internal/casino/rng"
	"github.com/avvvet/casino-services/internal/casino/scheduler"
	"github.com/avvvet/casino-services/internal/casino/store"
	"github.com/avvvet/casino-services/internal/comm"
	"github.com/avvvet/casino-services/internal/db"
	nats "github.com/avvvet/casino-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "casino"

func init() {
	instanceId := "001"
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	cfg := settings.Load()
	config.CreateUniqueInstance(SERVICE_NAME)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	// pg connection
	var pool *pgxpool.Pool
	if cfg.PostgresURL != "" {
		var err error
		pool, err = store.Connect(bootCtx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer pool.Close()
		if err := store.Migrate(bootCtx, pool); err != nil {
			log.Fatalf("Failed to migrate DB: %v", err)
		}
		log.Printf("pg connection established successfully")
	}

	// mongo connection, only for the archive backend
	var mongoDB *mongo.Database
	if cfg.SnapshotBackend == settings.BackendMongo {
		var err error
		mongoDB, err = db.ConnectToDB(bootCtx, cfg.MongoURI)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer db.Disconnect(mongoDB)
	}

	persistence, err := snapshots(bootCtx, cfg, pool, mongoDB)
	if err != nil {
		log.Fatalf("Failed to set up %s snapshots: %v", cfg.SnapshotBackend, err)
	}

	var accounts engine.AccountStore = store.NewMemoryAccounts()
	if pool != nil {
		accounts = store.NewPlayerStore(pool)
	}

	// ledger journal: durable entries in pg, big wins to telegram
	journalCtx, stopJournal := context.WithCancel(context.Background())
	var journals []ledger.Journal
	var pgJournal *store.Journal
	if pool != nil {
		pgJournal = store.NewJournal(store.NewPGEntryWriter(pool), 4096)
		go pgJournal.Run(journalCtx)
		journals = append(journals, pgJournal)
	}
	if cfg.TelegramToken != "" && len(cfg.TelegramChatIDs) > 0 {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatIDs)
		if err != nil {
			log.Errorf("telegram notifier disabled: %v", err)
		} else {
			journals = append(journals, notify.NewBigWins(tg, cfg.BigWinThreshold))
			log.Infof("telegram big win notifier enabled for %d chats", len(cfg.TelegramChatIDs))
		}
	} else {
		log.Warn("No valid telegram chat IDs found, notifications disabled")
	}

	// Connect to NATS
	n, err := nats.Connect(cfg.NatsURL, cfg.NatsToken, SERVICE_NAME+" service")
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(0)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	b := broker.NewBroker(n.Conn)

	ecfg := engine.DefaultConfig()
	ecfg.HistoryLimit = cfg.HistoryLimit
	ecfg.InitialBalance = cfg.InitialBalance

	deps := engine.Deps{
		Clock:       clock.Real{},
		Random:      rng.New(cfg.RNGSeed),
		Accounts:    accounts,
		Persistence: persistence,
		Sink:        b,
		Notifier:    notify.Multi(b, notify.Log{}),
	}
	if len(journals) > 0 {
		deps.Journal = ledger.Journals(journals...)
	}
	e := engine.New(ecfg, deps)
	b.Casino = e

	// live rounds are never resumed across a restart, open stakes are refunded
	restored, err := e.Load(bootCtx, false)
	if err != nil {
		log.Errorf("unable to restore casino state, starting fresh: %v", err)
	} else if restored {
		log.Info("casino state restored from snapshot")
	}

	// subscribe to socket service
	sub, err := b.SubscribSocketService(n.Conn, comm.SubjectCommands)
	if err != nil {
		log.Errorf("Error: unable to subscribe to queue %v", err)
		os.Exit(0)
	}

	roundCtx, stopRounds := context.WithCancel(context.Background())
	sched := scheduler.New(clock.Real{}, e.Rounds()...)
	if persistence != nil && cfg.SnapshotInterval > 0 {
		sched.Add(scheduler.Every("snapshot", cfg.SnapshotInterval, func() {
			ctx, cancel := context.WithTimeout(roundCtx, 10*time.Second)
			defer cancel()
			if err := e.Save(ctx); err != nil {
				log.Errorf("periodic snapshot failed: %v", err)
			}
		}))
	}
	sched.Start(roundCtx)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(e, cfg.JWTSecret, cfg.TokenTTL, cfg.Port)
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}

	stopRounds()
	sched.Wait()

	if err := e.Save(ctx); err != nil {
		log.Errorf("final snapshot failed: %v", err)
	}

	stopJournal()
	if pgJournal != nil {
		pgJournal.Wait()
		if dropped := pgJournal.Dropped(); dropped > 0 {
			log.Warnf("ledger journal dropped %d entries", dropped)
		}
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}

func snapshots(ctx context.Context, cfg settings.Config, pool *pgxpool.Pool, mongoDB *mongo.Database) (engine.PersistenceHook, error) {
	switch cfg.SnapshotBackend {
	case settings.BackendPostgres:
		if pool == nil {
			return nil, errors.New("postgres backend requires POSTGRES_URL")
		}
		return store.NewSnapshotStore(pool, cfg.SnapshotKeep), nil
	case settings.BackendMongo:
		return store.NewMongoArchive(ctx, mongoDB, cfg.ArchiveTTL)
	case settings.BackendFile:
		return store.NewFileSnapshots(cfg.SnapshotDir)
	default:
		return nil, nil
	}
}

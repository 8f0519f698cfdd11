// Command server runs the citizenship credential ledger: HTTP API, audit
// pipeline, and the revocation sweep. Store selection is config-driven so the
// same binary serves production (Postgres, Redis, Kafka) and local
// development (everything in memory).
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"civitas/internal/accessctrl"
	adminhandler "civitas/internal/admin/handler"
	"civitas/internal/credential"
	credentialhandler "civitas/internal/credential/handler"
	credentialmetrics "civitas/internal/credential/metrics"
	"civitas/internal/eligibility"
	eligibilityhandler "civitas/internal/eligibility/handler"
	eligibilitymetrics "civitas/internal/eligibility/metrics"
	"civitas/internal/issuance"
	issuancehandler "civitas/internal/issuance/handler"
	issuancemetrics "civitas/internal/issuance/metrics"
	"civitas/internal/platform/config"
	"civitas/internal/platform/database"
	"civitas/internal/platform/httpserver"
	kafkaconsumer "civitas/internal/platform/kafka/consumer"
	kafkaproducer "civitas/internal/platform/kafka/producer"
	"civitas/internal/platform/logger"
	"civitas/internal/platform/redis"
	"civitas/internal/platform/token"
	"civitas/internal/policy"
	"civitas/internal/renderer"
	"civitas/internal/stakelock"
	stakelockhandler "civitas/internal/stakelock/handler"
	"civitas/internal/staketoken"
	httptransport "civitas/internal/transport/http"
	id "civitas/pkg/domain"
	"civitas/pkg/platform/audit"
	auditconsumer "civitas/pkg/platform/audit/consumer"
	"civitas/pkg/platform/audit/publishers"
	"civitas/pkg/platform/audit/publishers/compliance"
	"civitas/pkg/platform/audit/publishers/ops"
	"civitas/pkg/platform/audit/publishers/security"
	auditmemory "civitas/pkg/platform/audit/store/memory"
	auditpostgres "civitas/pkg/platform/audit/store/postgres"
	auditworker "civitas/pkg/platform/audit/worker"
	"civitas/pkg/platform/middleware/apikey"
	"civitas/pkg/platform/middleware/auth"
	"civitas/pkg/platform/tx"
)

const opsSampleRate = 0.1

func main() {
	log := logger.New()
	slog.SetDefault(log)

	if err := run(config.FromEnv(), log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores. Postgres when configured, in-memory otherwise; the service
	// graph above them is identical either way.
	var (
		db          *sql.DB
		credStore   credential.Store
		lockStore   stakelock.Store
		roleStore   accessctrl.Store
		auditStore  audit.Store
		outbox      *auditpostgres.Store
		credTx      credential.Tx
		lockTx      stakelock.Tx
		credLister  issuance.CredentialLister
		healthcheck = map[string]httptransport.HealthCheck{}
	)
	if cfg.Postgres.URL != "" {
		var err error
		db, err = database.Open(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}

		pgCred := credential.NewPostgresStore(db)
		credStore, credLister = pgCred, pgCred
		lockStore = stakelock.NewPostgresStore(db)
		roleStore = accessctrl.NewPostgresStore(db)
		outbox = auditpostgres.New(db)
		auditStore = outbox
		credTx = tx.NewRunner(db)
		lockTx = tx.NewRunner(db)
		healthcheck["postgres"] = db.PingContext
		log.Info("using postgres stores")
	} else {
		memCred := credential.NewInMemoryStore()
		credStore, credLister = memCred, memCred
		lockStore = stakelock.NewInMemoryStore()
		roleStore = accessctrl.NewInMemoryStore()
		auditStore = auditmemory.NewInMemoryStore()
		credTx = credential.NewMemoryTx()
		lockTx = credential.NewMemoryTx()
		log.Info("using in-memory stores")
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		healthcheck["redis"] = redisClient.Health
	}

	// Audit pipeline. Events always land in the local store; with Postgres
	// they go through the outbox, and with Kafka configured the relay ships
	// them to the topic for the materializer.
	compliancePub := compliance.New(auditStore,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	securityPub := security.New(auditStore, log)
	defer securityPub.Close()
	dispatch := publishers.NewDispatch(
		compliancePub,
		securityPub,
		ops.New(auditStore, log, ops.NewSampler(opsSampleRate)),
	)

	producer, err := kafkaproducer.New(cfg.Kafka.Brokers, log)
	if err != nil {
		return err
	}
	if producer != nil {
		defer producer.Close()
		if err := producer.EnsureTopics(ctx, audit.Topics()...); err != nil {
			return err
		}
	}

	// Access control and service accounts.
	accessSvc, err := accessctrl.New(roleStore,
		accessctrl.WithLogger(log),
		accessctrl.WithAuditPublisher(dispatch),
	)
	if err != nil {
		return err
	}
	owner, err := serviceAccount(cfg.OwnerAccount, "owner", log)
	if err != nil {
		return err
	}
	controller, err := serviceAccount(cfg.ControllerAccount, "controller", log)
	if err != nil {
		return err
	}
	if err := accessSvc.Seed(ctx, owner, controller); err != nil {
		return err
	}

	// Stake token collaborator and custody account.
	custody, err := serviceAccount(cfg.CustodyAccount, "custody", log)
	if err != nil {
		return err
	}
	asset, err := id.ParseAsset(cfg.StakeAsset)
	if err != nil {
		return err
	}
	var stake staketoken.TokenService
	if cfg.StakeTokenEndpoint != "" {
		stake = staketoken.NewClient(cfg.StakeTokenEndpoint, custody, 5*time.Second)
	} else {
		stake = staketoken.NewMemory(custody)
	}

	// Credential ledger.
	credOpts := []credential.Option{
		credential.WithLogger(log),
		credential.WithAuditPublisher(dispatch),
		credential.WithMetrics(credentialmetrics.New()),
		credential.WithStakeToken(stake),
	}
	if cfg.RendererEndpoint != "" {
		credOpts = append(credOpts,
			credential.WithRenderer(renderer.NewClient(cfg.RendererEndpoint, 5*time.Second), cfg.RendererEndpoint))
	}
	credSvc, err := credential.New(credStore, credTx, accessSvc, credOpts...)
	if err != nil {
		return err
	}

	// Eligibility evaluation and its display cache.
	eligOpts := []eligibility.Option{
		eligibility.WithLogger(log),
		eligibility.WithThreshold(cfg.EligibilityThreshold),
		eligibility.WithMetrics(eligibilitymetrics.New()),
	}
	if redisClient != nil {
		eligOpts = append(eligOpts,
			eligibility.WithCache(eligibility.NewRedisCache(redisClient.Client, policy.EligibilityCacheTTL)))
	}
	eligSvc, err := eligibility.New(lockStore, eligOpts...)
	if err != nil {
		return err
	}

	// Stake locks invalidate the eligibility cache on every mutation.
	lockSvc, err := stakelock.New(lockStore, lockTx, stake, asset, custody,
		stakelock.WithLogger(log),
		stakelock.WithAuditPublisher(dispatch),
		stakelock.WithCacheInvalidator(eligSvc),
	)
	if err != nil {
		return err
	}

	// Claims and the revocation sweep.
	issuanceMetrics := issuancemetrics.New()
	claimSvc, err := issuance.New(credSvc, eligSvc, accessSvc,
		issuance.WithLogger(log),
		issuance.WithMetrics(issuanceMetrics),
	)
	if err != nil {
		return err
	}
	sweeper, err := issuance.NewSweeper(credLister, credSvc, eligSvc, accessSvc,
		cfg.RevocationMinimum, cfg.SweepInterval,
		issuance.SweeperWithLogger(log),
		issuance.SweeperWithAuditPublisher(dispatch),
		issuance.SweeperWithMetrics(issuanceMetrics),
	)
	if err != nil {
		return err
	}

	// Gates and router.
	tokenSvc := token.NewService(cfg.JWTSigningKey, "civitas", "civitas")
	authGate := auth.RequireAuth(tokenSvc, log)
	controllerGate := apikey.Require("controller", cfg.ControllerAPIKeyHash, log)
	ownerGate := apikey.Require("owner", cfg.OwnerAPIKeyHash, log)

	router := httptransport.New(log, healthcheck,
		credentialhandler.New(credSvc, accessSvc, controllerGate, authGate, log),
		stakelockhandler.New(lockSvc, authGate, log),
		eligibilityhandler.New(eligSvc, log),
		issuancehandler.New(claimSvc, authGate, log),
		adminhandler.New(credSvc, accessSvc, auditStore, ownerGate, log),
	)
	server := httpserver.New(cfg.Addr, router)

	// Supervised run: HTTP server, revocation sweep, and the Kafka legs when
	// configured.
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return sweeper.Run(ctx) })

	if producer != nil && outbox != nil {
		relay := auditworker.NewRelay(outbox, producer, log)
		g.Go(func() error { return relay.Run(ctx) })

		materializer := auditconsumer.NewMaterializer(outbox, log)
		consumerRouter := auditconsumer.NewRouter(log, materializer)
		consumer, err := kafkaconsumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, audit.Topics(), consumerRouter, log)
		if err != nil {
			return err
		}
		if consumer != nil {
			g.Go(func() error { return consumer.Run(ctx) })
		}
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shut down cleanly")
	return nil
}

// serviceAccount parses a configured account id, or generates a process-local
// one for development when the variable is unset.
func serviceAccount(raw, name string, log *slog.Logger) (id.AccountID, error) {
	if raw == "" {
		account := id.AccountID(uuid.New())
		log.Warn("service account not configured, generated for this process",
			"role", name,
			"account", account,
		)
		return account, nil
	}
	return id.ParseAccountID(raw)
}

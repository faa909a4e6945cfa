package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/compose-network/throne/metrics"
	apisrv "github.com/compose-network/throne/server/api"
	apimw "github.com/compose-network/throne/server/api/middleware"
	"github.com/compose-network/throne/throne-app/config"
	"github.com/compose-network/throne/x/attestation"
	"github.com/compose-network/throne/x/gamehub"
	"github.com/compose-network/throne/x/issuer"
	issuerhttp "github.com/compose-network/throne/x/issuer/http"
	"github.com/compose-network/throne/x/jobs"
	"github.com/compose-network/throne/x/progression"
	progressionhttp "github.com/compose-network/throne/x/progression/http"
	"github.com/compose-network/throne/x/prover"
	proverhttp "github.com/compose-network/throne/x/prover/http"
	"github.com/compose-network/throne/x/prover/remote"
	roundscheduler "github.com/compose-network/throne/x/round-scheduler"
	"github.com/compose-network/throne/x/store"
	"github.com/compose-network/throne/x/trials"
)

const shutdownTimeout = 30 * time.Second

// App wires the throne components into one process.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	store     store.Store
	generator prover.Generator
	verifier  prover.Verifier
	catalog   *trials.Catalog

	signer      *attestation.Signer
	attVerifier *attestation.Verifier

	machine   *progression.Machine
	tracker   *jobs.Tracker
	issuer    *issuer.Issuer
	scheduler *roundscheduler.LocalScheduler

	apiServer *apisrv.Server

	startedAt time.Time
	cancel    context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:       cfg,
		log:       log.With().Str("component", "app").Logger(),
		startedAt: time.Now(),
	}

	if err := app.initialize(ctx); err != nil {
		_ = app.closeStore()
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up the application components
func (a *App) initialize(ctx context.Context) error {
	steps := []func(context.Context) error{
		a.initializeStore,
		a.initializeProver,
		a.initializeAttestation,
		a.initializeTrials,
		a.initializeProgression,
		a.initializeJobs,
		a.initializeIssuer,
		a.initializeScheduler,
		a.initializeAPIServer,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) initializeStore(context.Context) error {
	st, err := store.Open(a.cfg.Store, a.log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st
	return nil
}

// initializeProver builds the local engine, or a remote generator paired
// with a verify-only engine over the persisted verifying key.
func (a *App) initializeProver(context.Context) error {
	switch a.cfg.Prover.Mode {
	case prover.ModeRemote:
		var httpClient *http.Client
		if a.cfg.Prover.Timeout > 0 {
			httpClient = &http.Client{Timeout: a.cfg.Prover.Timeout}
		}
		client, err := remote.NewClient(a.cfg.Prover.RemoteURL, httpClient, a.log)
		if err != nil {
			return fmt.Errorf("failed to create remote prover client: %w", err)
		}
		engine, err := prover.NewVerifyingEngine(a.cfg.Prover, a.log)
		if err != nil {
			return fmt.Errorf("failed to load verifying key: %w", err)
		}
		a.generator, a.verifier = client, engine
	default:
		engine, err := prover.NewEngine(a.cfg.Prover, a.log)
		if err != nil {
			return fmt.Errorf("failed to create proof engine: %w", err)
		}
		a.generator, a.verifier = engine, engine
	}
	return nil
}

func (a *App) initializeAttestation(context.Context) error {
	switch {
	case a.cfg.Attestation.PrivateKey != "":
		key, err := attestation.ParsePrivateKey(a.cfg.Attestation.PrivateKey)
		if err != nil {
			return fmt.Errorf("invalid attestation private key: %w", err)
		}
		signer, err := attestation.NewSigner(key, a.log)
		if err != nil {
			return err
		}
		a.signer = signer
		if a.attVerifier, err = attestation.NewVerifier(signer.PublicKey()); err != nil {
			return err
		}
	case a.cfg.Attestation.PublicKey != "":
		pub, err := attestation.ParsePublicKey(a.cfg.Attestation.PublicKey)
		if err != nil {
			return fmt.Errorf("invalid attestation public key: %w", err)
		}
		if a.attVerifier, err = attestation.NewVerifier(pub); err != nil {
			return err
		}
	default:
		a.log.Warn().Msg("No attestation key configured, signature submissions are disabled")
		return nil
	}

	a.log.Info().
		Str("public_key", fmt.Sprintf("%x", a.attVerifier.PublicKey())).
		Bool("can_sign", a.signer != nil).
		Msg("Attestation key loaded")
	return nil
}

func (a *App) initializeTrials(context.Context) error {
	if a.cfg.Trials.Path == "" {
		a.catalog = trials.Default()
	} else {
		catalog, err := trials.Load(a.cfg.Trials.Path)
		if err != nil {
			return err
		}
		a.catalog = catalog
	}
	a.log.Info().Int("trials", a.catalog.Len()).Str("path", a.cfg.Trials.Path).Msg("Trial catalog loaded")
	return nil
}

func (a *App) initializeProgression(ctx context.Context) error {
	opts := []progression.Option{
		progression.WithStore(a.store),
		progression.WithProofVerifier(a.verifier, a.verifier.Fingerprint()),
		progression.WithTrialCatalog(a.catalog),
	}
	if a.attVerifier != nil {
		opts = append(opts, progression.WithAttestationVerifier(a.attVerifier))
	}
	if a.cfg.GameHub.Enabled() {
		hub, err := gamehub.NewClient(a.cfg.GameHub, nil, a.log)
		if err != nil {
			return fmt.Errorf("failed to create game hub client: %w", err)
		}
		opts = append(opts, progression.WithSessionHub(hub))
	}

	machine, err := progression.New(a.cfg.Progression, a.log, opts...)
	if err != nil {
		return fmt.Errorf("failed to create progression machine: %w", err)
	}
	if err := machine.EnsureInitialized(ctx); err != nil {
		return fmt.Errorf("failed to initialize progression: %w", err)
	}
	a.machine = machine
	return nil
}

func (a *App) initializeJobs(ctx context.Context) error {
	if !a.cfg.Jobs.Enabled {
		return nil
	}
	a.tracker = jobs.New(ctx, a.generator, a.cfg.Jobs.Config, a.log)
	return nil
}

func (a *App) initializeIssuer(context.Context) error {
	if !a.cfg.Attestation.Issuer {
		return nil
	}
	iss, err := issuer.New(issuer.Deps{
		Catalog:   a.catalog,
		Generator: a.generator,
		Verifier:  a.verifier,
		Signer:    a.signer,
		Nonces:    issuer.NewNonces(a.store, a.machine),
		Rounds:    a.machine,
	}, a.log)
	if err != nil {
		return fmt.Errorf("failed to create issuer: %w", err)
	}
	a.issuer = iss
	return nil
}

func (a *App) initializeScheduler(context.Context) error {
	if !a.cfg.Rounds.Enabled {
		return nil
	}
	a.scheduler = roundscheduler.New(a.cfg.Rounds, a.advanceRound, a.log)
	return nil
}

// advanceRound closes the current round on a scheduler tick.
func (a *App) advanceRound(ctx context.Context, tick roundscheduler.Tick) error {
	admin, err := a.machine.Admin(ctx)
	if err != nil {
		return err
	}
	next, events, err := a.machine.AdvanceRound(ctx, admin, 0)
	if err != nil {
		return err
	}
	a.log.Info().
		Uint64("tick", tick.Index).
		Uint64("missed", tick.Missed).
		Uint32("round", next.RoundID).
		Int("events", len(events)).
		Msg("Scheduled round advance")
	return nil
}

// initializeAPIServer sets up the HTTP API server with all endpoints
func (a *App) initializeAPIServer(context.Context) error {
	s := apisrv.NewServer(a.cfg.API, a.log)
	s.Use(apimw.Recover(a.log))
	s.Use(apimw.RequestID())
	s.Use(apimw.Signer(a.cfg.Auth.MaxBodyBytes, a.log))
	s.Use(apimw.Logger(a.log))
	if len(a.cfg.API.CORSOrigins) > 0 {
		s.EnableCORS(a.cfg.API.CORSOrigins)
	}

	// Health/readiness/stats
	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/ready", a.handleReady).Methods(http.MethodGet)
	s.Router.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)

	// Metrics
	if a.cfg.Metrics.Enabled {
		s.Router.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	progressionhttp.NewHandler(a.machine, a.cfg.Auth, a.log).RegisterMux(s.Router)

	var jobSvc jobs.Service
	if a.tracker != nil {
		jobSvc = a.tracker
	}
	proverhttp.NewHandler(a.generator, a.verifier, jobSvc, a.cfg.Auth, a.log).RegisterMux(s.Router)

	if a.issuer != nil {
		issuerhttp.NewHandler(a.issuer, a.cfg.Auth, a.log).RegisterMux(s.Router)
	}

	a.apiServer = s
	return nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.scheduler != nil {
		if err := a.scheduler.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("failed to start round scheduler: %w", err)
		}
	}

	go a.metricsReporter(runCtx)

	go func() {
		if err := a.apiServer.Start(runCtx); err != nil {
			a.log.Error().Err(err).Msg("API server error")
			cancel()
		}
	}()

	return a.runWithGracefulShutdown(runCtx)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a.log.Info().Msg("Throne started successfully")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	if a.cancel != nil {
		a.cancel()
	}

	return a.shutdown()
}

// shutdown stops the scheduler and job workers before closing the store.
func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.scheduler != nil {
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("Round scheduler shutdown error")
		}
	}

	if a.tracker != nil {
		a.tracker.Close()
	}

	if err := a.closeStore(); err != nil {
		a.log.Error().Err(err).Msg("Store shutdown error")
		return err
	}

	a.log.Info().Msg("Graceful shutdown complete")
	return nil
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// handleHealth responds to health check requests.
func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports ready once progression state exists.
func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	meta, err := a.machine.Meta(r.Context())
	if err != nil {
		status := "error"
		if errors.Is(err, progression.ErrNotInitialized) {
			status = "not_initialized"
		}
		apisrv.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": status})
		return
	}
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"round":  meta.CurrentRound,
	})
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, a.GetStats(r.Context()))
}

// GetStats returns application statistics.
func (a *App) GetStats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"app_version":        Version,
		"app_build_time":     BuildTime,
		"app_git_commit":     GitCommit,
		"uptime_seconds":     time.Since(a.startedAt).Seconds(),
		"prover_mode":        a.cfg.Prover.Mode,
		"prover_fingerprint": a.verifier.Fingerprint().Hex(),
		"trials":             a.catalog.Len(),
		"issuer_enabled":     a.issuer != nil,
	}

	if rs, err := a.machine.CurrentRound(ctx); err == nil {
		stats["current_round"] = rs.RoundID
		stats["required_trials"] = rs.RequiredTrials
		stats["round_locked"] = rs.Locked
		if rs.King != nil {
			stats["king"] = rs.King.Hex()
		}
	}
	if a.tracker != nil {
		stats["jobs"] = a.tracker.GetStats()
	}
	return stats
}

// metricsReporter periodically reports application statistics.
func (a *App) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs, err := a.machine.CurrentRound(ctx)
			if err != nil {
				a.log.Warn().Err(err).Msg("Failed to read current round for statistics")
				continue
			}
			ev := a.log.Info().
				Uint32("round", rs.RoundID).
				Uint32("required_trials", rs.RequiredTrials).
				Bool("locked", rs.Locked).
				Float64("uptime_seconds", time.Since(a.startedAt).Seconds())
			if rs.King != nil {
				ev = ev.Str("king", rs.King.Hex())
			}
			ev.Msg("Throne statistics")
		}
	}
}

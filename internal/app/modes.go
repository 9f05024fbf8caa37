package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/housefun/internal/crypto"
	"github.com/alanyoungcy/housefun/internal/dealing"
	"github.com/alanyoungcy/housefun/internal/domain"
	"github.com/alanyoungcy/housefun/internal/fairness"
	"github.com/alanyoungcy/housefun/internal/platform/mpc"
	"github.com/alanyoungcy/housefun/internal/server"
	"github.com/alanyoungcy/housefun/internal/server/handler"
	"github.com/alanyoungcy/housefun/internal/server/ws"
	"github.com/alanyoungcy/housefun/internal/service"
)

// services are the engine services shared by the HTTP surface and workers.
type services struct {
	fairness   *service.FairnessService
	settlement *service.SettlementService
	dealing    *service.DealingService
}

// ServerMode serves the REST and WebSocket API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	svc, err := a.buildServices(ctx, deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svc)
	return g.Wait()
}

// WorkerMode runs background maintenance: reveal purging and audit export.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	fair := service.NewFairnessService(deps.SeedStore, a.optionalVault(ctx), deps.AuditStore, deps.SignalBus,
		a.cfg.Fairness.RevealRetention.Duration, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	a.startWorkers(ctx, g, deps, fair)
	return g.Wait()
}

// FullMode runs the API server and the workers in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svc, err := a.buildServices(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startWorkers(ctx, g, deps, svc.fairness)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc)
	}
	return g.Wait()
}

// buildServices constructs the three engine services and makes sure the
// house seed pair exists.
func (a *App) buildServices(ctx context.Context, deps *Dependencies) (*services, error) {
	vault, err := crypto.NewSeedVault(a.cfg.Fairness.VaultPassphrase, a.cfg.Fairness.VaultSalt)
	if err != nil {
		return nil, fmt.Errorf("seed vault: %w", err)
	}

	fair := service.NewFairnessService(deps.SeedStore, vault, deps.AuditStore, deps.SignalBus,
		a.cfg.Fairness.RevealRetention.Duration, a.logger)

	limits, fees := settlementOptions(a.cfg)
	opts := service.SettlementOptions{
		Limits:          limits,
		FeeBps:          fees,
		LockTTL:         a.cfg.Settlement.LockTTL.Duration,
		FreshnessWindow: a.cfg.Dealing.FreshnessWindow.Duration,
		HouseSeedOwner:  houseSeedOwner,
	}
	settle := service.NewSettlementService(deps.GameStore, deps.WagerStore, deps.PayoutStore, deps.PoolCache,
		deps.LockManager, fair, deps.SignalBus, deps.AuditStore, deps.Notifier, opts, a.logger)

	protocol, coord, err := a.buildCoordinator(ctx)
	if err != nil {
		return nil, fmt.Errorf("dealing: %w", err)
	}
	var archiver domain.HandArchiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	deal := service.NewDealingService(coord, protocol, deps.LockManager, archiver, deps.SignalBus,
		deps.AuditStore, deps.Notifier, a.cfg.Dealing.LockTTL.Duration, a.logger)

	if _, err := fair.ActiveSeed(ctx, houseSeedOwner); err != nil {
		return nil, fmt.Errorf("house seed: %w", err)
	}

	return &services{fairness: fair, settlement: settle, dealing: deal}, nil
}

const houseSeedOwner = "house"

// buildCoordinator selects the dealing backend once for the deployment.
func (a *App) buildCoordinator(ctx context.Context) (dealing.ProtocolVersion, *dealing.Coordinator, error) {
	protocol, err := dealing.ParseProtocolVersion(a.cfg.Dealing.Protocol)
	if err != nil {
		return "", nil, err
	}
	dc := a.cfg.Dealing
	coordCfg := dc.Coordinator()

	var backend dealing.Backend
	var coordOpts []dealing.CoordinatorOption

	switch protocol {
	case dealing.ProtocolLegacy:
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    dc.SignerKey,
			EncryptedKeyPath: dc.EncryptedKeyPath,
			KeyPassword:      dc.KeyPassword,
		})
		if err != nil {
			return "", nil, err
		}
		var localOpts []dealing.LocalOption
		if keyHex != "" {
			signer, err := crypto.NewClusterSigner(keyHex)
			if err != nil {
				return "", nil, err
			}
			verifier, err := crypto.NewClusterVerifier(signer.PublicKeyHex())
			if err != nil {
				return "", nil, err
			}
			localOpts = append(localOpts, dealing.WithSigner(signer))
			coordOpts = append(coordOpts, dealing.WithVerifier(verifier))
		} else {
			a.logger.WarnContext(ctx, "dealing: no signer key configured, proofs are unsigned")
		}
		backend = dealing.NewLocalBackend([]byte(dc.LocalMasterKey), localOpts...)

	case dealing.ProtocolMpc:
		var auth *crypto.HMACAuth
		if a.cfg.MPC.APIKey != "" {
			auth = &crypto.HMACAuth{Key: a.cfg.MPC.APIKey, Secret: a.cfg.MPC.APISecret}
		}
		if pk := a.cfg.MPC.ClusterPublicKey; pk != "" {
			verifier, err := crypto.NewClusterVerifier(pk)
			if err != nil {
				return "", nil, err
			}
			coordOpts = append(coordOpts, dealing.WithVerifier(verifier))
		} else {
			a.logger.WarnContext(ctx, "dealing: mpc.cluster_public_key not set, proof signatures are not checked")
		}
		client := mpc.NewClient(a.cfg.MPC.BaseURL, auth, dc.Timeout.Duration)
		if err := client.Ping(ctx); err != nil {
			a.logger.WarnContext(ctx, "dealing: mpc cluster unreachable at startup", slog.String("error", err.Error()))
		}
		backend = client
	}

	a.logger.InfoContext(ctx, "dealing backend selected", slog.String("protocol", string(protocol)))
	return protocol, dealing.NewCoordinator(backend, coordCfg, a.logger, coordOpts...), nil
}

// optionalVault returns a vault when a passphrase is configured. Workers only
// purge reveals and never seal seeds.
func (a *App) optionalVault(ctx context.Context) service.SeedSealer {
	if a.cfg.Fairness.VaultPassphrase == "" {
		return nil
	}
	vault, err := crypto.NewSeedVault(a.cfg.Fairness.VaultPassphrase, a.cfg.Fairness.VaultSalt)
	if err != nil {
		a.logger.WarnContext(ctx, "worker: seed vault unavailable", slog.String("error", err.Error()))
		return nil
	}
	return vault
}

// startWorkers adds the reveal purger and the audit exporter to g.
func (a *App) startWorkers(ctx context.Context, g *errgroup.Group, deps *Dependencies, fair *service.FairnessService) {
	interval := purgeInterval(a.cfg)
	g.Go(func() error {
		return fair.RunPurger(ctx, interval)
	})
	a.logger.InfoContext(ctx, "reveal purger started", slog.Duration("interval", interval))

	exportEvery := a.cfg.S3.AuditExportInterval.Duration
	if deps.Archiver == nil || exportEvery <= 0 {
		a.logger.InfoContext(ctx, "audit export disabled")
		return
	}
	g.Go(func() error {
		since := time.Now().UTC().Add(-exportEvery)
		ticker := time.NewTicker(exportEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				until := time.Now().UTC()
				path, n, err := deps.Archiver.ExportAudit(ctx, since, until)
				if err != nil {
					a.logger.ErrorContext(ctx, "audit export failed", slog.String("error", err.Error()))
					_ = deps.Notifier.NotifyError(ctx, "audit export", err)
					continue
				}
				a.logger.InfoContext(ctx, "audit exported",
					slog.String("path", path),
					slog.Int("entries", n),
				)
				since = until
			}
		}
	})
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to g. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) {
	protocol := string(svc.dealing.Protocol())

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Protocol:  protocol,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.cfg.Mode, protocol, deps.Checks, a.logger),
		Verify:   handler.NewVerifyHandler(verifier{}, a.logger),
		Fairness: handler.NewFairnessHandler(svc.fairness, a.logger),
		Games:    handler.NewGameHandler(svc.settlement, a.logger),
		Tables:   handler.NewTableHandler(svc.dealing, a.logger),
	}
	if deps.Archiver != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.Archiver, a.logger)
	}
	srv := server.NewServer(server.Config{
		Port:             a.cfg.Server.Port,
		CORSOrigins:      a.cfg.Server.CORSOrigins,
		APIKey:           a.cfg.Server.APIKey,
		VerifyRateLimit:  a.cfg.Server.VerifyRateLimit,
		VerifyRateWindow: a.cfg.Server.VerifyRateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// verifier adapts the stateless fairness.Verify to the handler interface.
type verifier struct{}

func (verifier) Verify(serverSeed, clientSeed string, nonce uint64, expected int, rules fairness.Rules) (fairness.Verification, error) {
	return fairness.Verify(serverSeed, clientSeed, nonce, expected, rules)
}

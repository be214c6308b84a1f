package impl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"otpgate/config"
	"otpgate/internal/usecase"

	"go.uber.org/fx"
)

// Reaper periodically deletes login sessions that ended long enough ago.
type Reaper struct {
	login    usecase.LoginUsecase
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ReaperParams holds dependencies for the Reaper, injected by Fx
type ReaperParams struct {
	fx.In

	Lc     fx.Lifecycle
	Config *config.Config
	Login  usecase.LoginUsecase
	Logger *slog.Logger
}

// NewReaper creates the reaper and ties it to the application lifecycle.
// A zero loginSession.reapInterval leaves it idle.
func NewReaper(params ReaperParams) *Reaper {
	r := &Reaper{
		login:    params.Login,
		interval: params.Config.LoginSession.ReapInterval,
		logger:   params.Logger,
	}

	params.Lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			r.Start()

			return nil
		},
		OnStop: func(context.Context) error {
			r.Stop()

			return nil
		},
	})

	return r
}

// Start launches the background loop.
func (r *Reaper) Start() {
	if r.interval <= 0 {
		r.logger.Info("Login session reaper disabled")

		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()

	r.logger.Info("Login session reaper started", slog.Duration("interval", r.interval))
}

// RunOnce performs a single purge pass.
func (r *Reaper) RunOnce(ctx context.Context) {
	deleted, err := r.login.PurgeExpired(ctx)
	if err != nil {
		r.logger.Error("Failed to purge expired login sessions", slog.Any("error", err))

		return
	}
	if deleted > 0 {
		r.logger.Info("Purged expired login sessions", slog.Int64("deleted", deleted))
	}
}

// Stop ends the loop and waits for an in-flight pass.
func (r *Reaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
}

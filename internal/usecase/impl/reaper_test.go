package impl

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"otpgate/internal/usecase"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/fx/fxtest"
)

type countingPurger struct {
	usecase.LoginUsecase
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)

	return 2, p.err
}

func TestReaper_RunsOnInterval(t *testing.T) {
	cfg := newTestConfig()
	cfg.LoginSession.ReapInterval = 10 * time.Millisecond
	purger := &countingPurger{}
	lc := fxtest.NewLifecycle(t)

	NewReaper(ReaperParams{Lc: lc, Config: cfg, Login: purger, Logger: newDiscardLogger()})
	lc.RequireStart()

	assert.Eventually(t, func() bool { return purger.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	lc.RequireStop()

	stopped := purger.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, purger.calls.Load())
}

func TestReaper_Disabled(t *testing.T) {
	cfg := newTestConfig()
	purger := &countingPurger{}
	lc := fxtest.NewLifecycle(t)

	NewReaper(ReaperParams{Lc: lc, Config: cfg, Login: purger, Logger: newDiscardLogger()})
	lc.RequireStart()
	time.Sleep(20 * time.Millisecond)
	lc.RequireStop()

	assert.Zero(t, purger.calls.Load())
}

func TestReaper_RunOnceSurvivesErrors(t *testing.T) {
	purger := &countingPurger{err: errors.New("store down")}
	r := &Reaper{login: purger, logger: newDiscardLogger()}

	r.RunOnce(context.Background())
	assert.Equal(t, int32(1), purger.calls.Load())
}

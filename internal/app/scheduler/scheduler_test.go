package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/junaidookay/mu-online-hub/internal/services/sweeper"
)

type sweeperStub struct {
	calls int
	err   error
}

func (s *sweeperStub) Run(context.Context) (sweeper.Report, error) {
	s.calls++
	return sweeper.Report{Listings: 2, Purchases: 1}, s.err
}

func TestSweep(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("runs while context is alive", func(t *testing.T) {
		stub := &sweeperStub{err: errors.New("expire purchases: db down")}
		a := &App{sweeper: stub, logger: log}
		a.sweep(context.Background())
		assert.Equal(t, 1, stub.calls)
	})

	t.Run("skipped after shutdown", func(t *testing.T) {
		stub := &sweeperStub{}
		a := &App{sweeper: stub, logger: log}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		a.sweep(ctx)
		assert.Zero(t, stub.calls)
	})
}

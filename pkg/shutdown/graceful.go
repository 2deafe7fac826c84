package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultGracefulTimeout = time.Minute

var ErrGracefulTimeoutExceeded = errors.New("graceful shutdown timeout exceeded")

// Gracefuller is handed to long-running services; each calls Done once it has fully stopped.
type Gracefuller interface {
	Add(n int)
	Done()
}

// Graceful cancels the root context on SIGINT/SIGTERM and waits for registered services to stop.
type Graceful struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	timeout time.Duration
}

func NewGraceful(ctx context.Context, cancel context.CancelFunc) *Graceful {
	return &Graceful{
		ctx:     ctx,
		cancel:  cancel,
		timeout: defaultGracefulTimeout,
	}
}

func (g *Graceful) SetGracefulTimeout(timeout time.Duration) {
	g.timeout = timeout
}

func (g *Graceful) Add(n int) { g.wg.Add(n) }
func (g *Graceful) Done()     { g.wg.Done() }

// ListenCancelAndAwait blocks until a termination signal arrives or the context is cancelled,
// then waits for every registered service to call Done within the graceful timeout.
func (g *Graceful) ListenCancelAndAwait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("[shutdown] %s signal received, shutting down", sig)
		g.cancel()
	case <-g.ctx.Done():
		log.Info().Msg("[shutdown] context cancelled, shutting down")
	}

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		g.wg.Wait()
	}()

	select {
	case <-doneCh:
		log.Info().Msg("[shutdown] all services stopped gracefully")
		return nil
	case <-time.After(g.timeout):
		return ErrGracefulTimeoutExceeded
	}
}

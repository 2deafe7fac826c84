package liveness

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultTimeout = 5 * time.Second

// Service is anything able to report its own health.
type Service interface {
	IsAlive(ctx context.Context) bool
}

type Prober interface {
	Watch(services ...Service)
	IsAlive() bool
	Stop()
}

// Probe polls watched services every timeout and caches the verdict for the k8s endpoint.
type Probe struct {
	timeout  time.Duration
	alive    atomic.Bool
	mu       sync.Mutex
	services []Service
	stopCh   chan struct{}
	once     sync.Once
	started  bool
}

func NewProbe(timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Probe{
		timeout: timeout,
		stopCh:  make(chan struct{}),
	}
}

// Watch adds services to the probe and starts polling on the first call.
func (p *Probe) Watch(services ...Service) {
	p.mu.Lock()
	p.services = append(p.services, services...)
	start := !p.started
	p.started = true
	p.mu.Unlock()

	if start {
		p.check()
		go p.run()
	}
}

func (p *Probe) IsAlive() bool {
	return p.alive.Load()
}

func (p *Probe) Stop() {
	p.once.Do(func() { close(p.stopCh) })
}

func (p *Probe) run() {
	ticker := time.NewTicker(p.timeout)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.check()
		}
	}
}

func (p *Probe) check() {
	p.mu.Lock()
	services := append([]Service(nil), p.services...)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	alive := true
	for _, svc := range services {
		if !svc.IsAlive(ctx) {
			alive = false
			break
		}
	}
	if was := p.alive.Swap(alive); was != alive {
		log.Info().Msgf("[probe] liveness changed: %t", alive)
	}
}

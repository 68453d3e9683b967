// Package media adapts the external mediasoup worker processes to the
// core engine interfaces. Nothing outside this package talks to workers.
package media

import (
	"context"
	"errors"
	"runtime"
	"sync"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/config"
)

var ErrPoolEmpty = errors.New("worker pool is empty")

// WorkerPool owns a fixed set of long-lived worker processes and hands
// them out round-robin. Workers are spawned once at startup and closed
// only at shutdown.
type WorkerPool struct {
	mu      sync.Mutex
	workers []*mediasoup.Worker
	next    int
}

// NewWorkerPool spawns the configured number of workers, bounded by
// available CPU parallelism. An unexpected worker death is fatal to the
// whole host process: rooms on a dead worker are unrecoverable in-process
// and supervision is an operational concern.
func NewWorkerPool(cfg *config.MediaConfig) (*WorkerPool, error) {
	n := cfg.NumWorkers
	if n <= 0 {
		n = 2
	}
	if cpus := runtime.NumCPU(); n > cpus {
		n = cpus
	}

	p := &WorkerPool{}
	for i := 0; i < n; i++ {
		worker, err := mediasoup.NewWorker(cfg.WorkerBin)
		if err != nil {
			p.Shutdown()
			return nil, err
		}
		worker.OnClose(func(context.Context) {
			if err := worker.Err(); err != nil {
				log.Fatal().Err(err).Str("module", "media.pool").Msg("worker died")
			}
		})
		p.workers = append(p.workers, worker)
		log.Info().Str("module", "media.pool").Int("worker", i).Msg("worker spawned")
	}
	log.Info().Str("module", "media.pool").Int("count", n).Msg("worker pool ready")
	return p, nil
}

// Next returns the next worker round-robin, wrapping around.
func (p *WorkerPool) Next() (*mediasoup.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.workers) == 0 {
		return nil, ErrPoolEmpty
	}
	w := p.workers[p.next%len(p.workers)]
	p.next++
	return w, nil
}

func (p *WorkerPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		w.Close()
	}
	p.workers = nil
	log.Info().Str("module", "media.pool").Msg("worker pool shut down")
}

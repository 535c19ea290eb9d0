// Package server implements kstord's transport: a UNIX stream socket
// served by a fixed-size worker pool, grounded on the respawn-supervised
// connection handling in connection/supervisor.go (cloudflared), adapted
// from TCP-over-the-edge to one-shot UNIX socket request/response.
package server

import (
	"context"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"kstor/internal/dispatch"
	"kstor/internal/jsonw"
	"kstor/internal/wire"
)

// Pool accepts connections on a UNIX socket and hands each one to one of
// N long-running workers (spec.md §4's "fixed-size worker pool
// (configurable N)").
type Pool struct {
	Dispatcher *dispatch.Dispatcher
	NWorkers   int
	// ShutdownGrace bounds how long Shutdown waits for in-flight workers
	// to drain before returning with workers still running.
	ShutdownGrace time.Duration

	instanceID uuid.UUID
	listener   *net.UnixListener
	work       chan *net.UnixConn
	done       chan int
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewPool builds a Pool; workers are started by Run.
func NewPool(d *dispatch.Dispatcher, nWorkers int, shutdownGrace time.Duration) *Pool {
	id, err := uuid.NewRandom()
	if err != nil {
		id = uuid.Nil
	}
	return &Pool{
		Dispatcher:    d,
		NWorkers:      nWorkers,
		ShutdownGrace: shutdownGrace,
		instanceID:    id,
		work:          make(chan *net.UnixConn, nWorkers),
		done:          make(chan int),
	}
}

// Run listens on socketPath and serves connections until ctx is
// cancelled or Shutdown is called. It removes any stale socket file
// left over from a previous, uncleanly stopped run.
func (p *Pool) Run(ctx context.Context, socketPath string) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return errors.Wrap(err, "failed to clear stale socket")
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: socketPath, Net: "unix"})
	if err != nil {
		return errors.Wrap(err, "failed to listen on socket")
	}
	p.listener = ln

	for i := 0; i < p.NWorkers; i++ {
		p.spawnWorker(i)
	}
	go p.supervise()

	go func() {
		<-ctx.Done()
		p.Shutdown(context.Background())
	}()

	log.Info().Str("socket", socketPath).Int("nworkers", p.NWorkers).Str("instance", p.instanceID.String()).Msg("kstord listening")

	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			// Accept fails once Shutdown closes the listener; that is the
			// normal exit path, not a reportable error.
			return nil
		}
		select {
		case p.work <- conn:
		case <-ctx.Done():
			conn.Close()
		}
	}
}

// spawnWorker starts worker index i. Workers run until work is closed;
// supervise respawns index i if this goroutine returns from a panic.
func (p *Pool) spawnWorker(i int) {
	p.wg.Add(1)
	go func(i int) {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Int("worker", i).Msg("worker crashed, will respawn")
				p.done <- i
			}
		}()
		p.runWorker()
	}(i)
}

func (p *Pool) runWorker() {
	for conn := range p.work {
		serveOne(p.Dispatcher, conn)
	}
}

// supervise relaunches any worker that exits via panic recovery. It is
// the same "dead workers are detected ... and respawned" idiom as
// cloudflared's Supervisor.Run connErrors loop, adapted to a pull-based
// work queue instead of reconnect-on-error.
func (p *Pool) supervise() {
	for i := range p.done {
		p.spawnWorker(i)
	}
}

// Shutdown stops accepting new connections, closes the work queue so
// workers finish what is already queued, and waits up to ShutdownGrace
// for them to finish. When the grace period elapses it logs a warning and
// returns; workers still running are not interrupted, and their in-flight
// requests are not cancelled.
func (p *Pool) Shutdown(ctx context.Context) {
	p.closeOnce.Do(func() {
		if p.listener != nil {
			p.listener.Close()
		}
		close(p.work)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(p.ShutdownGrace):
			log.Warn().Msg("shutdown grace period elapsed, abandoning remaining workers")
		case <-ctx.Done():
		}
	})
}

// serveOne reads exactly one request, dispatches it, and writes exactly
// one response, per spec.md §6's "client sends exactly one JSON object,
// server replies with exactly one JSON object, server closes."
func serveOne(d *dispatch.Dispatcher, conn *net.UnixConn) {
	defer conn.Close()

	var req wire.Request
	if err := jsonw.Decode(conn, &req); err != nil {
		log.Debug().Err(err).Msg("failed to decode request")
		return
	}

	resp := d.Dispatch(context.Background(), req)

	if err := jsonw.Encode(resp, conn); err != nil {
		log.Debug().Err(err).Msg("failed to encode response")
	}
}

// Package scp implements the storage service class provider: accepting
// associations, negotiating presentation contexts, and routing received
// objects through the storage and metadata pipeline.
package scp

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/openpacs/pacsd/internal/archive"
	"github.com/openpacs/pacsd/internal/config"
	"github.com/openpacs/pacsd/pkg/db"
	"github.com/openpacs/pacsd/pkg/errors"
	"github.com/openpacs/pacsd/pkg/storage"
)

// Server accepts inbound connections and runs one independent session per
// connection. All sessions share the read-only configuration, the repository
// pool, the storage handler, and the optional archive uploader.
type Server struct {
	cfg     *config.Config
	repo    *db.Repository
	store   *storage.Store
	archive *archive.Uploader // nil when archiving is disabled
}

// NewServer wires the shared collaborators into a Server.
func NewServer(cfg *config.Config, repo *db.Repository, store *storage.Store, uploader *archive.Uploader) *Server {
	return &Server{cfg: cfg, repo: repo, store: store, archive: uploader}
}

// ListenAndServe binds the configured endpoint and accepts connections until
// ctx is cancelled. A failed accept is logged and does not stop the
// listener; a failed bind is returned. On cancellation the listener closes
// and in-flight sessions are drained.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.cfg.ListenAddr()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to bind %s", addr)
	}

	slog.Info("server_started", "addr", addr, "ae_title", s.cfg.AETitle)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("accept_failed", "error", err)
			continue
		}

		slog.Info("connection_accepted", "remote_addr", conn.RemoteAddr().String())

		wg.Add(1)
		go func() {
			defer wg.Done()
			newSession(conn, s.cfg, s.repo, s.store, s.archive).run(ctx)
		}()
	}

	slog.Info("listener_stopped", "addr", addr)
	wg.Wait()
	return nil
}

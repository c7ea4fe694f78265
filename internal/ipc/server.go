package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"github.com/lad75020/SendToOneNote/internal/daemon"
	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/logs"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket. The
// socket is private to the daemon's user.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// ServerOption customizes a Server.
type ServerOption func(*service)

// WithShutdown registers the function the Stop RPC calls after the daemon
// has stopped, usually the process signal context's cancel.
func WithShutdown(fn func()) ServerOption {
	return func(s *service) { s.shutdown = fn }
}

// NewServer replaces any stale socket at path and starts listening. Callers
// must hold the daemon lock first so a live instance's socket is never
// removed.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	svc := &service{daemon: d, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(serviceName, svc); err != nil {
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	svc.ctx = serverCtx
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go s.acceptLoop()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		switch {
		case err == nil:
		case s.ctx.Err() != nil, errors.Is(err, net.ErrClosed):
			return
		default:
			logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "control commands may fail to connect"),
				logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
			continue
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Close stops accepting, disconnects clients that are still attached (a
// following `logs -f`, for instance) and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()

	s.wg.Wait()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "a stale socket is left behind until the next start"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("shutdown requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop_requested"))
	resp.Stopped = true
	// The reply goes out before the listener closes.
	go func() {
		s.daemon.Stop()
		if s.shutdown != nil {
			s.shutdown()
		}
	}()
	return nil
}

func (s *service) Rescan(_ RescanRequest, resp *RescanResponse) error {
	staged, err := s.daemon.Rescan(s.ctx)
	if err != nil {
		return err
	}
	resp.Staged = staged
	s.logger.Info("rescan completed via IPC",
		logging.String(logging.FieldEventType, "rescan"),
		logging.Int("staged", staged))
	return nil
}

func (s *service) RestartWatcher(_ RestartWatcherRequest, resp *RestartWatcherResponse) error {
	if err := s.daemon.RestartWatcher(); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Restarted = true
	resp.Message = "watcher restarted"
	s.logger.Info("watcher restarted via IPC",
		logging.String(logging.FieldEventType, "watcher_restart"))
	return nil
}

func (s *service) Requeue(req RequeueRequest, resp *RequeueResponse) error {
	s.logger.Debug("requeue requested", logging.Int("stem_count", len(req.Stems)), logging.Bool("all", req.All))
	moved, err := s.daemon.Requeue(s.ctx, req.Stems, req.All)
	resp.Moved = moved
	return err
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	history, err := s.daemon.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	*resp = history
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Match:  req.Match,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

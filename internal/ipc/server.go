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

	"github.com/google/uuid"

	"splicer/internal/daemon"
	"splicer/internal/logging"
	"splicer/internal/services"
)

// ServiceName is the JSON-RPC service the daemon registers.
const ServiceName = "Splicer"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		conns:     make(map[net.Conn]struct{}),
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			if !s.track(conn) {
				conn.Close()
				return
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.untrack(c)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Close stops the server, drops open connections and removes the socket file.
func (s *Server) Close() {
	s.mu.Lock()
	s.cancel()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

// request derives a per-call context tagged with the operation name.
func (s *service) request(op string) context.Context {
	ctx := services.WithOperation(s.ctx, op)
	return services.WithRequestID(ctx, uuid.NewString())
}

func (s *service) MediaInfo(req MediaInfoRequest, resp *MediaInfoResponse) error {
	info, err := s.daemon.MediaInfo(s.request("media_info"), req.Path)
	if err != nil {
		return err
	}
	resp.DurationSeconds = info.DurationSeconds
	resp.SizeBytes = info.SizeBytes
	resp.VideoStreams = info.VideoStreams
	resp.AudioStreams = info.AudioStreams
	resp.Error = info.Error
	return nil
}

func (s *service) StartMerge(req StartMergeRequest, resp *StartMergeResponse) error {
	ctx := s.request("start_merge")
	jobID, err := s.daemon.StartMerge(ctx, req.Inputs, req.Output)
	if err != nil {
		resp.Error = err.Error()
		resp.ErrorKind = services.Kind(err)
		logging.WithContext(ctx, s.logger).Info("merge rejected",
			logging.String("error_kind", resp.ErrorKind),
			logging.Error(err),
		)
		return nil
	}
	resp.JobID = jobID
	return nil
}

func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	events, done, err := s.daemon.Events(req.JobID, req.SinceSeq)
	if err != nil {
		return err
	}
	resp.Events = events
	resp.Done = done
	return nil
}

func (s *service) CancelMerge(req CancelMergeRequest, resp *CancelMergeResponse) error {
	result := s.daemon.CancelMerge(s.request("cancel_merge"), req.Output)
	resp.Success = result.Success
	if !result.Success {
		resp.Error = result.Err().Error()
		resp.Remediation = result.Remediation
	}
	return nil
}

func (s *service) ForceDelete(req ForceDeleteRequest, resp *ForceDeleteResponse) error {
	result := s.daemon.ForceDelete(s.request("force_delete"), req.Path)
	resp.Success = result.Success
	resp.Reason = result.Reason
	resp.Attempts = result.Attempts
	if !result.Success {
		resp.Error = result.Err().Error()
		resp.Remediation = result.Remediation
	}
	return nil
}

func (s *service) FileExists(req FileExistsRequest, resp *FileExistsResponse) error {
	resp.Exists = s.daemon.FileExists(req.Path)
	return nil
}

func (s *service) FileSize(req FileSizeRequest, resp *FileSizeResponse) error {
	size, err := s.daemon.FileSize(req.Path)
	if err != nil {
		return err
	}
	resp.Size = size
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Job = status.Job
	resp.LockPath = status.LockPath
	resp.HistoryPath = status.HistoryPath
	resp.Dependencies = make([]DependencyStatus, 0, len(status.Dependencies))
	for _, dep := range status.Dependencies {
		resp.Dependencies = append(resp.Dependencies, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	resp.Checks = make([]CheckStatus, 0, len(status.Checks))
	for _, check := range status.Checks {
		resp.Checks = append(resp.Checks, CheckStatus{Name: check.Name, Passed: check.Passed, Detail: check.Detail})
	}
	return nil
}

func (s *service) ToolCheck(_ ToolCheckRequest, resp *ToolCheckResponse) error {
	for _, info := range s.daemon.ToolCheck(s.request("tool_check")) {
		resp.Tools = append(resp.Tools, ToolInfo{
			Path:      info.Path,
			Available: info.Available,
			Version:   info.Version,
			Detail:    info.Detail,
		})
	}
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	ctx := s.request("history")
	if req.JobID != "" {
		entry, err := s.daemon.HistoryEntry(ctx, req.JobID)
		if err != nil {
			return err
		}
		resp.Entries = append(resp.Entries[:0], *entry)
		return nil
	}
	entries, err := s.daemon.History(ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Entries = entries
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	// Stop runs after the reply so the client sees the response.
	go s.daemon.Stop()
	resp.Stopped = true
	return nil
}

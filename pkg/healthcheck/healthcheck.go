package healthcheck

import (
	"context"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
)

// ReadyMsg is written to the clients once the recording started.
const ReadyMsg = 0x01

const retryInterval = 500 * time.Millisecond

var (
	ErrTimeout    = errors.New("timeout waiting for the recording to start")
	ErrNotASocket = errors.New("path exists but is not a unix socket")
)

// ReadinessServer tells the clients of a unix socket when the recording
// started, so that a workload can be run while it is traced.
type ReadinessServer struct {
	ln         net.Listener
	readyCh    chan struct{}
	readyOnce  sync.Once
	socketPath string
	logger     log.Logger
}

func NewReadinessServer(socketPath string, logger log.Logger) *ReadinessServer {
	return &ReadinessServer{
		socketPath: socketPath,
		readyCh:    make(chan struct{}),
		logger:     logger.With().Str("component", "healthcheck").Logger(),
	}
}

// Listen starts accepting connections on the socket until ctx is done or
// Shutdown is called.
func (s *ReadinessServer) Listen(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove stale socket")
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return errors.Wrap(err, "failed to listen on UDS")
	}
	s.ln = ln

	go s.acceptConnections(ctx)

	return nil
}

// NotifyReadiness marks the recording as started. It can be called more
// than once.
func (s *ReadinessServer) NotifyReadiness() {
	s.readyOnce.Do(func() {
		s.logger.Debug().Msg("marking readiness")
		close(s.readyCh)
	})
}

// Shutdown closes the listener and removes the socket.
func (s *ReadinessServer) Shutdown() error {
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("error closing listener")
		}
	}
	if err := os.Remove(s.socketPath); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug().Err(err).Msg("error removing socket")
			return err
		}
		s.logger.Debug().Msg("ignoring removing socket file, as it is already removed")
	}

	return nil
}

func (s *ReadinessServer) acceptConnections(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("stopping accepting connections")
			return
		default:
			conn, err := s.ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					s.logger.Debug().Msg("ignoring accepting connection as it is closed")
					return
				}
				s.logger.Warn().Err(err).Msg("accept error")
				continue
			}
			go s.processConnection(ctx, conn)
		}
	}
}

// processConnection answers a client once the recording started.
func (s *ReadinessServer) processConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	select {
	case <-s.readyCh:
		if !s.isConnectionAlive(conn) {
			s.logger.Debug().Msg("connection is closed")
			return
		}
		if err := s.safeWrite(conn, []byte{ReadyMsg}); err != nil {
			if !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				s.logger.Debug().Err(err).Msg("failed to write")
			}
		}
	case <-ctx.Done():
		s.logger.Debug().Msg("ignoring sending readiness message as context is canceled")
	}
}

func (s *ReadinessServer) isConnectionAlive(conn net.Conn) bool {
	conn.SetReadDeadline(time.Now())
	if _, err := conn.Read([]byte{}); err == io.EOF {
		s.logger.Debug().Err(err).Msg("cannot write ready message: connection is already closed")
		return false
	}
	conn.SetReadDeadline(time.Time{})

	return true
}

func (s *ReadinessServer) safeWrite(conn net.Conn, data []byte) error {
	if _, err := conn.Write(data); err != nil {
		switch {
		case errors.Is(err, syscall.EPIPE):
			return errors.Wrap(err, "peer closed the connection")
		case errors.Is(err, syscall.ECONNRESET):
			return errors.Wrap(err, "peer reset the connection")
		default:
			return errors.Wrap(err, "failed to write")
		}
	}
	return nil
}

// WaitReady polls the socket until the server reports the recording
// started, ctx is done or timeout expires.
func WaitReady(ctx context.Context, socketPath string, timeout time.Duration, logger log.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		ready, err := probe(socketPath)
		if err != nil {
			return err
		}
		if ready {
			logger.Info().Msg("recording started")
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrTimeout
			}
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// probe reports whether the server at socketPath answered ready. Errors
// are returned only when waiting longer cannot help.
func probe(socketPath string) (bool, error) {
	info, err := os.Stat(socketPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "error checking socket")
	}
	if info.Mode()&os.ModeSocket == 0 {
		return false, errors.Wrap(ErrNotASocket, socketPath)
	}

	conn, err := net.DialTimeout("unix", socketPath, retryInterval)
	if err != nil {
		if errors.Is(err, syscall.EACCES) {
			return false, errors.Wrap(err, "failed connecting")
		}
		return false, nil
	}
	defer conn.Close()

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(retryInterval))
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return false, nil
	}

	return buf[0] == ReadyMsg, nil
}

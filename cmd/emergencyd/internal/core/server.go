package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/logger"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/metrics"
	"golang.org/x/sys/unix"
)

// ServerConfig holds the multiplexer's socket and capacity settings.
type ServerConfig struct {
	BindAddress            string
	Port                   int
	Backlog                int
	MaxClients             int
	ReadBufferSize         int
	CloseClientsOnShutdown bool
}

// Server is the connection multiplexer. A single goroutine polls the listening
// socket, a wakeup pipe and every client socket, and hands readable clients to
// the RequestHandler. Only the Serve goroutine touches the connection table.
type Server struct {
	Handler RequestHandler
	Metrics *metrics.Metrics

	cfg      ServerConfig
	listenFD int
	port     int
	wakeR    int
	wakeW    int
	table    *ConnTable
	buf      []byte
	pfds     []unix.PollFd

	mu     sync.Mutex
	closed bool
}

// Listen binds and listens on the configured TCP port. Failures here are
// fatal startup errors for the caller.
func Listen(cfg ServerConfig, handler RequestHandler, m *metrics.Metrics) (*Server, error) {
	if cfg.MaxClients <= 0 {
		return nil, fmt.Errorf("max clients must be positive, got %d", cfg.MaxClients)
	}
	if cfg.ReadBufferSize <= 0 {
		return nil, fmt.Errorf("read buffer size must be positive, got %d", cfg.ReadBufferSize)
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = unix.SOMAXCONN
	}

	ip := net.ParseIP(cfg.BindAddress).To4()
	if ip == nil {
		return nil, fmt.Errorf("bind address %q is not an IPv4 address", cfg.BindAddress)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
	}
	sa := &unix.SockaddrInet4{Port: cfg.Port}
	copy(sa.Addr[:], ip)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind %s:%d: %w", cfg.BindAddress, cfg.Port, err)
	}
	if err := unix.Listen(fd, cfg.Backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	// A peer may abort between poll and accept; accept must not block then.
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set listener non-blocking: %w", err)
	}

	port := cfg.Port
	if bound, err := unix.Getsockname(fd); err == nil {
		if in4, ok := bound.(*unix.SockaddrInet4); ok {
			port = in4.Port
		}
	}

	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to create wakeup pipe: %w", err)
	}

	return &Server{
		Handler:  handler,
		Metrics:  m,
		cfg:      cfg,
		listenFD: fd,
		port:     port,
		wakeR:    pipe[0],
		wakeW:    pipe[1],
		table:    NewConnTable(cfg.MaxClients),
		buf:      make([]byte, cfg.ReadBufferSize),
		pfds:     make([]unix.PollFd, 0, cfg.MaxClients+2),
	}, nil
}

// Port is the bound TCP port, which differs from the configured one when that was 0.
func (s *Server) Port() int { return s.port }

// Addr is the bound address in host:port form.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.BindAddress, strconv.Itoa(s.port))
}

// Serve runs the poll loop until ctx is cancelled or a fatal poll/accept error
// occurs. Cancellation returns nil.
func (s *Server) Serve(ctx context.Context) error {
	defer s.shutdown()
	stop := context.AfterFunc(ctx, s.wake)
	defer stop()

	logger.Info("Emergency server started", "addr", s.Addr(), "max_clients", s.cfg.MaxClients)

	for ctx.Err() == nil {
		conns := s.table.Snapshot()

		s.pfds = s.pfds[:0]
		s.pfds = append(s.pfds,
			unix.PollFd{Fd: int32(s.listenFD), Events: unix.POLLIN},
			unix.PollFd{Fd: int32(s.wakeR), Events: unix.POLLIN},
		)
		for _, c := range conns {
			s.pfds = append(s.pfds, unix.PollFd{Fd: int32(c.FD), Events: unix.POLLIN})
		}

		if _, err := unix.Poll(s.pfds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poll failed: %w", err)
		}

		if s.pfds[1].Revents != 0 {
			s.drainWake()
			if ctx.Err() != nil {
				break
			}
		}

		if s.pfds[0].Revents&unix.POLLIN != 0 {
			if err := s.accept(); err != nil {
				return err
			}
		}

		for i, c := range conns {
			if s.pfds[i+2].Revents == 0 {
				continue
			}
			// An earlier dispatch in this pass may already have removed it.
			if _, ok := s.table.Get(c.ID); !ok {
				continue
			}
			s.serve(ctx, c)
		}
	}

	logger.Info("Shutting down server...")
	return nil
}

// Len reports the number of live client connections. It must only be called
// from the Serve goroutine or after Serve has returned.
func (s *Server) Len() int { return s.table.Len() }

func (s *Server) accept() error {
	// Client sockets are non-blocking so a peer that stops reading can never
	// stall the loop inside write(2).
	nfd, sa, err := unix.Accept4(s.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR),
			errors.Is(err, unix.ECONNABORTED), errors.Is(err, unix.EPROTO):
			logger.Debug("Accept skipped", "error", err)
			return nil
		case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE):
			logger.Warn("Accept failed, out of file descriptors", "error", err)
			return nil
		}
		return fmt.Errorf("accept failed: %w", err)
	}

	peer := peerFromSockaddr(sa)
	c, err := s.table.Add(nfd, peer)
	if err != nil {
		unix.Close(nfd)
		s.Metrics.ConnRejected()
		logger.Warn("Client rejected", "remote_addr", peer.String(), "error", err, "max_clients", s.table.Cap())
		return nil
	}

	s.Metrics.ConnAccepted()
	c.log().Info("New client connected")
	return nil
}

func (s *Server) serve(ctx context.Context, c *Conn) {
	n, err := unix.Read(c.FD, s.buf)
	if err == unix.EINTR || err == unix.EAGAIN {
		return
	}
	if err != nil || n <= 0 {
		reason := "peer closed"
		if err != nil {
			reason = err.Error()
		}
		s.remove(c, reason)
		return
	}

	if s.Handler.Handle(ctx, c.ID, c.Peer, c, s.buf[:n]) == Close {
		s.remove(c, "client exited")
	}
}

func (s *Server) remove(c *Conn, reason string) {
	if _, ok := s.table.Remove(c.ID); !ok {
		return
	}
	s.Handler.Forget(c.ID)
	log := c.log()
	if err := unix.Close(c.FD); err != nil {
		log.Debug("Close failed", "error", err)
	}
	s.Metrics.ConnClosed()
	log.Info("Client disconnected", "reason", reason)
}

// Close releases the sockets of a server whose Serve loop is not running.
func (s *Server) Close() {
	s.shutdown()
}

func (s *Server) wake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	unix.Write(s.wakeW, []byte{1})
}

func (s *Server) drainWake() {
	var b [64]byte
	for {
		if n, err := unix.Read(s.wakeR, b[:]); n <= 0 || err != nil {
			return
		}
	}
}

func (s *Server) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	unix.Close(s.listenFD)
	if s.cfg.CloseClientsOnShutdown {
		for _, c := range s.table.Snapshot() {
			s.remove(c, "server shutdown")
		}
	} else if n := s.table.Len(); n > 0 {
		logger.Warn("Leaving client sockets open", "count", n)
	}
	unix.Close(s.wakeR)
	unix.Close(s.wakeW)
}

func peerFromSockaddr(sa unix.Sockaddr) Peer {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return Peer{IP: net.IP(v.Addr[:]).String(), Port: v.Port}
	case *unix.SockaddrInet6:
		return Peer{IP: net.IP(v.Addr[:]).String(), Port: v.Port}
	default:
		return Peer{IP: "unknown"}
	}
}

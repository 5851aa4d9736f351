package core

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
)

// ExitLabel is the service field recorded when a client leaves with "exit".
const ExitLabel = "Exited"

// ConnID identifies a connection for its whole lifetime. Unlike a slot index
// it never changes when other connections are removed.
type ConnID uint64

// Peer is the remote end of an accepted TCP connection.
type Peer struct {
	IP   string
	Port int
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
}

// AuditRecord is one durable line capturing who asked for what.
type AuditRecord struct {
	IP      string
	Port    int
	Service string
}

func (r AuditRecord) String() string {
	return fmt.Sprintf("%s,%d,%s", r.IP, r.Port, r.Service)
}

// AuditSink appends audit records to durable storage.
// Implementations must be safe for use from several goroutines.
type AuditSink interface {
	Append(ctx context.Context, rec AuditRecord) error
}

// CatalogueSource loads the service catalogue once at startup.
type CatalogueSource interface {
	Load(ctx context.Context) ([]ServiceEntry, error)
}

// ServiceEntry maps a command name to its canned response.
type ServiceEntry struct {
	Name     string `yaml:"name"`
	Response string `yaml:"response"`
}

// Action tells the multiplexer what to do with a connection after a dispatch.
type Action int

const (
	// Keep leaves the connection registered for the next poll pass.
	Keep Action = iota
	// Close closes the socket and evicts the connection from the table.
	Close
)

func (a Action) String() string {
	switch a {
	case Keep:
		return "keep"
	case Close:
		return "close"
	default:
		return "unknown(" + strconv.Itoa(int(a)) + ")"
	}
}

// RequestHandler turns the bytes of one read into replies written to w.
// It is only ever called from the multiplexer loop.
type RequestHandler interface {
	Handle(ctx context.Context, id ConnID, peer Peer, w io.Writer, payload []byte) Action
	// Forget drops any per-connection state kept for id.
	Forget(id ConnID)
}

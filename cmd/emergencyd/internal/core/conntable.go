package core

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/logger"
	"golang.org/x/sys/unix"
)

// ErrTableFull is returned by ConnTable.Add when the table is at capacity.
var ErrTableFull = errors.New("connection table full")

// Conn is a live TCP peer owned by the multiplexer.
type Conn struct {
	ID   ConnID
	FD   int
	Peer Peer
}

func (c *Conn) log() *slog.Logger {
	return logger.With("conn_id", c.ID, "remote_addr", c.Peer.String())
}

// ErrSendBufferFull is returned by Conn.Write when the peer is not draining
// its socket and the kernel send buffer has no room left.
var ErrSendBufferFull = errors.New("send buffer full")

// Write sends p on the non-blocking socket. It never waits for the peer: a
// full send buffer ends the write with ErrSendBufferFull and the count sent so far.
func (c *Conn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(c.FD, p[written:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return written, fmt.Errorf("%w: %d of %d bytes sent", ErrSendBufferFull, written, len(p))
		case err != nil:
			return written, err
		}
		written += n
	}
	return written, nil
}

// ConnTable is the Active Connection Set. Entries are keyed by a stable ConnID.
// Removal swaps the evicted order slot with the last one, so iteration order is
// only stable until the next removal.
type ConnTable struct {
	max    int
	nextID ConnID
	conns  map[ConnID]*Conn
	order  []ConnID
	index  map[ConnID]int
}

// NewConnTable creates a table holding at most max connections.
func NewConnTable(max int) *ConnTable {
	return &ConnTable{
		max:   max,
		conns: make(map[ConnID]*Conn, max),
		order: make([]ConnID, 0, max),
		index: make(map[ConnID]int, max),
	}
}

// Add registers fd and assigns it a fresh ConnID.
func (t *ConnTable) Add(fd int, peer Peer) (*Conn, error) {
	if len(t.conns) >= t.max {
		return nil, ErrTableFull
	}
	t.nextID++
	c := &Conn{ID: t.nextID, FD: fd, Peer: peer}
	t.conns[c.ID] = c
	t.index[c.ID] = len(t.order)
	t.order = append(t.order, c.ID)
	return c, nil
}

// Get returns the connection for id, or false if it has been removed.
func (t *ConnTable) Get(id ConnID) (*Conn, bool) {
	c, ok := t.conns[id]
	return c, ok
}

// Remove evicts id and returns the evicted connection. The socket is not closed.
func (t *ConnTable) Remove(id ConnID) (*Conn, bool) {
	c, ok := t.conns[id]
	if !ok {
		return nil, false
	}
	i := t.index[id]
	last := len(t.order) - 1
	if i != last {
		moved := t.order[last]
		t.order[i] = moved
		t.index[moved] = i
	}
	t.order = t.order[:last]
	delete(t.index, id)
	delete(t.conns, id)
	return c, true
}

// Len reports the number of live connections.
func (t *ConnTable) Len() int { return len(t.conns) }

// Cap reports the capacity bound.
func (t *ConnTable) Cap() int { return t.max }

// Snapshot returns the live connections. The slice is a copy, so callers may
// remove entries while ranging over it.
func (t *ConnTable) Snapshot() []*Conn {
	out := make([]*Conn, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.conns[id])
	}
	return out
}

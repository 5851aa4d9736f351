package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/catalogue"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/core"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/logger"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/metrics"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/storage"
)

// InvalidResponse answers any command that is neither a service nor "exit".
const InvalidResponse = "Invalid service request"

// Framing selects how a read is split into commands.
type Framing string

const (
	// FramingRaw treats each read as exactly one command.
	FramingRaw Framing = "raw"
	// FramingLine splits on '\n', keeping an unterminated tail for the next read.
	FramingLine Framing = "line"
)

// ParseFraming validates a framing name.
func ParseFraming(s string) (Framing, error) {
	switch Framing(s) {
	case FramingRaw, FramingLine:
		return Framing(s), nil
	default:
		return "", fmt.Errorf("unknown framing %q (supported: raw, line)", s)
	}
}

// Dispatcher resolves commands against the catalogue, writes replies and
// appends one audit record per command. It implements core.RequestHandler and
// is driven only by the multiplexer goroutine.
type Dispatcher struct {
	Catalogue *catalogue.Catalogue
	Audit     core.AuditSink
	Metrics   *metrics.Metrics
	Framing   Framing
	// MaxPending bounds the unterminated tail kept per connection in line framing.
	MaxPending int

	pending map[core.ConnID][]byte
}

func New(cat *catalogue.Catalogue, audit core.AuditSink, m *metrics.Metrics, framing Framing, maxPending int) *Dispatcher {
	return &Dispatcher{
		Catalogue:  cat,
		Audit:      audit,
		Metrics:    m,
		Framing:    framing,
		MaxPending: maxPending,
		pending:    make(map[core.ConnID][]byte),
	}
}

// Outcome is the resolution of a single command.
type Outcome struct {
	Reply  []byte // nil for exit
	Label  string // audit service field
	Result string // metrics result label
	Action core.Action
}

// Resolve maps one command to its reply, audit label and action.
func (d *Dispatcher) Resolve(cmd string) Outcome {
	if cmd == catalogue.ExitCommand {
		return Outcome{Label: core.ExitLabel, Result: metrics.ResultExit, Action: core.Close}
	}
	resp, err := d.Catalogue.Lookup(cmd)
	if err != nil {
		return Outcome{Reply: []byte(InvalidResponse), Label: cmd, Result: metrics.ResultInvalid, Action: core.Keep}
	}
	return Outcome{Reply: []byte(resp), Label: cmd, Result: metrics.ResultService, Action: core.Keep}
}

func (d *Dispatcher) Handle(ctx context.Context, id core.ConnID, peer core.Peer, w io.Writer, payload []byte) core.Action {
	if d.Framing != FramingLine {
		return d.command(ctx, peer, w, string(payload), "")
	}

	if d.pending == nil {
		d.pending = make(map[core.ConnID][]byte)
	}
	buf := append(d.pending[id], payload...)
	delete(d.pending, id)

	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(buf[:i], []byte{'\r'})
		buf = buf[i+1:]
		if len(line) == 0 {
			continue
		}
		if d.command(ctx, peer, w, string(line), "\n") == core.Close {
			return core.Close
		}
	}

	if len(buf) > 0 {
		if d.MaxPending > 0 && len(buf) > d.MaxPending {
			logger.Warn("Command exceeds buffer, closing", "remote_addr", peer.String(), "conn_id", id, "pending", len(buf))
			return core.Close
		}
		d.pending[id] = buf
	}
	return core.Keep
}

func (d *Dispatcher) Forget(id core.ConnID) {
	delete(d.pending, id)
}

func (d *Dispatcher) command(ctx context.Context, peer core.Peer, w io.Writer, cmd, terminator string) core.Action {
	logger.Info("Client requested", "remote_addr", peer.String(), "service", cmd)

	out := d.Resolve(cmd)
	d.Metrics.Request(out.Result)
	if out.Action == core.Close {
		logger.Info("Client exited", "remote_addr", peer.String())
	}

	if out.Reply != nil {
		reply := append(out.Reply, terminator...)
		if _, err := w.Write(reply); err != nil {
			logger.WarnContext(ctx, "Send failed", "remote_addr", peer.String(), "service", cmd, "error", err)
		}
	}

	if err := d.Audit.Append(ctx, core.AuditRecord{IP: peer.IP, Port: peer.Port, Service: out.Label}); err != nil {
		for _, name := range storage.FailedSinks(err) {
			d.Metrics.AuditError(name)
		}
		logger.ErrorContext(ctx, "Audit record dropped", "remote_addr", peer.String(), "service", out.Label, "error", err)
	}
	return out.Action
}

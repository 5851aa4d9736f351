package filesystem

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/core"
)

// Header is the first line of a fresh audit file.
var Header = []string{"Client IP", "Port Number", "Service Taken"}

// AuditLog is an append-only CSV sink. Every Append opens, writes one record
// with a single write(2) and closes, so no handle is retained and concurrent
// writers interleave whole records.
type AuditLog struct {
	Path string
}

func NewAuditLog(path string) *AuditLog {
	return &AuditLog{Path: path}
}

// Init creates the file with its header if it does not exist yet. An existing
// file is left untouched, so Init may be called any number of times.
func (a *AuditLog) Init() error {
	if dir := filepath.Dir(a.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create audit log directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(a.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create audit log %s: %w", a.Path, err)
	}
	defer f.Close()

	line, err := encode(Header)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to write audit log header: %w", err)
	}
	return nil
}

func (a *AuditLog) Append(ctx context.Context, rec core.AuditRecord) error {
	line, err := encode([]string{rec.IP, strconv.Itoa(rec.Port), rec.Service})
	if err != nil {
		return err
	}

	f, err := os.OpenFile(a.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log %s: %w", a.Path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return f.Close()
}

func encode(fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, fmt.Errorf("failed to encode audit record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode audit record: %w", err)
	}
	return buf.Bytes(), nil
}

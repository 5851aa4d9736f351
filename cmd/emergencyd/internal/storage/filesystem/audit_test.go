package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestAuditLog_InitIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client_logs.csv")
	log := NewAuditLog(path)

	require.NoError(t, log.Init())
	require.NoError(t, log.Append(context.Background(), core.AuditRecord{IP: "10.0.0.7", Port: 40000, Service: "Fire"}))
	require.NoError(t, log.Init())
	require.NoError(t, log.Init())

	assert.Equal(t, []string{
		"Client IP,Port Number,Service Taken",
		"10.0.0.7,40000,Fire",
	}, readLines(t, path))
}

func TestAuditLog_InitCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "nested", "client_logs.csv")
	require.NoError(t, NewAuditLog(path).Init())
	assert.Equal(t, []string{"Client IP,Port Number,Service Taken"}, readLines(t, path))
}

func TestAuditLog_AppendExitAndQuoting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client_logs.csv")
	log := NewAuditLog(path)
	require.NoError(t, log.Init())

	ctx := context.Background()
	require.NoError(t, log.Append(ctx, core.AuditRecord{IP: "127.0.0.1", Port: 5555, Service: "Vehicle Repair"}))
	require.NoError(t, log.Append(ctx, core.AuditRecord{IP: "127.0.0.1", Port: 5555, Service: "a,b"}))
	require.NoError(t, log.Append(ctx, core.AuditRecord{IP: "127.0.0.1", Port: 5555, Service: core.ExitLabel}))

	lines := readLines(t, path)
	require.Len(t, lines, 4)
	assert.Equal(t, "127.0.0.1,5555,Vehicle Repair", lines[1])
	assert.Equal(t, `127.0.0.1,5555,"a,b"`, lines[2])
	assert.True(t, strings.HasSuffix(lines[3], ",Exited"))
}

func TestAuditLog_AppendOpenFailure(t *testing.T) {
	log := NewAuditLog(filepath.Join(t.TempDir(), "missing-dir", "client_logs.csv"))
	err := log.Append(context.Background(), core.AuditRecord{IP: "127.0.0.1", Port: 1, Service: "Fire"})
	assert.ErrorContains(t, err, "failed to open audit log")
}

func TestAuditLog_ConcurrentAppendsKeepRecordsWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client_logs.csv")
	log := NewAuditLog(path)
	require.NoError(t, log.Init())

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				rec := core.AuditRecord{IP: fmt.Sprintf("10.0.0.%d", w), Port: 1000 + i, Service: "Blood Bank"}
				assert.NoError(t, log.Append(context.Background(), rec))
			}
		}(w)
	}
	wg.Wait()

	lines := readLines(t, path)
	require.Len(t, lines, 1+writers*perWriter)
	for _, line := range lines[1:] {
		assert.Regexp(t, `^10\.0\.0\.\d,\d+,Blood Bank$`, line)
	}
}

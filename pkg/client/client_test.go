package client

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	port, ok := ParseReply("EMERGENCY_SERVER:10840")
	assert.True(t, ok)
	assert.Equal(t, 10840, port)

	port, ok = ParseReply("EMERGENCY_SERVER: 10840\n")
	assert.True(t, ok)
	assert.Equal(t, 10840, port)

	for _, bad := range []string{"", "EMERGENCY_SERVER:", "EMERGENCY_SERVER:abc", "SERVER:10840", "EMERGENCY_SERVER:70000"} {
		_, ok := ParseReply(bad)
		assert.False(t, ok, bad)
	}
}

// answer replies to the first n probes on pc with the given payloads.
func answer(t *testing.T, pc net.PacketConn, replies ...string) <-chan string {
	t.Helper()
	probes := make(chan string, len(replies))
	go func() {
		buf := make([]byte, 64)
		for _, r := range replies {
			n, from, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			probes <- string(buf[:n])
			pc.WriteTo([]byte(r), from)
		}
	}()
	return probes
}

func TestDiscover_UsesReplySender(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	probes := answer(t, pc, "EMERGENCY_SERVER:10840")

	disc := &Discoverer{Target: pc.LocalAddr().String(), Wait: time.Second}
	addr, err := disc.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:10840", addr)
	assert.Equal(t, DefaultProbe, <-probes)
}

func TestDiscover_SkipsMalformedReplies(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	answer(t, pc, "garbage", "EMERGENCY_SERVER:"+strconv.Itoa(4000))

	disc := &Discoverer{Target: pc.LocalAddr().String(), Probe: "token", Attempts: 3, Wait: 200 * time.Millisecond}
	addr, err := disc.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4000", addr)
}

func TestDiscover_NotFound(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	disc := &Discoverer{Target: pc.LocalAddr().String(), Attempts: 2, Wait: 50 * time.Millisecond}
	_, err = disc.Discover(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_RequestAndExit(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan string, 2)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		got <- string(buf[:n])
		conn.Write([]byte("Police: 100"))
		n, _ = conn.Read(buf)
		got <- string(buf[:n])
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := Dial(ctx, ln.Addr().String())
	require.NoError(t, err)

	reply, err := sess.Request(ctx, "Police")
	require.NoError(t, err)
	assert.Equal(t, "Police: 100", reply)
	assert.Equal(t, "Police", <-got)

	require.NoError(t, sess.Exit())
	assert.Equal(t, ExitCommand, <-got)
}

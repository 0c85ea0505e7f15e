package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
)

// echoConfigServer accepts one connection and answers the first request with
// a fixed response header.
func echoConfigServer(t *testing.T, ln net.Listener, response []byte) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 16)
		if n, err := conn.Read(buf); err == nil && n > 0 {
			conn.Write(response)
		}
	}()
}

func TestTCPStatsTrackTraffic(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	echoConfigServer(t, ln, []byte{0xC1, 0x00, 0x00})

	tr := NewTCP(&TCPConfig{
		Host:         "127.0.0.1",
		Port:         ln.Addr().(*net.TCPAddr).Port,
		Timeout:      time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: time.Second,
	}, zap.NewNop())

	ctx := context.Background()
	if err := tr.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer tr.Close()

	if !tr.GetStats().IsConnected {
		t.Error("GetStats().IsConnected = false after Open")
	}

	req := []byte{0xC1, 0x00, 0x09}
	if err := tr.Write(ctx, req); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	resp, err := tr.Read(ctx, 3)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(resp) != 3 {
		t.Fatalf("Read() returned %d bytes, want 3", len(resp))
	}

	stats := tr.GetStats()
	if stats.BytesWritten != int64(len(req)) {
		t.Errorf("BytesWritten = %d, want %d", stats.BytesWritten, len(req))
	}
	if stats.BytesRead != int64(len(resp)) {
		t.Errorf("BytesRead = %d, want %d", stats.BytesRead, len(resp))
	}
	if stats.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, want 0", stats.ErrorCount)
	}
	if stats.LastActivity.IsZero() {
		t.Error("LastActivity not updated")
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if tr.GetStats().IsConnected {
		t.Error("GetStats().IsConnected = true after Close")
	}
}

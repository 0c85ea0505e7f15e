package session

import (
	"context"
	"testing"
	"time"

	"lora-config-service/pkg/lora"
	"lora-config-service/pkg/lora/frame"
	"lora-config-service/pkg/lora/register"
)

// scriptTransport replays a fixed sequence of responses, one per Write. An
// empty script entry simulates a deadline expiry with no data.
type scriptTransport struct {
	script   [][]byte
	writes   [][]byte
	drains   int
	echoNext bool
	open     bool
}

func (t *scriptTransport) Open(ctx context.Context) error { t.open = true; return nil }
func (t *scriptTransport) Close() error                   { t.open = false; return nil }
func (t *scriptTransport) IsOpen() bool                   { return t.open }
func (t *scriptTransport) Drain(ctx context.Context) error {
	t.drains++
	return nil
}

func (t *scriptTransport) Write(ctx context.Context, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	t.writes = append(t.writes, cp)
	return nil
}

func (t *scriptTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	if t.echoNext {
		last := t.writes[len(t.writes)-1]
		cp := make([]byte, len(last))
		copy(cp, last)
		return cp, nil
	}
	if len(t.script) == 0 {
		return nil, nil
	}
	resp := t.script[0]
	t.script = t.script[1:]
	return resp, nil
}

func testOptions() Options {
	return Options{MaxRetries: 2, RetryDelay: time.Millisecond}
}

// response wraps a payload in the read-response header.
func response(address, length byte, payload []byte) []byte {
	return append([]byte{0xC1, address, length}, payload...)
}

var testBlock = []byte{0x12, 0x34, 0x00, 0x62, 0xE2, 0x15, 0x80, 0x00, 0x00}

// noProbe stands in for firmware that ignores the version query.
var noProbe = []byte{}

func openReady(t *testing.T, tr *scriptTransport, fallback register.Variant) *Session {
	t.Helper()
	s := New(tr, fallback, testOptions(), nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	return s
}

func TestOpenDetectsBandFromVersionProbe(t *testing.T) {
	// Version response with frequency byte 0x44 (915MHz): a 400-band fallback
	// must be upgraded to its 900-band sibling.
	tr := &scriptTransport{script: [][]byte{{0xC1, 0x80, 0x00, 0x22, 0x44, 0x17}}}
	s := openReady(t, tr, register.E22400T22)

	if s.Variant().Name != register.E22900T22.Name {
		t.Errorf("variant = %s, want %s", s.Variant().Name, register.E22900T22.Name)
	}
	if !s.VariantDetected() {
		t.Error("VariantDetected() = false after successful probe")
	}
}

func TestOpenKeepsFallbackWhenProbeUnsupported(t *testing.T) {
	// A 2-byte garbage response to the version probe means the firmware does
	// not implement it; the session stays usable with the fallback variant.
	tr := &scriptTransport{script: [][]byte{{0xFF, 0xFF}}}
	s := openReady(t, tr, register.E22900T30)

	if s.Variant().Name != register.E22900T30.Name {
		t.Errorf("variant = %s, want fallback %s", s.Variant().Name, register.E22900T30.Name)
	}
	if s.VariantDetected() {
		t.Error("VariantDetected() = true after failed probe")
	}
	if s.State() != StateReady {
		t.Errorf("state = %s, want ready", s.State())
	}
}

func TestReadConfigRetriesThroughTimeouts(t *testing.T) {
	// Two empty reads, then a valid response: must succeed within the retry
	// budget, draining before every attempt.
	tr := &scriptTransport{script: [][]byte{
		noProbe, // version probe unanswered
		noProbe, noProbe, response(0x00, 0x09, testBlock),
	}}
	s := openReady(t, tr, register.E22900Legacy)

	cfg, err := s.ReadConfig(context.Background())
	if err != nil {
		t.Fatalf("ReadConfig() error: %v", err)
	}
	if cfg.Address != 0x1234 || cfg.Channel != 21 || cfg.PowerDBm != 22 {
		t.Errorf("ReadConfig() = %+v", cfg)
	}
	// One drain for the probe, one per read attempt.
	if tr.drains != 4 {
		t.Errorf("drains = %d, want 4", tr.drains)
	}
}

func TestReadConfigTimeoutAfterBudget(t *testing.T) {
	tr := &scriptTransport{script: [][]byte{noProbe}}
	s := openReady(t, tr, register.E22900Legacy)

	_, err := s.ReadConfig(context.Background())
	if !lora.IsKind(err, lora.KindTimeout) {
		t.Fatalf("ReadConfig() error = %v, want TIMEOUT", err)
	}
	// Probe plus first attempt plus MaxRetries.
	if got := len(tr.writes); got != 4 {
		t.Errorf("writes = %d, want 4", got)
	}
}

func TestReadConfigEchoNotRetried(t *testing.T) {
	tr := &scriptTransport{script: [][]byte{noProbe}}
	s := openReady(t, tr, register.E22900Legacy)
	tr.echoNext = true

	_, err := s.ReadConfig(context.Background())
	if !lora.IsKind(err, lora.KindEchoDetected) {
		t.Fatalf("ReadConfig() error = %v, want ECHO_DETECTED", err)
	}
	// Probe write plus exactly one read attempt: echo must not be retried.
	if got := len(tr.writes); got != 2 {
		t.Errorf("writes = %d, want 2", got)
	}
}

func TestWriteConfigVerifiesReadBack(t *testing.T) {
	tr := &scriptTransport{script: [][]byte{
		noProbe,
		response(0x00, 0x09, testBlock), // write acknowledgement
		response(0x00, 0x09, testBlock), // verification read
	}}
	s := openReady(t, tr, register.E22900Legacy)

	cfg := register.ConfigBlock{
		Address:      0x1234,
		Baud:         register.Baud9600,
		AirRate:      register.Air2400,
		SubPacket:    register.SubPacket32,
		AmbientNoise: true,
		PowerDBm:     22,
		Channel:      21,
	}
	got, err := s.WriteConfig(context.Background(), cfg, true)
	if err != nil {
		t.Fatalf("WriteConfig() error: %v", err)
	}
	if got != cfg {
		t.Errorf("read-back = %+v, want %+v", got, cfg)
	}
	if tr.writes[1][0] != frame.OpWriteSave {
		t.Errorf("write opcode = 0x%02X, want 0xC0", tr.writes[1][0])
	}
	if s.State() != StateReady {
		t.Errorf("state = %s, want ready", s.State())
	}
}

func TestWriteConfigVolatileOpcode(t *testing.T) {
	tr := &scriptTransport{script: [][]byte{
		noProbe,
		response(0x00, 0x09, testBlock),
		response(0x00, 0x09, testBlock),
	}}
	s := openReady(t, tr, register.E22900Legacy)

	cfg := register.ConfigBlock{
		Address:      0x1234,
		Baud:         register.Baud9600,
		AirRate:      register.Air2400,
		SubPacket:    register.SubPacket32,
		AmbientNoise: true,
		PowerDBm:     22,
		Channel:      21,
	}
	if _, err := s.WriteConfig(context.Background(), cfg, false); err != nil {
		t.Fatalf("WriteConfig() error: %v", err)
	}
	if tr.writes[1][0] != frame.OpWriteVolatile {
		t.Errorf("write opcode = 0x%02X, want 0xC2", tr.writes[1][0])
	}
}

func TestWriteConfigPersistenceMismatchNotRetried(t *testing.T) {
	// Acknowledgement differs from the written block in one byte: critical,
	// reported immediately, no retry.
	ack := make([]byte, len(testBlock))
	copy(ack, testBlock)
	ack[5] = 0x16 // channel off by one

	tr := &scriptTransport{script: [][]byte{
		noProbe,
		response(0x00, 0x09, ack),
	}}
	s := openReady(t, tr, register.E22900Legacy)

	cfg := register.ConfigBlock{
		Address:      0x1234,
		Baud:         register.Baud9600,
		AirRate:      register.Air2400,
		SubPacket:    register.SubPacket32,
		AmbientNoise: true,
		PowerDBm:     22,
		Channel:      21,
	}
	_, err := s.WriteConfig(context.Background(), cfg, true)
	if !lora.IsKind(err, lora.KindPersistenceMismatch) {
		t.Fatalf("WriteConfig() error = %v, want PERSISTENCE_MISMATCH", err)
	}
	// Probe plus one write command; no verification read, no retries.
	if got := len(tr.writes); got != 2 {
		t.Errorf("writes = %d, want 2", got)
	}
}

func TestWriteConfigIgnoresKeyBytesInCompare(t *testing.T) {
	// A key was written; the module zeroes the key bytes in its
	// acknowledgement and read-back. That must not count as a mismatch.
	cfg := register.ConfigBlock{
		Address:      0x1234,
		Baud:         register.Baud9600,
		AirRate:      register.Air2400,
		SubPacket:    register.SubPacket32,
		AmbientNoise: true,
		PowerDBm:     22,
		Channel:      21,
		Key:          0xBEEF,
	}
	tr := &scriptTransport{script: [][]byte{
		noProbe,
		response(0x00, 0x09, testBlock), // key bytes zero
		response(0x00, 0x09, testBlock),
	}}
	s := openReady(t, tr, register.E22900Legacy)

	got, err := s.WriteConfig(context.Background(), cfg, true)
	if err != nil {
		t.Fatalf("WriteConfig() error: %v", err)
	}
	if got.Key != 0 {
		t.Errorf("read-back Key = 0x%04X, want 0", got.Key)
	}
}

func TestWriteConfigRejectsBeforeIO(t *testing.T) {
	tr := &scriptTransport{script: [][]byte{noProbe}}
	s := openReady(t, tr, register.E22400T22)
	writesBefore := len(tr.writes)

	_, err := s.WriteConfig(context.Background(), register.ConfigBlock{PowerDBm: 30}, true)
	if !lora.IsKind(err, lora.KindVariantMismatch) {
		t.Fatalf("WriteConfig() error = %v, want VARIANT_MISMATCH", err)
	}
	if len(tr.writes) != writesBefore {
		t.Errorf("rejected write still sent %d frames", len(tr.writes)-writesBefore)
	}
}

func TestQueryRSSI(t *testing.T) {
	tr := &scriptTransport{script: [][]byte{
		noProbe,
		{0xC1, 0x00, 0x02, 0x9C, 0xA5},
	}}
	s := openReady(t, tr, register.E22900T22)

	rssi, err := s.QueryRSSI(context.Background())
	if err != nil {
		t.Fatalf("QueryRSSI() error: %v", err)
	}
	if rssi.AmbientNoiseDBm != -100 || rssi.LastReceiveDBm != -91 {
		t.Errorf("QueryRSSI() = %+v", rssi)
	}
}

func TestQueryRSSIUnsupported(t *testing.T) {
	tr := &scriptTransport{script: [][]byte{noProbe}}
	s := openReady(t, tr, register.E22900T22)

	_, err := s.QueryRSSI(context.Background())
	if !lora.IsKind(err, lora.KindUnsupportedCommand) {
		t.Errorf("QueryRSSI() error = %v, want UNSUPPORTED_COMMAND", err)
	}
}

func TestWriteKey(t *testing.T) {
	tr := &scriptTransport{script: [][]byte{
		noProbe,
		response(frame.KeyAddress, frame.KeyLength, []byte{0x00, 0x00}),
	}}
	s := openReady(t, tr, register.E22900T22)

	if err := s.WriteKey(context.Background(), 0xBEEF, true); err != nil {
		t.Fatalf("WriteKey() error: %v", err)
	}
	sent := tr.writes[len(tr.writes)-1]
	want := []byte{0xC0, 0x04, 0x02, 0xBE, 0xEF}
	for i := range want {
		if sent[i] != want[i] {
			t.Fatalf("key frame = % X, want % X", sent, want)
		}
	}
}

func TestCloseFromAnyState(t *testing.T) {
	tr := &scriptTransport{script: [][]byte{noProbe}}
	s := openReady(t, tr, register.E22900T22)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
	if tr.IsOpen() {
		t.Error("transport still open after Close")
	}
	// Closing a closed session is a no-op.
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestCommandsRequireReady(t *testing.T) {
	tr := &scriptTransport{}
	s := New(tr, register.E22900T22, testOptions(), nil)

	if _, err := s.ReadConfig(context.Background()); err == nil {
		t.Error("ReadConfig() on a closed session should fail")
	}
}

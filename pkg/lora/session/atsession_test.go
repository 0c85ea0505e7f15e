package session

import (
	"context"
	"testing"

	"lora-config-service/pkg/lora"
	"lora-config-service/pkg/lora/register"
)

const dtuConfigLine = "AT+LORA=1,0,2400,240,RSCHOFF,PWMAX,18,RSDATOFF,TRNOR,RLYOFF,LBTOFF,WOROFF,500,0"

func dtuConfig() register.ConfigBlock {
	return register.ConfigBlock{
		Address:   1,
		AirRate:   register.Air2400,
		SubPacket: register.SubPacket240,
		PowerDBm:  33,
		Channel:   18,
		WORRole:   register.WOROff,
	}
}

func openATReady(t *testing.T, tr *scriptTransport) *ATSession {
	t.Helper()
	s, err := NewAT(tr, register.E90DTU400SL, testOptions(), nil)
	if err != nil {
		t.Fatalf("NewAT() error: %v", err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	return s
}

func TestNewATRejectsBinaryVariant(t *testing.T) {
	_, err := NewAT(&scriptTransport{}, register.E22400T22, testOptions(), nil)
	if !lora.IsKind(err, lora.KindVariantMismatch) {
		t.Errorf("NewAT(binary variant) error = %v, want VARIANT_MISMATCH", err)
	}
}

func TestATReadConfig(t *testing.T) {
	tr := &scriptTransport{script: [][]byte{[]byte(dtuConfigLine + "\r\n")}}
	s := openATReady(t, tr)

	cfg, err := s.ReadConfig(context.Background())
	if err != nil {
		t.Fatalf("ReadConfig() error: %v", err)
	}
	if cfg != dtuConfig() {
		t.Errorf("ReadConfig() = %+v", cfg)
	}
	if string(tr.writes[0]) != "AT+LORA\r\n" {
		t.Errorf("query line = %q", tr.writes[0])
	}
}

func TestATReadConfigRetriesThroughTimeouts(t *testing.T) {
	tr := &scriptTransport{script: [][]byte{
		{}, {}, []byte(dtuConfigLine),
	}}
	s := openATReady(t, tr)

	if _, err := s.ReadConfig(context.Background()); err != nil {
		t.Fatalf("ReadConfig() error: %v", err)
	}
	if tr.drains != 3 {
		t.Errorf("drains = %d, want 3", tr.drains)
	}
}

func TestATWriteConfigVerifies(t *testing.T) {
	tr := &scriptTransport{script: [][]byte{
		[]byte("OK\r\n"),
		[]byte(dtuConfigLine + "\r\n"),
	}}
	s := openATReady(t, tr)

	got, err := s.WriteConfig(context.Background(), dtuConfig())
	if err != nil {
		t.Fatalf("WriteConfig() error: %v", err)
	}
	if got != dtuConfig() {
		t.Errorf("read-back = %+v", got)
	}
}

func TestATWriteConfigPersistenceMismatch(t *testing.T) {
	// Gateway accepts the command but reads back a different channel.
	mismatch := "AT+LORA=1,0,2400,240,RSCHOFF,PWMAX,19,RSDATOFF,TRNOR,RLYOFF,LBTOFF,WOROFF,500,0"
	tr := &scriptTransport{script: [][]byte{
		[]byte("OK"),
		[]byte(mismatch),
	}}
	s := openATReady(t, tr)

	_, err := s.WriteConfig(context.Background(), dtuConfig())
	if !lora.IsKind(err, lora.KindPersistenceMismatch) {
		t.Errorf("WriteConfig() error = %v, want PERSISTENCE_MISMATCH", err)
	}
}

func TestATEchoNotRetried(t *testing.T) {
	tr := &scriptTransport{}
	s := openATReady(t, tr)
	tr.echoNext = true

	_, err := s.ReadConfig(context.Background())
	if !lora.IsKind(err, lora.KindEchoDetected) {
		t.Fatalf("ReadConfig() error = %v, want ECHO_DETECTED", err)
	}
	if len(tr.writes) != 1 {
		t.Errorf("writes = %d, want 1", len(tr.writes))
	}
}

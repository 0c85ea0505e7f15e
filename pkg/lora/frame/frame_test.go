package frame

import (
	"bytes"
	"testing"

	"lora-config-service/pkg/lora"
)

func TestEncodeRead(t *testing.T) {
	got := EncodeRead(ConfigAddress, ConfigLength)
	want := []byte{0xC1, 0x00, 0x09}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeRead() = % X, want % X", got, want)
	}
}

func TestEncodeWrite(t *testing.T) {
	payload := []byte{0x12, 0x34, 0x00, 0x62, 0xE2, 0x15, 0x80, 0x00, 0x00}

	saved, err := EncodeWrite(ConfigAddress, ConfigLength, payload, true)
	if err != nil {
		t.Fatalf("EncodeWrite(save) error: %v", err)
	}
	if saved[0] != OpWriteSave {
		t.Errorf("save opcode = 0x%02X, want 0xC0", saved[0])
	}

	volatile, err := EncodeWrite(ConfigAddress, ConfigLength, payload, false)
	if err != nil {
		t.Fatalf("EncodeWrite(volatile) error: %v", err)
	}
	if volatile[0] != OpWriteVolatile {
		t.Errorf("volatile opcode = 0x%02X, want 0xC2", volatile[0])
	}
	if !bytes.Equal(volatile[3:], payload) {
		t.Errorf("payload = % X, want % X", volatile[3:], payload)
	}

	if _, err := EncodeWrite(ConfigAddress, ConfigLength, payload[:5], true); !lora.IsKind(err, lora.KindInvalidParameterRange) {
		t.Errorf("length mismatch error = %v, want INVALID_PARAMETER_RANGE", err)
	}
}

func TestEncodeProbes(t *testing.T) {
	if got := EncodeVersionQuery(); !bytes.Equal(got, []byte{0xC3, 0x00, 0x00}) {
		t.Errorf("EncodeVersionQuery() = % X", got)
	}
	if got := EncodeRSSIQuery(); !bytes.Equal(got, []byte{0xC0, 0xC1, 0xC2, 0xC3, 0x00, 0x02}) {
		t.Errorf("EncodeRSSIQuery() = % X", got)
	}
}

func TestDecodeResponse(t *testing.T) {
	req := EncodeRead(ConfigAddress, ConfigLength)
	payload := []byte{0x12, 0x34, 0x00, 0x62, 0xE2, 0x15, 0x80, 0x00, 0x00}
	valid := append([]byte{0xC1, 0x00, 0x09}, payload...)

	tests := []struct {
		name string
		raw  []byte
		kind lora.ErrorKind
	}{
		{"empty response is a timeout", nil, lora.KindTimeout},
		{"echoed request", append([]byte(nil), req...), lora.KindEchoDetected},
		{"short response", valid[:7], lora.KindMalformedResponse},
		{"wrong opcode", append([]byte{0xC0, 0x00, 0x09}, payload...), lora.KindMalformedResponse},
		{"wrong address", append([]byte{0xC1, 0x04, 0x09}, payload...), lora.KindMalformedResponse},
		{"wrong length", append([]byte{0xC1, 0x00, 0x07}, payload...), lora.KindMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResponse(req, tt.raw, ConfigAddress, ConfigLength)
			if !lora.IsKind(err, tt.kind) {
				t.Errorf("DecodeResponse() error = %v, want kind %s", err, tt.kind)
			}
		})
	}

	got, err := DecodeResponse(req, valid, ConfigAddress, ConfigLength)
	if err != nil {
		t.Fatalf("DecodeResponse(valid) error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = % X, want % X", got, payload)
	}
}

func TestDecodeResponseTrailingBytes(t *testing.T) {
	// Extra bytes after a complete response are tolerated; serial lines pick
	// up trailing noise.
	req := EncodeRead(ConfigAddress, ConfigLength)
	payload := []byte{0x12, 0x34, 0x00, 0x62, 0xE2, 0x15, 0x80, 0x00, 0x00}
	raw := append(append([]byte{0xC1, 0x00, 0x09}, payload...), 0xFF, 0xFF)

	got, err := DecodeResponse(req, raw, ConfigAddress, ConfigLength)
	if err != nil {
		t.Fatalf("DecodeResponse() error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = % X, want % X", got, payload)
	}
}

func TestDecodeRSSIResponse(t *testing.T) {
	req := EncodeRSSIQuery()
	raw := []byte{0xC1, 0x00, 0x02, 0x9C, 0xA5}

	got, err := DecodeRSSIResponse(req, raw)
	if err != nil {
		t.Fatalf("DecodeRSSIResponse() error: %v", err)
	}
	// 0x9C = 156 -> -(256-156) = -100 dBm
	if got.AmbientNoiseDBm != -100 {
		t.Errorf("ambient noise = %d dBm, want -100", got.AmbientNoiseDBm)
	}
	if got.LastReceiveDBm != -91 {
		t.Errorf("last receive = %d dBm, want -91", got.LastReceiveDBm)
	}
}

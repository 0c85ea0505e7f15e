package register

import (
	"strings"
	"testing"

	"lora-config-service/pkg/lora"
)

func TestMarshalAT(t *testing.T) {
	cfg := ConfigBlock{
		Address:      1,
		NetID:        0,
		AirRate:      Air2400,
		SubPacket:    SubPacket240,
		AmbientNoise: false,
		PowerDBm:     33,
		Channel:      18,
		RSSIByte:     false,
		Mode:         ModeTransparent,
		Relay:        false,
		LBT:          false,
		WORRole:      WOROff,
		WORPeriod:    WOR2000ms,
		Key:          0,
	}
	got, err := MarshalAT(E90DTU400SL, cfg)
	if err != nil {
		t.Fatalf("MarshalAT() error: %v", err)
	}
	want := "AT+LORA=1,0,2400,240,RSCHOFF,PWMAX,18,RSDATOFF,TRNOR,RLYOFF,LBTOFF,WOROFF,2000,0"
	if got != want {
		t.Errorf("MarshalAT():\n got %s\nwant %s", got, want)
	}
}

func TestMarshalATRejection(t *testing.T) {
	if _, err := MarshalAT(E90DTU400SL, ConfigBlock{PowerDBm: 22}); !lora.IsKind(err, lora.KindVariantMismatch) {
		t.Errorf("module-class power on a DTU: error = %v, want VARIANT_MISMATCH", err)
	}
	if _, err := MarshalAT(E90DTU400SL, ConfigBlock{PowerDBm: 33, Channel: 100}); !lora.IsKind(err, lora.KindInvalidParameterRange) {
		t.Errorf("channel out of range: error = %v, want INVALID_PARAMETER_RANGE", err)
	}
	if _, err := MarshalAT(E90DTU400SL, ConfigBlock{PowerDBm: 33, SubPacket: 5}); !lora.IsKind(err, lora.KindInvalidParameterRange) {
		t.Errorf("sub-packet code out of range: error = %v, want INVALID_PARAMETER_RANGE", err)
	}
	if _, err := MarshalAT(E90DTU400SL, ConfigBlock{PowerDBm: 33, WORPeriod: 9}); !lora.IsKind(err, lora.KindInvalidParameterRange) {
		t.Errorf("WOR period code out of range: error = %v, want INVALID_PARAMETER_RANGE", err)
	}
}

func TestUnmarshalAT(t *testing.T) {
	responses := []string{
		"AT+LORA=1,0,600,240,RSCHON,PWLOW,18,RSDATON,TRFIX,RLYON,LBTON,WORTX,1500,0",
		"+LORA:1,0,600,240,RSCHON,PWLOW,18,RSDATON,TRFIX,RLYON,LBTON,WORTX,1500,0",
		"  AT+LORA=1, 0, 600, 240, RSCHON, PWLOW, 18, RSDATON, TRFIX, RLYON, LBTON, WORTX, 1500, 0\r\n",
	}
	for _, resp := range responses {
		cfg, err := UnmarshalAT(E90DTU400SL, resp)
		if err != nil {
			t.Fatalf("UnmarshalAT(%q) error: %v", resp, err)
		}
		if cfg.Address != 1 || cfg.AirRate != Air600 || cfg.PowerDBm != 27 ||
			cfg.Channel != 18 || !cfg.AmbientNoise || !cfg.RSSIByte ||
			cfg.Mode != ModeFixedPoint || !cfg.Relay || !cfg.LBT ||
			cfg.WORRole != WORTransmitter || cfg.WORPeriod != WOR1500ms {
			t.Errorf("UnmarshalAT(%q) = %+v", resp, cfg)
		}
	}
}

func TestMarshalUnmarshalATRoundTrip(t *testing.T) {
	cfg := ConfigBlock{
		Address:      0x0102,
		NetID:        5,
		AirRate:      Air62500,
		SubPacket:    SubPacket128,
		AmbientNoise: true,
		PowerDBm:     20,
		Channel:      83,
		RSSIByte:     true,
		Mode:         ModeFixedPoint,
		Relay:        true,
		LBT:          true,
		WORRole:      WORReceiver,
		WORPeriod:    WOR4000ms,
	}
	cmd, err := MarshalAT(E90DTU400SL, cfg)
	if err != nil {
		t.Fatalf("MarshalAT() error: %v", err)
	}
	back, err := UnmarshalAT(E90DTU400SL, cmd)
	if err != nil {
		t.Fatalf("UnmarshalAT() error: %v", err)
	}
	if back != cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, cfg)
	}
}

func TestUnmarshalATMalformed(t *testing.T) {
	tests := []string{
		"",
		"OK",
		"AT+LORA=1,0,600",
		"AT+LORA=1,0,600,240,RSCHON,PWHIGH,18,RSDATON,TRFIX,RLYON,LBTON,WORTX,1500,0",
		"AT+LORA=1,0,700,240,RSCHON,PWLOW,18,RSDATON,TRFIX,RLYON,LBTON,WORTX,1500,0",
		"AT+LORA=1,0,600,240,RSCHON,PWLOW,18,RSDATON,TRFIX,RLYON,LBTON,WORTX,1234,0",
	}
	for _, resp := range tests {
		if _, err := UnmarshalAT(E90DTU400SL, resp); !lora.IsKind(err, lora.KindMalformedResponse) {
			t.Errorf("UnmarshalAT(%q) error = %v, want MALFORMED_RESPONSE", resp, err)
		}
	}
}

func TestQueryAT(t *testing.T) {
	if QueryAT() != "AT+LORA" {
		t.Errorf("QueryAT() = %q", QueryAT())
	}
}

func TestDescribeFrequency(t *testing.T) {
	got := DescribeFrequency(E90DTU400SL, 18)
	if !strings.HasPrefix(got, "428.125") {
		t.Errorf("DescribeFrequency(18) = %q, want 428.125 MHz", got)
	}
}

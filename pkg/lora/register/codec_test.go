package register

import (
	"bytes"
	"testing"

	"lora-config-service/pkg/lora"
)

// The reference vector: legacy-layout module at address 0x1234, 9600 baud 8N1,
// 2.4k air rate, 32-byte sub-packets, ambient noise on, 22 dBm, channel 21.
func TestEncodeReferenceVector(t *testing.T) {
	cfg := ConfigBlock{
		Address:      0x1234,
		Baud:         Baud9600,
		Parity:       Parity8N1,
		AirRate:      Air2400,
		SubPacket:    SubPacket32,
		AmbientNoise: true,
		PowerDBm:     22,
		Channel:      21,
	}
	got, err := Encode(E22900Legacy, cfg)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	want := []byte{0x12, 0x34, 0x00, 0x62, 0xE2, 0x15, 0x80, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % X, want % X", got, want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, v := range Variants() {
		if v.UsesAT() {
			continue
		}
		v := v
		t.Run(v.Name, func(t *testing.T) {
			cfg := ConfigBlock{
				Address:      0xBEEF,
				NetID:        7,
				Baud:         Baud115200,
				Parity:       Parity8E1,
				AirRate:      Air62500,
				Channel:      42,
				SubPacket:    SubPacket64,
				AmbientNoise: true,
				PowerDBm:     v.PowerDBm[1],
				Mode:         ModeFixedPoint,
				Relay:        true,
				LBT:          true,
			}
			if v.reg3.rssiIBit >= 0 {
				cfg.RSSIByte = true
			}
			if v.reg3.worRoleBit >= 0 {
				cfg.WORRole = WORTransmitter
			}
			if v.reg3.worPeriod {
				cfg.WORPeriod = WOR2000ms
			}

			raw, err := Encode(v, cfg)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			back, err := Decode(v, raw)
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if back != cfg {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, cfg)
			}
		})
	}
}

func TestEncodeAddressSplit(t *testing.T) {
	for _, addr := range []uint16{0x0000, 0x00FF, 0x1234, 0xFF00, 0xFFFF} {
		raw, err := Encode(E22400T30, ConfigBlock{Address: addr, PowerDBm: 30})
		if err != nil {
			t.Fatalf("Encode(addr=0x%04X) error: %v", addr, err)
		}
		if raw[0] != byte(addr>>8) || raw[1] != byte(addr&0xFF) {
			t.Errorf("addr 0x%04X split to %02X %02X", addr, raw[0], raw[1])
		}
	}
}

func TestEncodeRejection(t *testing.T) {
	tests := []struct {
		name string
		v    Variant
		cfg  ConfigBlock
		kind lora.ErrorKind
	}{
		{"power not in variant table", E22400T22,
			ConfigBlock{PowerDBm: 25}, lora.KindVariantMismatch},
		{"T30 power on a T22 module", E22400T22,
			ConfigBlock{PowerDBm: 30}, lora.KindVariantMismatch},
		{"RSSI byte on the legacy layout", E22900Legacy,
			ConfigBlock{PowerDBm: 13, RSSIByte: true}, lora.KindVariantMismatch},
		{"WOR transmitter on the legacy layout", E22900Legacy,
			ConfigBlock{PowerDBm: 13, WORRole: WORTransmitter}, lora.KindVariantMismatch},
		{"WOR period on the legacy layout", E22900Legacy,
			ConfigBlock{PowerDBm: 13, WORPeriod: WOR1000ms}, lora.KindVariantMismatch},
		{"WOR off has no register code", E22400T30,
			ConfigBlock{PowerDBm: 30, WORRole: WOROff}, lora.KindVariantMismatch},
		{"600bps air rate has no register code", E22400T30,
			ConfigBlock{PowerDBm: 30, AirRate: Air600}, lora.KindVariantMismatch},
		{"channel above variant maximum", E22900T22,
			ConfigBlock{PowerDBm: 22, Channel: 81}, lora.KindInvalidParameterRange},
		{"baud code out of range", E22400T30,
			ConfigBlock{PowerDBm: 30, Baud: BaudRate(8)}, lora.KindInvalidParameterRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.v, tt.cfg)
			if !lora.IsKind(err, tt.kind) {
				t.Errorf("Encode() error = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestEncodeFlagIndependence(t *testing.T) {
	// Toggling one of the boolean flags must flip exactly its own bit and
	// leave every other encoded byte untouched, under both REG3 layouts.
	tests := []struct {
		name  string
		flip  func(*ConfigBlock)
		index int             // byte in the block the flag lives in
		mask  map[string]byte // expected bit per layout variant
	}{
		{
			name:  "ambient noise",
			flip:  func(c *ConfigBlock) { c.AmbientNoise = true },
			index: 4,
			mask:  map[string]byte{E22400T30.Name: 1 << 5, E22900Legacy.Name: 1 << 5},
		},
		{
			name:  "fixed-point mode",
			flip:  func(c *ConfigBlock) { c.Mode = ModeFixedPoint },
			index: 6,
			mask:  map[string]byte{E22400T30.Name: 1 << 6, E22900Legacy.Name: 1 << 0},
		},
		{
			name:  "relay",
			flip:  func(c *ConfigBlock) { c.Relay = true },
			index: 6,
			mask:  map[string]byte{E22400T30.Name: 1 << 5, E22900Legacy.Name: 1 << 5},
		},
		{
			name:  "lbt",
			flip:  func(c *ConfigBlock) { c.LBT = true },
			index: 6,
			mask:  map[string]byte{E22400T30.Name: 1 << 4, E22900Legacy.Name: 1 << 4},
		},
	}

	for _, v := range []Variant{E22400T30, E22900Legacy} {
		base := ConfigBlock{
			Address:   0x1234,
			Baud:      Baud9600,
			AirRate:   Air2400,
			SubPacket: SubPacket240,
			PowerDBm:  v.PowerDBm[1],
			Channel:   7,
		}
		baseRaw, err := Encode(v, base)
		if err != nil {
			t.Fatalf("%s: Encode(base) error: %v", v.Name, err)
		}

		for _, tt := range tests {
			t.Run(v.Name+"/"+tt.name, func(t *testing.T) {
				cfg := base
				tt.flip(&cfg)
				raw, err := Encode(v, cfg)
				if err != nil {
					t.Fatalf("Encode() error: %v", err)
				}
				for i := range raw {
					diff := raw[i] ^ baseRaw[i]
					want := byte(0)
					if i == tt.index {
						want = tt.mask[v.Name]
					}
					if diff != want {
						t.Errorf("byte %d changed by %08b, want %08b", i, diff, want)
					}
				}
			})
		}
	}
}

func TestDecodeKeyAlwaysZero(t *testing.T) {
	// The module zeroes the key registers in read-backs; a nonzero key byte on
	// the wire must still decode to zero so comparisons do not false-positive.
	raw := []byte{0x00, 0x01, 0x00, 0x62, 0x00, 0x05, 0x00, 0xAB, 0xCD}
	cfg, err := Decode(E22400T30, raw)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if cfg.Key != 0 {
		t.Errorf("Key = 0x%04X, want 0", cfg.Key)
	}
}

func TestDecodeParityAlias(t *testing.T) {
	// Parity code 0b11 is an undocumented alias for 8N1.
	raw := []byte{0x00, 0x00, 0x00, 0x78, 0x00, 0x00, 0x00, 0x00, 0x00}
	cfg, err := Decode(E22400T30, raw)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if cfg.Parity != Parity8N1 {
		t.Errorf("Parity = %s, want 8N1", cfg.Parity)
	}
}

func TestDecodeLength(t *testing.T) {
	if _, err := Decode(E22400T30, make([]byte, 8)); !lora.IsKind(err, lora.KindMalformedResponse) {
		t.Errorf("short block error = %v, want MALFORMED_RESPONSE", err)
	}
}

func TestSameBytesDifferentLayouts(t *testing.T) {
	// The same raw byte means different things under the two REG3 layouts;
	// the codec must never guess, only follow the chosen variant.
	raw := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x81, 0x00, 0x00}

	legacy, err := Decode(E22900Legacy, raw)
	if err != nil {
		t.Fatalf("Decode(legacy) error: %v", err)
	}
	if legacy.Mode != ModeFixedPoint {
		t.Errorf("legacy bit 0 should be fixed-point mode, got %s", legacy.Mode)
	}

	datasheet, err := Decode(E22900T22, raw)
	if err != nil {
		t.Fatalf("Decode(datasheet) error: %v", err)
	}
	if datasheet.Mode != ModeTransparent {
		t.Errorf("datasheet bit 6 clear should be transparent, got %s", datasheet.Mode)
	}
	if !datasheet.RSSIByte {
		t.Error("datasheet bit 7 set should enable the RSSI byte")
	}
	if datasheet.WORPeriod != WOR1000ms {
		t.Errorf("datasheet period bits = %s, want 1000ms", datasheet.WORPeriod)
	}
}

func TestPowerTables(t *testing.T) {
	// Code 0 is maximum power on current firmware and minimum on the legacy
	// profile. A swapped table would drive deployed radios at the wrong power.
	raw, err := Encode(E22400T30, ConfigBlock{PowerDBm: 30})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if raw[4]&0x03 != 0 {
		t.Errorf("30dBm on T30 encoded as code %d, want 0", raw[4]&0x03)
	}

	raw, err = Encode(E22900Legacy, ConfigBlock{PowerDBm: 27})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if raw[4]&0x03 != 3 {
		t.Errorf("27dBm on legacy encoded as code %d, want 3", raw[4]&0x03)
	}
}

func TestForBand(t *testing.T) {
	if got := E22400T22.ForBand(Band900); got.Name != E22900T22.Name {
		t.Errorf("ForBand(900) = %s, want %s", got.Name, E22900T22.Name)
	}
	if got := E22900Legacy.ForBand(Band400); got.Name != E22900Legacy.Name {
		t.Errorf("legacy has no 400MHz sibling, got %s", got.Name)
	}
}

func TestFrequencyMHz(t *testing.T) {
	if got := E22900T22.FrequencyMHz(21).String(); got != "871.125" {
		t.Errorf("channel 21 in the 900 band = %s MHz, want 871.125", got)
	}
	if got := E22400T30.FrequencyMHz(0).String(); got != "410.125" {
		t.Errorf("channel 0 in the 400 band = %s MHz, want 410.125", got)
	}
}

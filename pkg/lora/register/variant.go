package register

import "github.com/shopspring/decimal"

// Band is the RF band family a variant operates in.
type Band int

const (
	Band400 Band = iota // 410.125-493.125 MHz
	Band900             // 850.125-930.125 MHz
)

func (b Band) String() string {
	if b == Band900 {
		return "900MHz"
	}
	return "400MHz"
}

// reg3Layout maps logical flags to REG3 bit positions. Two incompatible
// layouts exist in the field for the same register; a bit position of -1
// means the variant cannot represent that feature at all, and requesting it
// is a VariantMismatch rather than a silently dropped bit.
type reg3Layout struct {
	base       byte // constant bits the firmware expects set
	rssiIBit   int  // RSSI byte in received data
	modeBit    int  // transparent / fixed-point
	relayBit   int
	lbtBit     int
	worRoleBit int
	worPeriod  bool // period occupies bits 2-0 when true
}

// layoutDatasheet is the official E22 register map: RSSI bit 7, transmission
// mode bit 6, relay bit 5, LBT bit 4, WOR role bit 3, WOR period bits 2-0.
var layoutDatasheet = reg3Layout{
	base:       0x00,
	rssiIBit:   7,
	modeBit:    6,
	relayBit:   5,
	lbtBit:     4,
	worRoleBit: 3,
	worPeriod:  true,
}

// layoutLegacy is the layout a long line of field tooling shipped with:
// transmission mode bit 0, relay bit 5, LBT bit 4, a constant 0x80 base, and
// no RSSI-byte or WOR bits. It is kept as its own profile because modules
// configured by that tooling are deployed and must keep reading back
// identically; the two layouts are ambiguous for the same raw byte and are
// never reconciled by guessing.
var layoutLegacy = reg3Layout{
	base:       0x80,
	rssiIBit:   -1,
	modeBit:    0,
	relayBit:   5,
	lbtBit:     4,
	worRoleBit: -1,
	worPeriod:  false,
}

// Variant is a device profile: which bits hold which field, what the four
// transmit-power codes mean in dBm, and where the channel grid starts.
// A variant is chosen once per session and never inferred from ambiguous
// register content.
type Variant struct {
	Name        string
	Band        Band
	PowerDBm    [4]int // dBm by power code 0-3
	BaseFreqMHz decimal.Decimal
	MaxChannel  uint8
	reg3        reg3Layout
	at          bool // configured through the AT+LORA wire format
}

var (
	baseFreq400 = decimal.RequireFromString("410.125")
	baseFreq900 = decimal.RequireFromString("850.125")
)

var (
	// E22 T20/T22 class, 22 dBm max. Power code 0 is MAXIMUM power.
	E22400T22 = Variant{Name: "E22-400T22", Band: Band400, PowerDBm: [4]int{22, 17, 13, 10},
		BaseFreqMHz: baseFreq400, MaxChannel: 83, reg3: layoutDatasheet}
	E22900T22 = Variant{Name: "E22-900T22", Band: Band900, PowerDBm: [4]int{22, 17, 13, 10},
		BaseFreqMHz: baseFreq900, MaxChannel: 80, reg3: layoutDatasheet}

	// E22 T27 class, 27 dBm max.
	E22400T27 = Variant{Name: "E22-400T27", Band: Band400, PowerDBm: [4]int{27, 24, 21, 18},
		BaseFreqMHz: baseFreq400, MaxChannel: 83, reg3: layoutDatasheet}
	E22900T27 = Variant{Name: "E22-900T27", Band: Band900, PowerDBm: [4]int{27, 24, 21, 18},
		BaseFreqMHz: baseFreq900, MaxChannel: 80, reg3: layoutDatasheet}

	// E22 T30 class, 30 dBm max.
	E22400T30 = Variant{Name: "E22-400T30", Band: Band400, PowerDBm: [4]int{30, 27, 24, 21},
		BaseFreqMHz: baseFreq400, MaxChannel: 83, reg3: layoutDatasheet}
	E22900T30 = Variant{Name: "E22-900T30", Band: Band900, PowerDBm: [4]int{30, 27, 24, 21},
		BaseFreqMHz: baseFreq900, MaxChannel: 83, reg3: layoutDatasheet}

	// E22900Legacy matches modules configured by the older field tooling:
	// ascending power codes (code 0 is MINIMUM power) and the legacy REG3
	// layout.
	E22900Legacy = Variant{Name: "E22-900-legacy", Band: Band900, PowerDBm: [4]int{13, 18, 22, 27},
		BaseFreqMHz: baseFreq900, MaxChannel: 83, reg3: layoutLegacy}

	// E90DTU400SL is the network-attached DTU gateway family, configured over
	// TCP with AT+LORA. Power tokens PWMAX..PWMIN map to codes 0-3.
	E90DTU400SL = Variant{Name: "E90-DTU-400SL", Band: Band400, PowerDBm: [4]int{33, 30, 27, 20},
		BaseFreqMHz: baseFreq400, MaxChannel: 83, at: true}
)

// Variants lists every known profile.
func Variants() []Variant {
	return []Variant{
		E22400T22, E22900T22,
		E22400T27, E22900T27,
		E22400T30, E22900T30,
		E22900Legacy,
		E90DTU400SL,
	}
}

// VariantByName resolves a profile by its name, for configuration files and
// API payloads.
func VariantByName(name string) (Variant, bool) {
	for _, v := range Variants() {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// ForBand returns the profile with this variant's power class in the given
// band, used after frequency detection. If no sibling exists in that band
// the variant is returned unchanged.
func (v Variant) ForBand(band Band) Variant {
	if v.Band == band {
		return v
	}
	for _, cand := range Variants() {
		if cand.Band == band && cand.PowerDBm == v.PowerDBm && cand.at == v.at && cand.reg3 == v.reg3 {
			return cand
		}
	}
	return v
}

// UsesAT reports whether this variant speaks the AT+LORA wire format instead
// of the binary register protocol.
func (v Variant) UsesAT() bool { return v.at }

// FrequencyMHz returns the RF carrier frequency for a channel number. Purely
// informational; the channel byte is what goes on the wire.
func (v Variant) FrequencyMHz(channel uint8) decimal.Decimal {
	return v.BaseFreqMHz.Add(decimal.NewFromInt(int64(channel)))
}

// powerCode resolves a symbolic dBm value to the variant's register code.
func (v Variant) powerCode(dbm int) (byte, bool) {
	for code, val := range v.PowerDBm {
		if val == dbm {
			return byte(code), true
		}
	}
	return 0, false
}

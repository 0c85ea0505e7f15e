// Package register converts between the module's raw configuration registers
// and a structured ConfigBlock, parameterized by an explicit device variant.
//
// The same logical configuration has two wire forms: the 9-byte binary
// register block used by the serial-attached E22 family, and the 14-field
// AT+LORA CSV used by the network-attached E90-DTU family. Both are driven
// from the one ConfigBlock type so that no caller ever packs bits by hand.
package register

import "fmt"

// BaudRate is the UART baud rate code (REG0 bits 7-5).
type BaudRate uint8

const (
	Baud1200 BaudRate = iota
	Baud2400
	Baud4800
	Baud9600
	Baud19200
	Baud38400
	Baud57600
	Baud115200
)

var baudBPS = [...]int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// BPS returns the baud rate in bits per second.
func (b BaudRate) BPS() int {
	if int(b) < len(baudBPS) {
		return baudBPS[b]
	}
	return 0
}

func (b BaudRate) String() string { return fmt.Sprintf("%d", b.BPS()) }

// Parity is the UART parity code (REG0 bits 4-3).
type Parity uint8

const (
	Parity8N1 Parity = iota
	Parity8O1
	Parity8E1
)

func (p Parity) String() string {
	switch p {
	case Parity8N1:
		return "8N1"
	case Parity8O1:
		return "8O1"
	case Parity8E1:
		return "8E1"
	default:
		return fmt.Sprintf("parity(%d)", uint8(p))
	}
}

// AirRate is the over-the-air modulation rate (REG0 bits 2-0), distinct from
// the UART baud rate. AirRate600 exists only on the AT wire format and has
// no binary register code.
type AirRate uint8

const (
	Air300 AirRate = iota
	Air1200
	Air2400
	Air4800
	Air9600
	Air19200
	Air38400
	Air62500
	Air600 // AT-only
)

var airBPS = [...]int{300, 1200, 2400, 4800, 9600, 19200, 38400, 62500, 600}

// BPS returns the air data rate in bits per second.
func (a AirRate) BPS() int {
	if int(a) < len(airBPS) {
		return airBPS[a]
	}
	return 0
}

func (a AirRate) String() string {
	bps := a.BPS()
	if bps >= 1000 {
		return fmt.Sprintf("%.1fk", float64(bps)/1000)
	}
	return fmt.Sprintf("%d", bps)
}

// SubPacket is the maximum over-the-air packet size code (REG1 bits 7-6).
type SubPacket uint8

const (
	SubPacket240 SubPacket = iota
	SubPacket128
	SubPacket64
	SubPacket32
)

var subPacketBytes = [...]int{240, 128, 64, 32}

// Bytes returns the sub-packet size in bytes.
func (s SubPacket) Bytes() int {
	if int(s) < len(subPacketBytes) {
		return subPacketBytes[s]
	}
	return 0
}

func (s SubPacket) String() string { return fmt.Sprintf("%dB", s.Bytes()) }

// TransmissionMode selects transparent or fixed-point addressing.
type TransmissionMode uint8

const (
	ModeTransparent TransmissionMode = iota
	ModeFixedPoint
)

func (m TransmissionMode) String() string {
	if m == ModeFixedPoint {
		return "fixed-point"
	}
	return "transparent"
}

// WORRole is the wake-on-radio duty role. WOROff exists only on the AT wire.
type WORRole uint8

const (
	WORReceiver WORRole = iota
	WORTransmitter
	WOROff // AT-only
)

func (w WORRole) String() string {
	switch w {
	case WORTransmitter:
		return "transmitter"
	case WOROff:
		return "off"
	default:
		return "receiver"
	}
}

// WORPeriod is the wake-on-radio period code (REG3 bits 2-0).
type WORPeriod uint8

const (
	WOR500ms WORPeriod = iota
	WOR1000ms
	WOR1500ms
	WOR2000ms
	WOR2500ms
	WOR3000ms
	WOR3500ms
	WOR4000ms
)

// Milliseconds returns the wake period in milliseconds.
func (w WORPeriod) Milliseconds() int { return (int(w) + 1) * 500 }

func (w WORPeriod) String() string { return fmt.Sprintf("%dms", w.Milliseconds()) }

// ConfigBlock is the module's persistent configuration in logical form.
//
// Key is write-only: the module never returns the encryption key in a
// read-back, so Decode always reports it as zero and a byte compare of a
// written block against its read-back must ignore the key bytes.
type ConfigBlock struct {
	Address      uint16
	NetID        uint8
	Baud         BaudRate
	Parity       Parity
	AirRate      AirRate
	Channel      uint8
	SubPacket    SubPacket
	AmbientNoise bool // ambient-noise RSSI measurement enable
	PowerDBm     int  // symbolic transmit power; must exist in the variant table
	RSSIByte     bool // append RSSI byte to received data
	Mode         TransmissionMode
	Relay        bool
	LBT          bool
	WORRole      WORRole
	WORPeriod    WORPeriod
	Key          uint16 // write-only, never readable back
}

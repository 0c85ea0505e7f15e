// Package frame builds request frames and validates response frames for the
// EBYTE register configuration protocol.
//
// Requests are [opcode, start_address, length], optionally followed by
// length payload bytes for writes. The module answers both reads and writes
// with [0xC1, start_address, length] followed by the payload.
package frame

import (
	"bytes"

	"lora-config-service/pkg/lora"
)

// Protocol opcodes.
const (
	OpWriteSave     = 0xC0 // write parameters, persist to non-volatile storage
	OpRead          = 0xC1 // read parameters; also the response header opcode
	OpWriteVolatile = 0xC2 // write parameters, lost on power-down
	OpVersion       = 0xC3 // version query, not implemented by all firmware
	OpReset         = 0xC4 // module reset
)

// Register block geometry.
const (
	ConfigAddress = 0x00 // start of the main configuration block
	ConfigLength  = 0x09 // ADDH ADDL NETID REG0 REG1 REG2 REG3 KEY_H KEY_L
	KeyAddress    = 0x04 // encryption key registers
	KeyLength     = 0x02
	InfoAddress   = 0x80 // product information block
	InfoLength    = 0x07
)

// EncodeRead builds a read request for length bytes at address.
func EncodeRead(address, length byte) []byte {
	return []byte{OpRead, address, length}
}

// EncodeWrite builds a write request. The declared length must match the
// payload; a mismatched frame would shift every following register byte.
func EncodeWrite(address, length byte, payload []byte, save bool) ([]byte, error) {
	if int(length) != len(payload) {
		return nil, lora.Errf(lora.KindInvalidParameterRange, "frame.EncodeWrite",
			"declared length %d does not match payload length %d", length, len(payload))
	}
	op := byte(OpWriteVolatile)
	if save {
		op = OpWriteSave
	}
	frame := make([]byte, 0, 3+len(payload))
	frame = append(frame, op, address, length)
	frame = append(frame, payload...)
	return frame, nil
}

// EncodeVersionQuery builds the vendor-undocumented version probe. Some
// firmware does not implement it; the caller must treat short or empty
// responses as UnsupportedCommand, not as a protocol error.
func EncodeVersionQuery() []byte {
	return []byte{OpVersion, 0x00, 0x00}
}

// EncodeRSSIQuery builds the ambient-noise/last-receive RSSI probe.
func EncodeRSSIQuery() []byte {
	return []byte{0xC0, 0xC1, 0xC2, 0xC3, 0x00, 0x02}
}

// DecodeResponse validates raw against the request that produced it and
// returns the payload bytes.
//
// The checks run in a fixed order: an empty response is a timeout; a response
// byte-identical to the request is an echo (the module is in pass-through
// mode, a non-retryable operator condition); anything shorter than the
// declared payload or with a header other than [0xC1, address, length] is
// malformed.
func DecodeResponse(request, raw []byte, address, length byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, &lora.Error{Kind: lora.KindTimeout, Op: "frame.DecodeResponse",
			Detail: "no response within deadline"}
	}
	if bytes.Equal(raw, request) {
		return nil, &lora.Error{Kind: lora.KindEchoDetected, Op: "frame.DecodeResponse",
			Detail: "device echoed the request; module is not in configuration mode", Raw: raw}
	}
	if len(raw) < 3+int(length) {
		return nil, &lora.Error{Kind: lora.KindMalformedResponse, Op: "frame.DecodeResponse",
			Detail: "short response", Raw: raw}
	}
	if raw[0] != OpRead || raw[1] != address || raw[2] != length {
		return nil, &lora.Error{Kind: lora.KindMalformedResponse, Op: "frame.DecodeResponse",
			Detail: "header mismatch", Raw: raw}
	}
	payload := make([]byte, length)
	copy(payload, raw[3:3+int(length)])
	return payload, nil
}

// RSSI holds the two signal measurements the RSSI probe returns.
type RSSI struct {
	AmbientNoiseDBm int
	LastReceiveDBm  int
}

// DecodeRSSIResponse validates an RSSI probe response and converts the raw
// register values to dBm.
func DecodeRSSIResponse(request, raw []byte) (RSSI, error) {
	payload, err := DecodeResponse(request, raw, 0x00, 0x02)
	if err != nil {
		return RSSI{}, err
	}
	return RSSIFromPayload(payload), nil
}

// RSSIFromPayload converts the two raw signal registers to dBm.
func RSSIFromPayload(payload []byte) RSSI {
	return RSSI{
		AmbientNoiseDBm: -(256 - int(payload[0])),
		LastReceiveDBm:  -(256 - int(payload[1])),
	}
}

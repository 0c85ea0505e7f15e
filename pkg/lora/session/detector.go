package session

import (
	"bytes"
	"context"

	"lora-config-service/pkg/lora"
	"lora-config-service/pkg/lora/frame"
	"lora-config-service/pkg/lora/register"
)

// Version-response frequency byte values, as reported by firmware that
// implements the probe.
const (
	freq433MHz = 0x32
	freq470MHz = 0x38
	freq868MHz = 0x45
	freq915MHz = 0x44
)

// DetectVariant issues the version probe and maps the reported frequency byte
// to a band, returning the fallback variant's sibling in that band. The power
// class cannot be detected and always comes from the fallback.
//
// Detection fails softly: no response, a short response, an echoed request or
// an all-zero response yield an UnsupportedCommand error and the caller keeps
// its fallback variant. The detector never inspects configuration-register
// content, which is ambiguous between layouts for the same raw bits.
func DetectVariant(ctx context.Context, tr lora.Transport, fallback register.Variant) (register.Variant, error) {
	const op = "session.DetectVariant"

	req := frame.EncodeVersionQuery()
	if err := tr.Drain(ctx); err != nil {
		return fallback, lora.Errf(lora.KindUnsupportedCommand, op, "drain failed: %v", err)
	}
	if err := tr.Write(ctx, req); err != nil {
		return fallback, lora.Errf(lora.KindUnsupportedCommand, op, "probe write failed: %v", err)
	}
	raw, err := tr.Read(ctx, 16)
	if err != nil {
		return fallback, lora.Errf(lora.KindUnsupportedCommand, op, "probe read failed: %v", err)
	}

	if len(raw) < 3 || bytes.Equal(raw, req) || allZero(raw) {
		return fallback, lora.Errf(lora.KindUnsupportedCommand, op,
			"version query not implemented (%d bytes)", len(raw))
	}
	if len(raw) < 5 {
		return fallback, lora.Errf(lora.KindUnsupportedCommand, op,
			"version response carries no frequency byte")
	}

	switch raw[4] {
	case freq433MHz, freq470MHz:
		return fallback.ForBand(register.Band400), nil
	case freq868MHz, freq915MHz:
		return fallback.ForBand(register.Band900), nil
	}
	return fallback, lora.Errf(lora.KindUnsupportedCommand, op,
		"unrecognized frequency byte 0x%02X", raw[4])
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// internal/service/convert.go
package service

import (
	"lora-config-service/internal/model"
	"lora-config-service/pkg/lora"
	"lora-config-service/pkg/lora/register"
)

// configRequestToBlock converts the API request shape into a logical
// configuration block. Symbolic values arrive as their physical units (bps,
// bytes, milliseconds) and are mapped back to protocol codes; anything with
// no code is rejected here, before a session is touched.
func configRequestToBlock(req *model.ConfigRequest) (register.ConfigBlock, error) {
	const op = "service.configRequestToBlock"
	var cfg register.ConfigBlock

	cfg.Address = req.Address
	cfg.NetID = req.NetID
	cfg.Channel = req.Channel
	cfg.AmbientNoise = req.AmbientNoise
	cfg.PowerDBm = req.PowerDBm
	cfg.RSSIByte = req.RSSIByte
	cfg.Relay = req.Relay
	cfg.LBT = req.LBT
	cfg.Key = req.Key

	found := false
	for b := register.Baud1200; b <= register.Baud115200; b++ {
		if b.BPS() == req.BaudRate {
			cfg.Baud = b
			found = true
			break
		}
	}
	if !found {
		return cfg, lora.Errf(lora.KindInvalidParameterRange, op, "unknown baud rate %d", req.BaudRate)
	}

	switch req.Parity {
	case "", "8N1":
		cfg.Parity = register.Parity8N1
	case "8O1":
		cfg.Parity = register.Parity8O1
	case "8E1":
		cfg.Parity = register.Parity8E1
	default:
		return cfg, lora.Errf(lora.KindInvalidParameterRange, op, "unknown parity %q", req.Parity)
	}

	found = false
	for a := register.Air300; a <= register.Air600; a++ {
		if a.BPS() == req.AirRate {
			cfg.AirRate = a
			found = true
			break
		}
	}
	if !found {
		return cfg, lora.Errf(lora.KindInvalidParameterRange, op, "unknown air rate %d", req.AirRate)
	}

	found = false
	for s := register.SubPacket240; s <= register.SubPacket32; s++ {
		if s.Bytes() == req.SubPacket {
			cfg.SubPacket = s
			found = true
			break
		}
	}
	if !found {
		return cfg, lora.Errf(lora.KindInvalidParameterRange, op, "unknown sub-packet size %d", req.SubPacket)
	}

	switch req.Mode {
	case "", "transparent":
		cfg.Mode = register.ModeTransparent
	case "fixed-point":
		cfg.Mode = register.ModeFixedPoint
	default:
		return cfg, lora.Errf(lora.KindInvalidParameterRange, op, "unknown mode %q", req.Mode)
	}

	switch req.WORRole {
	case "", "receiver":
		cfg.WORRole = register.WORReceiver
	case "transmitter":
		cfg.WORRole = register.WORTransmitter
	case "off":
		cfg.WORRole = register.WOROff
	default:
		return cfg, lora.Errf(lora.KindInvalidParameterRange, op, "unknown WOR role %q", req.WORRole)
	}

	periodMs := req.WORPeriodMs
	if periodMs == 0 {
		periodMs = 500
	}
	if periodMs < 500 || periodMs > 4000 || periodMs%500 != 0 {
		return cfg, lora.Errf(lora.KindInvalidParameterRange, op, "WOR period %dms not in 500..4000 step 500", periodMs)
	}
	cfg.WORPeriod = register.WORPeriod(periodMs/500 - 1)

	return cfg, nil
}

// blockToResponse converts a configuration read from a module into the API
// response shape, with symbolic codes rendered in physical units and the
// derived carrier frequency attached.
func blockToResponse(v register.Variant, cfg register.ConfigBlock) *model.ConfigResponse {
	mode := "transparent"
	if cfg.Mode == register.ModeFixedPoint {
		mode = "fixed-point"
	}
	worRole := "receiver"
	switch cfg.WORRole {
	case register.WORTransmitter:
		worRole = "transmitter"
	case register.WOROff:
		worRole = "off"
	}

	return &model.ConfigResponse{
		Address:      cfg.Address,
		NetID:        cfg.NetID,
		BaudRate:     cfg.Baud.BPS(),
		Parity:       cfg.Parity.String(),
		AirRate:      cfg.AirRate.BPS(),
		Channel:      cfg.Channel,
		FrequencyMHz: v.FrequencyMHz(cfg.Channel).String(),
		SubPacket:    cfg.SubPacket.Bytes(),
		AmbientNoise: cfg.AmbientNoise,
		PowerDBm:     cfg.PowerDBm,
		RSSIByte:     cfg.RSSIByte,
		Mode:         mode,
		Relay:        cfg.Relay,
		LBT:          cfg.LBT,
		WORRole:      worRole,
		WORPeriodMs:  cfg.WORPeriod.Milliseconds(),
		Variant:      v.Name,
	}
}

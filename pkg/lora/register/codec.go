package register

import (
	"lora-config-service/pkg/lora"
)

// BlockSize is the size of the binary configuration block:
// [ADDR_HI, ADDR_LO, NETID, REG0, REG1, REG2, REG3, KEY_HI, KEY_LO].
const BlockSize = 9

// Encode packs a ConfigBlock into the 9-byte register block under the given
// variant. Symbolic values with no code in the variant's tables fail hard
// with VariantMismatch; out-of-domain field values fail with
// InvalidParameterRange. Nothing is clamped: a wrong power code on the wire
// can drive a deployed module far outside its intended output.
func Encode(v Variant, cfg ConfigBlock) ([]byte, error) {
	const op = "register.Encode"

	if cfg.Baud > Baud115200 {
		return nil, lora.Errf(lora.KindInvalidParameterRange, op, "baud rate code %d out of range", cfg.Baud)
	}
	if cfg.Parity > Parity8E1 {
		return nil, lora.Errf(lora.KindInvalidParameterRange, op, "parity code %d out of range", cfg.Parity)
	}
	if cfg.SubPacket > SubPacket32 {
		return nil, lora.Errf(lora.KindInvalidParameterRange, op, "sub-packet code %d out of range", cfg.SubPacket)
	}
	if cfg.WORPeriod > WOR4000ms {
		return nil, lora.Errf(lora.KindInvalidParameterRange, op, "WOR period code %d out of range", cfg.WORPeriod)
	}
	if cfg.Channel > v.MaxChannel {
		return nil, lora.Errf(lora.KindInvalidParameterRange, op,
			"channel %d above %s maximum %d", cfg.Channel, v.Name, v.MaxChannel)
	}
	if cfg.AirRate > Air62500 {
		// Air600 and anything newer only exists on the AT wire.
		return nil, lora.Errf(lora.KindVariantMismatch, op,
			"air rate %s has no register code on %s", cfg.AirRate, v.Name)
	}
	powerCode, ok := v.powerCode(cfg.PowerDBm)
	if !ok {
		return nil, lora.Errf(lora.KindVariantMismatch, op,
			"%ddBm has no code in the %s power table %v", cfg.PowerDBm, v.Name, v.PowerDBm)
	}

	reg0 := byte(cfg.Baud)<<5 | byte(cfg.Parity)<<3 | byte(cfg.AirRate)
	reg1 := byte(cfg.SubPacket) << 6
	if cfg.AmbientNoise {
		reg1 |= 1 << 5
	}
	reg1 |= powerCode

	reg3, err := encodeReg3(v, cfg)
	if err != nil {
		return nil, err
	}

	return []byte{
		byte(cfg.Address >> 8),
		byte(cfg.Address & 0xFF),
		cfg.NetID,
		reg0,
		reg1,
		cfg.Channel,
		reg3,
		byte(cfg.Key >> 8),
		byte(cfg.Key & 0xFF),
	}, nil
}

func encodeReg3(v Variant, cfg ConfigBlock) (byte, error) {
	const op = "register.Encode"
	layout := v.reg3
	reg3 := layout.base

	setBit := func(bit int, on bool, field string) error {
		if bit < 0 {
			if on {
				return lora.Errf(lora.KindVariantMismatch, op,
					"%s is not representable on %s", field, v.Name)
			}
			return nil
		}
		if on {
			reg3 |= 1 << uint(bit)
		}
		return nil
	}

	if err := setBit(layout.rssiIBit, cfg.RSSIByte, "RSSI byte"); err != nil {
		return 0, err
	}
	if err := setBit(layout.modeBit, cfg.Mode == ModeFixedPoint, "fixed-point mode"); err != nil {
		return 0, err
	}
	if err := setBit(layout.relayBit, cfg.Relay, "relay"); err != nil {
		return 0, err
	}
	if err := setBit(layout.lbtBit, cfg.LBT, "LBT"); err != nil {
		return 0, err
	}

	switch cfg.WORRole {
	case WORReceiver:
		// role bit clear, representable everywhere
	case WORTransmitter:
		if err := setBit(layout.worRoleBit, true, "WOR transmitter role"); err != nil {
			return 0, err
		}
	default:
		return 0, lora.Errf(lora.KindVariantMismatch, op,
			"WOR role %s is not representable on %s", cfg.WORRole, v.Name)
	}

	if layout.worPeriod {
		reg3 |= byte(cfg.WORPeriod) & 0x07
	} else if cfg.WORPeriod != WOR500ms {
		return 0, lora.Errf(lora.KindVariantMismatch, op,
			"WOR period is not representable on %s", v.Name)
	}

	return reg3, nil
}

// Decode unpacks a 9-byte register block into a ConfigBlock. The key bytes
// (7-8) are not meaningfully decodable: the module zeroes them in read-backs,
// so Key is always reported as zero.
func Decode(v Variant, raw []byte) (ConfigBlock, error) {
	const op = "register.Decode"
	if len(raw) != BlockSize {
		return ConfigBlock{}, lora.Errf(lora.KindMalformedResponse, op,
			"configuration block is %d bytes, want %d", len(raw), BlockSize)
	}

	reg0, reg1, reg3 := raw[3], raw[4], raw[6]
	layout := v.reg3

	bit := func(pos int) bool {
		if pos < 0 {
			return false
		}
		return reg3&(1<<uint(pos)) != 0
	}

	cfg := ConfigBlock{
		Address:      uint16(raw[0])<<8 | uint16(raw[1]),
		NetID:        raw[2],
		Baud:         BaudRate(reg0 >> 5),
		Parity:       Parity((reg0 >> 3) & 0x03),
		AirRate:      AirRate(reg0 & 0x07),
		SubPacket:    SubPacket(reg1 >> 6),
		AmbientNoise: reg1&(1<<5) != 0,
		PowerDBm:     v.PowerDBm[reg1&0x03],
		Channel:      raw[5],
		RSSIByte:     bit(layout.rssiIBit),
		Relay:        bit(layout.relayBit),
		LBT:          bit(layout.lbtBit),
	}
	if bit(layout.modeBit) {
		cfg.Mode = ModeFixedPoint
	}
	if bit(layout.worRoleBit) {
		cfg.WORRole = WORTransmitter
	}
	if layout.worPeriod {
		cfg.WORPeriod = WORPeriod(reg3 & 0x07)
	}

	// Parity code 0b11 is an alias for 8N1 on every known firmware.
	if cfg.Parity > Parity8E1 {
		cfg.Parity = Parity8N1
	}

	return cfg, nil
}

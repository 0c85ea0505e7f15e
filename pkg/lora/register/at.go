package register

import (
	"fmt"
	"strconv"
	"strings"

	"lora-config-service/pkg/lora"
)

// The network-attached DTU family takes its whole radio configuration in one
// textual command, AT+LORA=<14 comma-separated fields>, and answers a bare
// AT+LORA query with the same CSV. Field order on the wire:
//
//	addr, netid, air rate, packet length, ambient-noise enable, tx power,
//	channel, rssi-in-data enable, transfer mode, relay, lbt, wor mode,
//	wor period, key
//
// Unlike the binary protocol the key field is present in query responses,
// though firmware reports it as 0.

const atPrefix = "AT+LORA"

// Power tokens map to power codes 0-3; what those codes mean in dBm comes
// from the variant table, same as the binary protocol.
var atPowerTokens = [4]string{"PWMAX", "PWMID", "PWLOW", "PWMIN"}

var atWORTokens = map[WORRole]string{
	WORReceiver:    "WORRX",
	WORTransmitter: "WORTX",
	WOROff:         "WOROFF",
}

// MarshalAT renders a ConfigBlock as the 14-field set command, without line
// terminator. Validation mirrors Encode: unrepresentable symbolic values are
// a VariantMismatch, out-of-domain values an InvalidParameterRange.
func MarshalAT(v Variant, cfg ConfigBlock) (string, error) {
	const op = "register.MarshalAT"

	if cfg.SubPacket > SubPacket32 {
		return "", lora.Errf(lora.KindInvalidParameterRange, op, "sub-packet code %d out of range", cfg.SubPacket)
	}
	if cfg.WORPeriod > WOR4000ms {
		return "", lora.Errf(lora.KindInvalidParameterRange, op, "WOR period code %d out of range", cfg.WORPeriod)
	}
	if cfg.Channel > v.MaxChannel {
		return "", lora.Errf(lora.KindInvalidParameterRange, op,
			"channel %d above %s maximum %d", cfg.Channel, v.Name, v.MaxChannel)
	}
	if cfg.AirRate > Air600 {
		return "", lora.Errf(lora.KindInvalidParameterRange, op, "air rate code %d out of range", cfg.AirRate)
	}
	powerCode, ok := v.powerCode(cfg.PowerDBm)
	if !ok {
		return "", lora.Errf(lora.KindVariantMismatch, op,
			"%ddBm has no code in the %s power table %v", cfg.PowerDBm, v.Name, v.PowerDBm)
	}
	worTok, ok := atWORTokens[cfg.WORRole]
	if !ok {
		return "", lora.Errf(lora.KindInvalidParameterRange, op, "WOR role code %d out of range", cfg.WORRole)
	}

	onOff := func(on bool, onTok, offTok string) string {
		if on {
			return onTok
		}
		return offTok
	}

	fields := []string{
		strconv.Itoa(int(cfg.Address)),
		strconv.Itoa(int(cfg.NetID)),
		strconv.Itoa(cfg.AirRate.BPS()),
		strconv.Itoa(cfg.SubPacket.Bytes()),
		onOff(cfg.AmbientNoise, "RSCHON", "RSCHOFF"),
		atPowerTokens[powerCode],
		strconv.Itoa(int(cfg.Channel)),
		onOff(cfg.RSSIByte, "RSDATON", "RSDATOFF"),
		onOff(cfg.Mode == ModeFixedPoint, "TRFIX", "TRNOR"),
		onOff(cfg.Relay, "RLYON", "RLYOFF"),
		onOff(cfg.LBT, "LBTON", "LBTOFF"),
		worTok,
		strconv.Itoa(cfg.WORPeriod.Milliseconds()),
		strconv.Itoa(int(cfg.Key)),
	}
	return atPrefix + "=" + strings.Join(fields, ","), nil
}

// QueryAT is the bare query whose response UnmarshalAT parses.
func QueryAT() string { return atPrefix }

// UnmarshalAT parses a query response. The firmware answers either with the
// bare CSV or with an "AT+LORA=" prefix; both are accepted.
func UnmarshalAT(v Variant, response string) (ConfigBlock, error) {
	const op = "register.UnmarshalAT"

	s := strings.TrimSpace(response)
	if i := strings.Index(s, atPrefix+"="); i >= 0 {
		s = s[i+len(atPrefix)+1:]
	}
	s = strings.TrimPrefix(s, "+LORA:")
	s = strings.TrimSpace(s)

	parts := strings.Split(s, ",")
	if len(parts) < 14 {
		return ConfigBlock{}, lora.Errf(lora.KindMalformedResponse, op,
			"expected 14 fields, got %d in %q", len(parts), response)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	var cfg ConfigBlock
	var err error

	if cfg.Address, err = parseUint16(op, "address", parts[0]); err != nil {
		return ConfigBlock{}, err
	}
	netid, err := parseUint16(op, "netid", parts[1])
	if err != nil {
		return ConfigBlock{}, err
	}
	if netid > 0xFF {
		return ConfigBlock{}, lora.Errf(lora.KindMalformedResponse, op, "netid %d out of range", netid)
	}
	cfg.NetID = uint8(netid)

	if cfg.AirRate, err = airRateFromBPS(op, parts[2]); err != nil {
		return ConfigBlock{}, err
	}
	if cfg.SubPacket, err = subPacketFromBytes(op, parts[3]); err != nil {
		return ConfigBlock{}, err
	}
	if cfg.AmbientNoise, err = parseOnOff(op, "ambient noise", parts[4], "RSCHON", "RSCHOFF"); err != nil {
		return ConfigBlock{}, err
	}

	powerCode := -1
	for code, tok := range atPowerTokens {
		if parts[5] == tok {
			powerCode = code
		}
	}
	if powerCode < 0 {
		return ConfigBlock{}, lora.Errf(lora.KindMalformedResponse, op, "unknown power token %q", parts[5])
	}
	cfg.PowerDBm = v.PowerDBm[powerCode]

	ch, err := parseUint16(op, "channel", parts[6])
	if err != nil {
		return ConfigBlock{}, err
	}
	if ch > 0xFF {
		return ConfigBlock{}, lora.Errf(lora.KindMalformedResponse, op, "channel %d out of range", ch)
	}
	cfg.Channel = uint8(ch)

	if cfg.RSSIByte, err = parseOnOff(op, "rssi data", parts[7], "RSDATON", "RSDATOFF"); err != nil {
		return ConfigBlock{}, err
	}
	fixed, err := parseOnOff(op, "transfer mode", parts[8], "TRFIX", "TRNOR")
	if err != nil {
		return ConfigBlock{}, err
	}
	if fixed {
		cfg.Mode = ModeFixedPoint
	}
	if cfg.Relay, err = parseOnOff(op, "relay", parts[9], "RLYON", "RLYOFF"); err != nil {
		return ConfigBlock{}, err
	}
	if cfg.LBT, err = parseOnOff(op, "lbt", parts[10], "LBTON", "LBTOFF"); err != nil {
		return ConfigBlock{}, err
	}

	role, ok := worRoleFromToken(parts[11])
	if !ok {
		return ConfigBlock{}, lora.Errf(lora.KindMalformedResponse, op, "unknown WOR token %q", parts[11])
	}
	cfg.WORRole = role

	period, err := strconv.Atoi(parts[12])
	if err != nil || period < 500 || period > 4000 || period%500 != 0 {
		return ConfigBlock{}, lora.Errf(lora.KindMalformedResponse, op, "bad WOR period %q", parts[12])
	}
	cfg.WORPeriod = WORPeriod(period/500 - 1)

	if cfg.Key, err = parseUint16(op, "key", parts[13]); err != nil {
		return ConfigBlock{}, err
	}

	return cfg, nil
}

func parseUint16(op, field, s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, lora.Errf(lora.KindMalformedResponse, op, "bad %s %q", field, s)
	}
	return uint16(n), nil
}

func parseOnOff(op, field, s, onTok, offTok string) (bool, error) {
	switch s {
	case onTok:
		return true, nil
	case offTok:
		return false, nil
	}
	return false, lora.Errf(lora.KindMalformedResponse, op, "bad %s token %q", field, s)
}

func airRateFromBPS(op, s string) (AirRate, error) {
	bps, err := strconv.Atoi(s)
	if err == nil {
		for code, v := range airBPS {
			if v == bps {
				return AirRate(code), nil
			}
		}
	}
	return 0, lora.Errf(lora.KindMalformedResponse, op, "unknown air rate %q", s)
}

func subPacketFromBytes(op, s string) (SubPacket, error) {
	n, err := strconv.Atoi(s)
	if err == nil {
		for code, v := range subPacketBytes {
			if v == n {
				return SubPacket(code), nil
			}
		}
	}
	return 0, lora.Errf(lora.KindMalformedResponse, op, "unknown packet length %q", s)
}

func worRoleFromToken(s string) (WORRole, bool) {
	for role, tok := range atWORTokens {
		if tok == s {
			return role, true
		}
	}
	return 0, false
}

// DescribeFrequency renders the informational carrier frequency for logs and
// API payloads, e.g. "431.125 MHz".
func DescribeFrequency(v Variant, channel uint8) string {
	return fmt.Sprintf("%s MHz", v.FrequencyMHz(channel).String())
}

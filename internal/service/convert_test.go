// internal/service/convert_test.go
package service

import (
	"testing"

	"lora-config-service/internal/model"
	"lora-config-service/pkg/lora"
	"lora-config-service/pkg/lora/register"
)

func validRequest() *model.ConfigRequest {
	return &model.ConfigRequest{
		Address:     0x1234,
		BaudRate:    9600,
		Parity:      "8N1",
		AirRate:     2400,
		SubPacket:   240,
		PowerDBm:    22,
		Channel:     18,
		Mode:        "transparent",
		WORRole:     "off",
		WORPeriodMs: 2000,
	}
}

func TestConfigRequestToBlock(t *testing.T) {
	cfg, err := configRequestToBlock(validRequest())
	if err != nil {
		t.Fatalf("configRequestToBlock: %v", err)
	}

	if cfg.Baud != register.Baud9600 {
		t.Errorf("Baud = %v, want Baud9600", cfg.Baud)
	}
	if cfg.AirRate != register.Air2400 {
		t.Errorf("AirRate = %v, want Air2400", cfg.AirRate)
	}
	if cfg.SubPacket != register.SubPacket240 {
		t.Errorf("SubPacket = %v, want SubPacket240", cfg.SubPacket)
	}
	if cfg.WORRole != register.WOROff {
		t.Errorf("WORRole = %v, want WOROff", cfg.WORRole)
	}
	if cfg.WORPeriod != register.WOR2000ms {
		t.Errorf("WORPeriod = %v, want WOR2000ms", cfg.WORPeriod)
	}
}

func TestConfigRequestToBlockDefaults(t *testing.T) {
	req := validRequest()
	req.Parity = ""
	req.Mode = ""
	req.WORRole = ""
	req.WORPeriodMs = 0

	cfg, err := configRequestToBlock(req)
	if err != nil {
		t.Fatalf("configRequestToBlock: %v", err)
	}
	if cfg.Parity != register.Parity8N1 {
		t.Errorf("Parity = %v, want Parity8N1", cfg.Parity)
	}
	if cfg.Mode != register.ModeTransparent {
		t.Errorf("Mode = %v, want ModeTransparent", cfg.Mode)
	}
	if cfg.WORRole != register.WORReceiver {
		t.Errorf("WORRole = %v, want WORReceiver", cfg.WORRole)
	}
	if cfg.WORPeriod != register.WOR500ms {
		t.Errorf("WORPeriod = %v, want WOR500ms", cfg.WORPeriod)
	}
}

func TestConfigRequestToBlockRejection(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.ConfigRequest)
	}{
		{"unknown baud", func(r *model.ConfigRequest) { r.BaudRate = 14400 }},
		{"unknown parity", func(r *model.ConfigRequest) { r.Parity = "7E2" }},
		{"unknown air rate", func(r *model.ConfigRequest) { r.AirRate = 5000 }},
		{"unknown sub-packet", func(r *model.ConfigRequest) { r.SubPacket = 100 }},
		{"unknown mode", func(r *model.ConfigRequest) { r.Mode = "broadcast" }},
		{"unknown wor role", func(r *model.ConfigRequest) { r.WORRole = "relay" }},
		{"period too long", func(r *model.ConfigRequest) { r.WORPeriodMs = 5000 }},
		{"period off grid", func(r *model.ConfigRequest) { r.WORPeriodMs = 750 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			_, err := configRequestToBlock(req)
			if !lora.IsKind(err, lora.KindInvalidParameterRange) {
				t.Fatalf("err = %v, want KindInvalidParameterRange", err)
			}
		})
	}
}

func TestBlockToResponse(t *testing.T) {
	cfg, err := configRequestToBlock(validRequest())
	if err != nil {
		t.Fatalf("configRequestToBlock: %v", err)
	}

	resp := blockToResponse(register.E22900T22, cfg)
	if resp.BaudRate != 9600 {
		t.Errorf("BaudRate = %d, want 9600", resp.BaudRate)
	}
	if resp.FrequencyMHz != "868.125" {
		t.Errorf("FrequencyMHz = %s, want 868.125", resp.FrequencyMHz)
	}
	if resp.WORRole != "off" {
		t.Errorf("WORRole = %s, want off", resp.WORRole)
	}
	if resp.Variant != register.E22900T22.Name {
		t.Errorf("Variant = %s, want %s", resp.Variant, register.E22900T22.Name)
	}
}

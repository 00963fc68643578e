package wire_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streamlation/audiolink/pkg/pcm"
	"github.com/streamlation/audiolink/pkg/wire"
)

func TestParseInbound_HeartbeatResponse(t *testing.T) {
	msg, ok := wire.ParseInbound([]byte(`{"type":"heartbeat_response","server_timestamp":1700000000000,"client_timestamp":1699999999000}`))
	if !ok {
		t.Fatal("expected successful parse")
	}
	hb, ok := msg.(wire.HeartbeatResponse)
	if !ok {
		t.Fatalf("expected HeartbeatResponse, got %T", msg)
	}
	if hb.ServerTimestamp != 1700000000000 {
		t.Errorf("server_timestamp: got %d", hb.ServerTimestamp)
	}
	if hb.ClientTimestamp == nil || *hb.ClientTimestamp != 1699999999000 {
		t.Errorf("client_timestamp: got %v", hb.ClientTimestamp)
	}
}

func TestParseInbound_HeartbeatResponseNullClientTimestamp(t *testing.T) {
	msg, ok := wire.ParseInbound([]byte(`{"type":"heartbeat_response","server_timestamp":5,"client_timestamp":null}`))
	if !ok {
		t.Fatal("expected successful parse")
	}
	hb := msg.(wire.HeartbeatResponse)
	if hb.ClientTimestamp != nil {
		t.Errorf("expected nil client_timestamp, got %d", *hb.ClientTimestamp)
	}
}

func TestParseInbound_Translation(t *testing.T) {
	msg, ok := wire.ParseInbound([]byte(`{"text":"hallo","source_language":"en","target_language":"de"}`))
	if !ok {
		t.Fatal("expected successful parse")
	}
	tr, ok := msg.(wire.Translation)
	if !ok {
		t.Fatalf("expected Translation, got %T", msg)
	}
	if tr.Text != "hallo" || tr.SourceLanguage != "en" || tr.TargetLanguage != "de" {
		t.Errorf("unexpected translation: %+v", tr)
	}
}

func TestParseInbound_Rejects(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", "garbage"},
		{"unknown type", `{"type":"mystery"}`},
		{"empty object", `{}`},
		{"array", `[1,2,3]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := wire.ParseInbound([]byte(tc.data)); ok {
				t.Errorf("expected rejection of %q", tc.data)
			}
		})
	}
}

func TestValidateOutbound_AudioMessage(t *testing.T) {
	msg := wire.NewAudioMessage(pcm.FloatToPCM16([]float32{0.1, -0.1}), 16000)
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := wire.ValidateOutbound(payload); err != nil {
		t.Errorf("valid audio message rejected: %v", err)
	}
}

func TestValidateOutbound_RejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"audio missing value", `{"type":"audio","sample_rate":16000}`},
		{"audio bad base64", `{"type":"audio","value":"!!!","sample_rate":16000}`},
		{"audio zero sample rate", `{"type":"audio","value":"AAAA","sample_rate":0}`},
		{"target_language too long", `{"type":"target_language","language":"eng"}`},
		{"target_language uppercase", `{"type":"target_language","language":"EN"}`},
		{"heartbeat missing timestamp", `{"type":"heartbeat"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := wire.ValidateOutbound([]byte(tc.data))
			if !errors.Is(err, wire.ErrSchemaValidation) {
				t.Errorf("expected ErrSchemaValidation, got %v", err)
			}
		})
	}
}

func TestValidateOutbound_PassesUnknownShapes(t *testing.T) {
	cases := []string{
		`{"type":"custom","anything":true}`,
		`{"no_type":1}`,
		"plain text payload",
	}
	for _, data := range cases {
		if err := wire.ValidateOutbound([]byte(data)); err != nil {
			t.Errorf("payload %q unexpectedly rejected: %v", data, err)
		}
	}
}

func TestBinaryEnvelope_RoundTrip(t *testing.T) {
	pcmData := pcm.FloatToPCM16([]float32{0.25, -0.25, 0.5})
	meta := wire.NewAudioMetadata(16000, 7, len(pcmData), time.UnixMilli(1700000000000))

	env, err := wire.EncodeBinaryEnvelope(meta, pcmData)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	gotMeta, gotPCM, err := wire.DecodeBinaryEnvelope(env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotMeta != meta {
		t.Errorf("metadata mismatch: got %+v, want %+v", gotMeta, meta)
	}
	if string(gotPCM) != string(pcmData) {
		t.Errorf("pcm mismatch: got %v, want %v", gotPCM, pcmData)
	}
}

func TestDecodeBinaryEnvelope_Truncated(t *testing.T) {
	if _, _, err := wire.DecodeBinaryEnvelope([]byte{0x00, 0x01}); err == nil {
		t.Error("expected error for short header")
	}
	// Header claims more metadata than present.
	if _, _, err := wire.DecodeBinaryEnvelope([]byte{0x00, 0x00, 0xff, 0xff, 0x7b}); err == nil {
		t.Error("expected error for oversized metadata length")
	}
}

func TestValidLanguageCode(t *testing.T) {
	valid := []string{"en", "de", "uk"}
	invalid := []string{"", "e", "eng", "EN", "e1", "deu"}
	for _, s := range valid {
		if !wire.ValidLanguageCode(s) {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range invalid {
		if wire.ValidLanguageCode(s) {
			t.Errorf("%q should be invalid", s)
		}
	}
}

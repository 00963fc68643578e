// Package wire defines the messages exchanged with the streaming server and
// the functions that encode, parse, and validate them.
//
// Outbound messages are JSON text by default. Audio may alternatively be
// packaged as a binary envelope (length-prefixed metadata followed by raw
// PCM16) when the client is configured for binary mode. Inbound messages are
// always JSON text; translation results carry no "type" field and are
// distinguished structurally.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/streamlation/audiolink/pkg/pcm"
)

// Outbound message type tags.
const (
	TypeAudio          = "audio"
	TypeTargetLanguage = "target_language"
	TypeHeartbeat      = "heartbeat"
)

// Inbound message type tags.
const (
	TypeHeartbeatResponse = "heartbeat_response"
)

// AudioMessage carries one base64-encoded PCM16 sample block.
type AudioMessage struct {
	Type       string `json:"type"`
	Value      string `json:"value"`
	SampleRate int    `json:"sample_rate"`
}

// TargetLanguageMessage requests a change of the server-side translation target.
type TargetLanguageMessage struct {
	Type     string `json:"type"`
	Language string `json:"language"`
}

// HeartbeatMessage is the periodic keepalive sent while connected.
type HeartbeatMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// NewAudioMessage builds an audio message from raw PCM16 bytes.
func NewAudioMessage(pcmData []byte, sampleRate int) AudioMessage {
	return AudioMessage{
		Type:       TypeAudio,
		Value:      pcm.EncodeBase64(pcmData),
		SampleRate: sampleRate,
	}
}

// NewTargetLanguageMessage builds a target-language change message.
func NewTargetLanguageMessage(language string) TargetLanguageMessage {
	return TargetLanguageMessage{Type: TypeTargetLanguage, Language: language}
}

// NewHeartbeatMessage builds a heartbeat stamped with the given time.
func NewHeartbeatMessage(now time.Time) HeartbeatMessage {
	return HeartbeatMessage{Type: TypeHeartbeat, Timestamp: now.UnixMilli()}
}

// HeartbeatResponse acknowledges a client heartbeat. ClientTimestamp echoes
// the timestamp the client sent, or is nil if the server did not record one.
type HeartbeatResponse struct {
	Type            string `json:"type"`
	ServerTimestamp int64  `json:"server_timestamp"`
	ClientTimestamp *int64 `json:"client_timestamp"`
}

// Translation is a translation result pushed by the server. It carries no
// type field on the wire.
type Translation struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

// Inbound is the closed set of messages the server may push.
// Concrete types: [HeartbeatResponse], [Translation].
type Inbound interface{ isInbound() }

func (HeartbeatResponse) isInbound() {}
func (Translation) isInbound()       {}

// ParseInbound decodes a raw text message from the server.
// Returns (message, true) on success, or (nil, false) if the payload is not
// JSON or matches no known inbound shape. It never panics.
func ParseInbound(data []byte) (Inbound, bool) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false
	}

	if probe.Type == TypeHeartbeatResponse {
		var hb HeartbeatResponse
		if err := json.Unmarshal(data, &hb); err != nil {
			return nil, false
		}
		return hb, true
	}

	// Translation results have no type field; recognise them by structure.
	if probe.Type == "" {
		var tr Translation
		if err := json.Unmarshal(data, &tr); err != nil {
			return nil, false
		}
		if tr.Text == "" && tr.SourceLanguage == "" && tr.TargetLanguage == "" {
			return nil, false
		}
		return tr, true
	}

	return nil, false
}

// ErrSchemaValidation is returned when an outbound payload claims a known
// message type but fails structural validation.
var ErrSchemaValidation = errors.New("wire: payload failed schema validation")

// ValidateOutbound checks an outbound text payload before transmission.
// Payloads that do not claim a known message type pass through untouched;
// payloads that claim a known type must satisfy its structure.
func ValidateOutbound(payload []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		// Not JSON, or not an object: nothing to validate against.
		return nil
	}

	switch probe.Type {
	case TypeAudio:
		var m AudioMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return fmt.Errorf("%w: audio: %v", ErrSchemaValidation, err)
		}
		if m.Value == "" {
			return fmt.Errorf("%w: audio: value is required", ErrSchemaValidation)
		}
		if _, ok := pcm.DecodeBase64(m.Value); !ok {
			return fmt.Errorf("%w: audio: value is not valid base64", ErrSchemaValidation)
		}
		if m.SampleRate <= 0 {
			return fmt.Errorf("%w: audio: sample_rate must be positive", ErrSchemaValidation)
		}
	case TypeTargetLanguage:
		var m TargetLanguageMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return fmt.Errorf("%w: target_language: %v", ErrSchemaValidation, err)
		}
		if !ValidLanguageCode(m.Language) {
			return fmt.Errorf("%w: target_language: %q is not a 2-letter code", ErrSchemaValidation, m.Language)
		}
	case TypeHeartbeat:
		var m HeartbeatMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return fmt.Errorf("%w: heartbeat: %v", ErrSchemaValidation, err)
		}
		if m.Timestamp <= 0 {
			return fmt.Errorf("%w: heartbeat: timestamp must be positive", ErrSchemaValidation)
		}
	}
	return nil
}

// ValidLanguageCode reports whether s is a two-letter lowercase language code.
func ValidLanguageCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := range 2 {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}

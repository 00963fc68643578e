package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"
)

// AudioMetadata describes one transmitted audio block. It is created fresh
// per flush and not mutated afterwards.
type AudioMetadata struct {
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	Format      string `json:"format"`
	Sequence    uint64 `json:"sequence"`
	TimestampMs int64  `json:"timestamp_ms"`
	ByteLength  int    `json:"byte_length"`
}

// NewAudioMetadata builds metadata for a PCM16 block of the given size.
func NewAudioMetadata(sampleRate int, sequence uint64, byteLength int, now time.Time) AudioMetadata {
	return AudioMetadata{
		SampleRate:  sampleRate,
		Channels:    1,
		Format:      "pcm16",
		Sequence:    sequence,
		TimestampMs: now.UnixMilli(),
		ByteLength:  byteLength,
	}
}

// envelopeHeaderLen is the size of the metadata-length prefix.
const envelopeHeaderLen = 4

// EncodeBinaryEnvelope packages metadata and raw PCM16 into the binary wire
// format: a big-endian uint32 metadata length, the JSON-encoded metadata,
// then the PCM bytes.
func EncodeBinaryEnvelope(meta AudioMetadata, pcmData []byte) ([]byte, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal metadata: %w", err)
	}
	out := make([]byte, envelopeHeaderLen+len(metaJSON)+len(pcmData))
	binary.BigEndian.PutUint32(out[:envelopeHeaderLen], uint32(len(metaJSON)))
	copy(out[envelopeHeaderLen:], metaJSON)
	copy(out[envelopeHeaderLen+len(metaJSON):], pcmData)
	return out, nil
}

// DecodeBinaryEnvelope splits a binary envelope back into metadata and PCM
// bytes. Returns an error on truncated or malformed input.
func DecodeBinaryEnvelope(data []byte) (AudioMetadata, []byte, error) {
	if len(data) < envelopeHeaderLen {
		return AudioMetadata{}, nil, fmt.Errorf("wire: envelope truncated: %d bytes", len(data))
	}
	metaLen := int(binary.BigEndian.Uint32(data[:envelopeHeaderLen]))
	if metaLen < 0 || envelopeHeaderLen+metaLen > len(data) {
		return AudioMetadata{}, nil, fmt.Errorf("wire: envelope metadata length %d exceeds payload", metaLen)
	}
	var meta AudioMetadata
	if err := json.Unmarshal(data[envelopeHeaderLen:envelopeHeaderLen+metaLen], &meta); err != nil {
		return AudioMetadata{}, nil, fmt.Errorf("wire: unmarshal metadata: %w", err)
	}
	return meta, data[envelopeHeaderLen+metaLen:], nil
}

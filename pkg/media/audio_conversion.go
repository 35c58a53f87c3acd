package media

import (
	"encoding/binary"
	"strings"

	"speaker-diarizer/pkg/errors"
)

// Encoding names accepted by DecodeSamples
const (
	EncodingPCM16 = "pcm16"
	EncodingMuLaw = "pcmu"
	EncodingALaw  = "pcma"
)

const pcm16Scale = 32768.0

var (
	muLawDecodeTable [256]int16
	aLawDecodeTable  [256]int16
)

func init() {
	for i := 0; i < 256; i++ {
		muLawDecodeTable[i] = decodeMuLawSample(byte(i))
		aLawDecodeTable[i] = decodeALawSample(byte(i))
	}
}

// NormalizeEncoding maps codec aliases to one of the Encoding constants.
// It returns "" for unknown encodings.
func NormalizeEncoding(name string) string {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "PCM16", "L16", "LINEAR16", "S16LE":
		return EncodingPCM16
	case "PCMU", "G711U", "G.711U", "G711MU", "ULAW", "MULAW":
		return EncodingMuLaw
	case "PCMA", "G711A", "G.711A", "ALAW":
		return EncodingALaw
	default:
		return ""
	}
}

// DecodeSamples converts an encoded payload to mono samples in [-1, 1)
func DecodeSamples(payload []byte, encoding string) ([]float64, error) {
	switch NormalizeEncoding(encoding) {
	case EncodingPCM16:
		return PCM16ToFloat64(payload)
	case EncodingMuLaw:
		return companded(payload, &muLawDecodeTable), nil
	case EncodingALaw:
		return companded(payload, &aLawDecodeTable), nil
	default:
		return nil, errors.NewUnsupportedFormat("unsupported audio encoding", map[string]interface{}{
			"encoding": encoding,
		})
	}
}

// PCM16ToFloat64 converts little-endian signed 16-bit PCM to samples in [-1, 1)
func PCM16ToFloat64(data []byte) ([]float64, error) {
	if len(data)%2 != 0 {
		return nil, errors.NewInvalidAudio("PCM16 payload has an odd number of bytes", map[string]interface{}{
			"bytes": len(data),
		})
	}

	samples := make([]float64, len(data)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:]))) / pcm16Scale
	}
	return samples, nil
}

// Int16ToFloat64 converts 16-bit samples to [-1, 1)
func Int16ToFloat64(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / pcm16Scale
	}
	return out
}

func companded(payload []byte, table *[256]int16) []float64 {
	out := make([]float64, len(payload))
	for i, b := range payload {
		out[i] = float64(table[b]) / pcm16Scale
	}
	return out
}

func decodeMuLawSample(uval byte) int16 {
	uval = ^uval
	sign := int16(uval & 0x80)
	exponent := (uval >> 4) & 0x07
	mantissa := uval & 0x0F
	magnitude := ((int16(mantissa) << 3) + 0x84) << exponent
	magnitude -= 0x84
	if sign != 0 {
		return -magnitude
	}
	return magnitude
}

func decodeALawSample(aval byte) int16 {
	aval ^= 0x55
	sign := int16(aval & 0x80)
	exponent := (aval >> 4) & 0x07
	mantissa := aval & 0x0F

	var magnitude int16
	switch exponent {
	case 0:
		magnitude = int16(mantissa<<4) + 8
	case 1:
		magnitude = int16(mantissa<<5) + 0x108
	default:
		magnitude = (int16(mantissa<<5) + 0x108) << (exponent - 1)
	}

	// A-law keeps the sign bit set for positive values
	if sign == 0 {
		return -magnitude
	}
	return magnitude
}

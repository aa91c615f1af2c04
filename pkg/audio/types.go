// Package audio normalises learner recordings before they reach the speech
// backends.
//
// Recordings arrive as WAV files in 16-bit PCM, G.711 µ-law or G.711 A-law
// (telephony clients), or as bare G.711 payloads. [Normalize] decodes any of
// them and produces the canonical form every transcription and pronunciation
// backend accepts: a 16 kHz mono 16-bit PCM WAV file.
package audio

import "time"

// Encoding identifies the sample encoding of a clip.
type Encoding int

const (
	// EncodingPCM16 is signed 16-bit little-endian linear PCM.
	EncodingPCM16 Encoding = iota + 1

	// EncodingMuLaw is 8-bit ITU-T G.711 µ-law.
	EncodingMuLaw

	// EncodingALaw is 8-bit ITU-T G.711 A-law.
	EncodingALaw
)

// String returns the encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingPCM16:
		return "pcm16"
	case EncodingMuLaw:
		return "mulaw"
	case EncodingALaw:
		return "alaw"
	default:
		return "unknown"
	}
}

// Format describes the sample rate and channel count of a clip.
type Format struct {
	SampleRate int
	Channels   int
}

// Canonical is the format handed to transcription and pronunciation backends.
var Canonical = Format{SampleRate: 16000, Channels: 1}

// Clip is a decoded recording. PCM always holds signed 16-bit little-endian
// samples regardless of the source encoding.
type Clip struct {
	PCM    []byte
	Format Format

	// Source is the encoding the clip was stored in before decoding.
	Source Encoding
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	bytesPerSec := c.Format.SampleRate * c.Format.Channels * 2
	if bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(len(c.PCM)) * time.Second / time.Duration(bytesPerSec)
}

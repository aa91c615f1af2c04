package audio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zaf/g711"
)

// WAV format tags.
const (
	wavFormatPCM   = 1
	wavFormatALaw  = 6
	wavFormatMuLaw = 7
)

// ErrUnsupportedAudio is returned for recordings that cannot be decoded.
var ErrUnsupportedAudio = errors.New("audio: unsupported recording")

// DecodeWAV parses a RIFF/WAVE file. PCM16, A-law and µ-law payloads are
// supported; G.711 payloads are expanded to 16-bit PCM.
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedAudio)
	}

	var (
		formatTag     uint16
		channels      int
		sampleRate    int
		bitsPerSample int
		haveFmt       bool
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			// Streaming writers leave the data size unset; take the rest.
			if id == "data" {
				size = len(data) - body
			} else {
				return nil, fmt.Errorf("%w: truncated %q chunk", ErrUnsupportedAudio, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedAudio)
			}
			formatTag = binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrUnsupportedAudio)
			}
			f := Format{SampleRate: sampleRate, Channels: channels}
			payload := data[body : body+size]
			switch {
			case formatTag == wavFormatPCM && bitsPerSample == 16:
				return &Clip{PCM: payload[:len(payload)&^1], Format: f, Source: EncodingPCM16}, nil
			case formatTag == wavFormatMuLaw && bitsPerSample == 8:
				return DecodeG711(payload, EncodingMuLaw, f)
			case formatTag == wavFormatALaw && bitsPerSample == 8:
				return DecodeG711(payload, EncodingALaw, f)
			default:
				return nil, fmt.Errorf("%w: format tag %d with %d bits per sample", ErrUnsupportedAudio, formatTag, bitsPerSample)
			}
		}
		off = body + size + size&1
	}
	return nil, fmt.Errorf("%w: no data chunk", ErrUnsupportedAudio)
}

// DecodeG711 expands a bare µ-law or A-law payload to a 16-bit PCM clip.
func DecodeG711(payload []byte, enc Encoding, f Format) (*Clip, error) {
	var pcm []byte
	switch enc {
	case EncodingMuLaw:
		pcm = g711.DecodeUlaw(payload)
	case EncodingALaw:
		pcm = g711.DecodeAlaw(payload)
	default:
		return nil, fmt.Errorf("%w: %s is not a G.711 encoding", ErrUnsupportedAudio, enc)
	}
	return &Clip{PCM: pcm, Format: f, Source: enc}, nil
}

// EncodeG711 compresses 16-bit PCM to µ-law or A-law.
func EncodeG711(pcm []byte, enc Encoding) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: odd byte count %d in 16-bit PCM", len(pcm))
	}
	switch enc {
	case EncodingMuLaw:
		return g711.EncodeUlaw(pcm), nil
	case EncodingALaw:
		return g711.EncodeAlaw(pcm), nil
	default:
		return nil, fmt.Errorf("%w: %s is not a G.711 encoding", ErrUnsupportedAudio, enc)
	}
}

// EncodeWAV wraps 16-bit PCM in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, f Format) []byte {
	const bps = 16
	byteRate := f.SampleRate * f.Channels * bps / 8
	blockAlign := f.Channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}

// Normalize decodes a WAV recording and returns it as a [Canonical] WAV
// file together with the converted clip.
func Normalize(data []byte) ([]byte, *Clip, error) {
	clip, err := DecodeWAV(data)
	if err != nil {
		return nil, nil, err
	}
	if len(clip.PCM) == 0 {
		return nil, nil, fmt.Errorf("%w: empty recording", ErrUnsupportedAudio)
	}
	pcm, err := Convert(clip.PCM, clip.Format, Canonical)
	if err != nil {
		return nil, nil, err
	}
	out := &Clip{PCM: pcm, Format: Canonical, Source: clip.Source}
	return EncodeWAV(pcm, Canonical), out, nil
}

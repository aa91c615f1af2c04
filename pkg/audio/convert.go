package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
)

// Convert converts 16-bit PCM from one format to another. Any channel count
// can be downmixed to mono and mono can be spread to any channel count;
// other channel changes are rejected. When both formats match pcm is
// returned unchanged.
func Convert(pcm []byte, from, to Format) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: odd byte count %d in 16-bit PCM", len(pcm))
	}
	if from == to {
		return pcm, nil
	}
	if from.SampleRate <= 0 || to.SampleRate <= 0 || from.Channels < 1 || to.Channels < 1 {
		return nil, fmt.Errorf("audio: invalid conversion %s -> %s", from, to)
	}
	if from.Channels != to.Channels && from.Channels != 1 && to.Channels != 1 {
		return nil, fmt.Errorf("audio: unsupported channel conversion %s -> %s", from, to)
	}

	slog.Debug("audio: converting clip", "from", from.String(), "to", to.String())

	// Downmix before resampling and spread after it so the resampler always
	// works on the smaller frame.
	if to.Channels == 1 && from.Channels > 1 {
		pcm = Downmix(pcm, from.Channels)
	}
	pcm = Resample(pcm, min(from.Channels, to.Channels), from.SampleRate, to.SampleRate)
	if from.Channels == 1 && to.Channels > 1 {
		pcm = Spread(pcm, to.Channels)
	}
	return pcm, nil
}

// Downmix averages every frame of interleaved channels into one mono sample.
// A trailing partial frame is dropped.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (2 * channels)
	out := make([]byte, frames*2)
	for f := range frames {
		var sum int32
		for c := range channels {
			sum += int32(sample(pcm, f*channels+c))
		}
		putSample(out, f, int16(sum/int32(channels)))
	}
	return out
}

// Spread copies every mono sample into each of channels interleaved slots.
func Spread(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	n := len(pcm) / 2
	out := make([]byte, n*2*channels)
	for i := range n {
		s := sample(pcm, i)
		for c := range channels {
			putSample(out, i*channels+c, s)
		}
	}
	return out
}

// Resample changes the sample rate of interleaved 16-bit PCM with linear
// interpolation between neighbouring frames. Non-positive rates and equal
// rates return pcm unchanged.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || channels < 1 {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*2*channels)
	step := float64(srcRate) / float64(dstRate)
	for f := range dstFrames {
		pos := float64(f) * step
		i := int(pos)
		frac := pos - float64(i)
		next := min(i+1, srcFrames-1)
		for c := range channels {
			a := float64(sample(pcm, i*channels+c))
			b := float64(sample(pcm, next*channels+c))
			putSample(out, f*channels+c, int16(a+(b-a)*frac))
		}
	}
	return out
}

func sample(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}

func putSample(pcm []byte, i int, s int16) {
	binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

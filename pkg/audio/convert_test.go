package audio_test

import (
	"encoding/binary"
	"slices"
	"testing"

	"github.com/MrWong99/lingoxa/pkg/audio"
)

// samplesToBytes converts int16 samples to little-endian PCM.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts little-endian PCM to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestDownmix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		channels int
		want     []int16
	}{
		{"mono passthrough", []int16{1, 2, 3}, 1, []int16{1, 2, 3}},
		{"stereo", []int16{100, 200, -100, -200}, 2, []int16{150, -150}},
		{"stereo at full scale", []int16{32767, 32767, -32768, -32768}, 2, []int16{32767, -32768}},
		{"quad", []int16{10, 20, 30, 40}, 4, []int16{25}},
		{"partial frame dropped", []int16{100, 300, 7}, 2, []int16{200}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.Downmix(samplesToBytes(tc.in), tc.channels))
			if !slices.Equal(got, tc.want) {
				t.Errorf("Downmix = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSpread(t *testing.T) {
	t.Parallel()

	got := bytesToSamples(audio.Spread(samplesToBytes([]int16{100, -200}), 3))
	want := []int16{100, 100, 100, -200, -200, -200}
	if !slices.Equal(got, want) {
		t.Errorf("Spread = %v, want %v", got, want)
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		in               []int16
		channels         int
		srcRate, dstRate int
		want             []int16
	}{
		{"same rate", []int16{1, 2, 3}, 1, 16000, 16000, []int16{1, 2, 3}},
		{"zero source rate", []int16{1, 2}, 1, 0, 16000, []int16{1, 2}},
		{"negative target rate", []int16{1, 2}, 1, 16000, -1, []int16{1, 2}},
		{"8k to 16k interpolates", []int16{0, 1000}, 1, 8000, 16000, []int16{0, 500, 1000, 1000}},
		{"48k to 16k keeps every third", []int16{0, 1, 2, 300, 4, 5}, 1, 48000, 16000, []int16{0, 300}},
		{"stereo channels stay apart", []int16{0, 100, 1000, 300}, 2, 8000, 16000, []int16{0, 100, 500, 200, 1000, 300, 1000, 300}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.Resample(samplesToBytes(tc.in), tc.channels, tc.srcRate, tc.dstRate))
			if !slices.Equal(got, tc.want) {
				t.Errorf("Resample = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        []int16
		from, to  audio.Format
		wantLen   int
		wantFirst int16
	}{
		{"same format", []int16{100, 200}, audio.Format{SampleRate: 16000, Channels: 1}, audio.Format{SampleRate: 16000, Channels: 1}, 2, 100},
		{"mono to stereo", []int16{100, 200, 300}, audio.Format{SampleRate: 16000, Channels: 1}, audio.Format{SampleRate: 16000, Channels: 2}, 6, 100},
		{"stereo to mono", []int16{100, 300, 1000, 2000}, audio.Format{SampleRate: 8000, Channels: 2}, audio.Format{SampleRate: 8000, Channels: 1}, 2, 200},
		{"8k to 16k mono", []int16{0, 1000, 2000, 3000}, audio.Format{SampleRate: 8000, Channels: 1}, audio.Canonical, 8, 0},
		{"48k stereo to canonical", make([]int16, 96), audio.Format{SampleRate: 48000, Channels: 2}, audio.Canonical, 16, 0},
		{"six channel recording to canonical", []int16{60, 60, 60, 60, 60, 60}, audio.Format{SampleRate: 16000, Channels: 6}, audio.Canonical, 1, 60},
		{"22k mono to 16k stereo", make([]int16, 220), audio.Format{SampleRate: 22050, Channels: 1}, audio.Format{SampleRate: 16000, Channels: 2}, 318, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, err := audio.Convert(samplesToBytes(tc.in), tc.from, tc.to)
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			got := bytesToSamples(out)
			if len(got) != tc.wantLen {
				t.Fatalf("samples = %d, want %d", len(got), tc.wantLen)
			}
			if got[0] != tc.wantFirst {
				t.Errorf("first sample = %d, want %d", got[0], tc.wantFirst)
			}
		})
	}
}

func TestConvert_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pcm      []byte
		from, to audio.Format
	}{
		{"odd byte count", []byte{1, 2, 3}, audio.Format{SampleRate: 8000, Channels: 1}, audio.Canonical},
		{"zero channels", []byte{1, 2}, audio.Format{SampleRate: 8000}, audio.Canonical},
		{"zero rate", []byte{1, 2}, audio.Format{Channels: 1}, audio.Canonical},
		{"six to two channels", []byte{1, 2}, audio.Format{SampleRate: 16000, Channels: 6}, audio.Format{SampleRate: 16000, Channels: 2}},
	}
	for _, tc := range tests {
		if _, err := audio.Convert(tc.pcm, tc.from, tc.to); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestFormat_String(t *testing.T) {
	t.Parallel()

	tests := map[audio.Format]string{
		{SampleRate: 16000, Channels: 1}: "16000Hz mono",
		{SampleRate: 48000, Channels: 2}: "48000Hz stereo",
		{SampleRate: 44100, Channels: 6}: "44100Hz 6ch",
	}
	for f, want := range tests {
		if got := f.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", f, got, want)
		}
	}
}

package io

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cbdelay "github.com/NicholasHomayouni/Circular-Buffer-Delay"
	"github.com/NicholasHomayouni/Circular-Buffer-Delay/delay"
)

func writeWav(t *testing.T, path string, data []int, sampleRate, channels int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:   data,
		Format: &audio.Format{SampleRate: sampleRate, NumChannels: channels},
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func readWav(t *testing.T, path string) []int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return buf.Data
}

func mkDelay(delayTime time.Duration, mix float32) func(int, int) (cbdelay.Ticker, error) {
	return func(sampleRate, channels int) (cbdelay.Ticker, error) {
		l := delay.New()
		if err := l.Configure(float64(sampleRate), time.Second, channels); err != nil {
			return nil, err
		}
		l.SetDelayTime(delayTime)
		l.SetMix(mix)
		return l, nil
	}
}

func TestRenderIdentity(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")

	data := make([]int, 1000)
	for i := range data {
		data[i] = (i%200 - 100) * 50
	}
	writeWav(t, in, data, 1000, 1)

	require.NoError(t, Render(in, out, mkDelay(0, 1), 128))

	got := readWav(t, out)
	require.Len(t, got, len(data))
	for i := range data {
		// One LSB of slack for the int16 -> float32 -> int16 trip.
		assert.InDelta(t, data[i], got[i], 1.5, "sample %d", i)
	}
}

func TestRenderDelaysImpulse(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")

	const (
		k = 40
		d = 300
	)
	data := make([]int, 2000)
	data[k] = 16384
	writeWav(t, in, data, 1000, 1)

	require.NoError(t, Render(in, out, mkDelay(300*time.Millisecond, 1), 256))

	got := readWav(t, out)
	require.Len(t, got, len(data))
	for i, s := range got {
		if i == k+d {
			assert.InDelta(t, 16384, s, 2, "impulse sample")
		} else {
			assert.InDelta(t, 0, s, 1.5, "sample %d", i)
		}
	}
}

func TestRenderStereo(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")

	// Distinct impulses per channel stay on their channels.
	const frames = 1000
	data := make([]int, frames*2)
	data[10*2] = 8192     // left, frame 10
	data[30*2+1] = -8192  // right, frame 30
	writeWav(t, in, data, 1000, 2)

	require.NoError(t, Render(in, out, mkDelay(100*time.Millisecond, 1), 128))

	got := readWav(t, out)
	require.Len(t, got, len(data))
	for i, s := range got {
		frame, c := i/2, i%2
		switch {
		case c == 0 && frame == 110:
			assert.InDelta(t, 8192, s, 2, "left impulse")
		case c == 1 && frame == 130:
			assert.InDelta(t, -8192, s, 2, "right impulse")
		default:
			assert.InDelta(t, 0, s, 1.5, "sample %d", i)
		}
	}
}

func TestRenderErrors(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	writeWav(t, in, make([]int, 100), 1000, 1)

	assert.Error(t, Render(filepath.Join(dir, "missing.wav"), filepath.Join(dir, "o.wav"), mkDelay(0, 1), 128))
	assert.Error(t, Render(in, filepath.Join(dir, "o.wav"), mkDelay(0, 1), 0))

	// The builder's configuration error comes straight back.
	bad := func(sampleRate, channels int) (cbdelay.Ticker, error) {
		l := delay.New()
		return l, l.Configure(float64(sampleRate), -time.Second, channels)
	}
	assert.Error(t, Render(in, filepath.Join(dir, "o.wav"), bad, 128))
}

package io

import (
	"context"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/smallnest/ringbuffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainRecording(t *testing.T) {
	const channels = 2
	samples := []float32{0, 0.5, -0.5, 0.25, 1, -1, 0.125, 0}
	raw := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
	}

	rb := ringbuffer.New(1 << 12)
	n, err := rb.Write(raw)
	require.NoError(t, err)
	require.Equal(t, len(raw), n)

	// A cancelled context makes the drain flush what is buffered and
	// finalise the file immediately.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "rec.wav")
	require.NoError(t, drainRecording(ctx, rb, path, 44100, channels))

	got := readWav(t, path)
	require.Len(t, got, len(samples))
	for i, s := range samples {
		assert.InDelta(t, int(s*32767), got[i], 1.5, "sample %d", i)
	}
}

func TestPCM16Saturates(t *testing.T) {
	assert.Equal(t, 32767, pcm16(2))
	assert.Equal(t, -32768, pcm16(-2))
	assert.Equal(t, 0, pcm16(0))
	assert.Equal(t, 16383, pcm16(0.5))
}

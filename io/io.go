// package io does audio in and out.
package io

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/sync/errgroup"

	cbdelay "github.com/NicholasHomayouni/Circular-Buffer-Delay"
)

// maxFrames is the largest block the device callback is prepared for.
const maxFrames = 4096

// recordBufBytes sizes the handoff ring between the audio callback and the
// wav writer. A megabyte is several seconds of stereo float32 at 44.1k, so
// the writer has plenty of slack before the callback starts dropping.
const recordBufBytes = 1 << 20

// Play runs the provided Ticker between the default capture and playback
// devices until ctx is cancelled. If recordPath is not "", the processed
// output is also written there as a 16-bit wav file. Encoding happens on a
// separate goroutine fed through a byte ring buffer, so the audio callback
// never touches the filesystem; if the writer falls behind, samples are
// dropped rather than blocking the callback.
func Play(ctx context.Context, t cbdelay.Ticker, sampleRate uint32, recordPath string) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		fmt.Fprint(os.Stderr, msg)
	})
	if err != nil {
		return err
	}
	defer func() {
		mctx.Uninit()
		mctx.Free()
	}()
	inps := max(1, t.Inputs())
	outs := t.Outputs()
	cfg := malgo.DefaultDeviceConfig(malgo.Duplex)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(inps)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(outs)
	cfg.SampleRate = sampleRate

	inputs := make([][]float32, inps)
	for i := range inputs {
		inputs[i] = make([]float32, maxFrames)
	}
	outputs := make([][]float32, outs)
	for i := range outputs {
		outputs[i] = make([]float32, maxFrames)
	}

	g, ctx := errgroup.WithContext(ctx)

	var rb *ringbuffer.RingBuffer
	if recordPath != "" {
		rb = ringbuffer.New(recordBufBytes)
		g.Go(func() error {
			return drainRecording(ctx, rb, recordPath, int(sampleRate), outs)
		})
	}

	recv := func(out, in []byte, framecount uint32) {
		if framecount == 0 {
			return
		}
		// Make sure the bounds are correct.
		for i := range inputs {
			inputs[i] = inputs[i][:framecount]
		}
		for i := range outputs {
			outputs[i] = outputs[i][:framecount]
		}
		// de-interleave the captured samples. Each one is 4 bytes.
		frameSize := 4 * inps
		for i := 0; i < len(in); i += frameSize {
			for c := range inputs {
				u := binary.LittleEndian.Uint32(in[i+c*4:])
				inputs[c][i/frameSize] = math.Float32frombits(u)
			}
		}
		// Run the ticker.
		t.Tick(inputs, outputs)

		// re-interleave the output.
		for i := 0; i < int(framecount); i++ {
			for c := range outputs {
				binary.LittleEndian.PutUint32(
					out[(i*outs+c)*4:], math.Float32bits(outputs[c][i]))
			}
		}
		if rb != nil {
			// Best effort: a full ring just drops this block.
			rb.Write(out)
		}
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: recv,
	})
	if err != nil {
		return err
	}
	if err := device.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	device.Uninit()

	return g.Wait()
}

// drainRecording pulls interleaved float32 bytes out of rb and feeds them to
// a 16-bit wav encoder until ctx is cancelled, then drains whatever is left
// and finalises the file.
func drainRecording(ctx context.Context, rb *ringbuffer.RingBuffer, path string, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)

	var (
		frameBytes = 4 * channels
		buf        = make([]byte, 32*1024)
		ints       = make([]int, len(buf)/4)
		ib         = &audio.IntBuffer{
			Format: &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		}
		rem int // partial frame carried between reads
	)
	encode := func(b []byte) error {
		n := len(b) / 4
		for i := 0; i < n; i++ {
			s := math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
			ints[i] = pcm16(s)
		}
		ib.Data = ints[:n]
		return enc.Write(ib)
	}
	flush := func() error {
		for {
			n, _ := rb.Read(buf[rem:])
			if n <= 0 {
				// A trailing partial frame is dropped on the final
				// flush: it cannot be encoded anyway.
				return nil
			}
			total := rem + n
			usable := total - total%frameBytes
			if err := encode(buf[:usable]); err != nil {
				return err
			}
			rem = copy(buf, buf[usable:total])
		}
	}

	finish := func(ferr error) error {
		if err := enc.Close(); ferr == nil && err != nil {
			ferr = err
		}
		if err := f.Close(); ferr == nil && err != nil {
			ferr = err
		}
		return ferr
	}

	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return finish(flush())
		case <-tick.C:
			if err := flush(); err != nil {
				return finish(err)
			}
		}
	}
}

// pcm16 converts a float32 sample in [-1, 1] to a 16-bit PCM value,
// saturating out-of-range input.
func pcm16(s float32) int {
	// Clamp before converting: float to int conversion of an
	// out-of-range value is implementation-defined.
	if s >= 1 {
		return 32767
	}
	if s <= -1 {
		return -32768
	}
	return int(s * 32767)
}

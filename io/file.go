package io

import (
	"errors"
	"fmt"
	goio "io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	cbdelay "github.com/NicholasHomayouni/Circular-Buffer-Delay"
)

// Render reads the wav file at inPath, runs it block by block through the
// Ticker that mk builds for the file's sample rate and channel count, and
// writes the result to outPath as 16-bit PCM. The final block may be
// shorter than blockSize.
func Render(inPath, outPath string, mk func(sampleRate, channels int) (cbdelay.Ticker, error), blockSize int) error {
	if blockSize < 1 {
		return fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	f, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return fmt.Errorf("%s: not a valid wav file", inPath)
	}
	rate := int(dec.SampleRate)
	chans := int(dec.NumChans)
	div, err := sampleDivisor(int(dec.BitDepth))
	if err != nil {
		return err
	}

	t, err := mk(rate, chans)
	if err != nil {
		return err
	}
	if t.Inputs() != chans || t.Outputs() != chans {
		return fmt.Errorf("%v processes %d in / %d out, file has %d channels",
			t, t.Inputs(), t.Outputs(), chans)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(out, rate, 16, chans, 1)

	format := &audio.Format{SampleRate: rate, NumChannels: chans}
	in := &audio.IntBuffer{Data: make([]int, blockSize*chans), Format: format}
	ob := &audio.IntBuffer{Data: make([]int, blockSize*chans), Format: format}
	inputs := make([][]float32, chans)
	outputs := make([][]float32, chans)
	for c := range inputs {
		inputs[c] = make([]float32, blockSize)
		outputs[c] = make([]float32, blockSize)
	}

	for {
		in.Data = in.Data[:blockSize*chans]
		n, rerr := dec.PCMBuffer(in)
		if rerr != nil && !errors.Is(rerr, goio.EOF) {
			out.Close()
			return fmt.Errorf("reading %s: %w", inPath, rerr)
		}
		frames := n / chans
		if frames > 0 {
			for c := 0; c < chans; c++ {
				for i := 0; i < frames; i++ {
					inputs[c][i] = float32(in.Data[i*chans+c]) / div
				}
				inputs[c] = inputs[c][:frames]
				outputs[c] = outputs[c][:frames]
			}
			t.Tick(inputs, outputs)
			for c := 0; c < chans; c++ {
				for i := 0; i < frames; i++ {
					ob.Data[i*chans+c] = pcm16(outputs[c][i])
				}
				inputs[c] = inputs[c][:blockSize]
				outputs[c] = outputs[c][:blockSize]
			}
			ob.Data = ob.Data[:frames*chans]
			if err := enc.Write(ob); err != nil {
				out.Close()
				return fmt.Errorf("writing %s: %w", outPath, err)
			}
		}
		if frames < blockSize {
			break
		}
	}

	if err := enc.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// sampleDivisor returns the normalisation factor that maps PCM integers of
// the given bit depth into [-1, 1].
func sampleDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768, nil
	case 24:
		return 8388608, nil
	case 32:
		return 2147483648, nil
	default:
		return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
}

// package delay provides a circular-buffer delay line.
package delay

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/exp/constraints"

	cbdelay "github.com/NicholasHomayouni/Circular-Buffer-Delay"
)

// ErrInvalidConfig is wrapped by every error Configure returns.
var ErrInvalidConfig = errors.New("invalid delay configuration")

// rampFraction is the portion of a block over which gain changes are faded
// into the ring buffer and the output mix, rather than stepped.
const rampFraction = 0.1

// params is the control state published by the setters and loaded once per
// block by Tick, so the audio thread never sees a half-applied update.
// Copy-on-write with a single writer: the host's control goroutine.
type params struct {
	delay time.Duration
	mix   float32 // wet amount in [0, 1]
	gain  float32 // gain written into the ring in [0, 1]
}

// Line is a multi-channel tape-style delay. Each channel owns a ring buffer
// sized for the maximum delay; all channels share one write cursor. The
// read cursor is derived from the write cursor and the current delay time
// every block, so delay changes take effect immediately.
//
// Configure must run before the first Tick and never concurrently with it.
// Tick itself does not allocate and does not block. SetDelayTime, SetMix
// and SetInputGain are safe to call from another goroutine while audio is
// running.
type Line struct {
	rings    []ring
	scratch  []float32 // staging for delayed reads, capacity samples
	writep   int
	capacity int
	rate     float64

	ps atomic.Pointer[params]

	// Gains in effect at the end of the previous block. Ramps start from
	// here so parameter steps fade in instead of clicking.
	lastGain float32
	lastWet  float32
	lastDry  float32
	primed   bool
}

var _ cbdelay.Ticker = (*Line)(nil)

// New returns an unconfigured Line with a half-wet mix and unity input
// gain. Call Configure before processing.
func New() *Line {
	l := &Line{}
	l.ps.Store(&params{mix: 0.5, gain: 1})
	return l
}

// Configure sizes every channel's ring buffer to hold maxDelay of audio at
// sampleRate, zero-filled, and resets the write cursor. It must be called
// again whenever the sample rate or channel count changes; prior buffer
// contents are discarded. A failed call leaves the previous configuration
// untouched.
func (l *Line) Configure(sampleRate float64, maxDelay time.Duration, channels int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("%w: sample rate %v", ErrInvalidConfig, sampleRate)
	}
	if maxDelay <= 0 {
		return fmt.Errorf("%w: max delay %v", ErrInvalidConfig, maxDelay)
	}
	if channels < 1 {
		return fmt.Errorf("%w: %d channels", ErrInvalidConfig, channels)
	}
	capacity := int(math.Round(sampleRate * maxDelay.Seconds()))
	if capacity < 1 {
		return fmt.Errorf("%w: max delay %v only %d samples at %vHz",
			ErrInvalidConfig, maxDelay, capacity, sampleRate)
	}
	rings := make([]ring, channels)
	for i := range rings {
		rings[i] = newRing(capacity)
	}
	l.rings = rings
	l.scratch = make([]float32, capacity)
	l.capacity = capacity
	l.rate = sampleRate
	l.writep = 0
	l.primed = false
	return nil
}

// SetDelayTime sets the desired delay. The effective length in samples is
// clamped to [0, capacity) at the start of each block, so asking for more
// delay than the buffer holds saturates at the maximum instead of failing.
func (l *Line) SetDelayTime(d time.Duration) {
	l.publish(func(p *params) { p.delay = d })
}

// SetMix sets the wet amount in [0, 1]: 0 is fully dry, 1 fully delayed.
// Out-of-range values are clamped.
func (l *Line) SetMix(mix float32) {
	l.publish(func(p *params) { p.mix = clamp(mix, 0, 1) })
}

// SetInputGain sets the gain applied to samples as they are written into
// the ring. Changes fade in over the start of the next block.
func (l *Line) SetInputGain(g float32) {
	l.publish(func(p *params) { p.gain = clamp(g, 0, 1) })
}

func (l *Line) publish(f func(*params)) {
	p := *l.ps.Load()
	f(&p)
	l.ps.Store(&p)
}

func (l *Line) Inputs() int  { return len(l.rings) }
func (l *Line) Outputs() int { return len(l.rings) }

func (l *Line) String() string { return fmt.Sprintf("Delay(%d)", l.capacity) }

// Tick processes one block per channel: write the input into the ring at
// the shared write cursor, read the delayed samples from behind it, mix,
// then advance the cursor once for all channels. in and out may alias for
// in-place processing.
func (l *Line) Tick(in, out [][]float32) {
	if l.capacity == 0 {
		panic("delay: Tick before Configure")
	}
	if len(in) != len(l.rings) || len(out) != len(l.rings) {
		panic(fmt.Errorf("delay: want %d channels, got %d in, %d out",
			len(l.rings), len(in), len(out)))
	}
	n := len(in[0])
	if n == 0 {
		return
	}
	if n > l.capacity {
		panic(fmt.Errorf("delay: block %d larger than buffer %d", n, l.capacity))
	}

	p := l.ps.Load()
	d := clamp(int(math.Round(p.delay.Seconds()*l.rate)), 0, l.capacity-1)
	wet := p.mix
	dry := 1 - p.mix
	g0, w0, d0 := l.lastGain, l.lastWet, l.lastDry
	if !l.primed {
		// Nothing to fade from on the very first block.
		g0, w0, d0 = p.gain, wet, dry
	}
	ramp := int(math.Round(rampFraction * float64(n)))
	if ramp < 1 {
		ramp = 1
	}

	readp := l.writep - d
	if readp < 0 {
		readp += l.capacity
	}
	scratch := l.scratch[:n]
	for c, r := range l.rings {
		r.write(l.writep, in[c], g0, p.gain, ramp)
		r.read(readp, scratch)
		for i, s := range scratch {
			w, dg := wet, dry
			if i < ramp {
				t := float32(i+1) / float32(ramp)
				w = w0 + (wet-w0)*t
				dg = d0 + (dry-d0)*t
			}
			out[c][i] = dg*in[c][i] + w*s
		}
	}
	l.writep = (l.writep + n) % l.capacity
	l.lastGain, l.lastWet, l.lastDry = p.gain, wet, dry
	l.primed = true
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

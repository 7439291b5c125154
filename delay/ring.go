package delay

import "fmt"

// ring is a fixed-capacity circular sample buffer for one channel. It only
// holds storage: cursor positions belong to the caller, so that every
// channel of a Line can share a single write cursor and stay time-aligned.
type ring struct {
	buf []float32
}

func newRing(size int) ring {
	return ring{buf: make([]float32, size)}
}

// write copies in into the buffer starting at pos, wrapping around the end
// if it has to. The gain applied to the copied samples ramps linearly from
// g0 to g1 over the first ramp samples and holds at g1 after that; when the
// gain is a steady 1 the write degenerates to two plain copies. pos must be
// a valid index and len(in) must fit in the buffer.
func (r ring) write(pos int, in []float32, g0, g1 float32, ramp int) {
	if len(in) > len(r.buf) {
		panic(fmt.Errorf("write %d larger than buffer %d", len(in), len(r.buf)))
	}
	if g0 == g1 && g1 == 1 {
		copied := copy(r.buf[pos:], in)
		if copied < len(in) {
			// we couldn't fit it all on the end.
			copy(r.buf, in[copied:])
		}
		return
	}
	var step float32
	if ramp > 0 {
		step = (g1 - g0) / float32(ramp)
	}
	g := g0
	for i, s := range in {
		if i < ramp {
			g += step
		} else {
			g = g1
		}
		j := pos + i
		if j >= len(r.buf) {
			j -= len(r.buf)
		}
		r.buf[j] = s * g
	}
}

// read copies len(out) samples starting at pos into out, wrapping with the
// same split as write.
func (r ring) read(pos int, out []float32) {
	if len(out) > len(r.buf) {
		panic(fmt.Errorf("read %d larger than buffer %d", len(out), len(r.buf)))
	}
	copied := copy(out, r.buf[pos:])
	if copied < len(out) {
		// reached the end of the buffer, wrap
		copy(out[copied:], r.buf)
	}
}

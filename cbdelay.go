// package cbdelay does real-time circular-buffer audio delay.
package cbdelay

import "fmt"

// Ticker is something that processes audio. The first dimension of the input
// slice is always Inputs, and the first dimension of the output slice is
// always Outputs. Each individual element of both slices is always the same
// length. Tickers may overwrite the input buffer, and must not allocate or
// block inside Tick: it runs on the audio thread.
type Ticker interface {
	// Inputs returns the number of expected input channels.
	Inputs() int
	// Outputs returns the number of expected output channels.
	Outputs() int
	// Tick processes a chunk of audio.
	Tick(input, output [][]float32)

	fmt.Stringer
}

// Gain is a Ticker that multiplies all of its channels by a constant.
type Gain struct {
	N   int
	Mul float32
}

var _ Ticker = Gain{}

func (g Gain) Inputs() int    { return g.N }
func (g Gain) Outputs() int   { return g.N }
func (g Gain) String() string { return fmt.Sprintf("Gain(%v)", g.Mul) }

func (g Gain) Tick(input, output [][]float32) {
	for c := range input {
		for i, s := range input[c] {
			output[c][i] = s * g.Mul
		}
	}
}

// Noop is a Ticker that just copies its inputs to its outputs.
type Noop struct {
	N int
}

var _ Ticker = Noop{}

func (n Noop) Inputs() int    { return n.N }
func (n Noop) Outputs() int   { return n.N }
func (n Noop) String() string { return fmt.Sprintf("Noop(%d)", n.N) }

func (n Noop) Tick(inputs, outputs [][]float32) {
	for i := range inputs {
		copy(outputs[i], inputs[i])
	}
}

// maxBlock is the largest block length a Chain can carry between its stages.
const maxBlock = 4096

// Chain is a ticker that applies a sequence of Tickers. The inputs and
// outputs all need to line up.
type Chain struct {
	ts              []Ticker
	inputs, outputs int
	b1, b2          [][]float32
}

var _ Ticker = Chain{}

func Serially(ts ...Ticker) Chain {
	if len(ts) == 0 {
		panic(fmt.Errorf("empty chain"))
	}
	maxChans := ts[0].Inputs()
	for i := 1; i < len(ts); i++ {
		if ts[i-1].Outputs() != ts[i].Inputs() {
			panic(fmt.Errorf(
				"outputs/inputs mismatch:\n%v (%d outputs)\n->\n%v (%d inputs)",
				ts[i-1], ts[i-1].Outputs(), ts[i], ts[i].Inputs()))
		}
		maxChans = max(ts[i-1].Outputs(), maxChans)
		maxChans = max(ts[i].Inputs(), maxChans)
	}
	maxChans = max(ts[len(ts)-1].Outputs(), maxChans)
	b1 := make([][]float32, maxChans)
	for i := range b1 {
		b1[i] = make([]float32, maxBlock)
	}
	b2 := make([][]float32, maxChans)
	for i := range b2 {
		b2[i] = make([]float32, maxBlock)
	}
	return Chain{
		ts:      ts,
		inputs:  ts[0].Inputs(),
		outputs: ts[len(ts)-1].Outputs(),
		b1:      b1,
		b2:      b2,
	}
}

func (c Chain) Inputs() int    { return c.inputs }
func (c Chain) Outputs() int   { return c.outputs }
func (c Chain) String() string { return fmt.Sprintf("Chain(%v)", c.ts) }

func (c Chain) Tick(input, output [][]float32) {
	in, out := c.b1, c.b2
	for i := range input {
		copy(in[i], input[i])
		in[i] = in[i][:len(input[i])]
	}
	for i := range output {
		out[i] = out[i][:len(output[i])]
		for j := range out[i] {
			out[i][j] = 0
		}
	}
	in = in[:len(input)]
	for _, t := range c.ts {
		out = out[:t.Outputs()]
		t.Tick(in, out)
		in, out = out, in
	}
	for i := range out {
		copy(output[i], in[i])
	}
}

// Command render processes a wav file through the delay offline.
package main

import (
	"flag"
	"log"
	"time"

	cbdelay "github.com/NicholasHomayouni/Circular-Buffer-Delay"
	"github.com/NicholasHomayouni/Circular-Buffer-Delay/delay"
	"github.com/NicholasHomayouni/Circular-Buffer-Delay/io"
)

var (
	inFlag    = flag.String("in", "", "input wav file")
	outFlag   = flag.String("out", "out.wav", "output wav file")
	timeFlag  = flag.Duration("time", 250*time.Millisecond, "delay time")
	mixFlag   = flag.Float64("mix", 0.5, "wet amount in [0,1]")
	maxFlag   = flag.Duration("max", 2*time.Second, "maximum delay time; sets the buffer size")
	trimFlag  = flag.Float64("trim", 1.0, "output gain")
	blockFlag = flag.Int("block", 512, "processing block size in samples")
)

func main() {
	flag.Parse()
	if *inFlag == "" {
		log.Fatal("-in is required")
	}

	mk := func(sampleRate, channels int) (cbdelay.Ticker, error) {
		l := delay.New()
		if err := l.Configure(float64(sampleRate), *maxFlag, channels); err != nil {
			return nil, err
		}
		l.SetDelayTime(*timeFlag)
		l.SetMix(float32(*mixFlag))
		c := cbdelay.Serially(l, cbdelay.Gain{N: channels, Mul: float32(*trimFlag)})
		return c, nil
	}

	if err := io.Render(*inFlag, *outFlag, mk, *blockFlag); err != nil {
		log.Fatal(err)
	}
}

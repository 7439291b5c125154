// Command delay monitors the default input through a circular-buffer delay
// and plays the result on the default output. Delay time, mix and input
// gain can be changed live from stdin:
//
//	time 350ms
//	mix 0.4
//	gain 0.8
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NicholasHomayouni/Circular-Buffer-Delay/delay"
	"github.com/NicholasHomayouni/Circular-Buffer-Delay/io"
)

var (
	timeFlag    = flag.Duration("time", 250*time.Millisecond, "initial delay time")
	mixFlag     = flag.Float64("mix", 0.5, "wet amount in [0,1]")
	gainFlag    = flag.Float64("gain", 1.0, "gain written into the delay buffer")
	maxFlag     = flag.Duration("max", 2*time.Second, "maximum delay time; sets the buffer size")
	rateFlag    = flag.Uint("rate", 44100, "sample rate in Hz")
	channels    = flag.Int("channels", 2, "channel count")
	recordFlag  = flag.Bool("record", false, "if true, writes the output to a wav file in the current directory")
	profileFlag = flag.Bool("profile", false, "whether to write pprof profiles to the current working directory")
)

func main() {
	flag.Parse()

	if *profileFlag {
		finish, err := startProfiles()
		if err != nil {
			log.Fatalf("Starting profiling: %v", err)
		}
		defer func() {
			if err := finish(); err != nil {
				log.Fatalf("Finishing profiles: %v", err)
			}
		}()
	}

	l := delay.New()
	if err := l.Configure(float64(*rateFlag), *maxFlag, *channels); err != nil {
		log.Fatal(err)
	}
	l.SetDelayTime(*timeFlag)
	l.SetMix(float32(*mixFlag))
	l.SetInputGain(float32(*gainFlag))

	var filename string
	if *recordFlag {
		filename = fmt.Sprintf("delay-%d.wav", time.Now().Unix())
		fmt.Fprintf(os.Stderr, "Writing output to %q\n", filename)
	}

	g, ctx := errgroup.WithContext(interruptContext())

	g.Go(func() error {
		return io.Play(ctx, l, uint32(*rateFlag), filename)
	})
	g.Go(func() error {
		return control(ctx, l)
	})

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}

// control reads parameter changes from stdin and applies them to the
// running line. The setters publish atomically, so this never touches the
// audio thread.
func control(ctx context.Context, l *delay.Line) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := apply(l, line); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}
		}
	}
}

func apply(l *delay.Line, line string) error {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return fmt.Errorf("want %q, %q or %q", "time <duration>", "mix <0..1>", "gain <0..1>")
	}
	switch fields[0] {
	case "time":
		d, err := time.ParseDuration(fields[1])
		if err != nil {
			return err
		}
		l.SetDelayTime(d)
	case "mix":
		m, err := strconv.ParseFloat(fields[1], 32)
		if err != nil {
			return err
		}
		l.SetMix(float32(m))
	case "gain":
		g, err := strconv.ParseFloat(fields[1], 32)
		if err != nil {
			return err
		}
		l.SetInputGain(float32(g))
	default:
		return fmt.Errorf("unknown parameter %q", fields[0])
	}
	return nil
}

func interruptContext() context.Context {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ctx
}

func startProfiles() (func() error, error) {
	cpu, err := os.Create("cpu.pprof")
	if err != nil {
		return nil, err
	}
	if err := pprof.StartCPUProfile(cpu); err != nil {
		return nil, fmt.Errorf("starting cpu profile: %w", err)
	}

	mem, err := os.Create("mem.pprof")
	if err != nil {
		return nil, err
	}
	return func() error {
		pprof.StopCPUProfile()
		if err := cpu.Close(); err != nil {
			return err
		}
		runtime.GC()
		if err := pprof.WriteHeapProfile(mem); err != nil {
			return err
		}
		return mem.Close()
	}, nil
}

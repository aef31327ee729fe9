// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/ezrec/atic/config"
	"github.com/ezrec/atic/machine"
	"github.com/ezrec/atic/translate"
)

// report formats the timing summary of a run.
func report(elapsed time.Duration, steps int64) string {
	ips := int64(0)
	if seconds := elapsed.Seconds(); seconds > 0 {
		ips = int64(float64(steps) / seconds)
	}
	return translate.From("Took %d ms with %d steps (%d Instructions per Second)",
		elapsed.Milliseconds(), steps, ips)
}

// load reads and links the program listing.
func load(m *machine.Machine, path string) (err error) {
	inf, err := os.Open(path)
	if err != nil {
		return
	}
	defer inf.Close()

	err = m.Load(inf)
	return
}

// restore reads a program encoding written with -s.
func restore(m *machine.Machine, path string) (err error) {
	inf, err := os.Open(path)
	if err != nil {
		return
	}
	defer inf.Close()

	err = m.LoadEncoding(inf)
	return
}

func run(m *machine.Machine) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = m.Reset()
	if err != nil {
		return
	}

	err = m.Run(ctx)
	return
}

func main() {
	var compile string
	var configFile string
	var save string
	var encoding string
	var verbose bool
	var timing bool
	var disassemble bool

	flag.StringVar(&compile, "c", "res/input.txt", "program listing to run")
	flag.StringVar(&configFile, "config", "", ".toml configuration file")
	flag.StringVar(&save, "s", "", "Save the linked program encoding, do not execute")
	flag.StringVar(&encoding, "l", "", "Load a saved program encoding instead of -c")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")
	flag.BoolVar(&timing, "t", false, "Report execution time")
	flag.BoolVar(&disassemble, "d", false, "Print the linked program, do not execute")

	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args())
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("%v: %v", configFile, err)
	}
	if verbose {
		cfg.Verbose = true
	}

	if cfg.Verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	m := machine.New(cfg)

	source := compile
	if len(encoding) != 0 {
		source = encoding
		err = restore(m, encoding)
	} else {
		err = load(m, compile)
	}
	if err != nil {
		log.Fatalf("%v: %v", source, err)
	}

	if disassemble {
		err = m.Program.Disassemble(os.Stdout)
		if err != nil {
			log.Fatal(err)
		}
		return
	}

	if len(save) != 0 {
		data, err := m.Program.Encode()
		if err != nil {
			log.Fatal(err)
		}
		err = os.WriteFile(save, data, 0644)
		if err != nil {
			log.Fatalf("%v: %v", save, err)
		}
		if cfg.Verbose {
			sum, _ := m.Program.Fingerprint()
			log.Printf("%v: %v", save, sum)
		}
		return
	}

	start := time.Now()
	err = run(m)
	elapsed := time.Since(start)
	if err != nil {
		log.Fatalf("%v: %v", source, err)
	}

	if timing {
		fmt.Fprintln(os.Stderr, report(elapsed, m.Ticks()))
	}

	os.Exit(int(m.ExitCode()))
}

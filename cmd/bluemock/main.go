package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluemock/internal/config"
	"github.com/bluemock/internal/harness"
	"github.com/bluemock/internal/logging"
)

func main() {
	var (
		source  bool
		sink    bool
		voice   bool
		timeout int
		fuzzing bool
		service string
		cfgPath string
	)

	flag.BoolVar(&source, "source", false, "create A2DP source transports")
	flag.BoolVar(&sink, "sink", false, "create A2DP sink transports")
	flag.BoolVar(&voice, "voice", false, "create voice gateway transports")
	flag.IntVar(&timeout, "timeout", 5, "session-idle timeout in seconds (0 waits for a signal)")
	flag.BoolVar(&fuzzing, "fuzzing", false, "insert artificial delays at creation/teardown boundaries")
	flag.StringVar(&service, "service", "", "override the registered service name")
	flag.StringVar(&cfgPath, "config", "", "path to a YAML config file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [--source] [--sink] [--voice] [--timeout SEC] [--fuzzing]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if cfgPath != "" {
		os.Setenv("BLUEMOCK_CONFIG", cfgPath)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// CLI flags win over file and environment.
	cfg.Roles.Source = cfg.Roles.Source || source
	cfg.Roles.Sink = cfg.Roles.Sink || sink
	cfg.Roles.Voice = cfg.Roles.Voice || voice
	if isFlagSet("timeout") {
		cfg.Timing.TimeoutSec = timeout
	}
	if fuzzing && cfg.Timing.FuzzDelayMs == 0 {
		cfg.Timing.FuzzDelayMs = 1000
	}
	if service != "" {
		cfg.Service.Name = service
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("configuration validation failed: %v", err)
	}

	logging.Setup(cfg.Logging)
	log.Printf("starting bluemock transport emulator (service %s)", cfg.Service.Name)

	// Graceful termination token, canceled by SIGINT/SIGTERM. The two
	// user signals cancel the test-control tokens that delivery
	// workers observe. Broken pipes on data-plane sockets surface as
	// write errors, never as a process-killing SIGPIPE.
	runCtx, stopRun := context.WithCancel(context.Background())
	streamCtx, stopStreams := context.WithCancel(context.Background())
	voiceCtx, stopVoice := context.WithCancel(context.Background())
	defer stopRun()
	defer stopStreams()
	defer stopVoice()

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range sigs {
			switch sig {
			case syscall.SIGUSR1:
				log.Printf("dispatching SIGUSR1: stopping streaming workers")
				stopStreams()
			case syscall.SIGUSR2:
				log.Printf("dispatching SIGUSR2: stopping voice workers")
				stopVoice()
			default:
				log.Printf("dispatching %v: shutting down", sig)
				stopRun()
			}
		}
	}()

	h := harness.New(cfg, streamCtx, voiceCtx)

	started := time.Now()
	if err := h.Run(runCtx); err != nil {
		log.Fatalf("harness failed: %v", err)
	}

	log.Printf("bluemock stopped after %v", time.Since(started).Round(time.Millisecond))
}

// isFlagSet reports whether a flag was passed explicitly.
func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

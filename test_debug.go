package main

import (
	"fmt"
	"log"
	"time"

	"github.com/bluemock/internal/config"
	"github.com/bluemock/internal/transport"
)

func main() {
	log.Println("Testing transport lifecycle directly...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	adapter := transport.NewAdapter(0)
	device, err := adapter.NewDevice("12:34:56:78:9A:BC")
	if err != nil {
		log.Fatalf("Failed to create device: %v", err)
	}

	t, err := transport.New(device, transport.A2DPSource, "/source/debug", transport.Options{
		Owner:  ":debug",
		SBC:    transport.DefaultSBC(),
		Audio:  cfg.Audio,
		Timing: cfg.Timing,
	})
	if err != nil {
		log.Fatalf("Failed to create transport: %v", err)
	}
	fmt.Printf("Created: %+v\n", t.Describe())

	// Acquire and let the delivery worker run for a moment
	log.Println("Testing acquire...")
	if err := t.Acquire(); err != nil {
		log.Fatalf("Failed to acquire: %v", err)
	}
	fmt.Printf("Acquired: worker running = %v\n", t.WorkerRunning())

	time.Sleep(500 * time.Millisecond)

	// Release twice: the second one must be a no-op
	log.Println("Testing release idempotence...")
	t.Release()
	t.Release()
	fmt.Printf("Released: acquired = %v\n", t.Acquired())

	t.Destroy()
	adapter.Release()

	log.Println("Test completed.")
}

// ABOUTME: Entry point for the loopstream server
// ABOUTME: Parses CLI flags, starts capture and the engine, advertises via mDNS
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/loopstream/loopstream-go/internal/discovery"
	"github.com/loopstream/loopstream-go/internal/engine"
	"github.com/loopstream/loopstream-go/internal/statustui"
	"github.com/loopstream/loopstream-go/internal/version"
	"github.com/loopstream/loopstream-go/internal/wire"
	"github.com/loopstream/loopstream-go/pkg/capture"
)

var (
	port       = flag.Int("port", 8927, "TCP/UDP port")
	name       = flag.String("name", "", "Server friendly name (default: hostname-loopstream-server)")
	logFile    = flag.String("log-file", "loopstream-server.log", "Log file path")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	audioFile  = flag.String("audio", "", "Audio file to stream (.mp3, .flac). If not specified, plays a test tone")
	useOpus    = flag.Bool("opus-tone", false, "Round-trip the test tone through Opus before streaming (demo only)")
	sampleRate = flag.Int("sample-rate", 48000, "Capture sample rate")
	channels   = flag.Int("channels", 2, "Capture channel count")
	tui        = flag.Bool("tui", false, "Show a read-only status view of connected peers")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if *tui {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-loopstream-server", hostname)
	}

	log.Printf("loopstream-server %s: starting %s on port %d", version.Version, serverName, *port)

	source, err := newCaptureSource()
	if err != nil {
		log.Fatalf("capture source: %v", err)
	}

	srv := engine.NewServer(engine.ServerConfig{Addr: fmt.Sprintf(":%d", *port)}, source)
	if err := srv.Start(); err != nil {
		log.Fatalf("server start: %v", err)
	}

	if !*noMDNS {
		disc := discovery.NewManager(discovery.Config{ServiceName: serverName, Port: *port})
		if err := disc.Advertise(); err != nil {
			log.Printf("mDNS advertise failed (continuing without it): %v", err)
		} else {
			defer disc.Stop()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("received %v, shutting down", sig)
		srv.Stop()
		os.Exit(0)
	}()

	if *tui {
		if err := statustui.Run(serverName, fmt.Sprintf(":%d", *port), srv); err != nil {
			log.Printf("status view error: %v", err)
		}
		srv.Stop()
		return
	}

	log.Printf("press Ctrl-C to stop")
	select {}
}

func newCaptureSource() (engine.CaptureAdapter, error) {
	format := wire.AudioFormat{SampleRate: uint32(*sampleRate), Channels: uint32(*channels), Encoding: wire.EncodingPCM16}

	switch {
	case *audioFile != "":
		return capture.NewFileSource(*audioFile)
	case *useOpus:
		return capture.NewOpusTestToneSource(*sampleRate, *channels)
	default:
		return capture.NewTestToneSource(format), nil
	}
}

// ABOUTME: Entry point for the loopstream client
// ABOUTME: Discovers or dials a server, negotiates the session, and renders audio via oto
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loopstream/loopstream-go/internal/discovery"
	"github.com/loopstream/loopstream-go/internal/engine"
	"github.com/loopstream/loopstream-go/internal/version"
	"github.com/loopstream/loopstream-go/pkg/playback"
)

var (
	serverAddr = flag.String("server", "", "Manual server address host:port (skip mDNS discovery)")
	name       = flag.String("name", "", "Client friendly name, for logs only")
	logFile    = flag.String("log-file", "loopstream-client.log", "Log file path")
	volume     = flag.Int("volume", 100, "Initial playback volume, 0-100")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, f))

	clientName := *name
	if clientName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		clientName = fmt.Sprintf("%s-loopstream-client", hostname)
	}
	log.Printf("loopstream-client %s: starting as %s", version.Version, clientName)

	addr := *serverAddr
	if addr == "" {
		found, err := discoverServer(clientName)
		if err != nil {
			log.Fatalf("server discovery: %v", err)
		}
		addr = found
	}

	sink := playback.NewOtoSink()
	sink.SetVolume(*volume)

	client := engine.NewClient(engine.ClientConfig{Addr: addr}, sink)
	if err := client.Start(); err != nil {
		log.Fatalf("client start: %v", err)
	}
	log.Printf("connected to %s, session id %d, format %+v", addr, client.ID(), client.Format())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("received %v, disconnecting", sig)
		client.Stop()
		os.Exit(0)
	}()

	for client.IsRunning() {
		time.Sleep(500 * time.Millisecond)
	}
	log.Printf("session ended")
}

func discoverServer(clientName string) (string, error) {
	log.Printf("discovering server via mDNS...")
	disc := discovery.NewManager(discovery.Config{ServiceName: clientName})
	if err := disc.Browse(); err != nil {
		return "", fmt.Errorf("browse: %w", err)
	}
	defer disc.Stop()

	select {
	case srv := <-disc.Servers():
		return fmt.Sprintf("%s:%d", srv.Host, srv.Port), nil
	case <-time.After(10 * time.Second):
		return "", fmt.Errorf("no server found within 10s, pass -server host:port")
	}
}

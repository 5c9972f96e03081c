// ABOUTME: mDNS advertisement and browsing for loopstream servers
// ABOUTME: Servers advertise the shared TCP/UDP port; clients browse to find one without a manual host:port
package discovery

import (
	"context"
	"fmt"
	"log"

	"github.com/hashicorp/mdns"

	"github.com/loopstream/loopstream-go/internal/netutil"
)

// ServiceType is the mDNS service type loopstream servers advertise under.
const ServiceType = "_loopstream._tcp"

// Config holds discovery configuration.
type Config struct {
	// ServiceName is the instance name advertised (or searched under, for
	// logging only — Browse matches on ServiceType regardless of name).
	ServiceName string
	// Port is the shared TCP/UDP port a server advertises.
	Port int
}

// Manager handles mDNS advertisement (server side) and browsing (client
// side). A single Manager is used for one role at a time.
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered server.
type ServerInfo struct {
	Name string
	Host string
	Port int
}

// NewManager creates a discovery manager.
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise advertises a loopstream server via mDNS on Config.Port.
func (m *Manager) Advertise() error {
	ips, err := netutil.ListAddresses()
	if err != nil {
		return fmt.Errorf("discovery: get local addresses: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		nil,
	)
	if err != nil {
		return fmt.Errorf("discovery: create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("discovery: create mdns server: %w", err)
	}

	log.Printf("discovery: advertising %s on port %d (%s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches continuously for loopstream servers on the LAN and
// delivers them on Servers().
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				server := &ServerInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}
				log.Printf("discovery: found server %s at %s:%d", server.Name, server.Host, server.Port)
				select {
				case m.servers <- server:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: ServiceType,
			Domain:  "local",
			Timeout: 3,
			Entries: entries,
		}

		mdns.Query(params)
		close(entries)
	}
}

// Servers returns the channel of discovered servers.
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops advertisement or browsing.
func (m *Manager) Stop() {
	m.cancel()
}

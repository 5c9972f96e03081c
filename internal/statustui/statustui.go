// ABOUTME: Read-only bubbletea status view over a Server's peer registry
// ABOUTME: No control surface: it cannot admit, remove, or configure anything, only display snapshots
package statustui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/loopstream/loopstream-go/internal/registry"
)

// PeerSnapshotter is the read-only view a status TUI needs. engine.Server
// satisfies it.
type PeerSnapshotter interface {
	Snapshot() []registry.PeerRecord
	PeerCount() int
}

type tickMsg time.Time
type snapshotMsg []registry.PeerRecord

type model struct {
	name     string
	addr     string
	peers    []registry.PeerRecord
	started  time.Time
	quitting bool
	source   PeerSnapshotter
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickEvery(), pollSnapshot(m.source))
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func pollSnapshot(source PeerSnapshotter) tea.Cmd {
	return func() tea.Msg { return snapshotMsg(source.Snapshot()) }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(tickEvery(), pollSnapshot(m.source))
	case snapshotMsg:
		m.peers = msg
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "\n"
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))

	var b strings.Builder
	b.WriteString(titleStyle.Render("loopstream server"))
	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render("Address: "))
	b.WriteString(valueStyle.Render(m.addr))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Uptime:  "))
	b.WriteString(valueStyle.Render(time.Since(m.started).Round(time.Second).String()))
	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("Peers (%d)", len(m.peers))))
	b.WriteString("\n\n")

	if len(m.peers) == 0 {
		b.WriteString(valueStyle.Render("  none connected"))
		b.WriteString("\n")
	}
	for _, peer := range m.peers {
		bound := "unbound"
		if peer.UDP != nil {
			bound = peer.UDP.String()
		}
		age := time.Since(peer.LastTick).Round(time.Second)
		b.WriteString(fmt.Sprintf("  id=%d  udp=%s  last-heartbeat=%s\n", peer.ID, bound, age))
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("press q to quit (server keeps running)"))
	return b.String()
}

// Run starts the status view and blocks until the user quits. name and addr
// are display-only labels; source is polled once per second.
func Run(name, addr string, source PeerSnapshotter) error {
	m := model{name: name, addr: addr, started: time.Now(), source: source}
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// Package tui is a live terminal dashboard over the pipeline's current
// state: one row per tracked vessel, one line per bridge's current text.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/trollbridge/bridgewatch/internal/bridges"
	"github.com/trollbridge/bridgewatch/internal/vessel"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	bridgeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusStyle = map[vessel.Status]lipgloss.Style{
		vessel.StatusUnderBridge:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		vessel.StatusWaiting:           lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		vessel.StatusStallbackaWaiting: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		vessel.StatusApproaching:       lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
	}
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Snapshot is everything the dashboard renders for one tick.
type Snapshot struct {
	Vessels    []vessel.View
	BridgeText map[string]string
}

type tickMsg time.Time

// model is the bubbletea state: just the latest Snapshot and a poll func.
type model struct {
	poll func() Snapshot
	snap Snapshot
}

// Run starts the dashboard, polling poll every interval, until the user
// quits (q, ctrl+c, esc).
func Run(poll func() Snapshot, interval time.Duration) error {
	m := model{poll: poll, snap: poll()}
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			p.Send(tickMsg(time.Now()))
		}
	}()
	_, err := p.Run()
	return err
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		m.snap = m.poll()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("bridgewatch") + "\n\n")

	reg := bridges.New()
	for _, br := range reg.All() {
		text := m.snap.BridgeText[br.ID]
		if text == "" {
			text = dimStyle.Render("(no active text)")
		}
		b.WriteString(bridgeStyle.Render(br.Name) + ": " + text + "\n")
	}
	b.WriteString("\n")

	vs := append([]vessel.View(nil), m.snap.Vessels...)
	sort.Slice(vs, func(i, j int) bool { return vs[i].MMSI < vs[j].MMSI })

	for _, v := range vs {
		style, ok := statusStyle[v.Status]
		if !ok {
			style = dimStyle
		}
		eta := ""
		if v.HasETA {
			eta = fmt.Sprintf(" eta=%.0fm", v.ETAMinutes)
		}
		b.WriteString(fmt.Sprintf("%-10s %-20s %s%s\n", v.MMSI, v.ShipName, style.Render(v.Status.String()), eta))
	}

	b.WriteString(dimStyle.Render("\nq to quit"))
	return b.String()
}

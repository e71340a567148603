package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/soarm/pkg/pubsub"
	"github.com/gwillem/soarm/pkg/robot"
	"github.com/gwillem/soarm/pkg/teleop"
)

type BridgeCommand struct {
	DeviceOptions
	Space         robot.Space   `long:"space" default:"angle" description:"Units published and followed: raw, angle or norm"`
	Period        time.Duration `long:"period" default:"20ms" description:"Relay cycle time"`
	MaxStep       float64       `long:"max-step" description:"Max joint step per cycle (default depends on --space)"`
	Bidirectional bool          `long:"bidirectional" description:"The leader also follows the follower"`
	BasePort      int           `long:"base-port" default:"6000" description:"Leader publishes on this TCP port, follower on the next"`
	PeerHost      string        `long:"peer-host" default:"localhost" description:"Host of the peer arm's publisher"`
	Debug         bool          `long:"debug" description:"Show a live chart of joint state"`
}

func (c *BridgeCommand) endpoints() (listen, peer string) {
	own, other := c.BasePort, c.BasePort+1
	if c.Mode == robot.RoleFollower {
		own, other = other, own
	}
	return fmt.Sprintf("tcp://*:%d", own), fmt.Sprintf("tcp://%s:%d", c.PeerHost, other)
}

func (c *BridgeCommand) Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := c.device()
	cfg := teleop.Config{
		Device:        d,
		Space:         c.Space,
		Period:        c.Period,
		MaxStep:       c.MaxStep,
		Bidirectional: c.Bidirectional,
	}

	arm, err := c.openArm(ctx)
	if err != nil {
		return err
	}

	listen, peer := c.endpoints()
	pub, err := pubsub.ListenZMQ(ctx, listen)
	if err != nil {
		arm.Shutdown(context.Background())
		return err
	}
	defer pub.Close()
	fmt.Printf("Publishing on %s, topic = %s\n", listen, teleop.Topic(d))

	var sub pubsub.Subscriber
	if cfg.Follows() {
		topic := teleop.Topic(d.Peer())
		zsub, err := pubsub.DialZMQ(ctx, pubsub.ZMQConfig{Endpoint: peer, Topic: topic, Logf: log.Printf})
		if err != nil {
			arm.Shutdown(context.Background())
			return err
		}
		defer zsub.Close()
		sub = zsub
		fmt.Printf("Subscribed to %s, topic = %s\n", peer, topic)
	}

	relay, err := teleop.NewRelay(cfg, arm, pub, sub)
	if err != nil {
		arm.Shutdown(context.Background())
		return err
	}

	if !c.Debug {
		go func() {
			for msg := range relay.Logs() {
				fmt.Println(msg)
			}
		}()
		return relay.Run(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- relay.Run(runCtx)
	}()

	// Run TUI
	p := tea.NewProgram(initialBridgeModel(relay, arm.Joints().Names()), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		log.Printf("Error running program: %v", err)
	}
	cancel()
	return <-done
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Motor colors - distinct colors for each motor
var motorColors = []string{
	"196", // red
	"208", // orange
	"226", // yellow
	"46",  // green
	"51",  // cyan
	"201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func yRange(space robot.Space) (lo, hi float64) {
	switch space {
	case robot.SpaceRaw:
		return 0, robot.Resolution - 1
	case robot.SpaceNorm:
		return 0, robot.NormMax
	default:
		return -math.Pi, math.Pi
	}
}

type bridgeModel struct {
	relay         *teleop.Relay
	names         []robot.MotorName
	chart         *streamlinechart.Model
	width         int      // terminal width
	height        int      // terminal height
	logs          []string // last N log messages
	quitting      bool
	lastPositions []float64 // track previous positions to detect movement
}

func (m *bridgeModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement checks if any motor position has changed from the last state
func (m *bridgeModel) hasMovement(positions []float64) bool {
	if len(m.lastPositions) != len(positions) {
		return true // first reading, consider it movement
	}
	for i, pos := range positions {
		if pos != m.lastPositions[i] {
			return true
		}
	}
	return false
}

// Messages from the relay
type stateMsg teleop.State
type logMsg string

func waitForState(relay *teleop.Relay) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-relay.States())
	}
}

func waitForLog(relay *teleop.Relay) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-relay.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *bridgeModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m *bridgeModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func motorStyle(i int) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(motorColors[i%len(motorColors)]))
}

func initialBridgeModel(relay *teleop.Relay, names []robot.MotorName) bridgeModel {
	lo, hi := yRange(relay.Config().Space)
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(lo, hi),
	)

	// Set up data set styles for each motor
	for i, name := range names {
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, motorStyle(i))
	}

	return bridgeModel{
		relay: relay,
		names: names,
		chart: &chart,
	}
}

func (m bridgeModel) Init() tea.Cmd {
	// Start listening for state and log updates
	return tea.Batch(
		waitForState(m.relay),
		waitForLog(m.relay),
	)
}

func (m bridgeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		state := teleop.State(msg)
		if state.Positions != nil && len(state.Positions) == len(m.names) {
			// Only update chart if there's movement (freeze when idle)
			if m.hasMovement(state.Positions) {
				for i, pos := range state.Positions {
					m.chart.PushDataSet(string(m.names[i]), pos)
				}
				m.chart.DrawAll()
				m.lastPositions = state.Positions
			}
		}
		return m, waitForState(m.relay)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.relay)
	}

	return m, nil
}

func (m bridgeModel) View() string {
	if m.quitting {
		return "Bridge stopped.\n"
	}

	cfg := m.relay.Config()
	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("LeRobot Bridge"))
	sb.WriteString(fmt.Sprintf(" - %s, %s space, %v", cfg.Device.Name(), cfg.Space, cfg.Period))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m bridgeModel) renderLegend() string {
	var items []string
	for i, name := range m.names {
		item := motorStyle(i).Bold(true).Render("━━") + " " + string(name)
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/soarm/pkg/robot"
	"github.com/gwillem/soarm/pkg/servo"
)

type CalibrateCommand struct {
	DeviceOptions
	WriteOffsets bool `long:"write-offsets" description:"Also store the homing offsets in the servos"`
}

func (c *CalibrateCommand) Execute(args []string) error {
	d := c.device()
	ctx := context.Background()

	fmt.Println(headerStyle.Render("LeRobot Calibrate"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	port, source := robot.ResolvePort(c.Port, d)
	if source == "default" {
		if _, err := robot.LoadPortConfig(d.PortFile()); err != nil {
			fmt.Println(warnStyle.Render(err.Error()))
		}
	}
	fmt.Printf("Calibrating %s on %s\n\n", d.Name(), port)

	arm, err := robot.NewArm(ctx, robot.ArmConfig{
		Port:        port,
		IDs:         c.ids(),
		Calibration: robot.Calibration{},
		Logf:        log.Printf,
	})
	if err != nil {
		return fmt.Errorf("connect to arm: %w", err)
	}
	return c.calibrate(ctx, arm)
}

// calibrate records the calibration of arm and saves it. The arm is shut
// down on every return.
func (c *CalibrateCommand) calibrate(ctx context.Context, arm *robot.Arm) error {
	defer func() {
		if err := arm.Shutdown(context.Background()); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	// Disable all servos so user can move arm freely
	if err := arm.Disable(ctx); err != nil {
		return fmt.Errorf("disable torque: %w", err)
	}

	bus := arm.Bus()
	joints := arm.Joints()

	fmt.Println(subHeaderStyle.Render("Middle pose"))
	if err := waitForUser("Move the arm to its middle pose."); err != nil {
		return err
	}
	centers, err := bus.Positions(ctx)
	if err != nil {
		return err
	}
	for i, id := range bus.IDs() {
		fmt.Printf("  ID %d: %d\n", id, centers[i])
	}

	if c.WriteOffsets {
		offsets, err := bus.SetHomingOffsets(ctx, centers)
		if err != nil {
			return fmt.Errorf("write homing offsets: %w", err)
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("Wrote homing offsets %v", offsets)))
		// Positions are now reported relative to the new offsets
		if centers, err = bus.Positions(ctx); err != nil {
			return err
		}
	}
	fmt.Println()

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to both of its hard stops.")
	fmt.Println()

	model := newCalibrationModel(bus, joints.Names(), centers)
	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return fmt.Errorf("run calibration: %w", err)
	}
	cm := finalModel.(calibrationModel)

	calibration := make(robot.Calibration, len(joints))
	for i, id := range bus.IDs() {
		mc := robot.NewMotorCalibration(id, centers[i], cm.minPositions[i], cm.maxPositions[i])
		calibration[mc.Name] = mc
		fmt.Printf("  %-14s offset %5d, range [%d, %d]\n", mc.Name, mc.HomingOffset, mc.RangeMin, mc.RangeMax)
	}

	path := c.calibrationFile()
	if err := calibration.Save(path); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	fmt.Println()
	fmt.Println(successStyle.Render("Saved " + path))
	return nil
}

// Calibration TUI model
type calibrationModel struct {
	bus          *servo.Bus
	names        []robot.MotorName
	curPositions []int
	minPositions []int
	maxPositions []int
	err          error
	quitting     bool
}

type tickMsg time.Time

func newCalibrationModel(bus *servo.Bus, names []robot.MotorName, start []int) calibrationModel {
	return calibrationModel{
		bus:          bus,
		names:        names,
		curPositions: append([]int(nil), start...),
		minPositions: append([]int(nil), start...),
		maxPositions: append([]int(nil), start...),
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return tick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		pos, err := m.bus.Positions(context.Background())
		m.err = err
		if err == nil {
			for i, p := range pos {
				m.curPositions[i] = p
				m.minPositions[i] = min(m.minPositions[i], p)
				m.maxPositions[i] = max(m.maxPositions[i], p)
			}
		}
		return m, tick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	// Table styles
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableMotorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.names))
	ranges := make([]int, 0, len(m.names))
	for i, name := range m.names {
		rangeSize := m.maxPositions[i] - m.minPositions[i]
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%d", m.curPositions[i]),
			fmt.Sprintf("%d", m.minPositions[i]),
			fmt.Sprintf("%d", m.maxPositions[i]),
			fmt.Sprintf("%d", rangeSize),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableMotorStyle
			case 1:
				return tableCurrentStyle
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	if m.err != nil {
		sb.WriteString(warnStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString(dimStyle.Render("Press Enter when done"))

	return sb.String()
}

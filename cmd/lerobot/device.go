package main

import (
	"context"
	"fmt"
	"log"

	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/soarm/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// DeviceOptions selects one arm and where its files live.
type DeviceOptions struct {
	Device      string     `long:"device" choice:"so100" choice:"so101" default:"so101" description:"Arm family"`
	Mode        robot.Role `long:"mode" choice:"leader" choice:"follower" default:"follower" description:"Arm role"`
	Port        string     `long:"port" description:"Serial port (default: from <device>_<mode>_motorbus_port.json)"`
	IDs         []int      `long:"id" description:"Servo id, repeat for each joint (default: 1-6)"`
	Calibration string     `long:"calib-file" description:"Calibration file (default: <device>_<mode>_calibration.json)"`
}

func (o *DeviceOptions) device() robot.Device {
	return robot.Device{Family: o.Device, Role: o.Mode}
}

func (o *DeviceOptions) ids() []int {
	if len(o.IDs) > 0 {
		return o.IDs
	}
	return robot.DefaultIDs()
}

func (o *DeviceOptions) calibrationFile() string {
	if o.Calibration != "" {
		return o.Calibration
	}
	return o.device().CalibrationFile()
}

// port resolves the serial port, telling the user where it came from.
func (o *DeviceOptions) port() string {
	port, source := robot.ResolvePort(o.Port, o.device())
	fmt.Println(dimStyle.Render(fmt.Sprintf("Using port %s (%s)", port, source)))
	return port
}

// openArm connects to the arm with its calibration. A missing calibration
// file is not fatal.
func (o *DeviceOptions) openArm(ctx context.Context) (*robot.Arm, error) {
	cal, err := robot.LoadCalibrationOrDefault(o.calibrationFile(), log.Printf)
	if err != nil {
		return nil, err
	}
	return robot.NewArm(ctx, robot.ArmConfig{
		Port:        o.port(),
		IDs:         o.ids(),
		Calibration: cal,
		Logf:        log.Printf,
	})
}

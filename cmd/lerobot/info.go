package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.uber.org/multierr"

	"github.com/gwillem/soarm/pkg/robot"
)

type InfoCommand struct {
	DeviceOptions
}

func (c *InfoCommand) Execute(args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fmt.Println(headerStyle.Render("LeRobot Info"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━"))
	fmt.Println()

	arm, err := c.openArm(ctx)
	if err != nil {
		return err
	}
	defer arm.Close()

	bus := arm.Bus()
	versions, err := bus.FirmwareVersions(ctx)
	for _, e := range multierr.Errors(err) {
		log.Printf("firmware: %v", e)
	}

	raw, err := bus.Positions(ctx)
	if err != nil {
		return err
	}
	joints := arm.Joints()
	angles, err := joints.ToSpace(raw, robot.SpaceAngle)
	if err != nil {
		return err
	}

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	rows := make([][]string, 0, len(joints))
	for i, j := range joints {
		norm := "-"
		if v, err := j.RawToNorm(raw[i]); err == nil {
			norm = fmt.Sprintf("%.1f", v)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", j.ID),
			string(j.Name),
			versions[j.ID],
			fmt.Sprintf("%d", raw[i]),
			fmt.Sprintf("%.3f", angles[i]),
			norm,
			fmt.Sprintf("[%d, %d]", j.RangeMin, j.RangeMax),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("ID", "Motor", "Firmware", "Raw", "Angle", "Norm", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		})
	fmt.Println(t.Render())
	return nil
}

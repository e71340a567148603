package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"go.bug.st/serial"

	"github.com/gwillem/soarm/pkg/robot"
	"github.com/gwillem/soarm/pkg/servo"
)

type FindPortCommand struct {
	Device string     `long:"device" choice:"so100" choice:"so101" default:"so101" description:"Arm family"`
	Mode   robot.Role `long:"mode" choice:"leader" choice:"follower" default:"follower" description:"Arm role"`
	Scan   bool       `long:"scan" description:"Probe every port for servos and wiggle each arm found instead of unplugging"`
}

func (c *FindPortCommand) Execute(args []string) error {
	d := robot.Device{Family: c.Device, Role: c.Mode}

	fmt.Println(headerStyle.Render("LeRobot Find Port"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	var port string
	var err error
	if c.Scan {
		port, err = scanForArm(d)
	} else {
		port, err = detectByUnplug()
	}
	if err != nil {
		return err
	}

	if err := (&robot.PortConfig{Port: port}).SaveTo(d.PortFile()); err != nil {
		return fmt.Errorf("save %s: %w", d.PortFile(), err)
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Saved %s to %s", port, d.PortFile())))
	fmt.Println()
	fmt.Println("Calibrate with: " + headerStyle.Render(fmt.Sprintf("lerobot calibrate --device %s --mode %s", d.Family, d.Role)))
	return nil
}

func listPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	// Skip Bluetooth ports on macOS
	return slices.DeleteFunc(ports, func(p string) bool {
		return strings.Contains(p, "Bluetooth")
	}), nil
}

// detectByUnplug compares the port list before and after the user
// unplugs the arm.
func detectByUnplug() (string, error) {
	before, err := listPorts()
	if err != nil {
		return "", err
	}

	if err := waitForUser("Unplug the USB cable of the arm's motor bus."); err != nil {
		return "", err
	}
	time.Sleep(500 * time.Millisecond)

	after, err := listPorts()
	if err != nil {
		return "", err
	}
	var removed []string
	for _, p := range before {
		if !slices.Contains(after, p) {
			removed = append(removed, p)
		}
	}

	switch len(removed) {
	case 1:
		fmt.Printf("Detected motor bus on port: %s\n", removed[0])
		fmt.Println("Re-plug the USB cable now.")
		return removed[0], nil
	case 0:
		return "", errors.New("no port change detected, make sure you unplugged the device")
	default:
		return "", fmt.Errorf("multiple ports changed: %v, try again one at a time", removed)
	}
}

// scanForArm probes every port for an arm with the stock servo ids and
// asks the user which one just wiggled.
func scanForArm(d robot.Device) (string, error) {
	ports, err := listPorts()
	if err != nil {
		return "", err
	}

	fmt.Println("Scanning for robot arms...")
	for _, port := range ports {
		bus, err := probeArm(port)
		if err != nil {
			continue
		}
		fmt.Printf("  Found arm on %s\n", port)

		wiggle(bus)
		bus.Close()

		var ok bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Is the arm that just wiggled the %s?", d.Name())).
					Value(&ok),
			),
		)
		if err := runPrompt(form); err != nil {
			return "", err
		}
		if ok {
			return port, nil
		}
	}
	return "", fmt.Errorf("no %s found, make sure the arm is connected and powered on", d.Name())
}

func probeArm(port string) (*servo.Bus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	t, err := servo.OpenFeetech(servo.FeetechConfig{Port: port})
	if err != nil {
		return nil, err
	}
	found, err := t.Scan(ctx, 1, 6)
	if err != nil {
		t.Close()
		return nil, err
	}
	slices.Sort(found)
	if !slices.Equal(found, robot.DefaultIDs()) {
		t.Close()
		return nil, fmt.Errorf("not an SO arm (expected servos 1-6, found %v)", found)
	}
	return servo.ConnectTransport(ctx, t, servo.Config{IDs: found, Logf: log.Printf})
}

// wiggle moves the shoulder pan a little and back.
func wiggle(bus *servo.Bus) {
	ctx := context.Background()

	pos, err := bus.Positions(ctx)
	if err != nil {
		fmt.Printf("  Error reading position: %v\n", err)
		return
	}
	// Hold the current pose so enabling torque does not jump
	if err := bus.SetPositions(ctx, pos); err != nil {
		fmt.Printf("  Error writing position: %v\n", err)
		return
	}
	if err := bus.SetTorque(ctx, true); err != nil {
		fmt.Printf("  Error enabling servos: %v\n", err)
		return
	}
	defer bus.SetTorque(ctx, false)

	const wiggleAmount = 30
	pan := int64(pos[0])
	for _, goal := range []int64{pan + wiggleAmount, pan - wiggleAmount, pan} {
		bus.SyncWrite(ctx, servo.GoalPosition, []int64{goal}, 1)
		time.Sleep(600 * time.Millisecond)
	}
}

// errAborted is returned when the user quits a prompt.
var errAborted = errors.New("aborted by user")

// runForm runs an interactive form. Tests replace it.
var runForm = func(f *huh.Form) error { return f.Run() }

// runPrompt runs form and maps a user abort to errAborted, so commands
// unwind through their deferred cleanup.
func runPrompt(form *huh.Form) error {
	if err := runForm(form); err != nil {
		fmt.Println()
		if errors.Is(err, huh.ErrUserAborted) {
			return errAborted
		}
		return fmt.Errorf("prompt: %w", err)
	}
	return nil
}

func waitForUser(prompt string) error {
	fmt.Println(prompt)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("").
				Affirmative("Continue").
				Negative("").
				Value(new(bool)),
		),
	)
	return runPrompt(form)
}

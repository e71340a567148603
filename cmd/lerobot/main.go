package main

import (
	"errors"
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	FindPort  FindPortCommand  `command:"find-port" description:"Detect the serial port of an arm and save it"`
	Calibrate CalibrateCommand `command:"calibrate" description:"Record middle pose and range of motion of an arm"`
	Move      MoveCommand      `command:"move" description:"Move an arm to a target pose"`
	Bridge    BridgeCommand    `command:"bridge" alias:"teleop" alias:"teleoperate" description:"Relay state between leader and follower arms"`
	Info      InfoCommand      `command:"info" description:"Show firmware versions and positions"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "LeRobot - Robot arm control CLI for SO-100 and SO-101 arms"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		if errors.Is(err, errAborted) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

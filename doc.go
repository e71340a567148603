// Package soarm controls SO-100 and SO-101 robot arms built from Feetech
// STS servos.
//
// It reads and writes joint state over the servo bus, converts between
// raw encoder ticks, joint angles and a normalized range, moves arms at
// a bounded step rate, and relays state from a leader arm to a follower
// arm over ZeroMQ.
//
// # Installation
//
//	go install github.com/gwillem/soarm/cmd/lerobot@latest
//
// # Usage
//
// Find the serial port of each arm, then calibrate it:
//
//	lerobot find-port --mode leader
//	lerobot calibrate --mode leader
//
// Move an arm to six joint angles in radians:
//
//	lerobot move --mode follower -- 0 -0.5 0.5 0 0 0
//
// Relay the leader to the follower, in two terminals:
//
//	lerobot bridge --mode leader
//	lerobot bridge --mode follower --debug
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/lerobot: CLI with find-port, calibrate, move, bridge and info commands
//   - pkg/servo: Register codec and synchronized servo bus
//   - pkg/robot: Arm, calibration, coordinate spaces and configuration files
//   - pkg/motion: Step-rate-limited motion controller
//   - pkg/teleop: Leader/follower relay
//   - pkg/pubsub: Conflating state transport (in-process and ZeroMQ)
//   - pkg/clock: Clock abstraction for the control loops
package soarm

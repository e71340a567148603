// Package robot provides abstractions for controlling robot arms.
package robot

import "fmt"

// MotorName identifies a motor in the arm.
type MotorName string

// Motor names for the SO-100 and SO-101 arms.
const (
	ShoulderPan  MotorName = "shoulder_pan"
	ShoulderLift MotorName = "shoulder_lift"
	ElbowFlex    MotorName = "elbow_flex"
	WristFlex    MotorName = "wrist_flex"
	WristRoll    MotorName = "wrist_roll"
	Gripper      MotorName = "gripper"
)

// AllMotors returns all motor names in order (matching servo IDs 1-6).
func AllMotors() []MotorName {
	return []MotorName{
		ShoulderPan,
		ShoulderLift,
		ElbowFlex,
		WristFlex,
		WristRoll,
		Gripper,
	}
}

// DefaultIDs returns the servo IDs of a stock arm, in joint order.
func DefaultIDs() []int {
	return []int{1, 2, 3, 4, 5, 6}
}

// MotorNameForID returns the stock name of the motor with the given id.
func MotorNameForID(id int) MotorName {
	motors := AllMotors()
	if id >= 1 && id <= len(motors) {
		return motors[id-1]
	}
	return MotorName(fmt.Sprintf("motor_%d", id))
}

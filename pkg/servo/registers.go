// Package servo implements the register-level protocol for a bus of
// serial servos: register descriptors, value encoding and the batched
// read/write transactions used to drive an arm.
package servo

import "fmt"

// Register identifies a control-table entry supported by the bus.
type Register int

// Supported registers.
const (
	PresentPosition Register = iota
	GoalPosition
	HomingOffset
	MinPositionLimit
	MaxPositionLimit
	ID
	TorqueEnable
	FirmwareMajor
	FirmwareMinor

	numRegisters
)

var registerNames = [numRegisters]string{
	PresentPosition:  "Present_Position",
	GoalPosition:     "Goal_Position",
	HomingOffset:     "Homing_Offset",
	MinPositionLimit: "Min_Position_Limit",
	MaxPositionLimit: "Max_Position_Limit",
	ID:               "ID",
	TorqueEnable:     "Torque_Enable",
	FirmwareMajor:    "Firmware_Major_Version",
	FirmwareMinor:    "Firmware_Minor_Version",
}

func (r Register) String() string {
	if r < 0 || r >= numRegisters {
		return fmt.Sprintf("Register(%d)", int(r))
	}
	return registerNames[r]
}

// ParseRegister returns the register with the given control-table name.
func ParseRegister(name string) (Register, error) {
	for r, n := range registerNames {
		if n == name {
			return Register(r), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRegister, name)
}

// RegisterMap holds the descriptors of one servo family.
type RegisterMap map[Register]Descriptor

// Descriptor returns the descriptor for r.
func (m RegisterMap) Descriptor(r Register) (Descriptor, error) {
	d, ok := m[r]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownRegister, r)
	}
	return d, nil
}

func mustDescriptor(address uint16, width int, sign SignConvention) Descriptor {
	d, err := NewDescriptor(address, width, sign)
	if err != nil {
		panic(err)
	}
	return d
}

// STS3215Registers is the control table of the STS3215 family used by the
// SO-100 and SO-101 arms.
var STS3215Registers = RegisterMap{
	FirmwareMajor:    mustDescriptor(0, 1, Unsigned()),
	FirmwareMinor:    mustDescriptor(1, 1, Unsigned()),
	ID:               mustDescriptor(5, 1, Unsigned()),
	MinPositionLimit: mustDescriptor(9, 2, Unsigned()),
	MaxPositionLimit: mustDescriptor(11, 2, Unsigned()),
	HomingOffset:     mustDescriptor(31, 2, SignMagnitude(11)),
	TorqueEnable:     mustDescriptor(40, 1, Unsigned()),
	GoalPosition:     mustDescriptor(42, 2, Unsigned()),
	PresentPosition:  mustDescriptor(56, 2, Unsigned()),
}

package servo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for the failure classes of the bus.
var (
	ErrIO               = errors.New("cannot open servo transport")
	ErrComm             = errors.New("bus transaction failed")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrHardwareMismatch = errors.New("hardware mismatch")
	ErrUnknownRegister  = errors.New("unknown register")
	ErrBusClosed        = errors.New("servo bus is closed")
)

// CommError is returned when a batched transaction does not complete.
type CommError struct {
	Op       string   // "sync_read", "sync_write", ...
	Register Register // Register addressed by the transaction
	IDs      []int    // Devices addressed by the transaction
	Err      error    // Underlying transport error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("%s %s ids %v: %v", e.Op, e.Register, e.IDs, e.Err)
}

func (e *CommError) Unwrap() error {
	return e.Err
}

func (e *CommError) Is(target error) bool {
	return target == ErrComm
}

// DeviceError reports a failure of a single-device operation.
type DeviceError struct {
	ID  int
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("servo %d %s: %v", e.ID, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// HardwareMismatchError is returned by AssertSameFirmware.
type HardwareMismatchError struct {
	// Versions holds the firmware version of every device that answered.
	Versions map[int]string
	// Missing lists the devices that did not answer.
	Missing []int
}

func (e *HardwareMismatchError) Error() string {
	if len(e.Versions) == 0 {
		return fmt.Sprintf("could not read firmware versions from any motors (ids %v)", e.Missing)
	}
	ids := make([]int, 0, len(e.Versions))
	for id := range e.Versions {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var sb strings.Builder
	sb.WriteString("motors have mismatched firmware versions:")
	for _, id := range ids {
		fmt.Fprintf(&sb, "\n  ID %d: %s", id, e.Versions[id])
	}
	for _, id := range e.Missing {
		fmt.Fprintf(&sb, "\n  ID %d: no answer", id)
	}
	return sb.String()
}

func (e *HardwareMismatchError) Is(target error) bool {
	return target == ErrHardwareMismatch
}

package robot

import "fmt"

// Space selects the coordinate space of a joint state vector.
type Space int

const (
	// SpaceRaw is integer encoder ticks in [0, Resolution-1].
	SpaceRaw Space = iota
	// SpaceAngle is radians relative to the homed zero of each joint.
	SpaceAngle
	// SpaceNorm is [0, NormMax] across the calibrated range of each joint.
	SpaceNorm
)

func (s Space) String() string {
	switch s {
	case SpaceRaw:
		return "raw"
	case SpaceAngle:
		return "angle"
	case SpaceNorm:
		return "norm"
	default:
		return fmt.Sprintf("Space(%d)", int(s))
	}
}

// ParseSpace parses "raw", "angle" (or "rad") and "norm".
func ParseSpace(s string) (Space, error) {
	switch s {
	case "raw":
		return SpaceRaw, nil
	case "angle", "rad":
		return SpaceAngle, nil
	case "norm":
		return SpaceNorm, nil
	}
	return 0, fmt.Errorf("unknown coordinate space %q (want raw, angle or norm)", s)
}

// UnmarshalFlag implements flags.Unmarshaler.
func (s *Space) UnmarshalFlag(value string) error {
	v, err := ParseSpace(value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalFlag implements flags.Marshaler.
func (s Space) MarshalFlag() (string, error) {
	return s.String(), nil
}

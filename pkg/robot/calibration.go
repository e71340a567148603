package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"

	"github.com/gwillem/soarm/pkg/servo"
)

// Encoder geometry of the STS3215.
const (
	Resolution  = servo.DefaultResolution
	MidPosition = Resolution / 2
	// NormMax is the upper bound of the normalized space.
	NormMax = 200.0

	radPerTick = 2 * math.Pi / Resolution
)

// ErrInvalidCalibration is returned for degenerate or out-of-range entries.
var ErrInvalidCalibration = errors.New("invalid calibration")

// MotorCalibration holds calibration data for a single motor.
type MotorCalibration struct {
	Name         MotorName `json:"-"`
	ID           int       `json:"id"`
	HomingOffset int       `json:"homing_offset"`
	RangeMin     int       `json:"range_min"`
	RangeMax     int       `json:"range_max"`
}

// DefaultMotorCalibration is used for joints missing from a calibration
// file: no offset and the full encoder range.
func DefaultMotorCalibration(id int) MotorCalibration {
	return MotorCalibration{
		Name:     MotorNameForID(id),
		ID:       id,
		RangeMin: 0,
		RangeMax: Resolution - 1,
	}
}

// NewMotorCalibration builds an entry from the raw positions recorded at
// the middle pose and at both mechanical end-stops.
func NewMotorCalibration(id, center, stopA, stopB int) MotorCalibration {
	lo, hi := stopA, stopB
	if lo > hi {
		lo, hi = hi, lo
	}
	return MotorCalibration{
		Name:         MotorNameForID(id),
		ID:           id,
		HomingOffset: center - MidPosition,
		RangeMin:     lo,
		RangeMax:     hi,
	}
}

// Validate checks that the range lies inside the encoder range.
func (c MotorCalibration) Validate() error {
	if c.RangeMin > c.RangeMax {
		return fmt.Errorf("%w: servo %d: range_min %d > range_max %d", ErrInvalidCalibration, c.ID, c.RangeMin, c.RangeMax)
	}
	if c.RangeMin < 0 || c.RangeMax > Resolution-1 {
		return fmt.Errorf("%w: servo %d: range [%d, %d] outside [0, %d]", ErrInvalidCalibration, c.ID, c.RangeMin, c.RangeMax, Resolution-1)
	}
	return nil
}

func (c MotorCalibration) clamp(raw int) int {
	return min(max(raw, c.RangeMin), c.RangeMax)
}

// RawToAngle converts a raw servo position to radians from the homed zero.
func (c MotorCalibration) RawToAngle(raw int) float64 {
	return float64(raw-MidPosition-c.HomingOffset) * radPerTick
}

// AngleToRaw converts radians to the nearest raw position, clamped to the
// calibrated range.
func (c MotorCalibration) AngleToRaw(angle float64) int {
	raw := int(math.Round(angle/radPerTick)) + MidPosition + c.HomingOffset
	return c.clamp(raw)
}

// RawToNorm converts a raw servo position to [0, NormMax].
func (c MotorCalibration) RawToNorm(raw int) (float64, error) {
	width := c.RangeMax - c.RangeMin
	if width <= 0 {
		return 0, fmt.Errorf("%w: servo %d has zero-width range [%d, %d]", ErrInvalidCalibration, c.ID, c.RangeMin, c.RangeMax)
	}
	norm := float64(raw-c.RangeMin) / float64(width) * NormMax
	return min(max(norm, 0), NormMax), nil
}

// NormToRaw converts a normalized value to the nearest raw position,
// clamped to the calibrated range.
func (c MotorCalibration) NormToRaw(norm float64) (int, error) {
	width := c.RangeMax - c.RangeMin
	if width <= 0 {
		return 0, fmt.Errorf("%w: servo %d has zero-width range [%d, %d]", ErrInvalidCalibration, c.ID, c.RangeMin, c.RangeMax)
	}
	raw := int(math.Round(norm/NormMax*float64(width))) + c.RangeMin
	return c.clamp(raw), nil
}

// Calibration holds calibration data for all motors, keyed by motor name.
type Calibration map[MotorName]MotorCalibration

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	// Parse into a map with string keys first
	var raw map[string]MotorCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse calibration %s: %w", path, err)
	}

	cal := make(Calibration, len(raw))
	for name, mc := range raw {
		mc.Name = MotorName(name)
		if err := mc.Validate(); err != nil {
			return nil, fmt.Errorf("%s: joint %s: %w", path, name, err)
		}
		cal[MotorName(name)] = mc
	}

	return cal, nil
}

// LoadCalibrationOrDefault is LoadCalibration, except that a missing file
// is logged and yields an empty calibration, so every joint gets the
// default entry.
func LoadCalibrationOrDefault(path string, logf func(format string, args ...any)) (Calibration, error) {
	cal, err := LoadCalibration(path)
	if errors.Is(err, fs.ErrNotExist) {
		logf("Calibration file %s not found; using defaults (run 'lerobot calibrate' to create it)", path)
		return Calibration{}, nil
	}
	return cal, err
}

// Save writes the calibration to a JSON file.
func (c Calibration) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// MotorIDs returns the servo IDs for all motors in the calibration.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	// Use AllMotors() to ensure consistent ordering
	for _, name := range AllMotors() {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	// Joints with non-stock names follow in id order
	var extra []int
	for name, mc := range c {
		if !isStock(name) {
			extra = append(extra, mc.ID)
		}
	}
	sort.Ints(extra)
	return append(ids, extra...)
}

func isStock(name MotorName) bool {
	for _, m := range AllMotors() {
		if m == name {
			return true
		}
	}
	return false
}

// ByID returns motor name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (MotorName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}

// Joints returns one entry per id, in the order given. Ids without an
// entry get DefaultMotorCalibration.
func (c Calibration) Joints(ids []int) (Joints, error) {
	joints := make(Joints, len(ids))
	for i, id := range ids {
		name, mc, ok := c.ByID(id)
		if !ok {
			joints[i] = DefaultMotorCalibration(id)
			continue
		}
		mc.Name = name
		if err := mc.Validate(); err != nil {
			return nil, err
		}
		joints[i] = mc
	}
	return joints, nil
}

// Joints is the calibration of an arm in servo id order.
type Joints []MotorCalibration

// IDs returns the servo ids in joint order.
func (j Joints) IDs() []int {
	ids := make([]int, len(j))
	for i, mc := range j {
		ids[i] = mc.ID
	}
	return ids
}

// Names returns the motor names in joint order.
func (j Joints) Names() []MotorName {
	names := make([]MotorName, len(j))
	for i, mc := range j {
		names[i] = mc.Name
	}
	return names
}

// ToSpace converts raw positions into the given space.
func (j Joints) ToSpace(raw []int, space Space) ([]float64, error) {
	if len(raw) != len(j) {
		return nil, fmt.Errorf("%w: %d positions for %d joints", servo.ErrInvalidArgument, len(raw), len(j))
	}
	out := make([]float64, len(raw))
	for i, r := range raw {
		switch space {
		case SpaceRaw:
			out[i] = float64(r)
		case SpaceAngle:
			out[i] = j[i].RawToAngle(r)
		case SpaceNorm:
			v, err := j[i].RawToNorm(r)
			if err != nil {
				return nil, err
			}
			out[i] = v
		default:
			return nil, fmt.Errorf("%w: %s", servo.ErrInvalidArgument, space)
		}
	}
	return out, nil
}

// ToRaw converts a state vector into raw positions. Angle and normalized
// values are clamped to each joint's calibrated range; raw values are
// rounded and passed through.
func (j Joints) ToRaw(state []float64, space Space) ([]int, error) {
	if len(state) != len(j) {
		return nil, fmt.Errorf("%w: %d values for %d joints", servo.ErrInvalidArgument, len(state), len(j))
	}
	out := make([]int, len(state))
	for i, v := range state {
		switch space {
		case SpaceRaw:
			out[i] = int(math.Round(v))
		case SpaceAngle:
			out[i] = j[i].AngleToRaw(v)
		case SpaceNorm:
			r, err := j[i].NormToRaw(v)
			if err != nil {
				return nil, err
			}
			out[i] = r
		default:
			return nil, fmt.Errorf("%w: %s", servo.ErrInvalidArgument, space)
		}
	}
	return out, nil
}

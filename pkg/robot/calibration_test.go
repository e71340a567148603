package robot

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestMotorCalibration_RawToNorm(t *testing.T) {
	cal := MotorCalibration{
		RangeMin: 1000,
		RangeMax: 3000,
	}

	tests := []struct {
		raw      int
		expected float64
	}{
		{1000, 0.0},   // min -> 0
		{3000, 200.0}, // max -> 200
		{2000, 100.0}, // mid -> 100
		{1500, 50.0},  // quarter
		{2500, 150.0}, // three-quarter
		{500, 0.0},    // below range clamps
		{4000, 200.0}, // above range clamps
	}

	for _, tt := range tests {
		got, err := cal.RawToNorm(tt.raw)
		if err != nil {
			t.Fatalf("RawToNorm(%d): %v", tt.raw, err)
		}
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("RawToNorm(%d) = %f, want %f", tt.raw, got, tt.expected)
		}
	}
}

func TestMotorCalibration_NormToRaw(t *testing.T) {
	cal := MotorCalibration{
		RangeMin: 1000,
		RangeMax: 3000,
	}

	tests := []struct {
		norm     float64
		expected int
	}{
		{0.0, 1000},   // 0 -> min
		{200.0, 3000}, // 200 -> max
		{100.0, 2000}, // mid
		{50.0, 1500},
		{150.0, 2500},
		{-20.0, 1000}, // clamped
		{260.0, 3000}, // clamped
	}

	for _, tt := range tests {
		got, err := cal.NormToRaw(tt.norm)
		if err != nil {
			t.Fatalf("NormToRaw(%f): %v", tt.norm, err)
		}
		if got != tt.expected {
			t.Errorf("NormToRaw(%f) = %d, want %d", tt.norm, got, tt.expected)
		}
	}
}

func TestMotorCalibration_RoundTrip(t *testing.T) {
	cals := []MotorCalibration{
		{RangeMin: 823, RangeMax: 3540},
		{RangeMin: 0, RangeMax: 4095},
		{RangeMin: 2000, RangeMax: 2001},
		{RangeMin: 1234, RangeMax: 1241},
	}

	// Test round-trip: raw -> normalized -> raw
	for _, cal := range cals {
		for raw := cal.RangeMin; raw <= cal.RangeMax; raw++ {
			norm, err := cal.RawToNorm(raw)
			if err != nil {
				t.Fatal(err)
			}
			back, err := cal.NormToRaw(norm)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(float64(back-raw)) > 1 {
				t.Errorf("Round-trip failed: %d -> %f -> %d", raw, norm, back)
			}
		}
	}
}

func TestMotorCalibration_ZeroWidthRange(t *testing.T) {
	cal := MotorCalibration{ID: 4, RangeMin: 2048, RangeMax: 2048}

	if _, err := cal.RawToNorm(2048); !errors.Is(err, ErrInvalidCalibration) {
		t.Errorf("RawToNorm on zero-width range: got %v, want ErrInvalidCalibration", err)
	}
	if _, err := cal.NormToRaw(100); !errors.Is(err, ErrInvalidCalibration) {
		t.Errorf("NormToRaw on zero-width range: got %v, want ErrInvalidCalibration", err)
	}
}

func TestMotorCalibration_Angle(t *testing.T) {
	cal := MotorCalibration{HomingOffset: 100, RangeMin: 500, RangeMax: 3500}

	tests := []struct {
		raw      int
		expected float64
	}{
		{2148, 0},              // mid + offset is zero
		{2148 + 1024, math.Pi / 2},
		{2148 - 2048, -math.Pi},
	}
	for _, tt := range tests {
		got := cal.RawToAngle(tt.raw)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("RawToAngle(%d) = %f, want %f", tt.raw, got, tt.expected)
		}
	}

	if got := cal.AngleToRaw(math.Pi / 2); got != 3172 {
		t.Errorf("AngleToRaw(pi/2) = %d, want 3172", got)
	}
	// Out of range targets are clipped to the calibrated range.
	if got := cal.AngleToRaw(3); got != 3500 {
		t.Errorf("AngleToRaw(3) = %d, want 3500", got)
	}
	if got := cal.AngleToRaw(-3); got != 500 {
		t.Errorf("AngleToRaw(-3) = %d, want 500", got)
	}

	for raw := cal.RangeMin; raw <= cal.RangeMax; raw += 7 {
		if back := cal.AngleToRaw(cal.RawToAngle(raw)); back != raw {
			t.Errorf("angle round-trip: %d -> %d", raw, back)
		}
	}
}

func TestNewMotorCalibration(t *testing.T) {
	mc := NewMotorCalibration(2, 2100, 3200, 900)
	want := MotorCalibration{Name: ShoulderLift, ID: 2, HomingOffset: 52, RangeMin: 900, RangeMax: 3200}
	if mc != want {
		t.Errorf("NewMotorCalibration = %+v, want %+v", mc, want)
	}
}

func TestMotorCalibration_Validate(t *testing.T) {
	tests := []struct {
		cal MotorCalibration
		ok  bool
	}{
		{MotorCalibration{RangeMin: 0, RangeMax: 4095}, true},
		{MotorCalibration{RangeMin: 100, RangeMax: 100}, true},
		{MotorCalibration{RangeMin: 200, RangeMax: 100}, false},
		{MotorCalibration{RangeMin: -1, RangeMax: 100}, false},
		{MotorCalibration{RangeMin: 0, RangeMax: 4096}, false},
	}
	for _, tt := range tests {
		err := tt.cal.Validate()
		if (err == nil) != tt.ok {
			t.Errorf("Validate(%+v) = %v, want ok=%v", tt.cal, err, tt.ok)
		}
	}
}

func TestCalibration_MotorIDs(t *testing.T) {
	cal := Calibration{
		ShoulderPan:  MotorCalibration{ID: 1},
		ShoulderLift: MotorCalibration{ID: 2},
		ElbowFlex:    MotorCalibration{ID: 3},
		WristFlex:    MotorCalibration{ID: 4},
		WristRoll:    MotorCalibration{ID: 5},
		Gripper:      MotorCalibration{ID: 6},
	}

	ids := cal.MotorIDs()
	expected := []int{1, 2, 3, 4, 5, 6}

	if len(ids) != len(expected) {
		t.Fatalf("MotorIDs returned %d IDs, want %d", len(ids), len(expected))
	}

	for i, id := range ids {
		if id != expected[i] {
			t.Errorf("MotorIDs()[%d] = %d, want %d", i, id, expected[i])
		}
	}
}

func TestCalibration_ByID(t *testing.T) {
	cal := Calibration{
		ShoulderPan: MotorCalibration{ID: 1, RangeMin: 100, RangeMax: 200},
		Gripper:     MotorCalibration{ID: 6, RangeMin: 300, RangeMax: 400},
	}

	// Test finding existing ID
	name, mc, ok := cal.ByID(1)
	if !ok {
		t.Fatal("ByID(1) returned false")
	}
	if name != ShoulderPan {
		t.Errorf("ByID(1) returned name %s, want shoulder_pan", name)
	}
	if mc.RangeMin != 100 {
		t.Errorf("ByID(1) returned wrong calibration: %+v", mc)
	}

	// Test non-existing ID
	_, _, ok = cal.ByID(99)
	if ok {
		t.Error("ByID(99) should return false")
	}
}

func TestCalibration_JointsDefaults(t *testing.T) {
	cal := Calibration{
		Gripper: MotorCalibration{ID: 6, HomingOffset: -12, RangeMin: 300, RangeMax: 400},
	}

	joints, err := cal.Joints([]int{6, 2})
	if err != nil {
		t.Fatal(err)
	}
	if joints[0].Name != Gripper || joints[0].RangeMin != 300 {
		t.Errorf("joints[0] = %+v", joints[0])
	}
	if joints[1] != DefaultMotorCalibration(2) {
		t.Errorf("joints[1] = %+v, want default", joints[1])
	}
	if ids := joints.IDs(); ids[0] != 6 || ids[1] != 2 {
		t.Errorf("IDs() = %v", ids)
	}
}

func TestCalibration_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "so101_follower_calibration.json")
	cal := Calibration{
		ShoulderPan: NewMotorCalibration(1, 2000, 800, 3300),
		Gripper:     NewMotorCalibration(6, 2048, 2000, 3400),
	}
	if err := cal.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadCalibration(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || loaded[ShoulderPan] != cal[ShoulderPan] || loaded[Gripper] != cal[Gripper] {
		t.Errorf("loaded %+v, want %+v", loaded, cal)
	}
}

func TestLoadCalibration_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.json")
	data := `{"elbow_flex": {"id": 3, "homing_offset": 0, "range_min": 3000, "range_max": 1000}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCalibration(path); !errors.Is(err, ErrInvalidCalibration) {
		t.Errorf("LoadCalibration: got %v, want ErrInvalidCalibration", err)
	}
}

func TestLoadCalibrationOrDefault_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	var logged []string
	logf := func(format string, args ...any) { logged = append(logged, format) }

	cal, err := LoadCalibrationOrDefault(path, logf)
	if err != nil {
		t.Fatalf("missing file should not be fatal: %v", err)
	}
	if len(cal) != 0 {
		t.Errorf("expected empty calibration, got %+v", cal)
	}
	if len(logged) != 1 {
		t.Errorf("expected one log line, got %d", len(logged))
	}
}

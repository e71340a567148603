package servo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// DefaultResolution is the number of encoder ticks per revolution.
const DefaultResolution = 4096

// Config holds configuration for a Bus.
type Config struct {
	// Port is the serial port path (e.g., "/dev/ttyACM0"). Used by Connect.
	Port string

	// BaudRate of the serial line. Default is 1000000.
	BaudRate int

	// Timeout for a single transaction. Default is 100ms.
	Timeout time.Duration

	// IDs is the ordered set of devices on the bus. The order is the joint
	// order used by every vector the bus returns or accepts.
	IDs []int

	// Registers is the control table of the servo family.
	// Defaults to STS3215Registers.
	Registers RegisterMap

	// Resolution is the encoder tick count per revolution. Must be a power
	// of two. Default is 4096.
	Resolution int

	// Logf receives diagnostic messages. Defaults to log.Printf.
	Logf func(format string, args ...any)
}

// Bus owns one transport connection and the devices attached to it.
// Transactions are serialized: the underlying line is half-duplex.
type Bus struct {
	transport  Transport
	ids        []int
	registers  RegisterMap
	resolution int
	logf       func(format string, args ...any)

	mu     sync.Mutex
	closed bool
}

// NewBus creates a bus over an open transport.
func NewBus(t Transport, cfg Config) (*Bus, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidArgument)
	}
	if len(cfg.IDs) == 0 {
		return nil, fmt.Errorf("%w: no servo ids", ErrInvalidArgument)
	}
	seen := make(map[int]bool, len(cfg.IDs))
	for _, id := range cfg.IDs {
		if id <= 0 {
			return nil, fmt.Errorf("%w: servo id %d must be positive", ErrInvalidArgument, id)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate servo id %d", ErrInvalidArgument, id)
		}
		seen[id] = true
	}

	if cfg.Registers == nil {
		cfg.Registers = STS3215Registers
	}
	if cfg.Resolution == 0 {
		cfg.Resolution = DefaultResolution
	}
	if cfg.Resolution < 2 || cfg.Resolution&(cfg.Resolution-1) != 0 {
		return nil, fmt.Errorf("%w: resolution %d is not a power of two", ErrInvalidArgument, cfg.Resolution)
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}

	return &Bus{
		transport:  t,
		ids:        append([]int(nil), cfg.IDs...),
		registers:  cfg.Registers,
		resolution: cfg.Resolution,
		logf:       cfg.Logf,
	}, nil
}

// Connect opens the serial port named in cfg and returns a bus whose
// devices all report the same firmware.
func Connect(ctx context.Context, cfg Config) (*Bus, error) {
	t, err := OpenFeetech(FeetechConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return ConnectTransport(ctx, t, cfg)
}

// ConnectTransport is Connect over an already opened transport. The
// transport is closed if the bus cannot be brought up.
func ConnectTransport(ctx context.Context, t Transport, cfg Config) (*Bus, error) {
	bus, err := NewBus(t, cfg)
	if err != nil {
		t.Close()
		return nil, err
	}
	if err := bus.AssertSameFirmware(ctx); err != nil {
		bus.Close()
		return nil, err
	}
	return bus, nil
}

// Close releases the transport. It is safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.transport.Close()
}

// IDs returns the device ids in joint order.
func (b *Bus) IDs() []int {
	return append([]int(nil), b.ids...)
}

// Resolution returns the encoder tick count per revolution.
func (b *Bus) Resolution() int {
	return b.resolution
}

// MidPosition is the raw tick at the middle of the encoder range.
func (b *Bus) MidPosition() int {
	return b.resolution / 2
}

// PositionMask discards the high bits some firmware reports above the
// encoder range.
func (b *Bus) PositionMask() int {
	return b.resolution - 1
}

// SyncRead reads reg from every device in one transaction. Values are
// returned in the order of ids, or of the bus ids when none are given.
// Either every value is returned or the call fails.
func (b *Bus) SyncRead(ctx context.Context, reg Register, ids ...int) ([]int64, error) {
	d, err := b.registers.Descriptor(reg)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids = b.IDs()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	raw, err := b.transport.SyncRead(ctx, ids, d.Address, d.Width)
	if err != nil {
		return nil, &CommError{Op: "sync_read", Register: reg, IDs: ids, Err: err}
	}

	values := make([]int64, len(ids))
	for i, id := range ids {
		data, ok := raw[id]
		if !ok {
			return nil, &CommError{Op: "sync_read", Register: reg, IDs: ids, Err: fmt.Errorf("no value from servo %d", id)}
		}
		if len(data) < d.Width {
			return nil, &CommError{Op: "sync_read", Register: reg, IDs: ids, Err: fmt.Errorf("servo %d returned %d of %d bytes", id, len(data), d.Width)}
		}
		values[i] = Decode(data, d)
	}
	return values, nil
}

// SyncWrite writes values[i] to reg on ids[i] in one transaction.
func (b *Bus) SyncWrite(ctx context.Context, reg Register, values []int64, ids ...int) error {
	d, err := b.registers.Descriptor(reg)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		ids = b.IDs()
	}
	if len(values) != len(ids) {
		return fmt.Errorf("%w: %d values for %d ids", ErrInvalidArgument, len(values), len(ids))
	}

	data := make(map[int][]byte, len(ids))
	for i, id := range ids {
		data[id] = Encode(values[i], d)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}

	if err := b.transport.SyncWrite(ctx, d.Address, d.Width, data); err != nil {
		return &CommError{Op: "sync_write", Register: reg, IDs: ids, Err: err}
	}
	return nil
}

// SetTorque enables or disables torque on every device. A failing device
// does not stop the others; all failures are returned together.
func (b *Bus) SetTorque(ctx context.Context, enabled bool) error {
	d, err := b.registers.Descriptor(TorqueEnable)
	if err != nil {
		return err
	}
	var v int64
	if enabled {
		v = 1
	}
	payload := Encode(v, d)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}

	var errs error
	for _, id := range b.ids {
		if err := b.transport.WriteRegister(ctx, id, d.Address, payload); err != nil {
			errs = multierr.Append(errs, &DeviceError{ID: id, Op: "torque write", Err: err})
		}
	}
	return errs
}

// FirmwareVersions returns "major.minor" for every device that answered.
// Devices that fail are left out; their errors are returned for logging.
func (b *Bus) FirmwareVersions(ctx context.Context) (map[int]string, error) {
	major, err := b.registers.Descriptor(FirmwareMajor)
	if err != nil {
		return nil, err
	}
	minor, err := b.registers.Descriptor(FirmwareMinor)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	versions := make(map[int]string, len(b.ids))
	var errs error
	for _, id := range b.ids {
		hi, err := b.transport.ReadRegister(ctx, id, major.Address, major.Width)
		if err != nil {
			errs = multierr.Append(errs, &DeviceError{ID: id, Op: "read firmware major", Err: err})
			continue
		}
		lo, err := b.transport.ReadRegister(ctx, id, minor.Address, minor.Width)
		if err != nil {
			errs = multierr.Append(errs, &DeviceError{ID: id, Op: "read firmware minor", Err: err})
			continue
		}
		versions[id] = fmt.Sprintf("%d.%d", Decode(hi, major), Decode(lo, minor))
	}
	return versions, errs
}

// AssertSameFirmware fails unless at least one device answered and all
// answering devices report the same version.
func (b *Bus) AssertSameFirmware(ctx context.Context) error {
	versions, err := b.FirmwareVersions(ctx)
	if errors.Is(err, ErrBusClosed) {
		return err
	}
	for _, e := range multierr.Errors(err) {
		b.logf("firmware check: %v", e)
	}

	distinct := make(map[string]bool)
	for _, v := range versions {
		distinct[v] = true
	}
	if len(distinct) != 1 {
		var missing []int
		for _, id := range b.ids {
			if _, ok := versions[id]; !ok {
				missing = append(missing, id)
			}
		}
		return &HardwareMismatchError{Versions: versions, Missing: missing}
	}
	return nil
}

// Positions reads the present raw position of every device, masked to
// [0, resolution-1].
func (b *Bus) Positions(ctx context.Context) ([]int, error) {
	values, err := b.SyncRead(ctx, PresentPosition)
	if err != nil {
		return nil, err
	}
	mask := b.PositionMask()
	raw := make([]int, len(values))
	for i, v := range values {
		raw[i] = int(v) & mask
	}
	return raw, nil
}

// SetPositions writes raw goal positions. Values are not clamped.
func (b *Bus) SetPositions(ctx context.Context, raw []int) error {
	values := make([]int64, len(raw))
	for i, r := range raw {
		values[i] = int64(r)
	}
	return b.SyncWrite(ctx, GoalPosition, values)
}

// SetHomingOffsets writes offset = center - mid for every device and
// returns the offsets written.
func (b *Bus) SetHomingOffsets(ctx context.Context, centers []int) ([]int, error) {
	if len(centers) != len(b.ids) {
		return nil, fmt.Errorf("%w: %d center positions for %d ids", ErrInvalidArgument, len(centers), len(b.ids))
	}
	mid := b.MidPosition()
	offsets := make([]int, len(centers))
	values := make([]int64, len(centers))
	for i, c := range centers {
		offsets[i] = c - mid
		values[i] = int64(offsets[i])
	}
	if err := b.SyncWrite(ctx, HomingOffset, values); err != nil {
		return nil, err
	}
	return offsets, nil
}

package servo

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// DefaultBaudRate is the factory baud rate of STS servos.
const DefaultBaudRate = 1_000_000

// FeetechConfig configures a serial Feetech transport.
type FeetechConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration
}

// FeetechTransport implements Transport on top of a Feetech STS bus.
type FeetechTransport struct {
	bus *feetech.Bus
}

// OpenFeetech opens the serial port and returns a transport speaking the
// STS protocol.
func OpenFeetech(cfg FeetechConfig) (*FeetechTransport, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 100 * time.Millisecond
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrIO, cfg.Port, err)
	}
	return &FeetechTransport{bus: bus}, nil
}

// NewFeetechTransport wraps an already opened Feetech bus.
func NewFeetechTransport(bus *feetech.Bus) *FeetechTransport {
	return &FeetechTransport{bus: bus}
}

func (t *FeetechTransport) SyncRead(ctx context.Context, ids []int, address uint16, width int) (map[int][]byte, error) {
	addr, err := byteAddress(address)
	if err != nil {
		return nil, err
	}
	return t.bus.SyncRead(ctx, addr, width, ids)
}

func (t *FeetechTransport) SyncWrite(ctx context.Context, address uint16, width int, data map[int][]byte) error {
	addr, err := byteAddress(address)
	if err != nil {
		return err
	}
	return t.bus.SyncWrite(ctx, addr, width, data)
}

func (t *FeetechTransport) ReadRegister(ctx context.Context, id int, address uint16, width int) ([]byte, error) {
	addr, err := byteAddress(address)
	if err != nil {
		return nil, err
	}
	return t.bus.ReadRegister(ctx, id, addr, width)
}

func (t *FeetechTransport) WriteRegister(ctx context.Context, id int, address uint16, data []byte) error {
	addr, err := byteAddress(address)
	if err != nil {
		return err
	}
	return t.bus.WriteRegister(ctx, id, addr, data)
}

func (t *FeetechTransport) Close() error {
	return t.bus.Close()
}

// Scan pings every id in [start, end] and returns those that answered.
func (t *FeetechTransport) Scan(ctx context.Context, start, end int) ([]int, error) {
	found, err := t.bus.Scan(ctx, start, end)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(found))
	for _, f := range found {
		ids = append(ids, f.ID)
	}
	return ids, nil
}

// STS control tables are addressed with a single byte.
func byteAddress(address uint16) (byte, error) {
	if address > 0xFF {
		return 0, fmt.Errorf("%w: address %d does not fit the STS control table", ErrInvalidArgument, address)
	}
	return byte(address), nil
}

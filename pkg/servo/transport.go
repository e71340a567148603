package servo

import "context"

// Transport moves register packets over one physical bus.
// Implementations are not required to be safe for concurrent use; Bus
// serializes every call.
type Transport interface {
	// SyncRead reads width bytes at address from every id in a single
	// round-trip. The result must contain an entry for each id that
	// answered.
	SyncRead(ctx context.Context, ids []int, address uint16, width int) (map[int][]byte, error)

	// SyncWrite writes per-device data at address in a single round-trip.
	SyncWrite(ctx context.Context, address uint16, width int, data map[int][]byte) error

	// ReadRegister reads width bytes at address from one device.
	ReadRegister(ctx context.Context, id int, address uint16, width int) ([]byte, error)

	// WriteRegister writes data at address on one device.
	WriteRegister(ctx context.Context, id int, address uint16, data []byte) error

	Close() error
}

// Package servotest provides an in-memory servo transport for tests.
package servotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoResponse is returned for devices marked silent.
var ErrNoResponse = errors.New("no response from servo")

// Call records one transport call.
type Call struct {
	Op      string // "sync_read", "sync_write", "read", "write"
	ID      int    // 0 for batched calls
	IDs     []int
	Address uint16
	Data    map[int][]byte
}

// Transport simulates a bus of devices, each with a flat byte control
// table. The zero value is not usable; use New.
type Transport struct {
	mu      sync.Mutex
	memory  map[int][]byte
	silent  map[int]bool
	mirrors map[uint16]uint16
	calls   []Call
	closed  bool

	// SyncReadErr and SyncWriteErr fail every batched transaction.
	SyncReadErr  error
	SyncWriteErr error
	// WriteErr fails single-register writes to the given devices.
	WriteErr map[int]error
	// CloseErr is returned by Close.
	CloseErr error
}

// New creates a transport with devices at the given ids.
func New(ids ...int) *Transport {
	t := &Transport{
		memory:   make(map[int][]byte),
		silent:   make(map[int]bool),
		mirrors:  make(map[uint16]uint16),
		WriteErr: make(map[int]error),
	}
	for _, id := range ids {
		t.memory[id] = make([]byte, 256)
	}
	return t
}

// Silence makes a device stop answering reads.
func (t *Transport) Silence(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.silent[id] = true
}

// Mirror copies every write at from into to, so a device "reaches" its
// goal immediately.
func (t *Transport) Mirror(from, to uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mirrors[from] = to
}

// Poke stores data in a device's control table.
func (t *Transport) Poke(id int, address uint16, data ...byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	copy(t.memory[id][address:], data)
}

// PokeWord stores a little-endian 16-bit value.
func (t *Transport) PokeWord(id int, address uint16, v uint16) {
	t.Poke(id, address, byte(v), byte(v>>8))
}

// Peek returns width bytes of a device's control table.
func (t *Transport) Peek(id int, address uint16, width int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.memory[id][address:int(address)+width]...)
}

// PeekWord returns a little-endian 16-bit value.
func (t *Transport) PeekWord(id int, address uint16) uint16 {
	b := t.Peek(id, address, 2)
	return uint16(b[0]) | uint16(b[1])<<8
}

// Calls returns all recorded calls.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallsOf returns the recorded calls with the given op.
func (t *Transport) CallsOf(op string) []Call {
	var out []Call
	for _, c := range t.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) SyncRead(ctx context.Context, ids []int, address uint16, width int) (map[int][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, Call{Op: "sync_read", IDs: append([]int(nil), ids...), Address: address})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.SyncReadErr != nil {
		return nil, t.SyncReadErr
	}

	out := make(map[int][]byte, len(ids))
	for _, id := range ids {
		mem, ok := t.memory[id]
		if !ok || t.silent[id] {
			continue
		}
		out[id] = append([]byte(nil), mem[address:int(address)+width]...)
	}
	return out, nil
}

func (t *Transport) SyncWrite(ctx context.Context, address uint16, width int, data map[int][]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cp := make(map[int][]byte, len(data))
	for id, d := range data {
		cp[id] = append([]byte(nil), d...)
	}
	t.calls = append(t.calls, Call{Op: "sync_write", Address: address, Data: cp})

	if err := ctx.Err(); err != nil {
		return err
	}
	if t.SyncWriteErr != nil {
		return t.SyncWriteErr
	}
	for id, d := range data {
		if len(d) != width {
			return fmt.Errorf("servo %d: data length mismatch: expected %d, got %d", id, width, len(d))
		}
		t.storeLocked(id, address, d)
	}
	return nil
}

func (t *Transport) ReadRegister(ctx context.Context, id int, address uint16, width int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, Call{Op: "read", ID: id, Address: address})

	mem, ok := t.memory[id]
	if !ok || t.silent[id] {
		return nil, ErrNoResponse
	}
	return append([]byte(nil), mem[address:int(address)+width]...), nil
}

func (t *Transport) WriteRegister(ctx context.Context, id int, address uint16, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, Call{Op: "write", ID: id, Address: address, Data: map[int][]byte{id: append([]byte(nil), data...)}})

	if err := t.WriteErr[id]; err != nil {
		return err
	}
	if _, ok := t.memory[id]; !ok || t.silent[id] {
		return ErrNoResponse
	}
	t.storeLocked(id, address, data)
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return t.CloseErr
}

func (t *Transport) storeLocked(id int, address uint16, data []byte) {
	mem, ok := t.memory[id]
	if !ok {
		return
	}
	copy(mem[address:], data)
	if to, ok := t.mirrors[address]; ok {
		copy(mem[to:], data)
	}
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

// Bus is an in-process Conn. Emit delivers synchronously to every subscriber,
// the emitter included.
type Bus struct {
	dispatcher
}

func NewBus() *Bus {
	b := &Bus{}
	b.connected = true
	return b
}

func (b *Bus) Emit(ctx context.Context, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.Connected() {
		return ErrNotConnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	b.dispatch(event, data)
	return nil
}

// Publish injects a raw payload as if it came from a peer.
func (b *Bus) Publish(event string, payload []byte) {
	b.dispatch(event, payload)
}

// SetConnected simulates transport connect/disconnect.
func (b *Bus) SetConnected(connected bool) {
	b.setStatus(connected)
}

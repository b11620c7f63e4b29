package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

// Publisher forwards events to an external system.  Name identifies the
// publisher's cursor and must be stable across restarts.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev types.Event) error
	Close() error
}

// Encode is the wire form every publisher sends: the event as JSON.
func Encode(ev types.Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %d: %w", ev.Seq, err)
	}
	return b, nil
}

// partitionKey keeps every event about one data item on one partition.
func partitionKey(ev types.Event) string {
	if ev.DataID != "" {
		return ev.DataID
	}
	return ev.Principal
}

// Package chain computes and verifies the hash chain that links every
// ledger event to the one before it.
//
// Hash(n) = sha256(PrevHash(n) || CBOR(body(n))) where body is the event
// without its Hash field, timestamps at millisecond precision, encoded with
// CBOR core deterministic options so every store produces identical bytes.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

// GenesisHash is the PrevHash of the first event.
var GenesisHash = strings.Repeat("0", 64)

var encMode cbor.EncMode

func init() {
	m, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("chain: cbor enc mode: %v", err))
	}
	encMode = m
}

type body struct {
	Seq        int64  `cbor:"seq"`
	ID         string `cbor:"id"`
	Kind       string `cbor:"kind"`
	RequestID  int64  `cbor:"request_id"`
	LogID      int64  `cbor:"log_id"`
	DataID     string `cbor:"data_id"`
	DataName   string `cbor:"data_name"`
	Principal  string `cbor:"principal"`
	Username   string `cbor:"username"`
	Action     string `cbor:"action"`
	StorageRef string `cbor:"storage_ref"`
	Approved   bool   `cbor:"approved"`
	AtMs       int64  `cbor:"at_ms"`
	PrevHash   string `cbor:"prev_hash"`
}

// Hash returns the hex digest for ev linked to prevHash.  ev.Hash and
// ev.PrevHash are ignored.
func Hash(prevHash string, ev types.Event) (string, error) {
	b, err := encMode.Marshal(body{
		Seq:        ev.Seq,
		ID:         ev.ID,
		Kind:       string(ev.Kind),
		RequestID:  ev.RequestID,
		LogID:      ev.LogID,
		DataID:     ev.DataID,
		DataName:   ev.DataName,
		Principal:  ev.Principal,
		Username:   ev.Username,
		Action:     ev.Action,
		StorageRef: ev.StorageRef,
		Approved:   ev.Approved,
		AtMs:       ev.At.UTC().UnixMilli(),
		PrevHash:   prevHash,
	})
	if err != nil {
		return "", fmt.Errorf("chain: encode event %d: %w", ev.Seq, err)
	}

	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Seal links ev to prevHash, filling in PrevHash and Hash.
func Seal(ev *types.Event, prevHash string) error {
	if prevHash == "" {
		prevHash = GenesisHash
	}
	sum, err := Hash(prevHash, *ev)
	if err != nil {
		return err
	}
	ev.PrevHash = prevHash
	ev.Hash = sum
	return nil
}

// BreakError describes the first event at which the chain stops verifying.
type BreakError struct {
	Seq    int64
	Reason string
}

func (e *BreakError) Error() string {
	return fmt.Sprintf("chain broken at seq %d: %s", e.Seq, e.Reason)
}

// Verifier checks events one at a time, in sequence order, so callers can
// page through large logs.
type Verifier struct {
	head  string
	count int64
}

func NewVerifier() *Verifier {
	return &Verifier{head: GenesisHash}
}

// Add checks ev against the running head.  It returns a *BreakError for a
// sequence gap, a broken link, or a hash mismatch.
func (v *Verifier) Add(ev types.Event) error {
	if ev.Seq != v.count+1 {
		return &BreakError{Seq: ev.Seq, Reason: fmt.Sprintf("expected seq %d", v.count+1)}
	}
	if ev.PrevHash != v.head {
		return &BreakError{Seq: ev.Seq, Reason: "prev_hash does not match previous event"}
	}
	want, err := Hash(ev.PrevHash, ev)
	if err != nil {
		return err
	}
	if ev.Hash != want {
		return &BreakError{Seq: ev.Seq, Reason: "hash mismatch"}
	}
	v.head = ev.Hash
	v.count++
	return nil
}

// Head returns the hash of the last verified event (GenesisHash if none).
func (v *Verifier) Head() string { return v.head }

// Count returns how many events have verified so far.
func (v *Verifier) Count() int64 { return v.count }

// Package common holds the value types shared by every argus package:
// addresses, storage slots, EVM words, and the small enums used to classify
// accesses, hazards and contention severity.
package common

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AddressLength and HashLength mirror the EVM's fixed-width identifiers.
const (
	AddressLength = 20
	HashLength    = 32
)

// Address is a 20-byte account identifier.
type Address [AddressLength]byte

// BytesToAddress right-aligns b into an Address, truncating from the left
// if b is longer than AddressLength.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func (a Address) Bytes() []byte { return a[:] }

func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

// MarshalJSON renders an Address as its hex string, matching
// go-ethereum's own common.Address encoding so sink output stays
// consistent with the addresses users see from any other Ethereum
// tooling.
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.Hex() + `"`), nil
}

// UnmarshalJSON parses a hex-string-encoded Address, the inverse of
// MarshalJSON.
func (a *Address) UnmarshalJSON(data []byte) error {
	decoded, err := unmarshalHexFixed(data, AddressLength)
	if err != nil {
		return fmt.Errorf("common: Address: %w", err)
	}
	copy(a[:], decoded)
	return nil
}

// ToGeth converts to go-ethereum's own address type at the EVM boundary.
func (a Address) ToGeth() gethcommon.Address { return gethcommon.Address(a) }

// AddressFromGeth converts from go-ethereum's address type.
func AddressFromGeth(a gethcommon.Address) Address { return Address(a) }

// Hash is a 32-byte value. SlotKey is a Hash used as a storage slot index.
type Hash [HashLength]byte
type SlotKey = Hash

func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// MarshalJSON renders a Hash as its hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.Hex() + `"`), nil
}

// UnmarshalJSON parses a hex-string-encoded Hash, the inverse of
// MarshalJSON.
func (h *Hash) UnmarshalJSON(data []byte) error {
	decoded, err := unmarshalHexFixed(data, HashLength)
	if err != nil {
		return fmt.Errorf("common: Hash: %w", err)
	}
	copy(h[:], decoded)
	return nil
}

// unmarshalHexFixed decodes a JSON string containing a 0x-prefixed hex
// value of exactly wantLen bytes.
func unmarshalHexFixed(data []byte, wantLen int) ([]byte, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	s = strings.TrimPrefix(s, "0x")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(decoded) != wantLen {
		return nil, fmt.Errorf("want %d bytes, got %d", wantLen, len(decoded))
	}
	return decoded, nil
}

func (h Hash) ToGeth() gethcommon.Hash { return gethcommon.Hash(h) }

func HashFromGeth(h gethcommon.Hash) Hash { return Hash(h) }

// Word is a 32-byte EVM value, backed by holiman/uint256 so arithmetic on
// storage values (used only for diagnostics, never for conflict logic) is
// cheap and allocation-free.
type Word struct {
	val uint256.Int
}

func WordFromHash(h Hash) Word {
	var w Word
	w.val.SetBytes32(h[:])
	return w
}

func (w Word) Hash() Hash { return BytesToHash(w.val.Bytes()) }

func (w Word) IsZero() bool { return w.val.IsZero() }

func (w Word) String() string { return w.val.Hex() }

// TxIndex is the 0-based, monotonic position of a transaction in its block.
type TxIndex uint32

// StorageKey identifies one EVM storage slot belonging to one account.
type StorageKey struct {
	Address Address
	Slot    SlotKey
}

func (k StorageKey) String() string {
	return fmt.Sprintf("%s/%s", k.Address.Hex(), k.Slot.Hex())
}

// AccessKind distinguishes a storage read from a storage write.
type AccessKind uint8

const (
	Read AccessKind = iota
	Write
)

func (k AccessKind) String() string {
	if k == Write {
		return "write"
	}
	return "read"
}

// HazardKind classifies an inter-transaction conflict on a shared slot.
type HazardKind uint8

const (
	RAW HazardKind = iota // Read-After-Write
	WAW                   // Write-After-Write
	WAR                   // Write-After-Read
)

func (h HazardKind) String() string {
	switch h {
	case RAW:
		return "RAW"
	case WAW:
		return "WAW"
	case WAR:
		return "WAR"
	default:
		return "UNKNOWN"
	}
}

func (h HazardKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

func (h *HazardKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "RAW":
		*h = RAW
	case "WAW":
		*h = WAW
	case "WAR":
		*h = WAR
	default:
		return fmt.Errorf("common: unknown HazardKind %q", s)
	}
	return nil
}

// Severity buckets a ContentionEvent's density. Thresholds: <1.0 Low,
// [1.0,3.0) Medium, [3.0,5.0) High, >=5.0 Critical.
type Severity uint8

const (
	Low Severity = iota
	Medium
	High
	Critical
)

func (s Severity) String() string {
	switch s {
	case Low:
		return "Low"
	case Medium:
		return "Medium"
	case High:
		return "High"
	case Critical:
		return "Critical"
	default:
		return "Unknown"
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "Low":
		*s = Low
	case "Medium":
		*s = Medium
	case "High":
		*s = High
	case "Critical":
		*s = Critical
	default:
		return fmt.Errorf("common: unknown Severity %q", str)
	}
	return nil
}

// SeverityFromDensity buckets a density score. Monotone in density by
// construction.
func SeverityFromDensity(density float64) Severity {
	switch {
	case density >= 5.0:
		return Critical
	case density >= 3.0:
		return High
	case density >= 1.0:
		return Medium
	default:
		return Low
	}
}

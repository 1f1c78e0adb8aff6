// Package errs defines the error-kind taxonomy: each kind carries the CLI
// exit code its occurrence should produce, so callers at every layer can
// wrap an underlying error once and let main() decide os.Exit without
// re-deriving the kind.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the six error categories argus distinguishes.
type Kind int

const (
	KindConfiguration Kind = iota
	KindTransport
	KindDecoding
	KindExecution
	KindSink
	KindInvariant
)

// ExitCode maps a Kind to its process exit code: 1 usage, 2 RPC/network,
// 3 execution or broken invariant, 4 sink write failure.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfiguration:
		return 1
	case KindTransport, KindDecoding:
		return 2
	case KindExecution, KindInvariant:
		return 3
	case KindSink:
		return 4
	default:
		return 1
	}
}

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransport:
		return "transport"
	case KindDecoding:
		return "decoding"
	case KindExecution:
		return "execution"
	case KindSink:
		return "sink"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with the kind used to pick an exit code,
// plus the block number and (optionally) the offending tx index/address,
// so user-visible failures always say where they happened.
type Error struct {
	Kind    Kind
	Block   uint64
	TxIndex int   // -1 if not applicable
	Address []byte // nil if not applicable
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("argus: %s error at block %d", e.Kind, e.Block)
	if e.TxIndex >= 0 {
		msg += fmt.Sprintf(" tx %d", e.TxIndex)
	}
	if len(e.Address) > 0 {
		msg += fmt.Sprintf(" address %x", e.Address)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, block uint64, err error) *Error {
	return &Error{Kind: kind, Block: block, TxIndex: -1, Err: err}
}

func (e *Error) WithTx(idx int) *Error {
	e.TxIndex = idx
	return e
}

func (e *Error) WithAddress(addr []byte) *Error {
	e.Address = addr
	return e
}

// Transient marks an error returned by the RPC layer as retryable with
// backoff: rate limiting and timeouts are transient; everything else
// (including decode errors) is fatal.
type Transient struct {
	Err error
}

func (t *Transient) Error() string { return t.Err.Error() }
func (t *Transient) Unwrap() error { return t.Err }

func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &Transient{Err: err}
}

func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

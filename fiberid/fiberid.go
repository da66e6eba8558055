// Package fiberid provides unique identities for fibers.
//
// An ID pairs a process-local monotonic sequence number, used for cheap
// ordering and readable log output, with a UUID that stays unique across
// runtimes sharing a log sink.
package fiberid

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

var counter atomic.Uint64

// ID identifies a single fiber for its whole lifetime.
type ID struct {
	Seq uint64
	UID string
}

// New allocates the next fiber identity.
func New() ID {
	return ID{
		Seq: counter.Add(1),
		UID: uuid.New().String(),
	}
}

// None is the zero identity, used when no fiber is responsible,
// e.g. an interrupt requested from outside any fiber.
var None = ID{}

func (id ID) IsNone() bool { return id.Seq == 0 && id.UID == "" }

func (id ID) String() string {
	if id.IsNone() {
		return "fiber#external"
	}
	return fmt.Sprintf("fiber#%d", id.Seq)
}

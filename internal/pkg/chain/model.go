package chain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a log entry emitted by a component during a frame. Events of a
// reverted frame are discarded; Seq and Time are assigned at commit.
type Event struct {
	Seq        uint64            `json:"seq"`
	Name       string            `json:"name"`
	Emitter    common.Address    `json:"emitter"`
	Attributes map[string]string `json:"attributes"`
	Time       time.Time         `json:"time"`
}

type frame struct {
	journal []func()
	events  []Event
}

package syncer

import (
	"time"
)

// State is the terminal state of one sync invocation.
type State string

const (
	StateNoChange State = "NO_CHANGE"
	StateUpdated  State = "METADATA_UPDATE"
	StateFailed   State = "FAILED"
)

type Mode string

const (
	ModeFull      Mode = "full"
	ModeBackfill  Mode = "backfill"
	ModeSelective Mode = "selective"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeFull, ModeBackfill, ModeSelective:
		return Mode(s), true
	}
	return "", false
}

// Inconsistency reports a selective resync whose cursor delete removed a
// different number of events than it inserted.
type Inconsistency struct {
	From     time.Time
	Deleted  int
	Inserted int
}

type Result struct {
	Feed          string
	Mode          Mode
	State         State
	Fetched       int
	Inserted      int
	Deleted       int
	Dropped       int
	Version       string
	Inconsistency *Inconsistency
	Err           error
}

// Changed reports whether the run touched the cache or metadata.
func (r Result) Changed() bool {
	return r.State == StateUpdated
}

func (r Result) failed(err error) Result {
	r.State = StateFailed
	r.Err = err
	return r
}

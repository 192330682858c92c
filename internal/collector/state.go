package collector

import (
	"github.com/blockedby/telememo/internal/logger"
	"github.com/blockedby/telememo/internal/models"
	"github.com/blockedby/telememo/internal/telegram"
)

// State is the phase a run is in.
type State string

// State constants. A run cycles Fetching → Normalizing → Persisting → Checkpointing per page,
// starts and ends in Idle, and ends in Failed on any error.
const (
	StateIdle          State = "IDLE"
	StateFetching      State = "FETCHING"
	StateNormalizing   State = "NORMALIZING"
	StatePersisting    State = "PERSISTING"
	StateCheckpointing State = "CHECKPOINTING"
	StateFailed        State = "FAILED"
)

// Progress is a snapshot reported on every state change.
type Progress struct {
	ChannelID  int64  `json:"channel_id"`
	State      State  `json:"state"`
	Pages      int    `json:"pages"`
	Fetched    int    `json:"fetched"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Checkpoint *int64 `json:"checkpoint,omitempty"`
}

// ProgressFunc receives progress snapshots. It is called on the run's goroutine.
type ProgressFunc func(Progress)

// run is the mutable state of one dump or sync.
type run struct {
	channel    *models.Channel
	remote     *telegram.Channel
	record     *models.SyncRun
	result     *Result
	checkpoint *int64

	state    State
	progress ProgressFunc
	log      *logger.Logger
}

func (r *run) transition(to State) {
	if r.state == to {
		return
	}
	r.log.Debug().
		Int64("channel_id", r.channel.ID).
		Str("from", string(r.state)).
		Str("to", string(to)).
		Msg("collector: state changed")
	r.state = to

	if r.progress != nil {
		r.progress(r.snapshot())
	}
}

func (r *run) snapshot() Progress {
	return Progress{
		ChannelID:  r.channel.ID,
		State:      r.state,
		Pages:      r.result.Pages,
		Fetched:    r.result.Fetched,
		Inserted:   r.result.Inserted,
		Updated:    r.result.Updated,
		Skipped:    r.result.Skipped,
		Checkpoint: r.checkpoint,
	}
}

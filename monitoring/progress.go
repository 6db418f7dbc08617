package monitoring

import (
	"sync"
	"time"

	"github.com/sarchlab/rados/scheduler"
	"github.com/sarchlab/rados/sim/hooking"
)

// A ProgressBar tracks the processes run by one scheduling cycle.
type ProgressBar struct {
	sync.Mutex
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// IncrementInProgress adds the number of in-progress element.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress += amount
}

// MoveInProgressToFinished reduces the number of in progress item by a certain
// amount and increase the finished item by the same amount.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress -= amount
	b.Finished += amount
}

func (b *ProgressBar) snapshot() ProgressBar {
	b.Lock()
	defer b.Unlock()

	return ProgressBar{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   b.Finished,
		InProgress: b.InProgress,
	}
}

// progressHook advances the bar of the running cycle.
type progressHook struct {
	m *Monitor
}

func (h progressHook) Func(ctx hooking.HookCtx) {
	bar := h.m.runningBar()
	if bar == nil {
		return
	}

	switch ctx.Pos {
	case scheduler.HookPosRunStart:
		bar.IncrementInProgress(1)
	case scheduler.HookPosRunEnd:
		bar.MoveInProgressToFinished(1)
	}
}

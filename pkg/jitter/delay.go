package jitter

import (
	"math"

	"github.com/huandu/skiplist"
	"github.com/samber/lo"
)

// delayController adapts the buffering target inside [minMs, maxMs]
// from a sliding window of arrival observations. Observation lists are
// keyed by timestamp tick and pruned against the playout cursor, so the
// window slides with stream time rather than wall time.
type delayController struct {
	early *skiplist.SkipList // headroom beyond the target, ms
	late  *skiplist.SkipList // lateness of packets that missed playout, ms
	loss  *skiplist.SkipList // positions concealed on dequeue

	delayMs int64
	minMs   int64
	maxMs   int64

	windowMs  int64
	clockRate int64
	packetMs  int64 // stream time covered by one packet
}

func newDelayController(cfg Config, windowMs int64) *delayController {
	packetMs := int64(cfg.ElementsInPacket) * 1000 / int64(cfg.ClockRate)
	if packetMs < 1 {
		packetMs = 1
	}
	return &delayController{
		early:     skiplist.New(skiplist.Int64),
		late:      skiplist.New(skiplist.Int64),
		loss:      skiplist.New(skiplist.Int64),
		delayMs:   int64(cfg.MinLengthMs),
		minMs:     int64(cfg.MinLengthMs),
		maxMs:     int64(cfg.MaxLengthMs),
		windowMs:  windowMs,
		clockRate: int64(cfg.ClockRate),
		packetMs:  packetMs,
	}
}

func (d *delayController) onEarly(ts, headroomMs int64) {
	d.early.Set(ts, headroomMs)
}

func (d *delayController) onLate(ts, latenessMs int64) {
	// Beyond maxMs no delay setting could have saved it; not evidence.
	if latenessMs < d.maxMs {
		d.late.Set(ts, latenessMs)
	}
}

func (d *delayController) onLoss(ts int64) {
	d.loss.Set(ts, nil)
}

// threshold is 2% of the packets a window can carry.
func (d *delayController) threshold() int {
	return int(d.windowMs / d.packetMs * 2 / 100)
}

// adapt prunes observations behind the window and moves the target:
// up by the worst lateness seen when late arrivals pile up, down by the
// smallest headroom seen after a clean window. Reports a change.
func (d *delayController) adapt(cursor int64) bool {
	horizon := cursor - d.windowMs*d.clockRate/1000
	removeLessThan(d.early, horizon)
	removeLessThan(d.late, horizon)
	removeLessThan(d.loss, horizon)

	prev := d.delayMs
	if d.late.Len() > d.threshold() {
		candidate := d.delayMs + maxInList(d.late)
		d.delayMs = lo.Min([]int64{candidate, d.maxMs})
		d.late.Init()
		d.early.Init()
	} else if d.loss.Len() == 0 && d.late.Len() == 0 && d.early.Len() > d.threshold() {
		candidate := d.delayMs - minInList(d.early)
		d.delayMs = lo.Max([]int64{candidate, d.minMs})
		d.early.Init()
	}
	return d.delayMs != prev
}

// toleranceElements is how far the stream must provably have advanced
// past a missing position before concealment may fire.
func (d *delayController) toleranceElements() int64 {
	return d.delayMs * d.clockRate / 1000
}

func maxInList(list *skiplist.SkipList) int64 {
	var res int64 = math.MinInt64
	for el := list.Front(); el != nil; el = el.Next() {
		res = lo.Max([]int64{res, el.Value.(int64)})
	}
	return res
}

func minInList(list *skiplist.SkipList) int64 {
	var res int64 = math.MaxInt64
	for el := list.Front(); el != nil; el = el.Next() {
		res = lo.Min([]int64{res, el.Value.(int64)})
	}
	return res
}

func removeLessThan(list *skiplist.SkipList, ts int64) {
	for {
		front := list.Front()
		if front == nil || front.Key() == nil || front.Key().(int64) >= ts {
			break
		}
		list.RemoveFront()
	}
}

package jitter

import (
	"sync"

	"github.com/pion/logging"
)

const defaultWindowMs = 2000

// Option overrides a Buffer default at construction.
type Option func(b *Buffer)

// WithConcealment sets the callback invoked for missing runs during
// Dequeue. The default fills missing runs with zero bytes.
func WithConcealment(c Conceal) Option {
	return func(b *Buffer) {
		if c != nil {
			b.conceal = c
		}
	}
}

// WithListener sets the event listener. The default discards events.
func WithListener(l Listener) Option {
	return func(b *Buffer) {
		if l != nil {
			b.listener = l
		}
	}
}

// WithLogger sets a logger for the buffer.
func WithLogger(log logging.LeveledLogger) Option {
	return func(b *Buffer) {
		if log != nil {
			b.log = log
		}
	}
}

// WithWindow overrides the observation window, in milliseconds, used by
// the delay adaptation.
func WithWindow(ms int) Option {
	return func(b *Buffer) {
		if ms > 0 {
			b.windowMs = int64(ms)
		}
	}
}

// Stats counts silent-loss outcomes for the life of a buffer. All of
// these are expected under real network conditions; none is an error.
type Stats struct {
	Accepted    uint64 // elements admitted into the store
	Late        uint64 // packets rejected behind the playout cursor
	Duplicates  uint64 // packets rejected as already buffered
	Invalid     uint64 // packets rejected malformed (size or phase)
	Overwritten uint64 // unread groups lost to a capacity wrap
	Concealed   uint64 // elements synthesized on dequeue
	OutOfOrder  uint64 // packets arriving out of sequence order
}

// Buffer is a playout jitter buffer for one stream. A single producer
// calls Enqueue and a single consumer calls Dequeue; neither blocks.
type Buffer struct {
	mu sync.Mutex

	cfg   Config
	store *slotStore
	delay *delayController

	cursor int64 // next element due for release
	newest int64 // one past the newest accepted element
	marked bool  // cursor anchored by the first accepted packet

	lastSeq uint16
	haveSeq bool

	windowMs int64
	conceal  Conceal
	listener Listener
	log      logging.LeveledLogger
	stats    Stats
}

// New constructs a buffer sized for cfg.MaxLengthMs. No goroutines are
// started; the first accepted packet anchors the playout timeline.
func New(cfg Config, opts ...Option) (*Buffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	b := &Buffer{
		cfg:      cfg,
		store:    newSlotStore(cfg),
		windowMs: defaultWindowMs,
		conceal:  func(*Packet, int) []byte { return nil },
		listener: NullListener{},
	}
	for _, o := range opts {
		o(b)
	}
	if b.log == nil {
		b.log = logging.NewDefaultLoggerFactory().NewLogger("jitter")
	}
	b.delay = newDelayController(cfg, b.windowMs)
	b.log.Debugf("buffer created: %d B/element, %d elements/packet, %d Hz, delay %d..%d ms",
		cfg.ElementSize, cfg.ElementsInPacket, cfg.ClockRate, cfg.MinLengthMs, cfg.MaxLengthMs)
	return b, nil
}

// Enqueue admits one packet and returns the number of elements
// accepted. Zero means the packet was silently discarded: late,
// duplicate, invalid, or lost to a wrap race. Payload bytes are copied;
// the caller may reuse them after return.
func (b *Buffer) Enqueue(p *Packet) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enqueue(p)
}

// EnqueueAll admits packets in the order supplied. Outcomes are
// independent per packet; one rejection does not short-circuit the
// rest. Returns the total elements accepted.
func (b *Buffer) EnqueueAll(packets []*Packet) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, p := range packets {
		total += b.enqueue(p)
	}
	return total
}

func (b *Buffer) enqueue(p *Packet) int {
	if p == nil || !p.Valid {
		b.stats.Invalid++
		return 0
	}
	if len(p.Payload) != b.cfg.ElementsInPacket*b.cfg.ElementSize {
		b.stats.Invalid++
		return 0
	}
	if !b.marked {
		b.store.anchor(p.Timestamp)
		b.cursor = p.Timestamp
		b.newest = p.Timestamp
		b.marked = true
	}
	b.trackSequence(p.Sequence)

	perSlot := int64(b.cfg.ElementsInPacket)
	if (p.Timestamp-b.store.origin)%perSlot != 0 {
		b.stats.Invalid++
		return 0
	}
	if p.Timestamp < b.cursor {
		latenessMs := (b.cursor - p.Timestamp) * 1000 / int64(b.cfg.ClockRate)
		b.delay.onLate(p.Timestamp, latenessMs)
		b.stats.Late++
		b.listener.OnPacketLate(p.Timestamp, latenessMs)
		return 0
	}

	switch b.store.put(p.Timestamp, p.Payload) {
	case storeDuplicate:
		b.stats.Duplicates++
		return 0
	case storeStale:
		b.stats.Late++
		return 0
	case storeOverwrite:
		b.stats.Overwritten++
		b.listener.OnPacketDropped(p.Timestamp)
	}

	if end := p.Timestamp + perSlot; end > b.newest {
		b.newest = end
	}
	headroomMs := (p.Timestamp-b.cursor)*1000/int64(b.cfg.ClockRate) - b.delay.delayMs
	if headroomMs > 0 {
		b.delay.onEarly(p.Timestamp, headroomMs)
	}
	b.stats.Accepted += uint64(perSlot)
	return int(perSlot)
}

func (b *Buffer) trackSequence(seq uint16) {
	if b.haveSeq && seq != b.lastSeq+1 {
		b.stats.OutOfOrder++
	}
	b.lastSeq = seq
	b.haveSeq = true
}

// Dequeue copies up to elements elements starting at the playout cursor
// into dst and returns how many were written. Filled slots are copied
// and released; missing runs past the gap-wait tolerance are concealed;
// a gap still within tolerance ends the call early (short read). The
// cursor advances by exactly the elements resolved, so a short read
// never skips stream time. Dequeue never blocks; callers re-invoke on
// their own cadence.
func (b *Buffer) Dequeue(dst []byte, elements int) (int, error) {
	if elements <= 0 {
		return 0, nil
	}
	if len(dst) < elements*b.cfg.ElementSize {
		return 0, ErrInsufficientDestination
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.marked {
		return 0, nil
	}

	if b.delay.adapt(b.cursor) {
		b.log.Tracef("target delay now %d ms", b.delay.delayMs)
		b.listener.OnLatencyChanged(b.delay.delayMs)
	}

	written := 0
	for written < elements {
		if n := b.copyRun(dst, written, elements-written); n > 0 {
			written += n
			continue
		}
		run := b.missingRun(elements - written)
		if run == 0 {
			break
		}
		written += b.concealRun(dst, written, run)
	}
	return written, nil
}

// copyRun copies contiguous filled data starting at the cursor,
// releasing each group once fully delivered.
func (b *Buffer) copyRun(dst []byte, offset, max int) int {
	es := b.cfg.ElementSize
	perSlot := b.cfg.ElementsInPacket
	total := 0
	for total < max {
		sl, data := b.store.groupAt(b.cursor)
		if sl == nil {
			break
		}
		start := sl.ts
		off := int(b.cursor - start)
		n := perSlot - off
		if n > max-total {
			n = max - total
		}
		copy(dst[(offset+total)*es:(offset+total+n)*es], data[off*es:(off+n)*es])
		b.cursor += int64(n)
		total += n
		if b.cursor >= start+int64(perSlot) {
			b.store.clearAt(start)
		}
	}
	return total
}

// missingRun reports how many elements starting at the cursor are
// missing and eligible for concealment. A run is eligible once the
// stream has provably advanced a full gap-wait tolerance past its
// start; it then extends to the next filled group, never past the
// newest accepted element. Zero means the gap is still within
// tolerance and the dequeue should return short.
func (b *Buffer) missingRun(max int) int {
	if b.cursor > b.newest-b.delay.toleranceElements() {
		return 0
	}
	run := 0
	for run < max {
		pos := b.cursor + int64(run)
		if pos >= b.newest {
			break
		}
		if sl, _ := b.store.groupAt(pos); sl != nil {
			break
		}
		run++
	}
	return run
}

// concealRun reserves the run by advancing the cursor, then invokes the
// concealment callback with the lock released so caller-supplied work
// cannot stall the producer. Late arrivals for the reserved run reject
// as stale on re-entry.
func (b *Buffer) concealRun(dst []byte, offset, run int) int {
	start := b.cursor
	b.cursor += int64(run)
	b.delay.onLoss(start)
	b.stats.Concealed += uint64(run)
	conceal := b.conceal
	missing := Packet{Sequence: b.lastSeq + 1, Timestamp: start, Valid: false}

	b.mu.Unlock()
	data := conceal(&missing, run)
	b.mu.Lock()

	es := b.cfg.ElementSize
	out := dst[offset*es : (offset+run)*es]
	n := copy(out, data)
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	b.listener.OnPacketConcealed(start, run)
	return run
}

// Length reports buffered stream time ahead of the cursor, in elements.
func (b *Buffer) Length() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.marked {
		return 0
	}
	return int(b.newest - b.cursor)
}

// Filled reports slots currently holding undelivered data.
func (b *Buffer) Filled() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.filled
}

// Delay reports the current buffering target in milliseconds. It holds
// MinLengthMs <= Delay() <= MaxLengthMs at every observation point.
func (b *Buffer) Delay() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.delay.delayMs)
}

// Stats returns a snapshot of the buffer's counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

package jitter

type slotState uint8

const (
	slotEmpty slotState = iota
	slotFilled
)

type slot struct {
	state slotState
	ts    int64 // timestamp of the slot's first element
}

type storeResult uint8

const (
	storeOK storeResult = iota
	storeDuplicate // same timestamp already buffered
	storeStale     // slot holds a newer group, writer lost the wrap race
	storeOverwrite // unread older group replaced by a newer one
)

// slotStore is a fixed arena of element groups addressed by timestamp.
// Capacity covers MaxLengthMs of stream time; addressing is circular,
// so a group one full buffer length ahead reuses the slot of the group
// one buffer length behind. The store never grows.
//
// Timestamps must be congruent to the anchor modulo the group size;
// Buffer.enqueue enforces this before calling put.
type slotStore struct {
	slots []slot
	arena []byte

	origin      int64 // timestamp of the first accepted group
	elementSize int
	perSlot     int // elements per group
	filled      int
}

func newSlotStore(cfg Config) *slotStore {
	groups := (cfg.MaxLengthMs*cfg.ClockRate/1000 + cfg.ElementsInPacket - 1) / cfg.ElementsInPacket
	if groups < 1 {
		groups = 1
	}
	return &slotStore{
		slots:       make([]slot, groups),
		arena:       make([]byte, groups*cfg.ElementsInPacket*cfg.ElementSize),
		elementSize: cfg.ElementSize,
		perSlot:     cfg.ElementsInPacket,
	}
}

// anchor fixes the timeline phase. Must be called once, with the first
// accepted timestamp, before any put or groupAt.
func (s *slotStore) anchor(ts int64) {
	s.origin = ts
}

func (s *slotStore) index(ts int64) int {
	return int(((ts - s.origin) / int64(s.perSlot)) % int64(len(s.slots)))
}

// groupStart returns the timestamp of the group containing position ts.
func (s *slotStore) groupStart(ts int64) int64 {
	return ts - (ts-s.origin)%int64(s.perSlot)
}

func (s *slotStore) data(i int) []byte {
	stride := s.perSlot * s.elementSize
	return s.arena[i*stride : (i+1)*stride]
}

// put copies payload into the group slot for ts. The caller retains
// ownership of payload; the store keeps its own copy.
func (s *slotStore) put(ts int64, payload []byte) storeResult {
	i := s.index(ts)
	sl := &s.slots[i]
	res := storeOK
	if sl.state == slotFilled {
		switch {
		case sl.ts == ts:
			return storeDuplicate
		case sl.ts > ts:
			return storeStale
		default:
			res = storeOverwrite
		}
	} else {
		s.filled++
	}
	copy(s.data(i), payload)
	sl.state = slotFilled
	sl.ts = ts
	return res
}

// groupAt returns the filled group covering position ts along with its
// arena bytes. A slot reused by a wrapped-ahead write does not cover
// older positions.
func (s *slotStore) groupAt(ts int64) (*slot, []byte) {
	i := s.index(ts)
	sl := &s.slots[i]
	if sl.state != slotFilled || sl.ts != s.groupStart(ts) {
		return nil, nil
	}
	return sl, s.data(i)
}

// clearAt returns the group holding ts to empty once it has been fully
// delivered.
func (s *slotStore) clearAt(ts int64) {
	i := s.index(ts)
	if s.slots[i].state == slotFilled {
		s.slots[i].state = slotEmpty
		s.filled--
	}
}

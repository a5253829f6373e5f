package jitter

import "github.com/pion/logging"

// Listener receives buffer events. Callbacks run with the buffer lock
// held and must not call back into the buffer; keep them short.
type Listener interface {
	// OnLatencyChanged fires when the adaptive target delay moves.
	OnLatencyChanged(delayMs int64)
	// OnPacketConcealed fires once per concealed run.
	OnPacketConcealed(timestamp int64, elements int)
	// OnPacketLate fires when a packet arrives behind the playout cursor.
	OnPacketLate(timestamp, latenessMs int64)
	// OnPacketDropped fires when a capacity wrap discards an unread group.
	OnPacketDropped(timestamp int64)
}

// NullListener discards all events.
type NullListener struct{}

func (NullListener) OnLatencyChanged(int64)       {}
func (NullListener) OnPacketConcealed(int64, int) {}
func (NullListener) OnPacketLate(int64, int64)    {}
func (NullListener) OnPacketDropped(int64)        {}

// LogListener reports buffer events through a leveled logger.
type LogListener struct {
	Log logging.LeveledLogger
}

func NewLogListener(log logging.LeveledLogger) *LogListener {
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("jitter")
	}
	return &LogListener{Log: log}
}

func (l *LogListener) OnLatencyChanged(delayMs int64) {
	l.Log.Infof("target delay changed to %d ms", delayMs)
}

func (l *LogListener) OnPacketConcealed(timestamp int64, elements int) {
	l.Log.Debugf("concealed %d elements at ts %d", elements, timestamp)
}

func (l *LogListener) OnPacketLate(timestamp, latenessMs int64) {
	l.Log.Debugf("late packet at ts %d, missed playout by %d ms", timestamp, latenessMs)
}

func (l *LogListener) OnPacketDropped(timestamp int64) {
	l.Log.Debugf("wrap overwrote unread group at ts %d", timestamp)
}

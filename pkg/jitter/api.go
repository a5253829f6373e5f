// Package jitter implements a playout buffer for timestamped media
// streams. It absorbs network delay variation, reorders packets by
// timestamp, and releases fixed-size elements at the consumer's cadence,
// concealing gaps that failed to fill in time.
package jitter

import "errors"

var (
	// ErrInvalidConfiguration is returned by New when a construction
	// parameter is out of range. No buffer is produced.
	ErrInvalidConfiguration = errors.New("invalid buffer configuration")

	// ErrInsufficientDestination is returned by Dequeue when the
	// destination cannot hold the requested elements. No state is mutated.
	ErrInsufficientDestination = errors.New("destination too small for requested elements")
)

// Packet is one element group handed to Enqueue. Timestamp is in
// sample-clock ticks at Config.ClockRate; one tick is one element.
// Payload must hold exactly ElementsInPacket elements. Producers set
// Valid; the buffer passes Valid=false descriptors to the concealment
// callback for runs it could not fill.
type Packet struct {
	Sequence  uint16
	Timestamp int64
	Payload   []byte
	Valid     bool
}

// Conceal synthesizes payload for a missing run. missing describes the
// first absent element (Valid is false); elements is the run length.
// The result should hold elements × ElementSize bytes; anything missing
// is zero-filled. Invoked synchronously during Dequeue with the buffer
// lock released, at most once per contiguous run per call.
type Conceal func(missing *Packet, elements int) []byte

// Config fixes a buffer's geometry for its lifetime.
type Config struct {
	ElementSize      int // bytes per element
	ElementsInPacket int // elements per packet, also elements per slot
	ClockRate        int // Hz, unit of Packet.Timestamp
	MinLengthMs      int // lower buffering bound
	MaxLengthMs      int // upper buffering bound, sizes the slot store
}

func (c Config) validate() error {
	if c.ElementSize <= 0 || c.ElementsInPacket <= 0 || c.ClockRate <= 0 {
		return ErrInvalidConfiguration
	}
	if c.MinLengthMs <= 0 || c.MinLengthMs > c.MaxLengthMs {
		return ErrInvalidConfiguration
	}
	return nil
}

// Factory creates buffers sharing one configuration, one per stream.
type Factory struct {
	cfg  Config
	opts []Option
}

func NewFactory(cfg Config, opts ...Option) (*Factory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Factory{cfg: cfg, opts: opts}, nil
}

func (f *Factory) CreateBuffer() (*Buffer, error) {
	return New(f.cfg, f.opts...)
}

package jitter

import (
	"sync"

	"github.com/pion/rtp"
)

// PacketBuffer adapts RTP ingress to a Buffer. It unwraps the 32-bit
// RTP timestamp onto the buffer's monotone 64-bit timeline and starts a
// fresh buffer whenever the SSRC changes.
type PacketBuffer struct {
	sync.Mutex

	factory *Factory
	buffer  *Buffer
	ssrc    uint32

	lastTS    int64
	unwrapped bool
}

func NewPacketBuffer(factory *Factory) *PacketBuffer {
	return &PacketBuffer{factory: factory}
}

func (p *PacketBuffer) init(packet *rtp.Packet) error {
	buffer, err := p.factory.CreateBuffer()
	if err != nil {
		return err
	}
	p.buffer = buffer
	p.ssrc = packet.SSRC
	p.unwrapped = false
	return nil
}

// Put admits one RTP packet and returns the elements accepted.
func (p *PacketBuffer) Put(packet *rtp.Packet) (int, error) {
	p.Lock()
	defer p.Unlock()

	if p.buffer == nil || p.ssrc != packet.SSRC {
		if err := p.init(packet); err != nil {
			return 0, err
		}
	}

	return p.buffer.Enqueue(&Packet{
		Sequence:  packet.SequenceNumber,
		Timestamp: p.unwrap(packet.Timestamp),
		Payload:   packet.Payload,
		Valid:     true,
	}), nil
}

// Read dequeues elements into dst. Before the first packet arrives it
// returns zero without error.
func (p *PacketBuffer) Read(dst []byte, elements int) (int, error) {
	p.Lock()
	defer p.Unlock()

	if p.buffer == nil {
		return 0, nil
	}
	return p.buffer.Dequeue(dst, elements)
}

// unwrap extends a 32-bit RTP timestamp to 64 bits by the shortest
// signed distance from the previous one, so packets reordered around a
// wrap still land next to their neighbors.
func (p *PacketBuffer) unwrap(ts uint32) int64 {
	if !p.unwrapped {
		p.unwrapped = true
		p.lastTS = int64(ts)
		return p.lastTS
	}
	delta := int64(int32(ts - uint32(p.lastTS)))
	p.lastTS += delta
	return p.lastTS
}

func (p *PacketBuffer) lastTimestamp() int64 {
	p.Lock()
	defer p.Unlock()
	return p.lastTS
}

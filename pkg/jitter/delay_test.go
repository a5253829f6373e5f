package jitter

import (
	"testing"

	"github.com/huandu/go-assert"
)

// 2000 ms window over 10 ms packets: threshold is 4 observations.
func newTestController() *delayController {
	return newDelayController(testConfig(), 2000)
}

func TestDelayRaisesOnLateArrivals(t *testing.T) {
	d := newTestController()
	assert.Equal(t, d.delayMs, int64(20))

	for i := int64(0); i < 5; i++ {
		d.onLate(i*160, 40)
	}
	assert.Equal(t, d.adapt(800), true)
	assert.Equal(t, d.delayMs, int64(60))
	// The raise consumes the evidence.
	assert.Equal(t, d.late.Len(), 0)
}

func TestDelayClampedToMax(t *testing.T) {
	d := newTestController()
	for i := int64(0); i < 5; i++ {
		d.onLate(i*160, 190)
	}
	d.adapt(800)
	assert.Equal(t, d.delayMs, int64(200))

	// Lateness beyond max could not have been saved by any setting.
	d.onLate(800, 500)
	assert.Equal(t, d.late.Len(), 0)
}

func TestDelayDecaysAfterCleanWindow(t *testing.T) {
	d := newTestController()
	d.delayMs = 100

	for i := int64(0); i < 5; i++ {
		d.onEarly(i*160, 30+i)
	}
	assert.Equal(t, d.adapt(800), true)
	assert.Equal(t, d.delayMs, int64(70))
}

func TestDelayDecayClampedToMin(t *testing.T) {
	d := newTestController()
	for i := int64(0); i < 5; i++ {
		d.onEarly(i*160, 500)
	}
	d.adapt(800)
	assert.Equal(t, d.delayMs, int64(20))
}

func TestLossBlocksDecay(t *testing.T) {
	d := newTestController()
	d.delayMs = 100

	d.onLoss(0)
	for i := int64(1); i < 6; i++ {
		d.onEarly(i*160, 30)
	}
	assert.Equal(t, d.adapt(800), false)
	assert.Equal(t, d.delayMs, int64(100))
}

func TestObservationsPrunedBehindWindow(t *testing.T) {
	d := newTestController()
	for i := int64(0); i < 5; i++ {
		d.onLate(i*160, 40)
	}

	// 2000 ms at 16 kHz is 32000 ticks; a cursor far past the
	// observations drops them all before they can raise the delay.
	assert.Equal(t, d.adapt(50000), false)
	assert.Equal(t, d.delayMs, int64(20))
	assert.Equal(t, d.late.Len(), 0)
}

func TestToleranceTracksDelay(t *testing.T) {
	d := newTestController()
	assert.Equal(t, d.toleranceElements(), int64(320))

	d.delayMs = 100
	assert.Equal(t, d.toleranceElements(), int64(1600))
}

package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Handoff receives finalized segments from the capture context.
// Push must not block.
type Handoff interface {
	Push(seg Segment)
}

// CaptureOptions contains the hooks a capture state reports through
type CaptureOptions struct {
	// Stopped, when set and returning true, makes the capture state drop batches
	Stopped func() bool
	// OnError receives storage and decoding errors; the stream keeps running
	OnError func(err error)
	// OnSegment is called after a finalized segment has been pushed
	OnSegment func(seg Segment)
}

// CaptureState is everything the device callback touches. It is owned by the
// capture context alone, so none of it is locked.
type CaptureState struct {
	segmenter *Segmenter
	handoff   Handoff
	opts      CaptureOptions

	batch []float32
}

// NewCaptureState wires a segmenter to a handoff sink
func NewCaptureState(segmenter *Segmenter, handoff Handoff, opts CaptureOptions) *CaptureState {
	return &CaptureState{
		segmenter: segmenter,
		handoff:   handoff,
		opts:      opts,
	}
}

// OnSamples handles one callback's worth of little-endian float32 samples
func (c *CaptureState) OnSamples(raw []byte) {
	if len(raw)%bytesPerFloatSample != 0 {
		c.report(fmt.Errorf("capture batch of %d bytes is not a whole number of float32 samples", len(raw)))
		raw = raw[:len(raw)-len(raw)%bytesPerFloatSample]
	}

	n := len(raw) / bytesPerFloatSample
	if cap(c.batch) < n {
		c.batch = make([]float32, n)
	}
	c.batch = c.batch[:n]

	for i := range c.batch {
		c.batch[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*bytesPerFloatSample:]))
	}

	c.OnBatch(c.batch)
}

// OnBatch forwards a sample batch to the segmenter and hands off any
// finalized segment
func (c *CaptureState) OnBatch(batch []float32) {
	if c.opts.Stopped != nil && c.opts.Stopped() {
		return
	}

	seg, ok, err := c.segmenter.OnBatch(batch)
	if ok {
		c.handoff.Push(seg)
		if c.opts.OnSegment != nil {
			c.opts.OnSegment(seg)
		}
	}
	if err != nil {
		c.report(err)
	}
}

func (c *CaptureState) report(err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

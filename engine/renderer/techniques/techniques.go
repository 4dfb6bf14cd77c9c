package techniques

// FrameContext carries the read-only per-frame values technique passes
// need at recording time. Passing it explicitly keeps pass callbacks free
// of hidden references into mutable technique state.
type FrameContext struct {
	// Frame is the monotonically increasing frame counter.
	Frame uint64
	// Time is seconds since renderer start.
	Time float64
	// OutputWidth/OutputHeight is the authoritative render resolution.
	OutputWidth  uint32
	OutputHeight uint32
}

// TimeSlice returns the temporal sub-pixel slot for interleaved rendering.
func (f FrameContext) TimeSlice() uint32 {
	return uint32(f.Frame % 16)
}

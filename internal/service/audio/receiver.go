// Package audio provides the per-session rolling PCM buffer and slices it
// into fixed-size transcription segments.
package audio

// Segment is one slice of session audio queued for transcription. Seq is
// monotonic within a generation; Generation stamps the turn the segment
// belongs to so late completions can be recognized as stale.
type Segment struct {
	Seq        int
	Generation uint64
	PCM        []byte
}

// Receiver accumulates raw PCM bytes and emits exact fixed-size segments,
// retaining any remainder for the next slice. A short remainder is only
// emitted through Flush, which the Turn Controller calls at finalize time.
//
// Receiver is not safe for concurrent use; the owning session serializes
// access.
type Receiver struct {
	segmentBytes int
	buf          []byte
	nextSeq      int
	generation   uint64
}

// NewReceiver creates a Receiver that slices segments of segmentBytes bytes.
func NewReceiver(segmentBytes int) *Receiver {
	return &Receiver{segmentBytes: segmentBytes}
}

// Reset clears the buffer and restarts sequence numbering under a new
// generation. Called on turn start and turn end.
func (r *Receiver) Reset(generation uint64) {
	r.buf = r.buf[:0]
	r.nextSeq = 0
	r.generation = generation
}

// Ingest appends bytes to the rolling buffer and returns every full segment
// that became available, in order. No segment is ever emitted partially.
func (r *Receiver) Ingest(b []byte) []Segment {
	if len(b) == 0 {
		return nil
	}
	r.buf = append(r.buf, b...)

	var out []Segment
	for len(r.buf) >= r.segmentBytes {
		pcm := make([]byte, r.segmentBytes)
		copy(pcm, r.buf[:r.segmentBytes])
		r.buf = r.buf[:copy(r.buf, r.buf[r.segmentBytes:])]

		out = append(out, Segment{
			Seq:        r.nextSeq,
			Generation: r.generation,
			PCM:        pcm,
		})
		r.nextSeq++
	}
	return out
}

// Flush emits the buffered remainder as one trailing segment. Returns false
// when the buffer is empty.
func (r *Receiver) Flush() (Segment, bool) {
	if len(r.buf) == 0 {
		return Segment{}, false
	}
	pcm := make([]byte, len(r.buf))
	copy(pcm, r.buf)
	r.buf = r.buf[:0]

	seg := Segment{
		Seq:        r.nextSeq,
		Generation: r.generation,
		PCM:        pcm,
	}
	r.nextSeq++
	return seg, true
}

// Buffered returns the number of bytes awaiting the next slice.
func (r *Receiver) Buffered() int { return len(r.buf) }

// NextSeq returns the sequence index the next segment will receive.
func (r *Receiver) NextSeq() int { return r.nextSeq }

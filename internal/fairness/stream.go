package fairness

import "errors"

// ErrSourceExhausted is raised (as a panic value recovered by the resolver
// runner) when a fixed source runs out of values.
var ErrSourceExhausted = errors.New("uniform source exhausted")

// Source yields successive uniform values. Resolvers consume it and never see
// seeds directly.
type Source interface {
	Next() float64
}

// Stream walks the cursor positions of one seed triple in order.
type Stream struct {
	serverSeed string
	clientSeed string
	nonce      uint64
	cursor     uint64
}

func NewStream(serverSeed, clientSeed string, nonce uint64) *Stream {
	return &Stream{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
	}
}

func (s *Stream) Next() float64 {
	v := Float(s.serverSeed, s.clientSeed, s.nonce, s.cursor)
	s.cursor++
	return v
}

// Take returns the next n values.
func (s *Stream) Take(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Next()
	}
	return out
}

// Consumed is the number of cursor positions read so far.
func (s *Stream) Consumed() uint64 {
	return s.cursor
}

// Fixed replays a predetermined sequence.
type Fixed struct {
	values []float64
	pos    int
}

func NewFixed(values ...float64) *Fixed {
	return &Fixed{values: values}
}

func (f *Fixed) Next() float64 {
	if f.pos >= len(f.values) {
		panic(ErrSourceExhausted)
	}
	v := f.values[f.pos]
	f.pos++
	return v
}

func (f *Fixed) Consumed() int {
	return f.pos
}

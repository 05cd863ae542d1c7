package analytics

// timed is a value stamped with a sample-clock timestamp.
type timed[T any] struct {
	ts int64
	v  T
}

// series is a timestamp-ordered queue with eviction from the front.
type series[T any] struct {
	buf  []timed[T]
	head int
}

func (s *series[T]) push(ts int64, v T) {
	s.buf = append(s.buf, timed[T]{ts: ts, v: v})
}

// evict drops entries older than cutoff, calling drop for each.
func (s *series[T]) evict(cutoff int64, drop func(T)) {
	for s.head < len(s.buf) && s.buf[s.head].ts < cutoff {
		if drop != nil {
			drop(s.buf[s.head].v)
		}
		var zero timed[T]
		s.buf[s.head] = zero
		s.head++
	}
	if s.head > 64 && s.head > len(s.buf)/2 {
		n := copy(s.buf, s.buf[s.head:])
		s.buf = s.buf[:n]
		s.head = 0
	}
}

func (s *series[T]) len() int { return len(s.buf) - s.head }

func (s *series[T]) each(fn func(ts int64, v T)) {
	for _, e := range s.buf[s.head:] {
		fn(e.ts, e.v)
	}
}

func (s *series[T]) reset() {
	s.buf = s.buf[:0]
	s.head = 0
}

package sink

import "os"

// fileSink writes sequentially to a file the coordinator created
// itself. Because the coordinator's in-order writer guarantees parts
// arrive strictly in ascending order (spec §4.7.2), a plain sequential
// Write is sufficient — there is never a need to seek or write at an
// explicit offset.
type fileSink struct {
	f *os.File
}

// NewFile creates (truncating any existing file) path and returns a
// Sink writing to it.
func NewFile(path string) (Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileSink{f: f}, nil
}

func (s *fileSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// Abort closes and removes the partial file, per spec §4.7.1 state 5
// ("sink destroyed with the abort error").
func (s *fileSink) Abort(err error) {
	name := s.f.Name()
	s.f.Close()
	os.Remove(name)
}

func (s *fileSink) Close() error {
	return s.f.Close()
}

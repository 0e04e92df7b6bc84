package sink

import "io"

// streamSink hands bytes to an io.Pipe. PipeWriter.Write blocks until
// the caller's Read drains it, which is exactly the backpressure
// behavior spec §4.7.2 requires ("writes respect sink backpressure")
// without any extra signaling machinery.
type streamSink struct {
	pw *io.PipeWriter
}

// NewStream returns a Sink together with the io.ReadCloser the caller
// consumes as the download's Stream (spec §6 read_stream() -> Stream).
func NewStream() (Sink, io.ReadCloser) {
	pr, pw := io.Pipe()
	return &streamSink{pw: pw}, pr
}

func (s *streamSink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

func (s *streamSink) Abort(err error) {
	if err == nil {
		err = io.ErrClosedPipe
	}
	s.pw.CloseWithError(err)
}

func (s *streamSink) Close() error {
	return s.pw.Close()
}

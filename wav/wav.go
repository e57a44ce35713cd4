// Package wav provides blocks that read and write IQ and audio signal in
// wav format. IQ signal is stored as two channels: I is the first one.
package wav

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/stream"
)

// pcmFormat is the wav format code of integer PCM.
const pcmFormat = 1

var (
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 16 and 32 bit depth is supported")
	// ErrInvalidFile is returned when file can't be decoded.
	ErrInvalidFile = errors.New("wav is not valid")
	// ErrChannels is returned when IQ file doesn't have two channels.
	ErrChannels = errors.New("iq wav must have 2 channels")
)

func validBitDepth(bitDepth int) error {
	if bitDepth != 16 && bitDepth != 32 {
		return fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	return nil
}

func scale(bitDepth int) float32 {
	return float32(int64(1) << (bitDepth - 1))
}

// Source reads IQ signal from wav. Worker exits when the whole file was
// written to the output.
type Source struct {
	sdr.Worker
	decoder    *wav.Decoder
	closer     io.Closer
	out        *stream.Stream[complex64]
	ib         *audio.IntBuffer
	scale      float32
	sampleRate int
	pending    []complex64
	buf        []complex64
}

// Open returns a source that reads the file.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s, err := NewSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewSource returns a source that reads provided wav.
func NewSource(r io.ReadSeeker) (*Source, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidFile
	}
	bitDepth := int(decoder.BitDepth)
	if err := validBitDepth(bitDepth); err != nil {
		return nil, err
	}
	if decoder.NumChans != 2 {
		return nil, fmt.Errorf("%w: got %d", ErrChannels, decoder.NumChans)
	}
	s := &Source{
		decoder:    decoder,
		out:        stream.New[complex64](sdr.DefaultCapacity),
		scale:      scale(bitDepth),
		sampleRate: int(decoder.SampleRate),
		ib: &audio.IntBuffer{
			Format:         decoder.Format(),
			Data:           make([]int, 2*sdr.DefaultBatch),
			SourceBitDepth: bitDepth,
		},
		buf: make([]complex64, 0, sdr.DefaultBatch),
	}
	s.Init("wav.source", s.run)
	s.RegisterOutput(s.out)
	return s, nil
}

func (s *Source) run() (int, error) {
	if len(s.pending) == 0 {
		n, err := s.decoder.PCMBuffer(s.ib)
		if err != nil {
			return 0, err
		}
		if n < 2 {
			return 0, io.EOF
		}
		s.buf = s.buf[:0]
		for i := 0; i+1 < n; i += 2 {
			s.buf = append(s.buf, complex(float32(s.ib.Data[i])/s.scale, float32(s.ib.Data[i+1])/s.scale))
		}
		s.pending = s.buf
	}
	n, err := s.out.Write(s.pending)
	if err != nil {
		return 0, err
	}
	s.pending = nil
	return n, nil
}

// SampleRate returns the sample rate of the file.
func (s *Source) SampleRate() int {
	return s.sampleRate
}

// Out returns the output of the source.
func (s *Source) Out() stream.Reader[complex64] {
	return s.out
}

// Close closes the file opened by Open. Source must be stopped.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// sink writes interleaved frames with the encoder.
type sink struct {
	encoder  *wav.Encoder
	closer   io.Closer
	ib       *audio.IntBuffer
	maxValue float32
}

func newSink(w io.WriteSeeker, sampleRate, bitDepth, channels int) (*sink, error) {
	if err := validBitDepth(bitDepth); err != nil {
		return nil, err
	}
	s := &sink{
		encoder: wav.NewEncoder(w, sampleRate, bitDepth, channels, pcmFormat),
		ib: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: bitDepth,
		},
		maxValue: scale(bitDepth) - 1,
	}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

func (s *sink) quantize(v float32) int {
	v *= s.maxValue
	if v > s.maxValue {
		v = s.maxValue
	} else if v < -s.maxValue {
		v = -s.maxValue
	}
	return int(v)
}

func (s *sink) close() error {
	if err := s.encoder.Close(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// IQSink writes IQ signal to wav.
type IQSink struct {
	sdr.Worker
	*sink
	in  stream.Reader[complex64]
	buf []complex64
}

// NewIQSink returns a sink that writes two channel wav. If w is a closer,
// it's closed by Close.
func NewIQSink(w io.WriteSeeker, in stream.Reader[complex64], sampleRate, bitDepth int) (*IQSink, error) {
	enc, err := newSink(w, sampleRate, bitDepth, 2)
	if err != nil {
		return nil, err
	}
	s := &IQSink{
		sink: enc,
		in:   in,
		buf:  make([]complex64, sdr.DefaultBatch),
	}
	s.Init("wav.iq", s.run)
	s.RegisterInput(in)
	return s, nil
}

func (s *IQSink) run() (int, error) {
	n, err := s.in.Read(s.buf)
	if err != nil {
		return 0, err
	}
	s.ib.Data = s.ib.Data[:0]
	for _, v := range s.buf[:n] {
		s.ib.Data = append(s.ib.Data, s.quantize(real(v)), s.quantize(imag(v)))
	}
	if err := s.encoder.Write(s.ib); err != nil {
		return 0, err
	}
	return n, nil
}

// Close finalizes the file. Sink must be stopped.
func (s *IQSink) Close() error {
	return s.close()
}

// AudioSink writes mono audio to wav.
type AudioSink struct {
	sdr.Worker
	*sink
	in  stream.Reader[float32]
	buf []float32
}

// NewAudioSink returns a sink that writes mono wav. If w is a closer, it's
// closed by Close.
func NewAudioSink(w io.WriteSeeker, in stream.Reader[float32], sampleRate, bitDepth int) (*AudioSink, error) {
	enc, err := newSink(w, sampleRate, bitDepth, 1)
	if err != nil {
		return nil, err
	}
	s := &AudioSink{
		sink: enc,
		in:   in,
		buf:  make([]float32, sdr.DefaultBatch),
	}
	s.Init("wav.audio", s.run)
	s.RegisterInput(in)
	return s, nil
}

func (s *AudioSink) run() (int, error) {
	n, err := s.in.Read(s.buf)
	if err != nil {
		return 0, err
	}
	s.ib.Data = s.ib.Data[:0]
	for _, v := range s.buf[:n] {
		s.ib.Data = append(s.ib.Data, s.quantize(v))
	}
	if err := s.encoder.Write(s.ib); err != nil {
		return 0, err
	}
	return n, nil
}

// Close finalizes the file. Sink must be stopped.
func (s *AudioSink) Close() error {
	return s.close()
}

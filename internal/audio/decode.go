package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"
)

// Supported payload types.
const (
	MIMEMPEG = "audio/mpeg"
	MIMEWAV  = "audio/wav"
	MIMEPCM  = "audio/pcm"
)

// resampleQuality trades CPU for quality; 4 is beep's recommended default.
const resampleQuality = 4

// ErrUnsupportedFormat is returned for payload types we cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Clip is one utterance ready to be played.
type Clip struct {
	// Data is the encoded payload, or raw s16le mono samples for MIMEPCM.
	Data []byte

	// MIMEType selects the decoder.
	MIMEType string

	// SampleRate is required for MIMEPCM and ignored otherwise.
	SampleRate int
}

// ClipFromDataURL decodes a data: URL into a clip.
func ClipFromDataURL(s string) (Clip, error) {
	mime, data, err := ParseDataURL(s)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Data: data, MIMEType: mime}, nil
}

// Decode opens the clip and resamples it to target.
func Decode(c Clip, target beep.SampleRate) (beep.Streamer, error) {
	if len(c.Data) == 0 {
		return nil, errors.New("audio data is empty")
	}

	var (
		stream beep.Streamer
		format beep.Format
		err    error
	)

	switch mime := strings.ToLower(c.MIMEType); {
	case mime == MIMEPCM || strings.HasPrefix(mime, "audio/l16"):
		if c.SampleRate <= 0 {
			return nil, errors.New("raw pcm needs a sample rate")
		}
		stream = NewPCMStreamer(c.Data)
		format = beep.Format{SampleRate: beep.SampleRate(c.SampleRate), NumChannels: 1, Precision: 2}
	case mime == MIMEMPEG || mime == "audio/mp3" || mime == "":
		stream, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(c.Data)))
	case mime == MIMEWAV || mime == "audio/x-wav" || mime == "audio/wave":
		stream, format, err = wav.Decode(bytes.NewReader(c.Data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, c.MIMEType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.MIMEType, err)
	}

	if format.SampleRate == target {
		return stream, nil
	}
	return beep.Resample(resampleQuality, format.SampleRate, target, stream), nil
}

// PCMStreamer streams signed 16-bit little-endian mono samples.
type PCMStreamer struct {
	data []byte
	pos  int
}

// NewPCMStreamer wraps raw samples. A trailing odd byte is ignored.
func NewPCMStreamer(data []byte) *PCMStreamer {
	return &PCMStreamer{data: data[:len(data)&^1]}
}

// Stream implements beep.Streamer.
func (s *PCMStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= len(s.data) {
		return 0, false
	}
	for n < len(samples) && s.pos+1 < len(s.data) {
		v := float64(int16(binary.LittleEndian.Uint16(s.data[s.pos:]))) / (math.MaxInt16 + 1)
		samples[n][0], samples[n][1] = v, v
		s.pos += 2
		n++
	}
	return n, true
}

// Err implements beep.Streamer.
func (s *PCMStreamer) Err() error { return nil }

// Len returns the number of samples.
func (s *PCMStreamer) Len() int { return len(s.data) / 2 }

// streamReader renders a beep.Streamer as s16le mono bytes for oto.
type streamReader struct {
	stream beep.Streamer
	buf    [][2]float64
	done   bool
}

func newStreamReader(s beep.Streamer) *streamReader {
	return &streamReader{stream: s, buf: make([][2]float64, 512)}
}

func (r *streamReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	want := len(p) / 2
	if want == 0 {
		return 0, nil
	}
	if want > len(r.buf) {
		want = len(r.buf)
	}

	n, ok := r.stream.Stream(r.buf[:want])
	if !ok {
		r.done = true
		if err := r.stream.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	for i := 0; i < n; i++ {
		mono := (r.buf[i][0] + r.buf[i][1]) / 2
		binary.LittleEndian.PutUint16(p[i*2:], uint16(toInt16(mono)))
	}
	return n * 2, nil
}

func toInt16(v float64) int16 {
	switch {
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	default:
		return int16(v * math.MaxInt16)
	}
}

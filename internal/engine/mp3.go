package engine

import (
	"errors"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/llehouerou/go-mp3"
)

// bytesPerSample is one stereo 16-bit PCM frame as emitted by go-mp3.
const bytesPerSample = 4

// mp3Stream adapts llehouerou/go-mp3 to beep.StreamSeekCloser. The decoder
// always emits 16-bit stereo PCM regardless of the source channel layout.
type mp3Stream struct {
	dec    *mp3.Decoder
	src    io.Closer
	pcm    []byte
	srcErr error
}

// decodeMP3 opens an MP3 stream for playback through beep.
func decodeMP3(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	dec, err := mp3.NewDecoder(rc)
	if err != nil {
		return nil, beep.Format{}, err
	}
	rate := dec.SampleRate()
	if rate <= 0 {
		return nil, beep.Format{}, errors.New("mp3: invalid sample rate")
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(rate),
		NumChannels: 2,
		Precision:   2,
	}
	return &mp3Stream{dec: dec, src: rc}, format, nil
}

func (m *mp3Stream) Stream(samples [][2]float64) (n int, ok bool) {
	if m.srcErr != nil {
		return 0, false
	}

	want := len(samples) * bytesPerSample
	if cap(m.pcm) < want {
		m.pcm = make([]byte, want)
	}
	buf := m.pcm[:want]

	read, err := io.ReadFull(m.dec, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		m.srcErr = err
		return 0, false
	}

	for read >= bytesPerSample*(n+1) {
		off := n * bytesPerSample
		left := int16(uint16(buf[off]) | uint16(buf[off+1])<<8)    //nolint:gosec // pcm samples
		right := int16(uint16(buf[off+2]) | uint16(buf[off+3])<<8) //nolint:gosec // pcm samples
		samples[n][0] = float64(left) / (1 << 15)
		samples[n][1] = float64(right) / (1 << 15)
		n++
	}
	return n, n > 0
}

func (m *mp3Stream) Err() error {
	return m.srcErr
}

// Len returns the total sample count, or 0 when the source cannot say.
func (m *mp3Stream) Len() int {
	if c := m.dec.SampleCount(); c > 0 {
		return int(c)
	}
	return 0
}

func (m *mp3Stream) Position() int {
	return int(m.dec.SamplePosition())
}

// Seek clamps to the stream bounds and clears a sticky read error, so a seek
// back from the end restarts playback.
func (m *mp3Stream) Seek(p int) error {
	if p < 0 {
		p = 0
	}
	if l := m.Len(); p > l {
		p = l
	}
	if err := m.dec.SeekToSample(int64(p)); err != nil {
		return err
	}
	m.srcErr = nil
	return nil
}

func (m *mp3Stream) Close() error {
	return m.src.Close()
}

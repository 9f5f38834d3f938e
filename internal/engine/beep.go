package engine

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

const eventBufferSize = 16

var (
	speakerOnce       sync.Once
	speakerSampleRate beep.SampleRate
	speakerErr        error
)

// Beep plays podcast audio through the beep speaker. Enclosure URLs are
// fetched into the local cache before decoding; see fetch.go.
type Beep struct {
	mu sync.Mutex

	cache *Cache

	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	url      string
	loaded   bool
	playing  bool

	events chan Event

	tickInterval time.Duration
	tickStop     chan struct{}

	closed bool
}

// Verify Beep implements Interface at compile time.
var _ Interface = (*Beep)(nil)

// NewBeep creates an engine caching enclosures under cacheDir and ticking at
// the given interval.
func NewBeep(cache *Cache, tickInterval time.Duration) *Beep {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &Beep{
		cache:        cache,
		events:       make(chan Event, eventBufferSize),
		tickInterval: tickInterval,
	}
}

// Load fetches the enclosure, decodes it and binds it to the speaker, paused.
// EventReady follows on success.
func (b *Beep) Load(url string) error {
	b.Unload()

	path, err := b.cache.Fetch(url)
	if err != nil {
		return fmt.Errorf("fetch enclosure: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}

	streamer, format, err := decodeMP3(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode: %w", err)
	}

	speakerOnce.Do(func() {
		speakerSampleRate = format.SampleRate
		speakerErr = speaker.Init(speakerSampleRate, speakerSampleRate.N(time.Second/10))
	})
	if speakerErr != nil {
		streamer.Close()
		f.Close()
		return speakerErr
	}

	var playStreamer beep.Streamer = streamer
	if format.SampleRate != speakerSampleRate {
		playStreamer = beep.Resample(4, format.SampleRate, speakerSampleRate, streamer)
	}

	b.mu.Lock()
	b.file = f
	b.streamer = streamer
	b.format = format
	b.ctrl = &beep.Ctrl{Streamer: playStreamer, Paused: true}
	b.url = url
	b.loaded = true
	b.playing = false
	b.tickStop = make(chan struct{})
	stop := b.tickStop
	b.mu.Unlock()

	speaker.Play(beep.Seq(b.ctrl, beep.Callback(func() {
		b.emit(Event{Kind: EventFinished, URL: url, Position: b.Position()})
	})))

	go b.tickLoop(stop, url)

	b.emit(Event{Kind: EventReady, URL: url})
	return nil
}

// Unload tears down the current binding. Safe to call when nothing is bound.
func (b *Beep) Unload() {
	b.mu.Lock()
	if !b.loaded {
		b.mu.Unlock()
		return
	}
	if b.tickStop != nil {
		close(b.tickStop)
		b.tickStop = nil
	}
	streamer := b.streamer
	file := b.file
	b.streamer = nil
	b.file = nil
	b.ctrl = nil
	b.url = ""
	b.loaded = false
	b.playing = false
	b.mu.Unlock()

	speaker.Clear()
	if streamer != nil {
		streamer.Close()
	}
	if file != nil {
		file.Close()
	}
}

// Play starts or resumes the bound item.
func (b *Beep) Play() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded || b.ctrl == nil {
		return
	}
	speaker.Lock()
	b.ctrl.Paused = false
	speaker.Unlock()
	b.playing = true
}

// Pause pauses the bound item.
func (b *Beep) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded || b.ctrl == nil {
		return
	}
	speaker.Lock()
	b.ctrl.Paused = true
	speaker.Unlock()
	b.playing = false
}

// SeekTo moves the clock to an absolute position, clamped to the stream.
func (b *Beep) SeekTo(pos time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamer == nil {
		return
	}
	n := b.format.SampleRate.N(pos)
	if n < 0 {
		n = 0
	}
	if length := b.streamer.Len(); n > length {
		n = length
	}
	speaker.Lock()
	_ = b.streamer.Seek(n)
	speaker.Unlock()
}

// Position returns the current clock position.
func (b *Beep) Position() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamer == nil {
		return 0
	}
	return b.format.SampleRate.D(b.streamer.Position())
}

// Duration returns the bound item's length.
func (b *Beep) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamer == nil {
		return 0
	}
	return b.format.SampleRate.D(b.streamer.Len())
}

// Rate returns 1 while playing, 0 otherwise.
func (b *Beep) Rate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.playing {
		return 1
	}
	return 0
}

// Loaded reports whether a ready item is bound.
func (b *Beep) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// Events returns the engine event stream.
func (b *Beep) Events() <-chan Event {
	return b.events
}

// Close tears down the binding and stops the event stream.
func (b *Beep) Close() error {
	b.Unload()
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}

func (b *Beep) tickLoop(stop chan struct{}, url string) {
	ticker := time.NewTicker(b.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.emit(Event{Kind: EventTick, URL: url, Position: b.Position()})
		}
	}
}

// emit sends an event without blocking; the session drains faster than the
// tick rate, so drops only happen when nobody is listening.
func (b *Beep) emit(e Event) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	select {
	case b.events <- e:
	default:
	}
}

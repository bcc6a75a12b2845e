// Package audio plays an audible alarm when a session stops on a fatal error
package audio

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/GriffinCanCode/dicepilot/internal/game"
	"github.com/GriffinCanCode/dicepilot/internal/trace"
)

// Alarm defaults
const (
	DefaultSampleRate = 44100
	DefaultFrequency  = 880.0
	DefaultBeep       = 250 * time.Millisecond
	DefaultBeeps      = 3
	framesPerBuf      = 1024
)

// Sink plays mono float32 samples.
type Sink interface {
	Play(ctx context.Context, samples []float32) error
}

// Alarm sounds a beep pattern on fatal session events. It implements
// game.Observer.
type Alarm struct {
	sink       Sink
	sampleRate int
	pattern    []float32

	mu      sync.Mutex
	playing bool
	wg      sync.WaitGroup
}

var _ game.Observer = (*Alarm)(nil)

// NewAlarm creates an alarm playing through sink.
func NewAlarm(sink Sink, sampleRate int) *Alarm {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Alarm{
		sink:       sink,
		sampleRate: sampleRate,
		pattern:    Pattern(DefaultFrequency, DefaultBeep, DefaultBeeps, sampleRate),
	}
}

// Observe starts the alarm on a fatal event. A pattern already playing is
// not restarted.
func (a *Alarm) Observe(ctx context.Context, e game.Event) {
	if e.Kind != game.EventFatal {
		return
	}
	a.mu.Lock()
	if a.playing {
		a.mu.Unlock()
		return
	}
	a.playing = true
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			a.mu.Lock()
			a.playing = false
			a.mu.Unlock()
		}()
		if err := a.sink.Play(context.WithoutCancel(ctx), a.pattern); err != nil {
			trace.Logger(ctx).Warn("alarm playback failed", "error", err)
		}
	}()
}

// Wait blocks until any playing alarm has finished.
func (a *Alarm) Wait() { a.wg.Wait() }

// Tone returns a sine wave with short linear fades to avoid clicks.
func Tone(freq float64, d time.Duration, sampleRate int) []float32 {
	n := int(d.Seconds() * float64(sampleRate))
	fade := min(n/10, sampleRate/200)
	out := make([]float32, n)
	for i := range out {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
		switch {
		case fade > 0 && i < fade:
			v *= float64(i) / float64(fade)
		case fade > 0 && i >= n-fade:
			v *= float64(n-1-i) / float64(fade)
		}
		out[i] = float32(0.5 * v)
	}
	return out
}

// Pattern returns beeps tones separated by equal silences.
func Pattern(freq float64, beep time.Duration, beeps, sampleRate int) []float32 {
	tone := Tone(freq, beep, sampleRate)
	gap := make([]float32, len(tone))
	var out []float32
	for i := 0; i < beeps; i++ {
		out = append(out, tone...)
		if i < beeps-1 {
			out = append(out, gap...)
		}
	}
	return out
}

// Speaker plays through a portaudio output device.
type Speaker struct {
	device     *portaudio.DeviceInfo
	sampleRate int
	mu         sync.Mutex
}

// NewSpeaker initializes portaudio and picks the output device whose name
// contains preferred, falling back to the default output.
func NewSpeaker(preferred string, sampleRate int) (*Speaker, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	devices, err := portaudio.Devices()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	dev := pickOutput(devices, preferred)
	if dev == nil {
		if dev, err = portaudio.DefaultOutputDevice(); err != nil {
			portaudio.Terminate()
			return nil, err
		}
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Speaker{device: dev, sampleRate: sampleRate}, nil
}

// Device returns the chosen output device name.
func (s *Speaker) Device() string { return s.device.Name }

// Play writes samples to the device, stopping early if ctx is done.
func (s *Speaker) Play(ctx context.Context, samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]float32, framesPerBuf)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   s.device,
			Channels: 1,
			Latency:  s.device.DefaultLowOutputLatency,
		},
		SampleRate:      float64(s.sampleRate),
		FramesPerBuffer: framesPerBuf,
	}, buf)
	if err != nil {
		return err
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return err
	}
	defer func() { _ = stream.Stop() }()

	for off := 0; off < len(samples); off += framesPerBuf {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, samples[off:])
		clear(buf[n:])
		if err := stream.Write(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases portaudio.
func (s *Speaker) Close() error {
	return portaudio.Terminate()
}

// pickOutput returns the first output-capable device matching preferred.
func pickOutput(devices []*portaudio.DeviceInfo, preferred string) *portaudio.DeviceInfo {
	if preferred == "" {
		return nil
	}
	for _, dev := range devices {
		if dev.MaxOutputChannels > 0 && strings.Contains(strings.ToLower(dev.Name), strings.ToLower(preferred)) {
			return dev
		}
	}
	return nil
}

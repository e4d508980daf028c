package player

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/glebovdev/hymnal-cli/internal/config"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate   = beep.SampleRate(44100)
	SpeakerBufferSize   = time.Millisecond * 250
	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
)

type PlayerState int

const (
	StateIdle PlayerState = iota
	StatePlaying
	StatePaused
	StateError
)

func (s PlayerState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Player renders local mp3 recordings through the system speaker.
type Player struct {
	format        beep.Format
	streamer      beep.StreamSeekCloser
	volume        *effects.Volume
	ctrl          *beep.Ctrl
	mu            sync.Mutex
	isPaused      bool
	isPlaying     bool
	speakerInit   bool
	volumePercent int

	// session identifies the current rendering; completions of older ones are dropped.
	session     uint64
	currentPath string

	state     PlayerState
	lastError string
	stateMu   sync.RWMutex
}

func NewPlayer() *Player {
	return &Player{
		format: beep.Format{
			SampleRate:  DefaultSampleRate,
			NumChannels: 2,
			Precision:   2,
		},
		volumePercent: -1,
	}
}

func (p *Player) initSpeaker(sampleRate beep.SampleRate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.speakerInit || sampleRate != p.format.SampleRate {
		err := speaker.Init(sampleRate, sampleRate.N(SpeakerBufferSize))
		if err != nil {
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		p.format.SampleRate = sampleRate
		p.speakerInit = true
		log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", sampleRate, SpeakerBufferSize)
	}
	return nil
}

// Play starts rendering the mp3 file at path, replacing anything already
// playing. onDone is called once from a separate goroutine when the track
// ends on its own, with the decoder error if rendering broke off. It is not
// called after Stop or a later Play.
func (p *Player) Play(path string, onDone func(error)) error {
	p.Stop()

	f, err := os.Open(path)
	if err != nil {
		p.fail(err)
		return fmt.Errorf("failed to open recording: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		p.fail(err)
		return fmt.Errorf("failed to decode MP3 file: %w", err)
	}

	log.Debug().Msgf("Initializing audio output (sample rate: %d Hz)...", format.SampleRate)
	if err := p.initSpeaker(format.SampleRate); err != nil {
		streamer.Close()
		p.fail(err)
		return fmt.Errorf("failed to initialize audio output: %w", err)
	}

	p.mu.Lock()
	p.session++
	session := p.session

	volumePercent := p.volumePercent
	if volumePercent < 0 {
		volumePercent = config.DefaultVolume
	}

	fadeInSamples := format.SampleRate.N(fadeInDuration)
	p.streamer = streamer
	p.format = format
	p.volume = &effects.Volume{
		Streamer: &fadeIn{Streamer: streamer, remaining: fadeInSamples, total: fadeInSamples},
		Base:     2,
		Volume:   percentToExponent(float64(volumePercent)),
		Silent:   volumePercent == 0,
	}
	p.ctrl = &beep.Ctrl{
		Streamer: p.volume,
		Paused:   false,
	}
	p.isPlaying = true
	p.isPaused = false
	p.currentPath = path
	ctrl := p.ctrl
	p.mu.Unlock()

	speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
		// Runs under the speaker lock.
		go p.finish(session, onDone)
	})))

	p.setState(StatePlaying)
	p.setLastError("")
	log.Debug().Str("file", path).Msg("Playback started")

	return nil
}

func (p *Player) finish(session uint64, onDone func(error)) {
	p.mu.Lock()
	if session != p.session || !p.isPlaying {
		p.mu.Unlock()
		return
	}

	err := p.streamer.Err()
	p.releaseLocked()
	p.mu.Unlock()

	if err != nil {
		p.fail(err)
		log.Error().Err(err).Msg("Recording decoding error")
	} else {
		p.setState(StateIdle)
		log.Debug().Msg("Playback finished")
	}

	if onDone != nil {
		onDone(err)
	}
}

// releaseLocked must be called with p.mu held.
func (p *Player) releaseLocked() {
	if p.streamer != nil {
		p.streamer.Close()
		p.streamer = nil
	}
	p.ctrl = nil
	p.volume = nil
	p.isPlaying = false
	p.isPaused = false
	p.currentPath = ""
}

func (p *Player) fail(err error) {
	p.setState(StateError)
	p.setLastError(err.Error())
}

func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isPlaying {
		return
	}

	p.session++
	speaker.Clear()
	p.releaseLocked()
	p.setState(StateIdle)

	log.Debug().Msg("Playback stopped")
}

func (p *Player) TogglePause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl == nil || !p.isPlaying {
		return
	}

	speaker.Lock()
	p.ctrl.Paused = !p.ctrl.Paused
	p.isPaused = p.ctrl.Paused
	speaker.Unlock()

	if p.isPaused {
		p.setState(StatePaused)
		log.Debug().Msg("Playback paused")
	} else {
		p.setState(StatePlaying)
		log.Debug().Msg("Playback resumed")
	}
}

func (p *Player) SetVolume(volumePercent int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.volumePercent = volumePercent

	if p.volume == nil {
		log.Debug().Msgf("Volume stored as %d%% (will be applied when playback starts)", volumePercent)
		return
	}

	volumeLevel := percentToExponent(float64(volumePercent))

	speaker.Lock()
	p.volume.Volume = volumeLevel
	p.volume.Silent = volumePercent == 0
	speaker.Unlock()

	log.Debug().Msgf("Volume set to %d%% (%.2f dB)", volumePercent, volumeLevel)
}

func percentToExponent(p float64) float64 {
	if p <= 0 {
		return MinVolumeDB
	}
	if p >= 100 {
		return 0
	}

	normalized := p / 100.0
	adjusted := math.Pow(normalized, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}

// Progress returns the elapsed and total duration of the current recording.
func (p *Player) Progress() (elapsed, total time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.streamer == nil {
		return 0, 0
	}

	speaker.Lock()
	pos, length := p.streamer.Position(), p.streamer.Len()
	speaker.Unlock()

	return p.format.SampleRate.D(pos), p.format.SampleRate.D(length)
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isPlaying && !p.isPaused
}

func (p *Player) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isPaused
}

func (p *Player) CurrentPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentPath
}

func (p *Player) GetState() PlayerState {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

func (p *Player) setState(state PlayerState) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.state != state {
		log.Debug().Msgf("Player state: %s -> %s", p.state.String(), state.String())
		p.state = state
	}
}

func (p *Player) GetLastError() string {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.lastError
}

func (p *Player) setLastError(err string) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.lastError = err
}

const fadeInDuration = 50 * time.Millisecond

// fadeIn ramps the first samples of a recording up from silence.
type fadeIn struct {
	beep.Streamer
	remaining int
	total     int
}

func (f *fadeIn) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = f.Streamer.Stream(samples)

	for i := 0; i < n && f.remaining > 0; i++ {
		scale := float64(f.total-f.remaining) / float64(f.total)
		samples[i][0] *= scale
		samples[i][1] *= scale
		f.remaining--
	}

	return n, ok
}

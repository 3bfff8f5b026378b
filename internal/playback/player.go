package playback

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/gen2brain/malgo"
)

// Player plays a decoded local source through the default output device and
// exposes its transport position as a PositionSource.
//
// The whole source is decoded up front to interleaved s16le PCM; podcast
// episodes at 16 kHz mono are a few MB per hour, so this stays cheap.
type Player struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32
	channels   uint32

	mu      sync.Mutex
	pcm     []byte
	cursor  int // frames consumed
	playing bool
}

// NewPlayer creates a player for the given PCM format. Call Close() when done.
func NewPlayer(sampleRate, channels uint32) (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("playback: initializing audio context: %w", err)
	}

	return &Player{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Load decodes the source at path into the player's PCM buffer and rewinds
// the transport to zero. Any container or codec ffmpeg can read is accepted.
func (p *Player) Load(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-i", path,
		"-vn",
		"-ac", strconv.FormatUint(uint64(p.channels), 10),
		"-ar", strconv.FormatUint(uint64(p.sampleRate), 10),
		"-f", "s16le",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	pcm, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("playback: decoding %s: %s: %w", path, bytes.TrimSpace(stderr.Bytes()), err)
	}

	p.mu.Lock()
	p.pcm = pcm
	p.cursor = 0
	p.mu.Unlock()

	return nil
}

// Start begins (or resumes) playback on the default output device.
func (p *Player) Start() error {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return nil
	}
	if len(p.pcm) == 0 {
		p.mu.Unlock()
		return fmt.Errorf("playback: no source loaded")
	}
	p.mu.Unlock()

	if p.device == nil {
		deviceCfg := malgo.DefaultDeviceConfig(malgo.Playback)
		deviceCfg.Playback.Format = malgo.FormatS16
		deviceCfg.Playback.Channels = p.channels
		deviceCfg.SampleRate = p.sampleRate

		device, err := malgo.InitDevice(p.ctx.Context, deviceCfg, malgo.DeviceCallbacks{
			Data: p.onData,
		})
		if err != nil {
			return fmt.Errorf("playback: initializing output device: %w", err)
		}
		p.device = device
	}

	if err := p.device.Start(); err != nil {
		return fmt.Errorf("playback: starting output device: %w", err)
	}

	p.mu.Lock()
	p.playing = true
	p.mu.Unlock()

	return nil
}

// Pause stops feeding the output device. The transport position is kept.
func (p *Player) Pause() error {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return nil
	}
	p.playing = false
	p.mu.Unlock()

	if err := p.device.Stop(); err != nil {
		return fmt.Errorf("playback: stopping output device: %w", err)
	}
	return nil
}

// Snapshot returns the current transport position and the source duration
// in milliseconds, read atomically.
func (p *Player) Snapshot() (int64, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.framesToMs(int64(p.cursor)), p.framesToMs(p.totalFramesLocked())
}

// Finished reports whether the transport has consumed the whole source.
func (p *Player) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(p.cursor) >= p.totalFramesLocked()
}

// Close releases the device and audio context.
func (p *Player) Close() error {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()

	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}

	if p.ctx != nil {
		if err := p.ctx.Uninit(); err != nil {
			return fmt.Errorf("playback: uninitializing audio context: %w", err)
		}
		p.ctx.Free()
		p.ctx = nil
	}

	return nil
}

// onData is the malgo callback that fills the output buffer from the PCM
// cursor. Past end of source it emits silence.
func (p *Player) onData(pOutput, _ []byte, frameCount uint32) {
	frameBytes := int(p.channels) * 2

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		zero(pOutput)
		return
	}

	offset := p.cursor * frameBytes
	n := 0
	if offset < len(p.pcm) {
		n = copy(pOutput, p.pcm[offset:])
	}
	zero(pOutput[n:])
	p.cursor += n / frameBytes
}

func (p *Player) totalFramesLocked() int64 {
	return int64(len(p.pcm) / (int(p.channels) * 2))
}

func (p *Player) framesToMs(frames int64) int64 {
	return frames * 1000 / int64(p.sampleRate)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

package voice

import (
	"encoding/binary"
	"log/slog"
	"math"
	"time"
)

// VAD holds voice-activity-detection parameters. It is loaded once at worker
// startup and shared read-only across sessions; per-session state lives in
// the Detector.
type VAD struct {
	SampleRate     int
	FrameDuration  time.Duration
	Threshold      float64
	HangoverFrames int
}

// LoadVAD prepares the shared detector parameters. Loading is cheap today but
// callers treat it as a startup cost, mirroring how heavyweight models are
// pre-loaded before the first call arrives.
func LoadVAD(logger *slog.Logger) *VAD {
	if logger == nil {
		logger = slog.Default()
	}
	v := &VAD{
		SampleRate:     16000,
		FrameDuration:  30 * time.Millisecond,
		Threshold:      0.012,
		HangoverFrames: 8,
	}
	logger.Info("vad loaded",
		"sample_rate", v.SampleRate,
		"frame_ms", v.FrameDuration.Milliseconds(),
		"hangover_frames", v.HangoverFrames)
	return v
}

// Detector returns fresh per-session speech-tracking state.
func (v *VAD) Detector() *Detector {
	return &Detector{vad: v}
}

// Detector tracks whether the caller is currently speaking. Not safe for
// concurrent use; each session owns one.
type Detector struct {
	vad      *VAD
	speaking bool
	silence  int
}

// Process consumes one frame of little-endian 16-bit PCM and reports whether
// speech is active after the frame. Short silences inside an utterance are
// bridged by the hangover window.
func (d *Detector) Process(pcm []byte) bool {
	if rmsLevel(pcm) >= d.vad.Threshold {
		d.speaking = true
		d.silence = 0
		return true
	}
	if !d.speaking {
		return false
	}
	d.silence++
	if d.silence > d.vad.HangoverFrames {
		d.speaking = false
		d.silence = 0
	}
	return d.speaking
}

// Speaking reports the current state without consuming audio.
func (d *Detector) Speaking() bool { return d.speaking }

// Reset clears utterance state, used when a turn is handed to the model.
func (d *Detector) Reset() {
	d.speaking = false
	d.silence = 0
}

func rmsLevel(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}

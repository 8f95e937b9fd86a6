package voice

import (
	"testing"
	"time"
)

func TestTurnDetectorContinuationHolds(t *testing.T) {
	td := NewTurnDetector()
	d, ok := td.Decide("i would like to book a room and", 0.8, 1400*time.Millisecond)
	if !ok {
		t.Fatalf("Decide() ok=false, want true")
	}
	if d.Reason != "continuation" {
		t.Fatalf("Reason = %q, want %q", d.Reason, "continuation")
	}
	if d.EndOfTurn {
		t.Fatalf("EndOfTurn = true, want false")
	}
	if d.Hold < 400*time.Millisecond {
		t.Fatalf("Hold = %s, want >= 400ms for continuation", d.Hold)
	}
}

func TestTurnDetectorTerminalCommits(t *testing.T) {
	td := NewTurnDetector()
	d, ok := td.Decide("That's all, thank you.", 0.85, 2*time.Second)
	if !ok {
		t.Fatalf("Decide() ok=false, want true")
	}
	if d.Reason != "terminal" {
		t.Fatalf("Reason = %q, want %q", d.Reason, "terminal")
	}
	if !d.EndOfTurn {
		t.Fatalf("EndOfTurn = false, want true")
	}
	if d.Hold > 200*time.Millisecond {
		t.Fatalf("Hold = %s, want short hold for terminal cue", d.Hold)
	}
}

func TestTurnDetectorArabicCues(t *testing.T) {
	td := NewTurnDetector()

	d, ok := td.Decide("أريد حجز غرفة و", 0.8, 1500*time.Millisecond)
	if !ok {
		t.Fatalf("Decide() ok=false, want true")
	}
	if d.Reason != "continuation" {
		t.Fatalf("Reason = %q, want continuation for Arabic connective tail", d.Reason)
	}

	d, ok = td.Decide("خلاص شكرا", 0.8, 2*time.Second)
	if !ok {
		t.Fatalf("Decide() ok=false, want true")
	}
	if !d.EndOfTurn {
		t.Fatalf("EndOfTurn = false, want true for Arabic terminal cue")
	}
}

func TestTurnDetectorLowConfidenceNeverCommits(t *testing.T) {
	td := NewTurnDetector()
	d, ok := td.Decide("book a room.", 0.3, 2*time.Second)
	if !ok {
		t.Fatalf("Decide() ok=false, want true")
	}
	if d.EndOfTurn {
		t.Fatalf("EndOfTurn = true, want false at low confidence")
	}
	if d.Reason != "low_confidence" {
		t.Fatalf("Reason = %q, want %q", d.Reason, "low_confidence")
	}
}

func TestTurnDetectorEmptyTranscript(t *testing.T) {
	td := NewTurnDetector()
	if _, ok := td.Decide("   ", 0.8, time.Second); ok {
		t.Fatalf("Decide() ok=true for blank transcript, want false")
	}
}

func TestDetectorHangoverBridgesShortSilence(t *testing.T) {
	vad := LoadVAD(nil)
	det := vad.Detector()

	loud := make([]byte, 640)
	for i := 0; i < len(loud); i += 2 {
		loud[i] = 0x00
		loud[i+1] = 0x20 // ~0.25 full scale
	}
	quiet := make([]byte, 640)

	if !det.Process(loud) {
		t.Fatalf("Process(loud) = false, want speaking")
	}
	for i := 0; i < vad.HangoverFrames; i++ {
		if !det.Process(quiet) {
			t.Fatalf("Process(quiet) frame %d = false, want hangover to bridge", i)
		}
	}
	if det.Process(quiet) {
		t.Fatalf("Process(quiet) past hangover = true, want silence")
	}
	if det.Speaking() {
		t.Fatalf("Speaking() = true after hangover expired")
	}
}

package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/tos-network/coal-miner/internal/runflag"
	"github.com/tos-network/coal-miner/internal/submission"
)

type discardWriter struct {
	mu    sync.Mutex
	wrote int
}

func (w *discardWriter) WriteFrame(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wrote++
	return nil
}

func newTestActor() (*submission.Actor, *discardWriter) {
	w := &discardWriter{}
	a := submission.NewActor(w, nil, [32]byte{})
	go a.Run()
	return a, w
}

func TestEffectiveCutoffAppliesBufferAndClamp(t *testing.T) {
	cases := []struct {
		name   string
		raw    uint64
		buffer uint64
		want   time.Duration
	}{
		{"buffer subtracted", 10, 3, 7 * time.Second},
		{"buffer exceeds raw clamps to zero", 2, 5, 0},
		{"exceeds hard cap", 1000, 0, maxCutoffSecs * time.Second},
		{"zero stays zero", 0, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := EffectiveCutoff(c.raw, c.buffer)
			if got != c.want {
				t.Errorf("EffectiveCutoff(%d, %d) = %v, want %v", c.raw, c.buffer, got, c.want)
			}
		})
	}
}

func TestNonceRangeEmpty(t *testing.T) {
	if (NonceRange{Start: 5, End: 10}).Empty() {
		t.Error("non-empty range reported empty")
	}
	if !(NonceRange{Start: 10, End: 10}).Empty() {
		t.Error("equal start/end should be empty")
	}
	if !(NonceRange{Start: 11, End: 10}).Empty() {
		t.Error("inverted range should be empty")
	}
}

func TestRunZeroDesiredThreadsMeansAllCores(t *testing.T) {
	a, _ := newTestActor()
	defer a.Finish()

	result := Run(RoundInput{
		NonceRange:     NonceRange{Start: 0, End: 1000},
		RawCutoffSecs:  0,
		DesiredThreads: 0,
	}, runflag.New(), a)

	if result.TotalHashes == 0 {
		t.Error("expected DesiredThreads=0 to mean every logical CPU runs, got no hashes")
	}
}

func TestRunCapsAtDesiredThreads(t *testing.T) {
	a, _ := newTestActor()
	defer a.Finish()

	result := Run(RoundInput{
		NonceRange:     NonceRange{Start: 0, End: 1000},
		RawCutoffSecs:  0,
		DesiredThreads: 1,
	}, runflag.New(), a)

	if result.TotalHashes == 0 {
		t.Error("expected at least the one desired thread to run")
	}
}

func TestRunExitsPromptlyWhenRunFlagCleared(t *testing.T) {
	a, _ := newTestActor()
	defer a.Finish()

	run := runflag.New()
	run.Clear()

	done := make(chan RoundResult, 1)
	go func() {
		done <- Run(RoundInput{
			NonceRange:     NonceRange{Start: 0, End: 1 << 40},
			RawCutoffSecs:  55,
			DesiredThreads: 2,
		}, run, a)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return promptly after run flag was cleared")
	}
}

func TestRunEmptyNonceRangeTerminatesQuickly(t *testing.T) {
	a, _ := newTestActor()
	defer a.Finish()

	done := make(chan RoundResult, 1)
	go func() {
		done <- Run(RoundInput{
			NonceRange:     NonceRange{Start: 42, End: 42},
			RawCutoffSecs:  55,
			DesiredThreads: 1,
		}, runflag.New(), a)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not terminate quickly on an empty nonce range")
	}
}

func TestRunExhaustsSmallRangeAndStops(t *testing.T) {
	a, _ := newTestActor()
	defer a.Finish()

	result := Run(RoundInput{
		NonceRange:     NonceRange{Start: 0, End: 50},
		RawCutoffSecs:  0,
		BufferSecs:     0,
		DesiredThreads: 1,
	}, runflag.New(), a)

	if result.TotalHashes == 0 {
		t.Error("expected at least one hash iteration over a non-empty range")
	}
}

func TestRunStopsWhenSubmissionSinkFails(t *testing.T) {
	w := &discardWriter{}
	_ = w

	failingWriter := writerFunc(func(frame []byte) error {
		return errSink
	})
	a := submission.NewActor(failingWriter, nil, [32]byte{})
	go a.Run()
	defer a.Finish()

	run := runflag.New()
	done := make(chan RoundResult, 1)
	go func() {
		done <- Run(RoundInput{
			NonceRange:     NonceRange{Start: 0, End: 1 << 40},
			RawCutoffSecs:  55,
			DesiredThreads: 2,
		}, run, a)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop after the submission sink failed")
	}
}

type writerFunc func(frame []byte) error

func (f writerFunc) WriteFrame(frame []byte) error { return f(frame) }

type sinkError struct{}

func (sinkError) Error() string { return "sink closed" }

var errSink = sinkError{}

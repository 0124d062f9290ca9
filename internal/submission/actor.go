// Package submission implements the single-writer actor that serializes
// best-solution uploads to the coordinator and enforces monotone
// improvement of submitted difficulty within a round.
package submission

import (
	"time"

	"github.com/tos-network/coal-miner/internal/protocol"
	"github.com/tos-network/coal-miner/internal/util"
)

// resetCooldown is the fixed cooldown the actor sleeps after a Reset
// before accepting further submissions. Kept as a constant rather than
// configurable: the coordinator does not communicate a different value
// for this window, so a fixed 2s matches the documented contract.
const resetCooldown = 2 * time.Second

// inboxRingSize is the starting capacity of the unbounded inbox's
// internal ring. It grows on demand, so this only sizes the common
// case (a handful of monotone improvements per round) to avoid
// reallocating on every submission.
const inboxRingSize = 64

// ThreadSubmission is what a mining worker offers the actor when its
// local best strictly improves.
type ThreadSubmission struct {
	Nonce      uint64
	Difficulty uint32
	Digest     [16]byte
}

// Signer produces a signature over a frame's signed payload. Delegated
// sessions pass a nil Signer, and their frames go out unsigned.
type Signer interface {
	Sign(payload []byte) []byte
}

// Writer is the session's mutex-guarded outbound sink.
type Writer interface {
	WriteFrame(frame []byte) error
}

type message struct {
	kind       msgKind
	submission ThreadSubmission
}

type msgKind int

const (
	msgSubmission msgKind = iota
	msgReset
	msgFinish
)

// Actor is the single consumer of a ThreadSubmission inbox. All mutation
// of best_diff happens on the actor's own goroutine; there is no lock.
// The inbox itself is genuinely unbounded: in holds the producer side, a
// background pump grows an internal ring as needed, and Run only ever
// drains the bounded-looking out side. Submit/Reset/Finish therefore
// never block a mining worker, matching the MPSC-unbounded channel the
// submission system is modeled on.
type Actor struct {
	in  chan message
	out chan message

	writer Writer
	signer Signer
	pubkey [32]byte

	// onAccepted, when set, is notified for every submission that passes
	// the monotone filter and is forwarded as a BestSolution frame. Used
	// for telemetry only.
	onAccepted func(nonce uint64, difficulty uint32)

	// stop is set when the outbound sink fails; workers observe it via
	// Stopped() and exit their search loop promptly.
	stop chan struct{}
	done chan struct{}
}

// NewActor creates an actor bound to one session's outbound sink. Call
// Run in its own goroutine immediately after construction.
func NewActor(writer Writer, signer Signer, pubkey [32]byte) *Actor {
	a := &Actor{
		in:     make(chan message),
		out:    make(chan message),
		writer: writer,
		signer: signer,
		pubkey: pubkey,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go a.pump()
	return a
}

// pump is the unbounded-channel idiom: it accepts from in without ever
// blocking the sender, buffering into a growable ring, and forwards to
// out for Run to consume in order. It exits once done is closed, which
// Run does on its way out after a Finish message.
func (a *Actor) pump() {
	queue := make([]message, 0, inboxRingSize)
	for {
		if len(queue) == 0 {
			select {
			case m := <-a.in:
				queue = append(queue, m)
			case <-a.done:
				close(a.out)
				return
			}
			continue
		}

		select {
		case m := <-a.in:
			queue = append(queue, m)
		case a.out <- queue[0]:
			queue = queue[1:]
		case <-a.done:
			close(a.out)
			return
		}
	}
}

// Submit offers a candidate to the actor. Safe to call concurrently from
// any number of worker goroutines; never blocks once the actor has
// finished, and never blocks on a full inbox since the pump's ring grows
// on demand.
func (a *Actor) Submit(s ThreadSubmission) {
	select {
	case a.in <- message{kind: msgSubmission, submission: s}:
	case <-a.done:
		// Actor is dead; drop silently per contract.
	}
}

// Reset tells the actor a new round has started.
func (a *Actor) Reset() {
	select {
	case a.in <- message{kind: msgReset}:
	case <-a.done:
	}
}

// Finish permanently retires the actor for this session. Any Submission
// messages still queued behind it are discarded: Run returns on Finish
// without processing them.
func (a *Actor) Finish() {
	select {
	case a.in <- message{kind: msgFinish}:
	case <-a.done:
	}
}

// Stopped reports whether the outbound sink has failed and workers
// should exit their search loop.
func (a *Actor) Stopped() <-chan struct{} {
	return a.stop
}

// OnAccepted registers a callback invoked on the actor's own goroutine
// whenever a submission passes the monotone filter and is forwarded to
// the coordinator. Must be called before Run starts consuming; nil is a
// valid no-op (the default).
func (a *Actor) OnAccepted(fn func(nonce uint64, difficulty uint32)) {
	a.onAccepted = fn
}

// Run is the actor's consumer loop. It returns once a Finish message is
// processed or the pump's out channel is closed.
func (a *Actor) Run() {
	defer close(a.done)

	var bestDiff uint32

	for msg := range a.out {
		switch msg.kind {
		case msgSubmission:
			s := msg.submission
			if s.Difficulty <= bestDiff {
				continue
			}
			bestDiff = s.Difficulty

			frame := protocol.BestSolution{
				Digest: s.Digest,
				Nonce:  s.Nonce,
				Pubkey: a.pubkey,
			}
			if a.signer != nil {
				frame.Signature = a.signer.Sign(frame.SignedPayload())
			}

			if err := a.writer.WriteFrame(protocol.EncodeBestSolution(frame)); err != nil {
				util.Errorf("submission actor: outbound sink closed, stopping round: %v", err)
				a.signalStop()
				continue
			}
			if a.onAccepted != nil {
				a.onAccepted(s.Nonce, s.Difficulty)
			}

		case msgReset:
			bestDiff = 0
			time.Sleep(resetCooldown)

		case msgFinish:
			return
		}
	}
}

func (a *Actor) signalStop() {
	select {
	case <-a.stop:
		// already stopped
	default:
		close(a.stop)
	}
}

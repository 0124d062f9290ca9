// Package session implements the duplex WebSocket connection to the
// coordinator: the Owner/Delegated handshake, the StartMining →
// PoolSubmissionResult round cycle, idle/heartbeat timeouts, and
// reconnect-with-backoff.
package session

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tos-network/coal-miner/internal/coordinator"
	"github.com/tos-network/coal-miner/internal/engine"
	"github.com/tos-network/coal-miner/internal/protocol"
	"github.com/tos-network/coal-miner/internal/runflag"
	"github.com/tos-network/coal-miner/internal/submission"
	"github.com/tos-network/coal-miner/internal/util"
)

const (
	readTimeout            = 45 * time.Second
	roundHeartbeatTimeout   = 120 * time.Second
	reconnectBackoff        = 3 * time.Second
	timestampFailureBackoff = 5 * time.Second
	heartbeatCheckInterval  = 5 * time.Second
)

// Signer produces a signature over a frame's signed payload. Used for
// both the Authorization header and outbound frame signatures in Owner
// mode; not used in Delegated mode.
type Signer interface {
	Sign(payload []byte) []byte
}

// Config is everything a Session needs to dial and run rounds.
type Config struct {
	Coordinator    *coordinator.Client
	Owner          bool
	Pubkey         [32]byte
	PubkeyHex      string
	Signer         Signer
	DesiredThreads int
	CutoffBuffer   time.Duration

	// OnSubmission, when set, is wired into every per-connection
	// submission.Actor this Session constructs. Used for telemetry only.
	OnSubmission SubmissionObserver
}

// ResultHandler is invoked once per completed round, off the session's
// internal goroutines but synchronously with respect to the session
// (the caller should not block long).
type ResultHandler func(protocol.PoolSubmissionResult)

// RoundObserver is invoked once the mining engine finishes a round, ahead
// of the coordinator's PoolSubmissionResult for that round. Used for
// telemetry only; nil is a valid no-op.
type RoundObserver func(engine.RoundResult)

// SubmissionObserver is invoked on the submission actor's own goroutine
// for every submission that passes the monotone filter and is forwarded
// to the coordinator. Used for telemetry only; nil is a valid no-op.
type SubmissionObserver func(nonce uint64, difficulty uint32)

// Session owns one coordinator connection's lifecycle across
// reconnects.
type Session struct {
	cfg Config

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// New builds a Session.
func New(cfg Config) *Session {
	return &Session{cfg: cfg}
}

// WriteFrame implements submission.Writer: the mutex-guarded outbound
// sink shared by the submission actor, the Ready-emitter, and the
// round-completion path.
func (s *Session) WriteFrame(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("session: no active connection")
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Run blocks in an outer reconnect loop until run is cleared. Each
// connection gets its own submission.Actor, constructed fresh and torn
// down with Finish() when that connection's runConnection returns — a
// stale actor from a dropped connection must never outlive it, since
// WriteFrame against a cleared s.conn would permanently stop it and take
// every subsequent connection's submissions down with it. Each
// connection's rounds drive engine.Run through that connection's actor,
// each completed round is handed to onRound, and each completed
// PoolSubmissionResult is handed to onResult.
func (s *Session) Run(run *runflag.Flag, onRound RoundObserver, onResult ResultHandler) {
	var actorSigner submission.Signer
	if s.cfg.Owner {
		actorSigner = s.cfg.Signer
	}

	for run.Running() {
		conn, err := s.dial()
		if err != nil {
			util.Warnf("session: handshake failed, retrying: %v", err)
			sleepUnlessStopped(run, reconnectBackoff)
			continue
		}

		s.writeMu.Lock()
		s.conn = conn
		s.writeMu.Unlock()

		if err := s.sendReady(); err != nil {
			util.Warnf("session: could not send initial Ready: %v", err)
			conn.Close()
			s.writeMu.Lock()
			s.conn = nil
			s.writeMu.Unlock()
			sleepUnlessStopped(run, reconnectBackoff)
			continue
		}

		actor := submission.NewActor(s, actorSigner, s.cfg.Pubkey)
		if s.cfg.OnSubmission != nil {
			actor.OnAccepted(s.cfg.OnSubmission)
		}
		go actor.Run()

		s.runConnection(conn, run, actor, onRound, onResult)
		actor.Finish()
		conn.Close()

		s.writeMu.Lock()
		s.conn = nil
		s.writeMu.Unlock()

		if run.Running() {
			sleepUnlessStopped(run, reconnectBackoff)
		}
	}
}

func sleepUnlessStopped(run *runflag.Flag, d time.Duration) {
	deadline := time.Now().Add(d)
	for run.Running() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
}

// dial performs the Owner or Delegated handshake and returns an
// established connection.
func (s *Session) dial() (*websocket.Conn, error) {
	ts, err := s.cfg.Coordinator.Timestamp()
	if err != nil {
		time.Sleep(timestampFailureBackoff)
		return nil, fmt.Errorf("fetching coordinator timestamp: %w", err)
	}

	var url string
	header := http.Header{}
	if s.cfg.Owner {
		url = s.cfg.Coordinator.WSOwnerURL(ts)
		sig := s.cfg.Signer.Sign(timestampBytes(ts))
		header.Set("Authorization", basicAuth(s.cfg.PubkeyHex, sig))
	} else {
		url = s.cfg.Coordinator.WSDelegatedURL(s.cfg.PubkeyHex, ts)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("upgrade rejected: status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return conn, nil
}

// runConnection owns one connection's read loop and round lifecycle. It
// returns when the connection should be closed and redialed.
func (s *Session) runConnection(conn *websocket.Conn, run *runflag.Flag, actor *submission.Actor, onRound RoundObserver, onResult ResultHandler) {
	frames := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go readLoop(conn, frames, readErr)

	roundDone := make(chan engine.RoundResult, 1)
	mining := false
	lastStartMining := time.Now()

	ticker := time.NewTicker(heartbeatCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-readErr:
			util.Warnf("session: connection closed: %v", err)
			return

		case frame := <-frames:
			if len(frame) == 0 {
				continue
			}
			switch frame[0] {
			case protocol.TypeStartMining:
				sm, err := protocol.DecodeStartMining(frame)
				if err != nil {
					util.Warnf("session: malformed StartMining: %v", err)
					continue
				}
				lastStartMining = time.Now()
				if mining {
					continue
				}
				mining = true
				go func() {
					result := engine.Run(engine.RoundInput{
						Challenge:      sm.Challenge,
						NonceRange:     engine.NonceRange{Start: sm.NonceStart, End: sm.NonceEnd},
						RawCutoffSecs:  sm.CutoffSecs,
						BufferSecs:     uint64(s.cfg.CutoffBuffer / time.Second),
						DesiredThreads: s.cfg.DesiredThreads,
					}, run, actor)
					roundDone <- result
				}()

			case protocol.TypePoolSubmissionResult:
				psr, err := protocol.DecodePoolSubmissionResult(frame)
				if err != nil {
					util.Warnf("session: malformed PoolSubmissionResult, skipping: %v", err)
					continue
				}
				if onResult != nil {
					onResult(psr)
				}

			default:
				util.Warnf("session: unknown inbound frame type 0x%02x", frame[0])
			}

		case result := <-roundDone:
			mining = false
			// engine.Run already emitted this round's Reset to actor.
			if onRound != nil {
				onRound(result)
			}
			if err := s.sendReady(); err != nil {
				util.Warnf("session: could not send Ready after round: %v", err)
				return
			}

		case <-ticker.C:
			if time.Since(lastStartMining) > roundHeartbeatTimeout {
				util.Warnf("session: no StartMining in %v, reconnecting", roundHeartbeatTimeout)
				return
			}
		}

		if !run.Running() {
			return
		}
	}
}

func readLoop(conn *websocket.Conn, frames chan<- []byte, errCh chan<- error) {
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}
		if messageType == websocket.TextMessage {
			util.Warnf("session: ignoring unexpected text frame: %q", string(data))
			continue
		}
		frames <- data
	}
}

// sendReady emits the Ready frame. In Owner mode it is signed over
// Pubkey||Timestamp.
func (s *Session) sendReady() error {
	ready := protocol.Ready{Pubkey: s.cfg.Pubkey, Timestamp: uint64(time.Now().Unix())}
	if s.cfg.Owner {
		ready.Signature = s.cfg.Signer.Sign(ready.SignedPayload())
	}
	return s.WriteFrame(protocol.EncodeReady(ready))
}

func basicAuth(pubkeyHex string, sig []byte) string {
	creds := pubkeyHex + ":" + fmt.Sprintf("%x", sig)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

func timestampBytes(ts uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(ts >> (8 * i))
	}
	return b
}

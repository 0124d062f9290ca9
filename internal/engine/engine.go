// Package engine implements the multi-threaded nonce search: one OS
// thread per logical CPU as reported by runtime.NumCPU, pinned by CPU
// affinity, searching a disjoint nonce sub-range until the round's cutoff
// or the assigned range is exhausted. Physical cores are not detected:
// SMT siblings of one core count as separate CPUs.
package engine

import (
	"runtime"
	"sync"
	"time"

	"github.com/tos-network/coal-miner/internal/hashpow"
	"github.com/tos-network/coal-miner/internal/runflag"
	"github.com/tos-network/coal-miner/internal/submission"
	"github.com/tos-network/coal-miner/internal/util"
)

const (
	// noncesPerThread is the stride between each worker's starting
	// nonce; keeps each thread's working set cache-local.
	noncesPerThread = 10_000

	// maxCutoffSecs bounds the effective cutoff regardless of what the
	// coordinator requests.
	maxCutoffSecs = 55

	// minSubmitDifficulty is the floor below which a candidate is never
	// offered to the submission actor, even if it improves the local
	// best.
	minSubmitDifficulty = 8

	// clockCheckInterval amortizes the wall-clock read: only every Nth
	// nonce pays for a time.Since call.
	clockCheckInterval = 100
)

// NonceRange is the half-open interval assigned to this engine for one
// round.
type NonceRange struct {
	Start uint64
	End   uint64
}

// Empty reports whether the range contains no nonces.
func (r NonceRange) Empty() bool { return r.Start >= r.End }

// RoundInput is everything the engine needs to run one round.
type RoundInput struct {
	Challenge      [32]byte
	NonceRange     NonceRange
	RawCutoffSecs  uint64
	BufferSecs     uint64
	DesiredThreads int
}

// RoundResult is the aggregate outcome across all workers once the round
// completes.
type RoundResult struct {
	BestDifficulty uint32
	BestNonce      uint64
	BestDigest     [16]byte
	TotalHashes    uint64
	Duration       time.Duration
}

// EffectiveCutoff applies the operator buffer and the hard 55s clamp.
func EffectiveCutoff(rawCutoffSecs, bufferSecs uint64) time.Duration {
	adjusted := uint64(0)
	if rawCutoffSecs > bufferSecs {
		adjusted = rawCutoffSecs - bufferSecs
	}
	if adjusted > maxCutoffSecs {
		adjusted = maxCutoffSecs
	}
	return time.Duration(adjusted) * time.Second
}

type workerResult struct {
	bestNonce      uint64
	bestDifficulty uint32
	bestDigest     [16]byte
	hashesChecked  uint64
}

// Run spawns one worker per logical CPU (capped by DesiredThreads),
// blocks until every worker returns, emits a Reset to the submission
// actor, and returns the round's aggregate best.
func Run(input RoundInput, run *runflag.Flag, actor *submission.Actor) RoundResult {
	cutoff := EffectiveCutoff(input.RawCutoffSecs, input.BufferSecs)
	cores := runtime.NumCPU()

	desired := input.DesiredThreads
	if desired <= 0 || desired > cores {
		// 0 (or an out-of-range value) means "use every logical CPU".
		desired = cores
	}

	results := make([]workerResult, cores)
	var wg sync.WaitGroup
	hashTimer := time.Now()

	for i := 0; i < cores; i++ {
		if i >= desired {
			// Threads beyond the desired count exit immediately,
			// returning no result (zero value already in results[i]).
			continue
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = runWorker(i, input, cutoff, hashTimer, run, actor)
		}(i)
	}

	wg.Wait()

	var best workerResult
	var total uint64
	for _, r := range results {
		total += r.hashesChecked
		if r.bestDifficulty > best.bestDifficulty {
			best = r
		}
	}

	actor.Reset()

	return RoundResult{
		BestDifficulty: best.bestDifficulty,
		BestNonce:      best.bestNonce,
		BestDigest:     best.bestDigest,
		TotalHashes:    total,
		Duration:       time.Since(hashTimer),
	}
}

// runWorker is the per-thread search loop. It is an OS thread, not a
// goroutine scheduled cooperatively: a single hash iteration can take
// milliseconds, which would starve the cooperative scheduler used by the
// session runtime.
func runWorker(coreIndex int, input RoundInput, cutoff time.Duration, hashTimer time.Time, run *runflag.Flag, actor *submission.Actor) workerResult {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := pinToCore(coreIndex); err != nil {
		util.Debugf("engine: worker %d could not pin to core: %v", coreIndex, err)
	}

	solver := hashpow.NewSolver()
	nonce := input.NonceRange.Start + noncesPerThread*uint64(coreIndex)

	var (
		bestNonce      = nonce
		bestDifficulty uint32
		bestDigest     [16]byte
		checked        uint64
	)

	for {
		if !run.Running() {
			return workerResult{bestNonce, bestDifficulty, bestDigest, checked}
		}

		select {
		case <-actor.Stopped():
			return workerResult{bestNonce, bestDifficulty, bestDigest, checked}
		default:
		}

		for _, cand := range solver.Iterate(input.Challenge, nonce) {
			if cand.Difficulty > 7 && cand.Difficulty > bestDifficulty {
				bestDifficulty = cand.Difficulty
				bestNonce = nonce
				bestDigest = cand.Digest
				actor.Submit(submission.ThreadSubmission{
					Nonce:      nonce,
					Difficulty: bestDifficulty,
					Digest:     bestDigest,
				})
			}
		}
		checked++

		if nonce >= input.NonceRange.End {
			break
		}

		if nonce%clockCheckInterval == 0 {
			if time.Since(hashTimer) >= cutoff && bestDifficulty >= minSubmitDifficulty {
				break
			}
		}

		nonce++
	}

	return workerResult{bestNonce, bestDifficulty, bestDigest, checked}
}

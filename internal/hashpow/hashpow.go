// Package hashpow adapts the proof-of-work hash primitive used by the
// mining engine. The real coordinator-side hash is an opaque external
// primitive (drillx/equix); this package stands in for it with a
// blake3-seeded scratchpad mix so the rest of the core never needs to
// know the concrete algorithm, only the (digest, difficulty) contract.
package hashpow

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

const (
	// memorySize is the scratchpad size in 64-bit words.
	memorySize = 8192

	// mixingRounds is the number of strided mixing rounds.
	mixingRounds = 8

	// memoryPasses is the number of sequential memory passes.
	memoryPasses = 4

	// mixConstant is the mixing constant.
	mixConstant = 0x517cc1b727220a95

	// inputSize is challenge(32) || nonce(8).
	inputSize = 40

	// DigestSize is the size of a Candidate digest.
	DigestSize = 16
)

var strides = [4]int{1, 64, 256, 1024}

// Candidate is one (digest, difficulty) pair yielded for a nonce.
type Candidate struct {
	Digest     [DigestSize]byte
	Difficulty uint32
}

// Solver holds the per-thread scratch memory reused across calls to
// Iterate. A Solver must not be shared between goroutines/threads: each
// mining worker allocates its own via NewSolver.
type Solver struct {
	scratch []uint64
	input   [inputSize]byte
}

// NewSolver allocates the scratch buffer once for a worker's lifetime.
func NewSolver() *Solver {
	return &Solver{scratch: make([]uint64, memorySize)}
}

// Iterate computes the hash for one nonce against a round challenge and
// returns the candidates it yields. Malformed input (wrong challenge
// length is impossible given the [32]byte type, so this only guards
// against a zero Solver) yields an empty sequence; the adapter never
// returns an error.
func (s *Solver) Iterate(challenge [32]byte, nonce uint64) []Candidate {
	if s == nil || len(s.scratch) != memorySize {
		return nil
	}

	copy(s.input[0:32], challenge[:])
	binary.LittleEndian.PutUint64(s.input[32:40], nonce)

	s.stage1Init()
	s.stage2Mix()
	s.stage3Strided()
	digest := s.stage4Finalize()

	var d [DigestSize]byte
	copy(d[:], digest[:DigestSize])

	return []Candidate{{
		Digest:     d,
		Difficulty: leadingZeroBits(d[:]),
	}}
}

// leadingZeroBits counts leading zero bits across the digest, the
// canonical projection the engine compares submissions by.
func leadingZeroBits(digest []byte) uint32 {
	var count uint32
	for _, b := range digest {
		if b == 0 {
			count += 8
			continue
		}
		for bit := 7; bit >= 0; bit-- {
			if b&(1<<uint(bit)) != 0 {
				return count
			}
			count++
		}
	}
	return count
}

func (s *Solver) stage1Init() {
	hasher := blake3.New()
	hasher.Write(s.input[:])
	hash := hasher.Sum(nil)

	var state [4]uint64
	for i := 0; i < 4; i++ {
		state[i] = binary.LittleEndian.Uint64(hash[i*8 : (i+1)*8])
	}

	for i := 0; i < memorySize; i++ {
		idx := i % 4
		state[idx] = mix(state[idx], state[(idx+1)%4], i)
		s.scratch[i] = state[idx]
	}
}

func (s *Solver) stage2Mix() {
	scratch := s.scratch
	for pass := 0; pass < memoryPasses; pass++ {
		if pass%2 == 0 {
			carry := scratch[memorySize-1]
			for i := 0; i < memorySize; i++ {
				var prev uint64
				if i > 0 {
					prev = scratch[i-1]
				} else {
					prev = scratch[memorySize-1]
				}
				scratch[i] = mix(scratch[i], prev^carry, pass)
				carry = scratch[i]
			}
		} else {
			carry := scratch[0]
			for i := memorySize - 1; i >= 0; i-- {
				var next uint64
				if i < memorySize-1 {
					next = scratch[i+1]
				} else {
					next = scratch[0]
				}
				scratch[i] = mix(scratch[i], next^carry, pass)
				carry = scratch[i]
			}
		}
	}
}

func (s *Solver) stage3Strided() {
	scratch := s.scratch
	for round := 0; round < mixingRounds; round++ {
		stride := strides[round%len(strides)]
		for i := 0; i < memorySize; i++ {
			j := (i + stride) % memorySize
			k := (i + stride*2) % memorySize

			a := scratch[i]
			b := scratch[j]
			c := scratch[k]

			scratch[i] = mix(a, b^c, round)
		}
	}
}

func (s *Solver) stage4Finalize() [32]byte {
	var folded [4]uint64
	for i := 0; i < memorySize; i++ {
		folded[i%4] ^= s.scratch[i]
	}

	var raw [32]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(raw[i*8:(i+1)*8], folded[i])
	}

	hasher := blake3.New()
	hasher.Write(raw[:])
	sum := hasher.Sum(nil)

	var out [32]byte
	copy(out[:], sum)
	return out
}

func mix(a, b uint64, round int) uint64 {
	rot := uint(round*7) % 64
	x := a + b
	y := a ^ rotateLeft(b, rot)
	z := x * mixConstant
	return z ^ rotateRight(y, rot/2)
}

func rotateLeft(x uint64, k uint) uint64 {
	k &= 63
	return (x << k) | (x >> (64 - k))
}

func rotateRight(x uint64, k uint) uint64 {
	k &= 63
	return (x >> k) | (x << (64 - k))
}

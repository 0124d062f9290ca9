// Package protocol implements the binary frame codec for the duplex
// session with the coordinator. All frames are binary; the first byte is
// always the frame type. Text frames (and ping/pong/close, which the
// transport itself handles) are out of scope for this package.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Inbound frame types.
const (
	TypeStartMining         byte = 0x00
	TypePoolSubmissionResult byte = 0x01
)

// Outbound frame types.
const (
	TypeReady        byte = 0x00
	TypeBestSolution byte = 0x02
)

const (
	challengeSize = 32
	digestSize    = 16
	pubkeySize    = 32
	signatureSize = 64

	// minStartMiningLen is the shortest accepted StartMining payload:
	// type + challenge + cutoff + nonce_start, with an empty nonce
	// range (nonce_end defaults to nonce_start).
	minStartMiningLen = 1 + challengeSize + 8 + 8
	// fullStartMiningLen additionally carries an explicit nonce_end.
	fullStartMiningLen = minStartMiningLen + 8

	unsignedReadyLen        = 1 + pubkeySize + 8
	unsignedBestSolutionLen = 1 + digestSize + 8 + pubkeySize
)

// StartMining is decoded from an inbound 0x00 frame.
type StartMining struct {
	Challenge   [32]byte
	CutoffSecs  uint64
	NonceStart  uint64
	NonceEnd    uint64
}

// ErrFrameTooShort is returned (and logged by the caller) when an inbound
// frame is shorter than its type requires; the session keeps running.
type ErrFrameTooShort struct {
	Type string
	Got  int
	Want int
}

func (e *ErrFrameTooShort) Error() string {
	return fmt.Sprintf("%s frame too short: got %d bytes, want at least %d", e.Type, e.Got, e.Want)
}

// DecodeStartMining parses a 0x00 frame. The frame must include its
// leading type byte: byte 0 is skipped without being checked and the
// challenge is read from byte 1 onward.
func DecodeStartMining(frame []byte) (StartMining, error) {
	if len(frame) < minStartMiningLen {
		return StartMining{}, &ErrFrameTooShort{Type: "StartMining", Got: len(frame), Want: minStartMiningLen}
	}

	var sm StartMining
	copy(sm.Challenge[:], frame[1:1+challengeSize])
	off := 1 + challengeSize
	sm.CutoffSecs = binary.LittleEndian.Uint64(frame[off : off+8])
	off += 8
	sm.NonceStart = binary.LittleEndian.Uint64(frame[off : off+8])
	off += 8

	if len(frame) >= fullStartMiningLen {
		sm.NonceEnd = binary.LittleEndian.Uint64(frame[off : off+8])
	} else {
		sm.NonceEnd = sm.NonceStart
	}

	return sm, nil
}

// EncodeStartMining is provided for round-trip tests and for harnesses
// that simulate a coordinator.
func EncodeStartMining(sm StartMining) []byte {
	buf := make([]byte, fullStartMiningLen)
	buf[0] = TypeStartMining
	copy(buf[1:1+challengeSize], sm.Challenge[:])
	off := 1 + challengeSize
	binary.LittleEndian.PutUint64(buf[off:off+8], sm.CutoffSecs)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], sm.NonceStart)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], sm.NonceEnd)
	return buf
}

// Ready is the outbound 0x00 frame announcing the client is ready for
// the next round. Signature is nil in Delegated mode.
type Ready struct {
	Pubkey    [32]byte
	Timestamp uint64
	Signature []byte // 0 or 64 bytes
}

// EncodeReady serializes a Ready frame. The signature, when present,
// must already have been produced over the unsigned payload by the
// caller (protocol does not sign).
func EncodeReady(r Ready) []byte {
	buf := make([]byte, unsignedReadyLen+len(r.Signature))
	buf[0] = TypeReady
	copy(buf[1:1+pubkeySize], r.Pubkey[:])
	binary.LittleEndian.PutUint64(buf[1+pubkeySize:1+pubkeySize+8], r.Timestamp)
	copy(buf[unsignedReadyLen:], r.Signature)
	return buf
}

// SignedPayload returns the bytes a Ready frame's signature covers: here
// there is none to sign separately from the frame layout itself, kept
// for symmetry with BestSolution.SignedPayload.
func (r Ready) SignedPayload() []byte {
	buf := make([]byte, pubkeySize+8)
	copy(buf[0:pubkeySize], r.Pubkey[:])
	binary.LittleEndian.PutUint64(buf[pubkeySize:], r.Timestamp)
	return buf
}

// BestSolution is the outbound 0x02 frame reporting a strictly-improving
// thread submission.
type BestSolution struct {
	Digest    [16]byte
	Nonce     uint64
	Pubkey    [32]byte
	Signature []byte // 0 or 64 bytes
}

// SignedPayload returns the 24-byte digest||nonce concatenation that
// Owner-mode sessions sign, per the wire contract.
func (b BestSolution) SignedPayload() []byte {
	buf := make([]byte, digestSize+8)
	copy(buf[0:digestSize], b.Digest[:])
	binary.LittleEndian.PutUint64(buf[digestSize:], b.Nonce)
	return buf
}

// EncodeBestSolution serializes a BestSolution frame.
func EncodeBestSolution(b BestSolution) []byte {
	buf := make([]byte, unsignedBestSolutionLen+len(b.Signature))
	buf[0] = TypeBestSolution
	off := 1
	copy(buf[off:off+digestSize], b.Digest[:])
	off += digestSize
	binary.LittleEndian.PutUint64(buf[off:off+8], b.Nonce)
	off += 8
	copy(buf[off:off+pubkeySize], b.Pubkey[:])
	off += pubkeySize
	copy(buf[off:], b.Signature)
	return buf
}

// DecodeBestSolution is provided for tests asserting the wire layout
// round-trips; the live session never decodes its own outbound frames.
func DecodeBestSolution(frame []byte) (BestSolution, error) {
	if len(frame) != unsignedBestSolutionLen && len(frame) != unsignedBestSolutionLen+signatureSize {
		return BestSolution{}, &ErrFrameTooShort{Type: "BestSolution", Got: len(frame), Want: unsignedBestSolutionLen}
	}
	var b BestSolution
	off := 1
	copy(b.Digest[:], frame[off:off+digestSize])
	off += digestSize
	b.Nonce = binary.LittleEndian.Uint64(frame[off : off+8])
	off += 8
	copy(b.Pubkey[:], frame[off:off+pubkeySize])
	off += pubkeySize
	if len(frame) > unsignedBestSolutionLen {
		b.Signature = append([]byte(nil), frame[off:]...)
	}
	return b, nil
}

// RewardDetails mirrors the coordinator's per-resource reward breakdown.
type RewardDetails struct {
	TotalBalance            float64
	TotalRewards             float64
	MinerSuppliedDifficulty uint32
	MinerEarnedRewards       float64
	MinerPercentage          float64
}

// OreBoost describes one active ORE stake-boost tier.
type OreBoost struct {
	TopStake        float64
	TotalStake      float64
	StakeMultiplier float64
	MintAddress     [32]byte
	Name            string
}

// CoalDetails is the COAL-resource slice of a PoolSubmissionResult.
type CoalDetails struct {
	Reward           RewardDetails
	TopStake         float64
	StakeMultiplier  float64
	GuildTotalStake  float64
	GuildMultiplier  float64
	ToolMultiplier   float64
}

// OreDetails is the ORE-resource slice of a PoolSubmissionResult.
type OreDetails struct {
	Reward          RewardDetails
	TopStake        float64
	StakeMultiplier float64
	OreBoosts       []OreBoost
}

// MinerDetails carries identity and total-balance fields.
type MinerDetails struct {
	TotalChromium float64
	TotalCoal     float64
	TotalOre      float64
	GuildAddress  [32]byte
	MinerAddress  [32]byte
}

// PoolSubmissionResult is decoded from an inbound 0x01 frame: the
// coordinator's report of a completed round.
type PoolSubmissionResult struct {
	Difficulty   uint32
	Challenge    [32]byte
	BestNonce    uint64
	ActiveMiners uint32
	Coal         CoalDetails
	Ore          OreDetails
	Miner        MinerDetails
}

func writeF64(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

func readF64(r *bytes.Reader) (float64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:])), nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeReward(buf *bytes.Buffer, r RewardDetails) {
	writeF64(buf, r.TotalBalance)
	writeF64(buf, r.TotalRewards)
	writeU32(buf, r.MinerSuppliedDifficulty)
	writeF64(buf, r.MinerEarnedRewards)
	writeF64(buf, r.MinerPercentage)
}

func readReward(r *bytes.Reader) (RewardDetails, error) {
	var rd RewardDetails
	var err error
	if rd.TotalBalance, err = readF64(r); err != nil {
		return rd, err
	}
	if rd.TotalRewards, err = readF64(r); err != nil {
		return rd, err
	}
	if rd.MinerSuppliedDifficulty, err = readU32(r); err != nil {
		return rd, err
	}
	if rd.MinerEarnedRewards, err = readF64(r); err != nil {
		return rd, err
	}
	if rd.MinerPercentage, err = readF64(r); err != nil {
		return rd, err
	}
	return rd, nil
}

// EncodePoolSubmissionResult serializes the coordinator's canonical
// round-result struct. Since the coordinator owns the wire format, this
// encoding is this codebase's own deterministic choice, used for tests
// and for simulating a coordinator in integration tests.
func EncodePoolSubmissionResult(p PoolSubmissionResult) []byte {
	var buf bytes.Buffer
	buf.WriteByte(TypePoolSubmissionResult)
	writeU32(&buf, p.Difficulty)
	buf.Write(p.Challenge[:])
	writeU64(&buf, p.BestNonce)
	writeU32(&buf, p.ActiveMiners)

	writeReward(&buf, p.Coal.Reward)
	writeF64(&buf, p.Coal.TopStake)
	writeF64(&buf, p.Coal.StakeMultiplier)
	writeF64(&buf, p.Coal.GuildTotalStake)
	writeF64(&buf, p.Coal.GuildMultiplier)
	writeF64(&buf, p.Coal.ToolMultiplier)

	writeReward(&buf, p.Ore.Reward)
	writeF64(&buf, p.Ore.TopStake)
	writeF64(&buf, p.Ore.StakeMultiplier)
	writeU32(&buf, uint32(len(p.Ore.OreBoosts)))
	for _, boost := range p.Ore.OreBoosts {
		writeF64(&buf, boost.TopStake)
		writeF64(&buf, boost.TotalStake)
		writeF64(&buf, boost.StakeMultiplier)
		buf.Write(boost.MintAddress[:])
		writeU32(&buf, uint32(len(boost.Name)))
		buf.WriteString(boost.Name)
	}

	writeF64(&buf, p.Miner.TotalChromium)
	writeF64(&buf, p.Miner.TotalCoal)
	writeF64(&buf, p.Miner.TotalOre)
	buf.Write(p.Miner.GuildAddress[:])
	buf.Write(p.Miner.MinerAddress[:])

	return buf.Bytes()
}

// DecodePoolSubmissionResult parses an inbound 0x01 frame. Any structural
// error is returned so the caller can log-and-skip per spec, leaving the
// session open.
func DecodePoolSubmissionResult(frame []byte) (PoolSubmissionResult, error) {
	if len(frame) < 1 || frame[0] != TypePoolSubmissionResult {
		return PoolSubmissionResult{}, fmt.Errorf("not a PoolSubmissionResult frame")
	}
	r := bytes.NewReader(frame[1:])

	var p PoolSubmissionResult
	var err error
	if p.Difficulty, err = readU32(r); err != nil {
		return p, err
	}
	if _, err = io.ReadFull(r, p.Challenge[:]); err != nil {
		return p, err
	}
	if p.BestNonce, err = readU64(r); err != nil {
		return p, err
	}
	if p.ActiveMiners, err = readU32(r); err != nil {
		return p, err
	}

	if p.Coal.Reward, err = readReward(r); err != nil {
		return p, err
	}
	if p.Coal.TopStake, err = readF64(r); err != nil {
		return p, err
	}
	if p.Coal.StakeMultiplier, err = readF64(r); err != nil {
		return p, err
	}
	if p.Coal.GuildTotalStake, err = readF64(r); err != nil {
		return p, err
	}
	if p.Coal.GuildMultiplier, err = readF64(r); err != nil {
		return p, err
	}
	if p.Coal.ToolMultiplier, err = readF64(r); err != nil {
		return p, err
	}

	if p.Ore.Reward, err = readReward(r); err != nil {
		return p, err
	}
	if p.Ore.TopStake, err = readF64(r); err != nil {
		return p, err
	}
	if p.Ore.StakeMultiplier, err = readF64(r); err != nil {
		return p, err
	}
	boostCount, err := readU32(r)
	if err != nil {
		return p, err
	}
	p.Ore.OreBoosts = make([]OreBoost, 0, boostCount)
	for i := uint32(0); i < boostCount; i++ {
		var boost OreBoost
		if boost.TopStake, err = readF64(r); err != nil {
			return p, err
		}
		if boost.TotalStake, err = readF64(r); err != nil {
			return p, err
		}
		if boost.StakeMultiplier, err = readF64(r); err != nil {
			return p, err
		}
		if _, err = io.ReadFull(r, boost.MintAddress[:]); err != nil {
			return p, err
		}
		nameLen, err := readU32(r)
		if err != nil {
			return p, err
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return p, err
		}
		boost.Name = string(nameBytes)
		p.Ore.OreBoosts = append(p.Ore.OreBoosts, boost)
	}

	if p.Miner.TotalChromium, err = readF64(r); err != nil {
		return p, err
	}
	if p.Miner.TotalCoal, err = readF64(r); err != nil {
		return p, err
	}
	if p.Miner.TotalOre, err = readF64(r); err != nil {
		return p, err
	}
	if _, err = io.ReadFull(r, p.Miner.GuildAddress[:]); err != nil {
		return p, err
	}
	if _, err = io.ReadFull(r, p.Miner.MinerAddress[:]); err != nil {
		return p, err
	}

	return p, nil
}

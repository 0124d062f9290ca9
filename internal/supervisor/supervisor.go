// Package supervisor owns the run flag and wires the session runtime,
// the earnings journal, and the optional status API / telemetry /
// notifier components together for one miner process's lifetime.
package supervisor

import (
	"fmt"
	"math"

	"github.com/tos-network/coal-miner/internal/api"
	"github.com/tos-network/coal-miner/internal/config"
	"github.com/tos-network/coal-miner/internal/coordinator"
	"github.com/tos-network/coal-miner/internal/engine"
	"github.com/tos-network/coal-miner/internal/journal"
	"github.com/tos-network/coal-miner/internal/newrelic"
	"github.com/tos-network/coal-miner/internal/notify"
	"github.com/tos-network/coal-miner/internal/profiling"
	"github.com/tos-network/coal-miner/internal/protocol"
	"github.com/tos-network/coal-miner/internal/runflag"
	"github.com/tos-network/coal-miner/internal/session"
	"github.com/tos-network/coal-miner/internal/util"
)

// tokenDecimals is the coordinator-published decimal count used to
// convert floating-point UI amounts into integer grains. spec.md §6
// documents 11 as the value at time of writing.
const tokenDecimals = 11

// Supervisor owns run_flag and orchestrates one session's worth of
// mining, journaling, and optional ambient components.
type Supervisor struct {
	run       *runflag.Flag
	journal   *journal.Journal
	session   *session.Session
	api       *api.Server
	telemetry *newrelic.Agent
	notifier  *notify.Notifier
	profiler  *profiling.Server
	minerAddr [32]byte
}

// New builds a Supervisor from its fully-constructed dependencies. The
// caller is responsible for constructing the coordinator client, signer,
// and journal; New wires them into a session and the optional C9-C12
// components per cfg. The session constructs a fresh submission.Actor
// per connection; New only supplies the telemetry hook each of those
// actors is wired to.
func New(cfg *config.Config, client *coordinator.Client, signer session.Signer, pubkey [32]byte, pubkeyHex string, j *journal.Journal) (*Supervisor, error) {
	run := runflag.New()

	s := &Supervisor{
		run:       run,
		journal:   j,
		telemetry: newrelic.NewAgent(&cfg.NewRelic),
		notifier:  notify.NewNotifier(&cfg.Webhook),
		profiler:  profiling.NewServer(&cfg.Profiling),
		minerAddr: pubkey,
	}

	sess := session.New(session.Config{
		Coordinator:    client,
		Owner:          cfg.Owner(),
		Pubkey:         pubkey,
		PubkeyHex:      pubkeyHex,
		Signer:         signer,
		DesiredThreads: cfg.Mining.DesiredThreads,
		CutoffBuffer:   cfg.Mining.CutoffBuffer,
		OnSubmission: func(nonce uint64, difficulty uint32) {
			s.telemetry.RecordSubmission(nonce, difficulty)
		},
	})
	s.session = sess

	if cfg.API.Enabled {
		s.api = api.NewServer(&cfg.API, j)
	}

	return s, nil
}

// Run starts the optional components, then blocks running the session
// runtime until the run flag is cleared (via Stop or an OS signal the
// caller wires separately). The session owns construction and teardown
// of each connection's submission.Actor.
func (s *Supervisor) Run() {
	if err := s.telemetry.Start(); err != nil {
		util.Warnf("supervisor: newrelic failed to start: %v", err)
	}
	defer s.telemetry.Stop()

	if err := s.profiler.Start(); err != nil {
		util.Warnf("supervisor: profiling server failed to start: %v", err)
	}
	defer s.profiler.Stop()

	if s.api != nil {
		if err := s.api.Start(); err != nil {
			util.Warnf("supervisor: earnings API failed to start: %v", err)
		}
		defer s.api.Stop()
	}

	s.session.Run(s.run, s.onRound, s.onResult)
}

// onRound reports one completed mining round's duration, best difficulty,
// and total hashes checked to the optional telemetry agent.
func (s *Supervisor) onRound(r engine.RoundResult) {
	s.telemetry.RecordRoundCompleted(r.Duration, r.BestDifficulty, r.TotalHashes)
}

// Stop clears the run flag, triggering cooperative shutdown across the
// engine, the submission actor, and the session's reconnect loop.
func (s *Supervisor) Stop() {
	s.run.Clear()
}

// onResult converts one PoolSubmissionResult into an EarningsRecord,
// journals it, prints a human-readable round summary, and fans out to
// the optional telemetry and notifier components.
func (s *Supervisor) onResult(p protocol.PoolSubmissionResult) {
	record := journal.Record{
		PoolDifficulty:      p.Difficulty,
		PoolEarnedCoal:      toGrains(p.Coal.Reward.TotalRewards),
		PoolEarnedOre:       toGrains(p.Ore.Reward.TotalRewards),
		MinerPercentageCoal: p.Coal.Reward.MinerPercentage,
		MinerPercentageOre:  p.Ore.Reward.MinerPercentage,
		MinerDifficulty:     p.Coal.Reward.MinerSuppliedDifficulty,
		MinerEarnedCoal:     toGrains(p.Coal.Reward.MinerEarnedRewards),
		MinerEarnedOre:      toGrains(p.Ore.Reward.MinerEarnedRewards),
	}

	s.journal.Append(record)
	printRoundSummary(p, record)
	fmt.Printf("  today: coal=%d ore=%d grains\n",
		s.journal.SumToday(journal.ResourceCoal), s.journal.SumToday(journal.ResourceOre))

	s.telemetry.RecordPoolSubmissionResult(record.PoolDifficulty, record.PoolEarnedCoal, record.PoolEarnedOre)
	s.notifier.NotifyRoundResult(notify.RoundResult{
		Difficulty: record.MinerDifficulty,
		EarnedCoal: record.MinerEarnedCoal,
		EarnedOre:  record.MinerEarnedOre,
	})
}

// toGrains converts a coordinator-reported UI amount into integer
// grains: floor(amount * 10^tokenDecimals).
func toGrains(amount float64) int64 {
	return int64(math.Floor(amount * math.Pow10(tokenDecimals)))
}

func printRoundSummary(p protocol.PoolSubmissionResult, r journal.Record) {
	fmt.Printf(
		"round complete: miner=%x difficulty=%d active_miners=%d\n"+
			"  balances: coal=%.4f ore=%.4f chromium=%.4f\n"+
			"  pool earnings: coal=%d ore=%d grains\n"+
			"  coal: stake=%.4fx tool=%.4fx guild=%.4fx product=%.4fx share=%.4f%%\n"+
			"  ore:  stake=%.4fx share=%.4f%%\n",
		p.Miner.MinerAddress, p.Difficulty, p.ActiveMiners,
		p.Miner.TotalCoal, p.Miner.TotalOre, p.Miner.TotalChromium,
		r.PoolEarnedCoal, r.PoolEarnedOre,
		p.Coal.StakeMultiplier, p.Coal.ToolMultiplier, p.Coal.GuildMultiplier,
		p.Coal.StakeMultiplier*p.Coal.ToolMultiplier*p.Coal.GuildMultiplier, p.Coal.Reward.MinerPercentage,
		p.Ore.StakeMultiplier, p.Ore.Reward.MinerPercentage,
	)
}

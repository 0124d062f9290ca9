package supervisor

import (
	"testing"
	"time"

	"github.com/tos-network/coal-miner/internal/config"
	"github.com/tos-network/coal-miner/internal/coordinator"
	"github.com/tos-network/coal-miner/internal/engine"
	"github.com/tos-network/coal-miner/internal/journal"
	"github.com/tos-network/coal-miner/internal/protocol"
)

type fakeSigner struct{}

func (fakeSigner) Sign(payload []byte) []byte { return nil }

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	j, err := journal.Open(t.TempDir() + "/app_db_merged.db3")
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	cfg := &config.Config{
		API:       config.APIConfig{Enabled: false},
		Webhook:   config.WebhookConfig{Enabled: false},
		NewRelic:  config.NewRelicConfig{Enabled: false},
		Profiling: config.ProfilingConfig{Enabled: false},
		Mining:    config.MiningConfig{DesiredThreads: 1},
	}
	client := coordinator.New("127.0.0.1:0", true, time.Second)

	s, err := New(cfg, client, fakeSigner{}, [32]byte{1, 2, 3}, "0102030000000000000000000000000000000000000000000000000000000000", j)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestOnResultAppendsJournalRow(t *testing.T) {
	s := newTestSupervisor(t)

	psr := protocol.PoolSubmissionResult{
		Difficulty:   24,
		ActiveMiners: 10,
		Coal: protocol.CoalDetails{
			Reward: protocol.RewardDetails{
				TotalRewards:            1.5,
				MinerSuppliedDifficulty: 12,
				MinerEarnedRewards:      0.25,
				MinerPercentage:         16.6,
			},
			StakeMultiplier: 1.1,
			ToolMultiplier:  1.2,
			GuildMultiplier: 1.0,
		},
		Ore: protocol.OreDetails{
			Reward: protocol.RewardDetails{
				TotalRewards:       0.5,
				MinerEarnedRewards: 0.05,
				MinerPercentage:    10,
			},
		},
		Miner: protocol.MinerDetails{
			TotalCoal: 12.5,
			TotalOre:  1.1,
		},
	}

	s.onResult(psr)

	got := s.journal.SumToday(journal.ResourceCoal)
	want := toGrains(0.25)
	if got != want {
		t.Errorf("SumToday(coal) = %d, want %d", got, want)
	}
}

func TestToGrainsFloorsFractionalGrains(t *testing.T) {
	got := toGrains(1.0000000000001)
	if got < 100000000000 {
		t.Errorf("toGrains(1.0000000000001) = %d, want >= 100000000000", got)
	}
}

func TestOnRoundDoesNotPanicWithTelemetryDisabled(t *testing.T) {
	s := newTestSupervisor(t)
	// telemetry is disabled in newTestSupervisor's cfg; onRound must still
	// be a safe no-op rather than dereferencing a nil agent.
	s.onRound(engine.RoundResult{BestDifficulty: 9, TotalHashes: 1000, Duration: time.Second})
}

func TestStopClearsRunFlag(t *testing.T) {
	s := newTestSupervisor(t)
	if !s.run.Running() {
		t.Fatal("run flag should start set")
	}
	s.Stop()
	if s.run.Running() {
		t.Error("Stop() should clear the run flag")
	}
}

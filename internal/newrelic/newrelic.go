// Package newrelic provides New Relic APM integration for monitoring.
package newrelic

import (
	"context"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/tos-network/coal-miner/internal/config"
	"github.com/tos-network/coal-miner/internal/util"
)

// Agent wraps New Relic APM functionality
type Agent struct {
	cfg   *config.NewRelicConfig
	app   *newrelic.Application
	mu    sync.RWMutex
}

// NewAgent creates a new New Relic agent
func NewAgent(cfg *config.NewRelicConfig) *Agent {
	return &Agent{
		cfg: cfg,
	}
}

// Start initializes the New Relic agent
func (a *Agent) Start() error {
	if !a.cfg.Enabled {
		util.Info("New Relic APM disabled")
		return nil
	}

	if a.cfg.LicenseKey == "" {
		util.Warn("New Relic license key not configured, APM disabled")
		return nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(a.cfg.AppName),
		newrelic.ConfigLicense(a.cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return err
	}

	// Wait for connection (up to 5 seconds)
	if err := app.WaitForConnection(5 * time.Second); err != nil {
		util.Warnf("New Relic connection timeout: %v (will retry in background)", err)
	}

	a.mu.Lock()
	a.app = app
	a.mu.Unlock()

	util.Infof("New Relic APM enabled for app: %s", a.cfg.AppName)
	return nil
}

// Stop shuts down the New Relic agent
func (a *Agent) Stop() {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		util.Info("Shutting down New Relic agent")
		app.Shutdown(10 * time.Second)
	}
}

// Application returns the underlying New Relic application (for middleware)
func (a *Agent) Application() *newrelic.Application {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.app
}

// IsEnabled returns true once Start has created the application, even if
// the initial connection wait timed out
func (a *Agent) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.app != nil
}

// StartTransaction starts a new New Relic transaction
func (a *Agent) StartTransaction(name string) *newrelic.Transaction {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app == nil {
		return nil
	}
	return app.StartTransaction(name)
}

// RecordCustomEvent records a custom event
func (a *Agent) RecordCustomEvent(eventType string, params map[string]interface{}) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		app.RecordCustomEvent(eventType, params)
	}
}

// RecordCustomMetric records a custom metric
func (a *Agent) RecordCustomMetric(name string, value float64) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		app.RecordCustomMetric(name, value)
	}
}

// NoticeError records an error
func (a *Agent) NoticeError(txn *newrelic.Transaction, err error) {
	if txn != nil && err != nil {
		txn.NoticeError(err)
	}
}

// NewContext adds transaction to context
func (a *Agent) NewContext(ctx context.Context, txn *newrelic.Transaction) context.Context {
	if txn == nil {
		return ctx
	}
	return newrelic.NewContext(ctx, txn)
}

// FromContext gets transaction from context
func (a *Agent) FromContext(ctx context.Context) *newrelic.Transaction {
	return newrelic.FromContext(ctx)
}

// RecordRoundCompleted records one completed mining round: its wall-clock
// duration, the best difficulty the engine found, and the total hashes
// checked across all worker threads.
func (a *Agent) RecordRoundCompleted(duration time.Duration, bestDifficulty uint32, totalHashes uint64) {
	a.RecordCustomEvent("RoundCompleted", map[string]interface{}{
		"durationMs":     duration.Milliseconds(),
		"bestDifficulty": bestDifficulty,
		"totalHashes":    totalHashes,
	})
	a.RecordCustomMetric("Custom/Round/DurationMs", float64(duration.Milliseconds()))
	a.RecordCustomMetric("Custom/Round/BestDifficulty", float64(bestDifficulty))
	a.RecordCustomMetric("Custom/Round/TotalHashes", float64(totalHashes))
}

// RecordSubmission records one candidate solution submitted to the
// coordinator mid-round, ahead of the round's final best.
func (a *Agent) RecordSubmission(nonce uint64, difficulty uint32) {
	a.RecordCustomEvent("Submission", map[string]interface{}{
		"nonce":      nonce,
		"difficulty": difficulty,
	})
}

// RecordPoolSubmissionResult records the coordinator's verdict on a
// round's best solution: the difficulty it credited and the earned
// amounts, if any.
func (a *Agent) RecordPoolSubmissionResult(difficulty uint32, earnedCoal, earnedOre int64) {
	a.RecordCustomEvent("PoolSubmissionResult", map[string]interface{}{
		"difficulty": difficulty,
		"earnedCoal": earnedCoal,
		"earnedOre":  earnedOre,
	})
}

// RecordClaim records a reward-claim attempt and its outcome.
func (a *Agent) RecordClaim(amountCoal, amountOre uint64, success, queued bool) {
	status := "rejected"
	switch {
	case success:
		status = "success"
	case queued:
		status = "queued"
	}
	a.RecordCustomEvent("Claim", map[string]interface{}{
		"amountCoal": amountCoal,
		"amountOre":  amountOre,
		"status":     status,
	})
}

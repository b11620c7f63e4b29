package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

// ChainVerifier is implemented by *Ledger.
type ChainVerifier interface {
	VerifyChain(ctx context.Context) (types.ChainReport, error)
}

// ChainAuditor re-verifies the event hash chain on an interval and hands
// each report to its hooks.
type ChainAuditor struct {
	verifier ChainVerifier
	hooks    []func(types.ChainReport)
	logger   *slog.Logger

	mu   sync.Mutex
	last *types.ChainReport

	t ticker
}

// NewChainAuditor creates an auditor but does not start it.  An interval of
// 0 disables the loop; Check still works.
func NewChainAuditor(v ChainVerifier, interval time.Duration, logger *slog.Logger, hooks ...func(types.ChainReport)) *ChainAuditor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &ChainAuditor{verifier: v, hooks: hooks, logger: logger}
	a.t = ticker{interval: interval, tick: func(ctx context.Context) { _, _ = a.Check(ctx) }}
	return a
}

func (a *ChainAuditor) Start(ctx context.Context) {
	if a.t.interval <= 0 {
		a.logger.Info("chain auditor disabled (interval=0)")
		return
	}
	a.t.start(ctx)
	a.logger.Info("chain auditor started", "interval", a.t.interval)
}

func (a *ChainAuditor) Stop() {
	a.t.stop()
}

// Check verifies the chain now.  Hooks only see completed verifications.
func (a *ChainAuditor) Check(ctx context.Context) (types.ChainReport, error) {
	report, err := a.verifier.VerifyChain(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Error("chain verification failed", "err", err)
		}
		return types.ChainReport{}, err
	}

	if report.Verified {
		a.logger.Debug("chain verified", "count", report.Count, "head", report.HeadHash)
	} else {
		a.logger.Error("chain broken",
			"broken_at", report.BrokenAt, "reason", report.Reason, "verified", report.Count)
	}

	a.mu.Lock()
	a.last = &report
	a.mu.Unlock()

	for _, h := range a.hooks {
		h(report)
	}
	return report, nil
}

// Last returns the most recent report, if any.
func (a *ChainAuditor) Last() (types.ChainReport, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return types.ChainReport{}, false
	}
	return *a.last, true
}

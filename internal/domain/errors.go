package domain

import "errors"

// Error taxonomy from the pipeline's error handling design. Only cycle
// timeouts and manipulation vetoes have counters (orchestrator.Metrics); the
// other kinds are logged where they occur and are not counted. None are
// swallowed silently except ErrAggregateEmpty, which is expected under
// normal operation.
var (
	// ErrTransientSource marks a Collector failure worth retrying locally.
	ErrTransientSource = errors.New("transient source error")

	// ErrTerminalSource marks a Collector failure that skips the source
	// for the remainder of the cycle.
	ErrTerminalSource = errors.New("terminal source error")

	// ErrScorerDegraded signals the primary model was unavailable and the
	// scorer fell back to the lexicon path with reduced confidence.
	ErrScorerDegraded = errors.New("scorer degraded: primary unavailable")

	// ErrAggregateEmpty means an asset produced no sample this cycle.
	ErrAggregateEmpty = errors.New("aggregate empty: no contributing items")

	// ErrManipulationVeto means a sample was computed but suppressed.
	ErrManipulationVeto = errors.New("manipulation veto")

	// ErrRPCUnavailable marks a failed chain RPC call. The Submitter does not
	// retry it: the affected batch is logged and skipped for the cycle.
	ErrRPCUnavailable = errors.New("chain rpc unavailable")

	// ErrTxReverted marks a single transaction's on-chain failure.
	ErrTxReverted = errors.New("transaction reverted")

	// ErrNonceGap means the Submitter observed a nonce gap or staleness
	// and must resynchronize from the chain.
	ErrNonceGap = errors.New("nonce gap or stale nonce")

	// ErrSignerUnavailable is cycle-fatal; the next cycle retries.
	ErrSignerUnavailable = errors.New("signer unavailable")

	// ErrConfigInvalid fails startup fast.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrCycleTimeout marks a cycle whose submission did not confirm by
	// its deadline; the cycle is non-committed and reconciled next cycle.
	ErrCycleTimeout = errors.New("cycle timeout")
)

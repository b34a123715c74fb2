// Package consent decides whether metrics collection is allowed for the
// account behind a request. The decision is a policy over account state, kept
// in Rego so operators can reason about it separately from the pipeline.
package consent

import "context"

// AccountState is the policy input for one account.
type AccountState struct {
	// MetricsOptOut is true when the account has opted out of collection.
	MetricsOptOut bool `json:"metrics_opt_out"`
	// Locked is true when the account is administratively locked; locked
	// accounts are not measured.
	Locked bool `json:"locked"`
}

// Checker reports whether metrics collection is allowed for the account.
// Callers fail closed: an error means no collection for this request.
type Checker interface {
	Allowed(ctx context.Context, account AccountState) (bool, error)
}

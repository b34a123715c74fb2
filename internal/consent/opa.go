package consent

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// collectionPolicy is the default collection policy: allow unless the account
// opted out or is locked.
const collectionPolicy = `package accounts.telemetry

default collection_enabled = true

collection_enabled = false if {
	input.account.metrics_opt_out
}

collection_enabled = false if {
	input.account.locked
}
`

// OPAChecker evaluates the collection policy with the in-process Rego engine.
// The query is prepared once at startup; a policy that fails to compile is a
// startup error, not a per-request one.
type OPAChecker struct {
	query rego.PreparedEvalQuery
}

// NewOPAChecker compiles and prepares the collection policy.
func NewOPAChecker(ctx context.Context) (*OPAChecker, error) {
	compiler, err := ast.CompileModules(map[string]string{"collection.rego": collectionPolicy})
	if err != nil {
		return nil, fmt.Errorf("consent: compile policy: %w", err)
	}
	query, err := rego.New(
		rego.Query("data.accounts.telemetry.collection_enabled"),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("consent: prepare policy: %w", err)
	}
	return &OPAChecker{query: query}, nil
}

// Allowed evaluates the policy for account.
func (c *OPAChecker) Allowed(ctx context.Context, account AccountState) (bool, error) {
	input := map[string]interface{}{
		"account": map[string]interface{}{
			"metrics_opt_out": account.MetricsOptOut,
			"locked":          account.Locked,
		},
	}
	rs, err := c.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("consent: eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, errors.New("consent: policy returned no result")
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, errors.New("consent: policy result is not a bool")
	}
	return allowed, nil
}

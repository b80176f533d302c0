package rulesync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"
)

func TestApplyResult_OutcomeAndMessage(t *testing.T) {
	tests := []struct {
		name    string
		res     ApplyResult
		outcome Outcome
		msg     string
	}{
		{"all ok", ApplyResult{SuccessCount: 3}, OutcomeSuccess, "Merged rules synced to all 3 servers"},
		{"single ok", ApplyResult{SuccessCount: 1}, OutcomeSuccess, "Merged rules synced to all 1 server"},
		{"partial", ApplyResult{SuccessCount: 2, FailCount: 1}, OutcomePartial, "Merged rules synced to 2 of 3 servers; 1 failed"},
		{"all failed", ApplyResult{FailCount: 2}, OutcomeFailure, "Failed to sync merged rules to 2 servers"},
		{"one failed", ApplyResult{FailCount: 1}, OutcomeFailure, "Failed to sync merged rules to 1 server"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.outcome, tt.res.Outcome())
			assert.Equal(t, tt.msg, tt.res.Message())
		})
	}
}

func TestAddResult_OutcomeAndMessage(t *testing.T) {
	tests := []struct {
		name    string
		res     AddResult
		outcome Outcome
		msg     string
	}{
		{"nothing", AddResult{}, OutcomeSuccess, "No servers to update"},
		{"single add", AddResult{Success: 1, Total: 1}, OutcomeSuccess, "Rule added"},
		{"all added", AddResult{Success: 3, Total: 3}, OutcomeSuccess, "Rule added to all 3 servers"},
		{"single duplicate", AddResult{Duplicate: 1, Total: 1}, OutcomeSuccess, "Rule already exists"},
		{"all duplicate", AddResult{Duplicate: 2, Total: 2}, OutcomeSuccess, "Rule already exists on all 2 servers"},
		{"mixed", AddResult{Success: 1, Duplicate: 1, Failed: 1, Total: 3}, OutcomePartial, "Rule added to 1 of 3 servers (1 already had it, 1 failed)"},
		{"all failed", AddResult{Failed: 2, Total: 2}, OutcomeFailure, "Failed to add rule to 2 servers"},
		{"duplicate and failed", AddResult{Duplicate: 1, Failed: 1, Total: 2}, OutcomePartial, "Rule not added (1 already had it, 1 failed)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.outcome, tt.res.Outcome())
			assert.Equal(t, tt.msg, tt.res.Message())
		})
	}
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "partial", OutcomePartial.String())
	assert.Equal(t, "failure", OutcomeFailure.String())
	assert.Equal(t, "Outcome(9)", Outcome(9).String())
}

func TestResultErr_CombinesFailures(t *testing.T) {
	assert.NoError(t, ApplyResult{SuccessCount: 1}.Err())

	e1, e2 := errors.New("timeout"), errors.New("refused")
	res := AddResult{Failures: []ServerFailure{
		{ServerID: "a", Name: "Alpha", Err: e1},
		{ServerID: "b", Name: "Beta", Err: e2},
	}}
	err := res.Err()
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Contains(t, err.Error(), "Alpha: timeout")

	rr := RefreshResult{Failures: res.Failures}
	assert.Len(t, multierr.Errors(rr.Err()), 2)
}

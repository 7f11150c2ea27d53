package budgetengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/levee-labs/credit-gateway/budgetengine"
	"github.com/levee-labs/credit-gateway/gatewayerr"
)

type fakeSpendReader struct {
	spentByTarget map[budgetengine.Target]int64
}

func (f *fakeSpendReader) SpentForTarget(_ context.Context, target budgetengine.Target, _ uuid.UUID, _ *time.Time) (int64, error) {
	return f.spentByTarget[target], nil
}

func TestPeriodStartDailyIsMidnightUTC(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	start := budgetengine.PeriodStart("DAILY", now)
	require.NotNil(t, start)
	require.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), *start)
}

func TestPeriodStartMonthlyIsFirstOfMonthUTC(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	start := budgetengine.PeriodStart("MONTHLY", now)
	require.NotNil(t, start)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *start)
}

func TestPeriodStartTotalIsUnbounded(t *testing.T) {
	require.Nil(t, budgetengine.PeriodStart("TOTAL", time.Now()))
}

func TestCheckPassesWhenWithinAllBudgets(t *testing.T) {
	reader := &fakeSpendReader{spentByTarget: map[budgetengine.Target]int64{
		budgetengine.TargetAgent: 100,
		budgetengine.TargetOrg:   1000,
	}}
	budgets := []budgetengine.Budget{
		{Target: budgetengine.TargetAgent, Period: "DAILY", LimitCredits: 500},
		{Target: budgetengine.TargetOrg, Period: "MONTHLY", LimitCredits: 5000},
	}
	err := budgetengine.Check(context.Background(), reader, budgets, 50, time.Now(), nil)
	require.NoError(t, err)
}

// TestCheckBlocksAtFirstTransitiveBreach exercises the "any level in
// the path can block" rule: a breach at the org level blocks the
// request even though the agent-level budget alone would allow it.
func TestCheckBlocksAtFirstTransitiveBreach(t *testing.T) {
	reader := &fakeSpendReader{spentByTarget: map[budgetengine.Target]int64{
		budgetengine.TargetAgent: 10,
		budgetengine.TargetOrg:   4990,
	}}
	budgets := []budgetengine.Budget{
		{Target: budgetengine.TargetAgent, Period: "DAILY", LimitCredits: 10000},
		{Target: budgetengine.TargetOrg, Period: "MONTHLY", LimitCredits: 5000},
	}
	err := budgetengine.Check(context.Background(), reader, budgets, 50, time.Now(), nil)
	require.Error(t, err)

	var gwErr *gatewayerr.Error
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, gatewayerr.KindBudgetExceeded, gwErr.Kind)
}

// TestCheckAutoDisableRunsBeforeReturningError pins the
// auto-disable-in-an-independent-transaction behavior: disableFn must
// run (and its result observed) even though Check ultimately returns
// the budget-exceeded error to the caller.
func TestCheckAutoDisableRunsBeforeReturningError(t *testing.T) {
	reader := &fakeSpendReader{spentByTarget: map[budgetengine.Target]int64{
		budgetengine.TargetAgent: 1000,
	}}
	budgets := []budgetengine.Budget{
		{Target: budgetengine.TargetAgent, TargetID: uuid.New(), Period: "DAILY", LimitCredits: 1000, AutoDisable: true},
	}

	var disabledTarget budgetengine.Target
	var disabledReason string
	err := budgetengine.Check(context.Background(), reader, budgets, 1, time.Now(), func(_ context.Context, target budgetengine.Target, _ uuid.UUID, reason string) error {
		disabledTarget = target
		disabledReason = reason
		return nil
	})

	require.Error(t, err)
	require.Equal(t, budgetengine.TargetAgent, disabledTarget)
	require.NotEmpty(t, disabledReason)
}

func TestCheckSkipsAutoDisableWhenFlagIsFalse(t *testing.T) {
	reader := &fakeSpendReader{spentByTarget: map[budgetengine.Target]int64{
		budgetengine.TargetAgent: 1000,
	}}
	budgets := []budgetengine.Budget{
		{Target: budgetengine.TargetAgent, Period: "DAILY", LimitCredits: 1000, AutoDisable: false},
	}

	called := false
	err := budgetengine.Check(context.Background(), reader, budgets, 1, time.Now(), func(context.Context, budgetengine.Target, uuid.UUID, string) error {
		called = true
		return nil
	})

	require.Error(t, err)
	require.False(t, called)
}

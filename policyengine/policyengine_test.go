package policyengine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/levee-labs/credit-gateway/domain"
	"github.com/levee-labs/credit-gateway/gatewayerr"
	"github.com/levee-labs/credit-gateway/policyengine"
)

func intPtr(i int) *int { return &i }

func TestMergeIntersectsAllowedModels(t *testing.T) {
	policies := []domain.Policy{
		{AllowedModels: []string{"gpt-4o", "gpt-4o-mini", "claude-3-5-sonnet"}},
		{AllowedModels: []string{"gpt-4o-mini", "claude-3-5-sonnet"}},
	}
	ep := policyengine.Merge(policies)
	require.ElementsMatch(t, []string{"gpt-4o-mini", "claude-3-5-sonnet"}, ep.AllowedModels)
}

func TestMergeTakesMinOfNumericLimits(t *testing.T) {
	policies := []domain.Policy{
		{MaxOutputTokens: intPtr(4000), RPMLimit: intPtr(100)},
		{MaxOutputTokens: intPtr(1000), RPMLimit: intPtr(500)},
	}
	ep := policyengine.Merge(policies)
	require.Equal(t, 1000, *ep.MaxOutputTokens)
	require.Equal(t, 100, *ep.RPMLimit)
}

// TestMergeIsMonotoneNeverMorePermissive: adding a stricter ancestor
// policy can only shrink the effective policy, never widen it.
func TestMergeIsMonotoneNeverMorePermissive(t *testing.T) {
	base := []domain.Policy{{MaxOutputTokens: intPtr(4000)}}
	stricter := append(base, domain.Policy{MaxOutputTokens: intPtr(500)})

	epBase := policyengine.Merge(base)
	epStricter := policyengine.Merge(stricter)
	require.LessOrEqual(t, *epStricter.MaxOutputTokens, *epBase.MaxOutputTokens)
}

// TestMergeOfDisjointAllowedModelsBlocksEveryModel pins P-MONOTONE: two
// restrictive policies with no model in common must merge to "block
// everything", never silently widen to "unconstrained".
func TestMergeOfDisjointAllowedModelsBlocksEveryModel(t *testing.T) {
	policies := []domain.Policy{
		{AllowedModels: []string{"gpt-4o"}},
		{AllowedModels: []string{"claude-3-5-sonnet"}},
	}
	ep := policyengine.Merge(policies)
	require.NotNil(t, ep.AllowedModels)
	require.Empty(t, ep.AllowedModels)

	_, err := policyengine.Enforce(ep, "gpt-4o", nil)
	require.Error(t, err)
}

// TestMergeOfSingleEmptyAllowedModelsBlocksEveryModel pins the same
// invariant when only one policy in the path is present and it is
// itself fully restrictive.
func TestMergeOfSingleEmptyAllowedModelsBlocksEveryModel(t *testing.T) {
	ep := policyengine.Merge([]domain.Policy{{AllowedModels: []string{}}})
	require.NotNil(t, ep.AllowedModels)
	require.Empty(t, ep.AllowedModels)
}

func TestMergeUnconstrainedWhenNoPolicyHasAllowedModels(t *testing.T) {
	ep := policyengine.Merge([]domain.Policy{{MaxInputTokens: intPtr(100)}})
	require.Nil(t, ep.AllowedModels)
}

func TestEnforceRejectsDisallowedModel(t *testing.T) {
	ep := policyengine.EffectivePolicy{AllowedModels: []string{"gpt-4o"}}
	_, err := policyengine.Enforce(ep, "claude-3-5-sonnet", nil)
	require.Error(t, err)

	var gwErr *gatewayerr.Error
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, gatewayerr.KindPolicyViolation, gwErr.Kind)
}

func TestEnforceAllowsModelWhenUnconstrained(t *testing.T) {
	_, err := policyengine.Enforce(policyengine.EffectivePolicy{}, "anything", nil)
	require.NoError(t, err)
}

func TestEnforceCombinesEffectiveAndRequestedCaps(t *testing.T) {
	ep := policyengine.EffectivePolicy{MaxOutputTokens: intPtr(2000)}
	limit, err := policyengine.Enforce(ep, "gpt-4o", intPtr(500))
	require.NoError(t, err)
	require.Equal(t, 500, *limit)
}

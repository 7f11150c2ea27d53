package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/levee-labs/credit-gateway/domain"
	"github.com/levee-labs/credit-gateway/gatewayerr"
)

func activePath() domain.HierarchyPath {
	return domain.HierarchyPath{
		Org:        domain.Organization{IsActive: true},
		Workspace:  domain.Workspace{IsActive: true},
		AgentGroup: domain.AgentGroup{IsActive: true},
		Agent:      domain.Agent{Status: domain.AgentActive},
	}
}

func TestCheckHierarchyActivePassesWhenEveryLevelIsActive(t *testing.T) {
	require.NoError(t, checkHierarchyActive(activePath()))
}

func TestCheckHierarchyActiveBlocksOnInactiveOrg(t *testing.T) {
	path := activePath()
	path.Org.IsActive = false
	err := checkHierarchyActive(path)
	require.Error(t, err)

	var gerr *gatewayerr.Error
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, gatewayerr.KindAgentOrParentInactive, gerr.Kind)
}

func TestCheckHierarchyActiveBlocksOnDisabledAgent(t *testing.T) {
	path := activePath()
	path.Agent.Status = domain.AgentDisabled
	err := checkHierarchyActive(path)
	require.Error(t, err)

	var gerr *gatewayerr.Error
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, gatewayerr.KindAgentOrParentInactive, gerr.Kind)
}

func TestStatusForErrMapsBudgetAndInsufficientCreditsToBudgetExceeded(t *testing.T) {
	require.Equal(t, domain.UsageBudgetExceeded, statusForErr(gatewayerr.BudgetExceeded("AGENT", "DAILY", 100, 100, 1)))
	require.Equal(t, domain.UsageBudgetExceeded, statusForErr(gatewayerr.InsufficientCredits(0, 10)))
}

func TestStatusForErrMapsPolicyViolationToPolicyBlocked(t *testing.T) {
	err := gatewayerr.New(gatewayerr.KindPolicyViolation, "model not allowed")
	require.Equal(t, domain.UsagePolicyBlocked, statusForErr(err))
}

func TestStatusForErrDefaultsToErrorForUntaggedErrors(t *testing.T) {
	require.Equal(t, domain.UsageError, statusForErr(fmtError("boom")))
}

func TestErrMessageUnwrapsGatewayError(t *testing.T) {
	err := gatewayerr.New(gatewayerr.KindProviderError, "upstream failed: %s", "timeout")
	require.Equal(t, "upstream failed: timeout", errMessage(err))
}

func TestErrMessageFallsBackToErrorStringForPlainErrors(t *testing.T) {
	require.Equal(t, "boom", errMessage(fmtError("boom")))
}

type fmtError string

func (e fmtError) Error() string { return string(e) }

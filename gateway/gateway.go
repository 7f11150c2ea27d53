// Package gateway implements the orchestrator that composes the ledger,
// policy engine, budget engine, provider drivers, and usage/audit
// writers into one chat-completion request. The pipeline is three short
// pgx transactions separated by the outbound provider HTTP call, which
// holds no pool connection: a pre-check transaction validates policy,
// budget, and balance; the provider call runs outside any transaction;
// a commit transaction deducts the actual cost and records usage/audit
// rows atomically.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/levee-labs/credit-gateway/audit"
	"github.com/levee-labs/credit-gateway/budgetengine"
	"github.com/levee-labs/credit-gateway/costengine"
	"github.com/levee-labs/credit-gateway/credential"
	"github.com/levee-labs/credit-gateway/domain"
	"github.com/levee-labs/credit-gateway/gatewayerr"
	"github.com/levee-labs/credit-gateway/ledger"
	gwmw "github.com/levee-labs/credit-gateway/middleware"
	"github.com/levee-labs/credit-gateway/metrics"
	"github.com/levee-labs/credit-gateway/policyengine"
	"github.com/levee-labs/credit-gateway/pricing"
	"github.com/levee-labs/credit-gateway/provider"
	"github.com/levee-labs/credit-gateway/redisclient"
	"github.com/levee-labs/credit-gateway/usage"
)

// idempotencyTTL bounds how long a client-supplied Idempotency-Key is
// remembered in Redis for the fast-path duplicate check. The
// ledger_entries unique constraint is the real source of truth and has
// no such window.
const idempotencyTTL = 10 * time.Minute

// ChatRequest is the inbound OpenAI-compatible request body. Stream is
// accepted only to reject it explicitly — streaming responses are a
// Non-goal.
type ChatRequest struct {
	Model       string             `json:"model"`
	Messages    []provider.Message `json:"messages"`
	MaxTokens   *int               `json:"max_tokens,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

// ChatResponse is the outbound OpenAI-compatible response, extended with
// a platform-specific block carrying the credit accounting outcome.
type ChatResponse struct {
	ID       string       `json:"id"`
	Object   string       `json:"object"`
	Model    string       `json:"model"`
	Choices  []chatChoice `json:"choices"`
	Usage    chatUsage    `json:"usage"`
	Platform platformInfo `json:"x_platform"`
}

type chatChoice struct {
	Index        int              `json:"index"`
	Message      provider.Message `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type platformInfo struct {
	CreditsCharged int64  `json:"credits_charged"`
	BalanceAfter   int64  `json:"balance_after"`
	Provider       string `json:"provider"`
}

// Handler wires every component the orchestrator needs.
type Handler struct {
	logger      zerolog.Logger
	pool        *pgxpool.Pool
	policies    *policyengine.Store
	budgets     *budgetengine.Store
	ledger      *ledger.Store
	pricing     *pricing.Store
	credentials *credential.Store
	registry    *provider.Registry
	redis       *redisclient.Client
}

func NewHandler(logger zerolog.Logger, pool *pgxpool.Pool, policies *policyengine.Store, budgets *budgetengine.Store, ledgerStore *ledger.Store, pricingStore *pricing.Store, credentials *credential.Store, registry *provider.Registry, redis *redisclient.Client) *Handler {
	return &Handler{
		logger:      logger,
		pool:        pool,
		policies:    policies,
		budgets:     budgets,
		ledger:      ledgerStore,
		pricing:     pricingStore,
		credentials: credentials,
		registry:    registry,
		redis:       redis,
	}
}

// ChatCompletions handles POST /gateway/v1/chat/completions.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	path, ok := gwmw.HierarchyFromContext(ctx)
	if !ok {
		h.writeErr(w, gatewayerr.New(gatewayerr.KindAuthFailed, "no authenticated hierarchy path on request"))
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, gatewayerr.New(gatewayerr.KindPolicyViolation, "invalid request body: %s", err.Error()))
		return
	}
	if req.Stream {
		h.writeErr(w, gatewayerr.New(gatewayerr.KindPolicyViolation, "streaming responses are not supported"))
		return
	}
	if req.Model == "" || len(req.Messages) == 0 {
		h.writeErr(w, gatewayerr.New(gatewayerr.KindPolicyViolation, "model and messages are required"))
		return
	}

	if err := checkHierarchyActive(path); err != nil {
		h.logRejected(ctx, path, req, domain.UsageError, errMessage(err))
		h.writeErr(w, err)
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = "gateway:" + reqID
	}
	if h.redis != nil && !h.redis.MarkIdempotencyKeySeen(ctx, idempotencyKey, idempotencyTTL) {
		h.writeErr(w, gatewayerr.New(gatewayerr.KindDuplicateRequest, "request with this idempotency key is already in flight or was already processed"))
		return
	}

	providerName := provider.DetectProvider(req.Model)
	rule, err := h.pricing.Rule(ctx, providerName, req.Model)
	if err != nil {
		h.logRejected(ctx, path, req, domain.UsageError, errMessage(err))
		h.writeErr(w, err)
		return
	}

	effectiveMaxOutput, _, err := h.preCheck(ctx, path, req, rule)
	if err != nil {
		status := statusForErr(err)
		if status == domain.UsageBudgetExceeded {
			var gerr *gatewayerr.Error
			if errors.As(err, &gerr) {
				if level, ok := gerr.Detail["level"].(string); ok {
					metrics.BudgetBlocks.WithLabelValues(level).Inc()
				}
			}
		}
		h.logRejected(ctx, path, req, status, errMessage(err))
		h.writeErr(w, err)
		return
	}

	prov, err := h.resolveProvider(ctx, path, providerName)
	if err != nil {
		h.logRejected(ctx, path, req, domain.UsageError, errMessage(err))
		h.writeErr(w, err)
		return
	}

	resp, err := prov.GenerateCompletion(ctx, req.Model, req.Messages, effectiveMaxOutput, req.Temperature)
	if err != nil {
		gerr := gatewayerr.New(gatewayerr.KindProviderError, "upstream provider call failed: %s", err.Error())
		h.logProviderError(ctx, path, req, gerr.Message)
		h.writeErr(w, gerr)
		return
	}

	latencyMs := int(time.Since(start).Milliseconds())
	actualCostUSD := costengine.CostUSD(resp.InputTokens, resp.OutputTokens, rule)
	actualCredits := costengine.CostToCredits(actualCostUSD, path.Org.CreditsPerUSD)
	if actualCredits < 0 {
		actualCredits = 0
	}

	balanceAfter, err := h.commit(ctx, path, providerName, req.Model, resp, actualCostUSD, actualCredits, latencyMs, idempotencyKey)
	if err != nil {
		h.logger.Error().Err(err).Str("req_id", reqID).Msg("committing completed request")
		h.writeErr(w, err)
		return
	}

	metrics.RequestsTotal.WithLabelValues(providerName, "success").Inc()
	metrics.RequestDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())
	metrics.CreditsDeducted.WithLabelValues(providerName).Add(float64(actualCredits))

	h.logger.Info().
		Str("req_id", reqID).
		Str("provider", providerName).
		Str("model", req.Model).
		Int64("credits_charged", actualCredits).
		Int64("balance_after", balanceAfter).
		Int64("latency_ms", int64(latencyMs)).
		Msg("chat completion succeeded")

	writeJSON(w, http.StatusOK, ChatResponse{
		ID:     "gwcmpl-" + reqID,
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []chatChoice{{
			Index:        0,
			Message:      provider.Message{Role: "assistant", Content: resp.Content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     resp.InputTokens,
			CompletionTokens: resp.OutputTokens,
			TotalTokens:      resp.TotalTokens,
		},
		Platform: platformInfo{
			CreditsCharged: actualCredits,
			BalanceAfter:   balanceAfter,
			Provider:       providerName,
		},
	})
}

// checkHierarchyActive enforces that the agent and every ancestor in
// its path are still active before a request is allowed through.
func checkHierarchyActive(path domain.HierarchyPath) error {
	switch {
	case !path.Org.IsActive:
		return gatewayerr.New(gatewayerr.KindAgentOrParentInactive, "organization is inactive")
	case !path.Workspace.IsActive:
		return gatewayerr.New(gatewayerr.KindAgentOrParentInactive, "workspace is inactive")
	case !path.AgentGroup.IsActive:
		return gatewayerr.New(gatewayerr.KindAgentOrParentInactive, "agent group is inactive")
	case path.Agent.Status != domain.AgentActive:
		return gatewayerr.New(gatewayerr.KindAgentOrParentInactive, "agent is %s", path.Agent.Status)
	}
	return nil
}

// preCheck runs the pre-check transaction: merge and enforce policy,
// estimate cost against the requested (or policy-capped) max tokens,
// check every budget bound to path, and confirm the billing group's
// balance covers the estimate. Returns the effective max-output-tokens
// cap and the estimated credit cost used for the budget/balance checks.
func (h *Handler) preCheck(ctx context.Context, path domain.HierarchyPath, req ChatRequest, rule domain.PricingRule) (*int, int64, error) {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("beginning pre-check transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	policies, err := h.policies.ForPath(ctx, path)
	if err != nil {
		return nil, 0, err
	}
	effective := policyengine.Merge(policies)
	effectiveMaxOutput, err := policyengine.Enforce(effective, req.Model, req.MaxTokens)
	if err != nil {
		return nil, 0, err
	}

	// Estimate with zero input tokens — the post-check in commit is
	// authoritative on the real token counts the provider reports.
	estimatedOutput := 1024
	if effectiveMaxOutput != nil {
		estimatedOutput = *effectiveMaxOutput
	}

	estimatedCostUSD := costengine.CostUSD(0, estimatedOutput, rule)
	requiredCredits := costengine.CostToCredits(estimatedCostUSD, path.Org.CreditsPerUSD)
	if requiredCredits < 1 {
		requiredCredits = 1
	}

	budgets, err := h.budgets.ForPath(ctx, path)
	if err != nil {
		return nil, 0, err
	}
	if err := budgetengine.Check(ctx, h.budgets, budgets, requiredCredits, time.Now(), h.disableAndAudit(path.Org.ID)); err != nil {
		return nil, 0, err
	}

	balance, err := h.ledger.Balance(ctx, tx, path.Org.BillingGroupID)
	if err != nil {
		return nil, 0, err
	}
	if balance < requiredCredits {
		return nil, 0, gatewayerr.InsufficientCredits(balance, requiredCredits)
	}

	return effectiveMaxOutput, requiredCredits, nil
}

// disableAndAudit closes over the requesting org so budgetengine.Check's
// auto-disable callback both flips the target's lifecycle state and
// leaves an audit trail, without budgetengine needing to know about
// audit logs itself.
func (h *Handler) disableAndAudit(orgID uuid.UUID) func(ctx context.Context, target budgetengine.Target, targetID uuid.UUID, reason string) error {
	return func(ctx context.Context, target budgetengine.Target, targetID uuid.UUID, reason string) error {
		if err := h.budgets.DisableTarget(ctx, target, targetID, reason); err != nil {
			return err
		}
		return audit.Record(ctx, h.pool, domain.AuditLog{
			OrgID:        orgID,
			EventType:    "BUDGET_AUTO_DISABLE",
			ResourceType: string(target),
			ResourceID:   targetID.String(),
			Description:  reason,
		})
	}
}

// resolveProvider picks the driver to call: a BYOK org gets a
// short-lived driver bound to its decrypted key; everyone else gets the
// platform-managed singleton from the registry.
func (h *Handler) resolveProvider(ctx context.Context, path domain.HierarchyPath, providerName string) (provider.Provider, error) {
	cred, err := h.credentials.ActiveFor(ctx, path.Org.ID, providerName)
	if errors.Is(err, credential.ErrNoActiveCredential) || (err == nil && cred.Mode != domain.CredentialBYOK) {
		prov, ok := h.registry.Get(providerName)
		if !ok {
			return nil, gatewayerr.New(gatewayerr.KindProviderNotConfigured, "no managed driver registered for provider %s", providerName)
		}
		return prov, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving provider credential: %w", err)
	}

	apiKey, err := h.credentials.DecryptedAPIKey(cred)
	if err != nil {
		return nil, fmt.Errorf("decrypting BYOK credential: %w", err)
	}
	return provider.NewDriverForBYOK(providerName, apiKey)
}

// commit runs the final transaction: deduct the actual cost from the
// billing group's ledger (no ledger entry when it comes to zero
// credits) and record the usage event atomically, then reports the
// post-deduction balance.
func (h *Handler) commit(ctx context.Context, path domain.HierarchyPath, providerName, model string, resp *provider.Response, costUSD decimal.Decimal, credits int64, latencyMs int, idempotencyKey string) (int64, error) {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning commit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	agentID := path.Agent.ID
	if credits > 0 {
		if _, err := h.ledger.Deduct(ctx, tx, path.Org.BillingGroupID, credits, idempotencyKey, map[string]any{
			"agent_id": agentID.String(), "model": model, "provider": providerName,
		}); err != nil {
			return 0, err
		}
	}

	if err := usage.Record(ctx, tx, domain.UsageEvent{
		UserID:         path.Org.OwnerUserID,
		GroupID:        path.Org.BillingGroupID,
		AgentID:        &agentID,
		Provider:       providerName,
		Model:          model,
		InputTokens:    resp.InputTokens,
		OutputTokens:   resp.OutputTokens,
		TotalTokens:    resp.TotalTokens,
		CostUSD:        costUSD,
		CreditsCharged: credits,
		LatencyMs:      latencyMs,
		Status:         domain.UsageSuccess,
	}); err != nil {
		return 0, err
	}

	if err := audit.Record(ctx, tx, domain.AuditLog{
		OrgID:        path.Org.ID,
		ActorAgentID: &agentID,
		EventType:    "gateway.request",
		ResourceType: "agent",
		ResourceID:   agentID.String(),
		Description:  fmt.Sprintf("%s/%s charged %d credits", providerName, model, credits),
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing completion: %w", err)
	}

	balance, err := h.ledger.Balance(ctx, h.pool, path.Org.BillingGroupID)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (h *Handler) logRejected(ctx context.Context, path domain.HierarchyPath, req ChatRequest, status domain.UsageStatus, message string) {
	agentID := path.Agent.ID
	if err := usage.Record(ctx, h.pool, domain.UsageEvent{
		UserID:       path.Org.OwnerUserID,
		GroupID:      path.Org.BillingGroupID,
		AgentID:      &agentID,
		Provider:     provider.DetectProvider(req.Model),
		Model:        req.Model,
		Status:       status,
		ErrorMessage: message,
	}); err != nil {
		h.logger.Error().Err(err).Msg("recording rejected usage event")
	}
}

// logProviderError records the provider-call failure path: the
// provider was actually invoked (and may have done billable work
// upstream) but returned no usable response, so both a usage event and
// an audit log entry are appended — no ledger entry is written.
func (h *Handler) logProviderError(ctx context.Context, path domain.HierarchyPath, req ChatRequest, message string) {
	h.logRejected(ctx, path, req, domain.UsageError, message)

	agentID := path.Agent.ID
	if err := audit.Record(ctx, h.pool, domain.AuditLog{
		OrgID:        path.Org.ID,
		ActorAgentID: &agentID,
		EventType:    "gateway.request_error",
		ResourceType: "agent",
		ResourceID:   agentID.String(),
		Description:  message,
	}); err != nil {
		h.logger.Error().Err(err).Msg("recording provider-error audit log")
	}
}

// statusForErr maps a gatewayerr.Kind to the usage_events status it
// should be recorded under.
func statusForErr(err error) domain.UsageStatus {
	var gerr *gatewayerr.Error
	if !errors.As(err, &gerr) {
		return domain.UsageError
	}
	switch gerr.Kind {
	case gatewayerr.KindPolicyViolation:
		return domain.UsagePolicyBlocked
	case gatewayerr.KindBudgetExceeded, gatewayerr.KindInsufficientCredits:
		return domain.UsageBudgetExceeded
	default:
		return domain.UsageError
	}
}

func errMessage(err error) string {
	var gerr *gatewayerr.Error
	if errors.As(err, &gerr) {
		return gerr.Message
	}
	return err.Error()
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	var gerr *gatewayerr.Error
	if !errors.As(err, &gerr) {
		gerr = gatewayerr.New(gatewayerr.KindProviderError, "internal error: %s", err.Error())
	}
	writeJSON(w, gerr.Status, map[string]any{
		"error": map[string]any{
			"type":    gerr.Kind,
			"message": gerr.Message,
			"detail":  gerr.Detail,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

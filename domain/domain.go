// Package domain holds the shared entity types that model the
// Organization ▷ Workspace ▷ AgentGroup ▷ Agent hierarchy and the
// records the gateway reads and writes. These are plain structs backing
// Postgres rows — the external admin API owns their lifecycle; this
// repo only reads them (and writes ledger/usage/audit rows and, on
// auto-disable, the is_active/status columns below).
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AgentStatus is the lifecycle state of an Agent.
type AgentStatus string

const (
	AgentActive          AgentStatus = "ACTIVE"
	AgentDisabled        AgentStatus = "DISABLED"
	AgentBudgetExhausted AgentStatus = "BUDGET_EXHAUSTED"
)

// Organization is the top of the hierarchy; owns exactly one billing group.
type Organization struct {
	ID              uuid.UUID
	Name            string
	BillingGroupID  uuid.UUID
	CreditsPerUSD   int64
	OwnerUserID     uuid.UUID
	IsActive        bool
	CreatedAt       time.Time
}

type Workspace struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

type AgentGroup struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Name        string
	IsActive    bool
	CreatedAt   time.Time
}

type Agent struct {
	ID           uuid.UUID
	AgentGroupID uuid.UUID
	Name         string
	Status       AgentStatus
	CreatedAt    time.Time
}

// ApiKey is a platform-issued credential identifying an Agent.
// The opaque token (prefix "cpk_") is never stored; only its hash is.
type ApiKey struct {
	ID            uuid.UUID
	AgentID       uuid.UUID
	KeyHash       string
	KeySuffix     string
	IsActive      bool
	RevokedReason string
	CreatedAt     time.Time
}

// HierarchyPath is the four-hop path resolved once per gateway request
// and cached on the request context for downstream handlers.
type HierarchyPath struct {
	Agent      Agent
	AgentGroup AgentGroup
	Workspace  Workspace
	Org        Organization
}

// CredentialMode distinguishes platform-managed keys from bring-your-own.
type CredentialMode string

const (
	CredentialManaged CredentialMode = "MANAGED"
	CredentialBYOK    CredentialMode = "BYOK"
)

// ProviderCredential is an org-owned, encrypted-at-rest provider API key.
type ProviderCredential struct {
	ID              uuid.UUID
	OrgID           uuid.UUID
	Provider        string
	Mode            CredentialMode
	EncryptedAPIKey string
	Label           string
	IsActive        bool
	CreatedAt       time.Time
}

// LedgerEntryType tags the reason for a signed credit delta.
type LedgerEntryType string

const (
	CreditPurchase  LedgerEntryType = "CREDIT_PURCHASE"
	UsageDeduction  LedgerEntryType = "USAGE_DEDUCTION"
	Adjustment      LedgerEntryType = "ADJUSTMENT"
	Refund          LedgerEntryType = "REFUND"
)

// LedgerEntry is an append-only, never-mutated row in a group's ledger.
type LedgerEntry struct {
	ID              uuid.UUID
	GroupID         uuid.UUID
	Amount          int64
	Type            LedgerEntryType
	IdempotencyKey  *string
	Metadata        map[string]any
	CreatedAt       time.Time
}

// PolicyTarget tags which single hierarchy level a Policy or Budget binds to.
type PolicyTarget struct {
	OrgID        *uuid.UUID
	WorkspaceID  *uuid.UUID
	AgentGroupID *uuid.UUID
	AgentID      *uuid.UUID
}

// Policy constrains which models and token counts an agent may request.
// Invariant P1: exactly one field of PolicyTarget is non-nil.
type Policy struct {
	ID             uuid.UUID
	Name           string
	Target         PolicyTarget
	AllowedModels  []string // nil = unconstrained
	MaxInputTokens *int
	MaxOutputTokens *int
	RPMLimit       *int
	IsActive       bool
}

// BudgetPeriod is the window a Budget's spend cap resets on.
type BudgetPeriod string

const (
	BudgetDaily   BudgetPeriod = "DAILY"
	BudgetMonthly BudgetPeriod = "MONTHLY"
	BudgetTotal   BudgetPeriod = "TOTAL"
)

// Budget caps credit spend within a period, scoped to one hierarchy target.
// Invariant B1: exactly one field of PolicyTarget is non-nil.
type Budget struct {
	ID            uuid.UUID
	Target        PolicyTarget
	Period        BudgetPeriod
	LimitCredits  int64
	AutoDisable   bool
	IsActive      bool
}

// UsageStatus is the outcome recorded for a gateway request.
type UsageStatus string

const (
	UsageSuccess        UsageStatus = "SUCCESS"
	UsageError          UsageStatus = "ERROR"
	UsagePolicyBlocked  UsageStatus = "POLICY_BLOCKED"
	UsageBudgetExceeded UsageStatus = "BUDGET_EXCEEDED"
)

// UsageEvent is an append-only observability record for one gateway call.
type UsageEvent struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	GroupID         uuid.UUID
	AgentID         *uuid.UUID
	Provider        string
	Model           string
	InputTokens     int
	OutputTokens    int
	TotalTokens     int
	CostUSD         decimal.Decimal
	CreditsCharged  int64
	LatencyMs       int
	Status          UsageStatus
	ErrorMessage    string
	CreatedAt       time.Time
}

// PricingRule is the read-only per-model cost table entry.
type PricingRule struct {
	Provider        string
	Model           string
	InputCostPer1K  decimal.Decimal
	OutputCostPer1K decimal.Decimal
}

// AuditLog is an append-only record of a notable platform action.
type AuditLog struct {
	ID            uuid.UUID
	OrgID         uuid.UUID
	ActorUserID   *uuid.UUID
	ActorAgentID  *uuid.UUID
	EventType     string
	ResourceType  string
	ResourceID    string
	Description   string
	Metadata      map[string]any
	CreatedAt     time.Time
}

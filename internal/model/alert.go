package model

import "time"

// RuleType identifies which alert rule produced an event.
type RuleType string

const (
	RuleHealthDrop     RuleType = "health_drop"
	RuleContractExpiry RuleType = "contract_expiry"
	RuleInactivity     RuleType = "inactivity"
	RuleLowCSAT        RuleType = "low_csat"
)

// Severity ranks an alert for triage.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AlertEvent is one generated alert. Ownership passes to the delivery
// collaborator once emitted; the engine only governs generation and dedup.
type AlertEvent struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	RuleType   RuleType  `json:"rule_type"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	DedupKey   string    `json:"dedup_key"`
	CreatedAt  time.Time `json:"created_at"`
}

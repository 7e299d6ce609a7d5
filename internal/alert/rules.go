// Package alert implements alert rule evaluation and alert delivery.
//
// Evaluation is stateless: everything it needs, including the dedup lookback
// set, is passed in by the caller. That keeps it trivially testable and safe
// to run in parallel across customers.
package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/config"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
)

// Evaluate runs the four alert rules against one snapshot and its customer
// context under the given rule config. Candidate events whose dedup key is
// already present in recentKeys are suppressed, so a condition that stays
// true across cycles does not re-fire every cycle.
func Evaluate(snap model.HealthSnapshot, cctx model.CustomerContext, cfg config.AlertRuleConfig, recentKeys map[string]struct{}, now time.Time) []model.AlertEvent {
	var events []model.AlertEvent

	emit := func(rule model.RuleType, severity model.Severity, bucket, message string) {
		key := DedupKey(snap.CustomerID, rule, bucket)
		if _, seen := recentKeys[key]; seen {
			return
		}
		events = append(events, model.AlertEvent{
			CustomerID: snap.CustomerID,
			RuleType:   rule,
			Severity:   severity,
			Message:    message,
			DedupKey:   key,
			CreatedAt:  now,
		})
	}

	// Rule 1: health drop. Bucketed by snapshot day so one drop raises one
	// alert even when several cycles run the same day.
	if cfg.HealthDropEnabled && snap.Change <= -cfg.HealthDropDeltaThreshold {
		severity := model.SeverityMedium
		if snap.Tier == model.TierCritical {
			severity = model.SeverityHigh
		}
		emit(model.RuleHealthDrop, severity,
			dayBucket(snap.CalculatedAt),
			fmt.Sprintf("health score dropped %d points to %d", -snap.Change, snap.OverallScore))
	}

	// Rule 2: contract expiry. Bucketed by the contract end date: the same
	// expiring contract alerts once per lookback window.
	if cfg.ContractExpiryEnabled && cctx.ContractEndDate != nil {
		days := daysBetween(now, *cctx.ContractEndDate)
		if days >= 0 && days <= cfg.ContractExpiryDays {
			severity := model.SeverityMedium
			if days <= 7 {
				severity = model.SeverityHigh
			}
			emit(model.RuleContractExpiry, severity,
				dayBucket(*cctx.ContractEndDate),
				fmt.Sprintf("contract expires in %d days", days))
		}
	}

	// Rule 3: inactivity. Bucketed by the last-activity date, which
	// identifies the inactivity episode.
	if cfg.InactivityEnabled && cctx.LastActivityAt != nil {
		days := daysBetween(*cctx.LastActivityAt, now)
		if days >= cfg.InactivityDays {
			emit(model.RuleInactivity, model.SeverityMedium,
				dayBucket(*cctx.LastActivityAt),
				fmt.Sprintf("no activity for %d days", days))
		}
	}

	// Rule 4: low CSAT. Bucketed by score decile so minor fluctuations below
	// the threshold do not re-raise the alert.
	if cfg.LowCSATEnabled && cctx.LatestCSATScore != nil && *cctx.LatestCSATScore < cfg.LowCSATThreshold {
		emit(model.RuleLowCSAT, model.SeverityMedium,
			fmt.Sprintf("decile-%d", int(*cctx.LatestCSATScore)/10),
			fmt.Sprintf("latest CSAT %.0f below threshold %.0f", *cctx.LatestCSATScore, cfg.LowCSATThreshold))
	}

	return events
}

// DedupKey derives the stable dedup key for a (customer, rule, bucket)
// triple. The bucket discretizes the triggering condition.
func DedupKey(customerID string, rule model.RuleType, bucket string) string {
	sum := sha256.Sum256([]byte(customerID + "|" + string(rule) + "|" + bucket))
	return hex.EncodeToString(sum[:8])
}

func dayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// daysBetween returns the whole calendar days from a to b in UTC. Negative
// when b is before a.
func daysBetween(a, b time.Time) int {
	au := a.UTC()
	bu := b.UTC()
	aDay := time.Date(au.Year(), au.Month(), au.Day(), 0, 0, 0, 0, time.UTC)
	bDay := time.Date(bu.Year(), bu.Month(), bu.Day(), 0, 0, 0, 0, time.UTC)
	return int(bDay.Sub(aDay).Hours() / 24)
}

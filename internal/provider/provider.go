// Package provider abstracts the upstream source of customer factor data.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
)

// Provider supplies the raw inputs for a health recalculation: the customer
// roster, per-factor scores, and the contextual fields the alert rules need.
type Provider interface {
	// ListCustomers returns the IDs of all customers eligible for scoring.
	ListCustomers(ctx context.Context) ([]string, error)
	// FactorScores returns the current factor scores for one customer.
	// Factors the upstream has no data for are simply absent from the set.
	FactorScores(ctx context.Context, customerID string) (model.FactorScoreSet, error)
	// CustomerContext returns the contract and activity context for one
	// customer. Unknown fields are nil.
	CustomerContext(ctx context.Context, customerID string) (model.CustomerContext, error)
}

// DataUnavailableError reports that the upstream has no usable data for a
// customer. The scheduler records it against the customer and moves on; it is
// never retried within a batch.
type DataUnavailableError struct {
	CustomerID string
	Reason     string
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("no factor data for customer %s: %s", e.CustomerID, e.Reason)
}

// IsDataUnavailable reports whether err is a DataUnavailableError anywhere in
// its chain.
func IsDataUnavailable(err error) bool {
	var dua *DataUnavailableError
	return errors.As(err, &dua)
}

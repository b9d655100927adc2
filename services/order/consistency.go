package order

import (
	"context"
	"fmt"
	"strings"

	"washflow/models"
	"washflow/utils"
)

// VerifyConsistency cross-checks an order against its ledger transaction.
// Mismatches are reported to operators and returned as Inconsistent; nothing
// is corrected automatically.
func (s *DefaultOrderService) VerifyConsistency(ctx context.Context, by models.Caller, orderID string) (*ConsistencyReport, error) {
	if by.Role != models.RoleOperator && by.Role != models.RoleSystem {
		return nil, utils.NewForbiddenError("role_not_allowed", "only operators verify orders")
	}
	o, err := s.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	report := &ConsistencyReport{OrderID: o.ID, OrderStatus: o.Status, EscrowStatus: o.Escrow.Status}

	if o.Escrow.TransactionID == "" {
		if o.Escrow.Status != models.EscrowPending {
			report.Problems = append(report.Problems, "escrow snapshot has a status but no transaction")
		}
	} else {
		var tx *models.EscrowTransaction
		err := utils.Retry(ctx, s.Retry, func(ctx context.Context) error {
			var err error
			tx, err = s.Ledger.GetStatus(ctx, o.Escrow.TransactionID)
			return err
		})
		if err != nil {
			return nil, err
		}
		report.EscrowStatus = tx.Status
		report.Problems = append(report.Problems, compareLedger(o, tx)...)
	}
	if !models.ValidCombination(o.Status, report.EscrowStatus) {
		report.Problems = append(report.Problems,
			fmt.Sprintf("order status %s cannot coexist with escrow %s", o.Status, report.EscrowStatus))
	}

	report.Consistent = len(report.Problems) == 0
	if !report.Consistent {
		msg := strings.Join(report.Problems, "; ")
		s.raiseAlert(ctx, "inconsistency", o, msg)
		return report, utils.NewInconsistentError("order_ledger_mismatch", msg)
	}
	return report, nil
}

func compareLedger(o *models.Order, tx *models.EscrowTransaction) []string {
	var problems []string
	if tx.OrderID != o.ID {
		problems = append(problems, fmt.Sprintf("transaction belongs to order %s", tx.OrderID))
	}
	if tx.Status != o.Escrow.Status {
		problems = append(problems, fmt.Sprintf("snapshot says %s, ledger says %s", o.Escrow.Status, tx.Status))
	}
	if tx.Amount > tx.OriginalAmount {
		problems = append(problems, fmt.Sprintf("amount %d exceeds original hold %d", tx.Amount, tx.OriginalAmount))
	}
	if tx.OriginalAmount != o.Pricing.FinalPrice {
		problems = append(problems, fmt.Sprintf("hold %d differs from final price %d", tx.OriginalAmount, o.Pricing.FinalPrice))
	}
	return problems
}

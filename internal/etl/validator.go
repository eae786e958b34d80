package etl

import "github.com/spendsense/backend/internal/model"

// ValidationResult partitions one batch's staged rows.
type ValidationResult struct {
	Valid   int
	Invalid int
}

// ValidateStaged checks structural completeness only: date, positive amount,
// known direction, non-nil description. Business rules are not re-checked
// here. Each row's ParsedOK flag is set in place.
func ValidateStaged(txns []model.StagedTransaction) ([]model.StagedTransaction, ValidationResult) {
	var res ValidationResult
	for i := range txns {
		txns[i].ParsedOK = validRow(&txns[i])
		if txns[i].ParsedOK {
			res.Valid++
		} else {
			res.Invalid++
		}
	}
	return txns, res
}

func validRow(t *model.StagedTransaction) bool {
	if t.TxnDate.IsZero() {
		return false
	}
	if !t.Amount.IsPositive() {
		return false
	}
	return t.Direction.Valid()
}

package ledger

import "payments/internal/core"

// Recompute returns a copy of records with every derived field refreshed
// against today: serial numbers 1..N in current order, Days, Status and the
// per-customer TotalAmount. The input slice is not modified.
func Recompute(records []core.PaymentRecord, today core.Date) []core.PaymentRecord {
	totals := make(map[string]core.Money, len(records))
	for _, r := range records {
		totals[r.CustomerName] = totals[r.CustomerName].Add(r.Amount)
	}

	out := make([]core.PaymentRecord, len(records))
	for i, r := range records {
		r.SerialNumber = i + 1
		r.Days = r.Date.DaysUntil(today)
		r.Status = core.StatusFor(r.TransferredToBank, r.ReceivedBy)
		r.TotalAmount = totals[r.CustomerName]
		out[i] = r
	}
	return out
}

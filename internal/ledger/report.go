package ledger

import (
	"cmp"
	"slices"

	"payments/internal/core"
)

// CustomerTotals maps each customer name to its record count and amount sum.
func CustomerTotals(records []core.PaymentRecord) map[string]core.CustomerTotal {
	out := make(map[string]core.CustomerTotal)
	for _, r := range records {
		ct := out[r.CustomerName]
		ct.Customer = r.CustomerName
		ct.Count++
		ct.Total = ct.Total.Add(r.Amount)
		out[r.CustomerName] = ct
	}
	return out
}

// GroupByCustomer returns CustomerTotals ordered by customer name.
func GroupByCustomer(records []core.PaymentRecord) []core.CustomerTotal {
	totals := CustomerTotals(records)
	out := make([]core.CustomerTotal, 0, len(totals))
	for _, ct := range totals {
		out = append(out, ct)
	}
	slices.SortFunc(out, func(a, b core.CustomerTotal) int { return cmp.Compare(a.Customer, b.Customer) })
	return out
}

// MethodTotals maps each payment method to its count, sum and mean amount.
// Records without a method are grouped under the empty method.
func MethodTotals(records []core.PaymentRecord) map[core.PaymentMethod]core.MethodTotal {
	out := make(map[core.PaymentMethod]core.MethodTotal)
	for _, r := range records {
		mt := out[r.PaymentMethod]
		mt.Method = r.PaymentMethod
		mt.Count++
		mt.Sum = mt.Sum.Add(r.Amount)
		out[r.PaymentMethod] = mt
	}
	for m, mt := range out {
		mt.Mean = core.MeanCents(mt.Sum, mt.Count)
		out[m] = mt
	}
	return out
}

// GroupByPaymentMethod returns MethodTotals in the canonical method order,
// followed by the unset method if present.
func GroupByPaymentMethod(records []core.PaymentRecord) []core.MethodTotal {
	totals := MethodTotals(records)
	out := make([]core.MethodTotal, 0, len(totals))
	for _, m := range append(core.PaymentMethods(), "") {
		if mt, ok := totals[m]; ok {
			out = append(out, mt)
		}
	}
	return out
}

// Summarize computes the headline figures for records.
func Summarize(records []core.PaymentRecord) core.Summary {
	s := core.Summary{Count: len(records), ByMethod: GroupByPaymentMethod(records)}
	for _, r := range records {
		s.Total = s.Total.Add(r.Amount)
		if r.Overdue() {
			s.Overdue++
		}
	}
	return s
}

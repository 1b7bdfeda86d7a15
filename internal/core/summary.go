package core

// CustomerTotal aggregates the payments of one customer.
type CustomerTotal struct {
	Customer string
	Count    int
	Total    Money
}

// MethodTotal aggregates the payments received with one method.
type MethodTotal struct {
	Method PaymentMethod
	Count  int
	Sum    Money
	Mean   Money
}

// Summary is the headline figures of a store.
type Summary struct {
	Count    int
	Total    Money
	Overdue  int
	ByMethod []MethodTotal
}

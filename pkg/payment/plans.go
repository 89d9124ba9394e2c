package payment

import "strings"

// Plan is a purchasable credit bundle.
type Plan struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Credits    int64  `json:"credits"`
}

var plans = []Plan{
	{ID: "starter", Name: "Starter", PriceCents: 900, Credits: 1},
	{ID: "pro", Name: "Pro", PriceCents: 2000, Credits: 3},
	{ID: "business", Name: "Business", PriceCents: 2900, Credits: 5},
}

// Plans returns a copy of the catalog.
func Plans() []Plan {
	return append([]Plan(nil), plans...)
}

// PlanByID looks up a plan by id.
func PlanByID(id string) (Plan, bool) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	for _, plan := range plans {
		if plan.ID == normalized {
			return plan, true
		}
	}
	return Plan{}, false
}

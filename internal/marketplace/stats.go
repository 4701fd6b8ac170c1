package marketplace

import (
	"context"
	"fmt"
)

// Stats is the admin dashboard summary. Revenue sums paid orders per
// currency.
type Stats struct {
	TotalListings   int                `json:"total_listings"`
	ActiveListings  int                `json:"active_listings"`
	TotalOrders     int                `json:"total_orders"`
	PendingOrders   int                `json:"pending_orders"`
	DeliveredOrders int                `json:"delivered_orders"`
	OpenDisputes    int                `json:"open_disputes"`
	Revenue         map[string]float64 `json:"revenue"`
	RecentOrders    []Order            `json:"recent_orders"`
}

// Stats returns the dashboard summary with the five newest orders.
func (s *Service) Stats(ctx context.Context, actor Actor) (*Stats, error) {
	if !actor.IsAdmin() {
		return nil, errForbidden("admin access only", "role", actor.Role)
	}
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	recent, _, err := s.store.ListOrders(ctx, OrderFilter{Limit: 5})
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	if recent == nil {
		recent = []Order{}
	}
	st.RecentOrders = recent
	return st, nil
}

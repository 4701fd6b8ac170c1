package marketplace

// OrderStatus is a flat enum. Sequencing is not enforced beyond the
// role-gated targets in allowedTargets.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusPlaced          OrderStatus = "placed"
	StatusAccepted        OrderStatus = "accepted"
	StatusPickupScheduled OrderStatus = "pickup_scheduled"
	StatusInTransit       OrderStatus = "in_transit"
	StatusDelivered       OrderStatus = "delivered"
	StatusCompleted       OrderStatus = "completed"
	StatusCancelled       OrderStatus = "cancelled"
	StatusConfirmed       OrderStatus = "confirmed"
	StatusProcessing      OrderStatus = "processing"
	StatusRefunded        OrderStatus = "refunded"
)

var allStatuses = []OrderStatus{
	StatusPending, StatusPlaced, StatusAccepted, StatusPickupScheduled,
	StatusInTransit, StatusDelivered, StatusCompleted, StatusCancelled,
	StatusConfirmed, StatusProcessing, StatusRefunded,
}

func (s OrderStatus) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// allowedTargets is the (party role, target status) table for UpdateStatus.
// Admins have no entry: they act only through dispute resolution.
var allowedTargets = map[Role]map[OrderStatus]bool{
	RoleBuyer: {
		StatusCancelled: true,
	},
	RoleSeller: {
		StatusAccepted:        true,
		StatusPickupScheduled: true,
		StatusInTransit:       true,
		StatusDelivered:       true,
		StatusCompleted:       true,
		StatusCancelled:       true,
	},
}

// CanSetStatus reports whether a party with the given role may move an order
// to target. The current status plays no part.
func CanSetStatus(role Role, target OrderStatus) bool {
	return allowedTargets[role][target]
}

// AllowedTargets lists the statuses a party role may set, in enum order.
func AllowedTargets(role Role) []OrderStatus {
	var out []OrderStatus
	for _, s := range allStatuses {
		if allowedTargets[role][s] {
			out = append(out, s)
		}
	}
	return out
}

// Timeline markers that are not order statuses.
const (
	eventDisputeOpened   = "dispute_opened"
	eventDisputeResolved = "dispute_resolved"
)

package notify

import (
	"context"

	"github.com/example/transit-dispatch/internal/models"
)

// Proposal is the payload a driver sees when offered a transit.
type Proposal struct {
	Type       string              `json:"type"`
	RequestID  string              `json:"request_id"`
	DriverID   string              `json:"driver_id"`
	Pickup     models.Coord        `json:"pickup"`
	Class      models.VehicleClass `json:"class"`
	EtaSeconds float64             `json:"eta_seconds,omitempty"`
}

// Event is a lifecycle notification (cancellation, address change).
type Event struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	DriverID  string `json:"driver_id"`
}

const (
	TypeProposal       = "proposal"
	TypeCancelled      = "cancelled"
	TypeAddressChanged = "address_changed"
)

// Gateway delivers fire-and-forget notifications to drivers. Errors
// are advisory: the matching loop logs them and moves on, delivery is
// never allowed to gate assignment progress.
type Gateway interface {
	NotifyProposal(ctx context.Context, p Proposal) error
	NotifyCancelled(ctx context.Context, driverID, requestID string) error
	NotifyAddressChanged(ctx context.Context, driverID, requestID string) error
}

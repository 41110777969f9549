package models

import "time"

type Coord struct {
    Lat float64 `json:"lat"`
    Lon float64 `json:"lon"`
}

// VehicleClass is the category of car requested or offered.
type VehicleClass string

const (
    ClassEconomy VehicleClass = "economy"
    ClassVan     VehicleClass = "van"
    ClassPremium VehicleClass = "premium"
)

// PositionSample is one GPS fix reported by a driver. Samples are
// append-only; matching only reads the trailing window.
type PositionSample struct {
    DriverID   string       `json:"driver_id"`
    Loc        Coord        `json:"loc"`
    Class      VehicleClass `json:"class"`
    ObservedAt time.Time    `json:"observed_at"`
}

// AveragedPosition is the centroid of a driver's samples inside the
// trailing window. Derived, never persisted.
type AveragedPosition struct {
    DriverID string       `json:"driver_id"`
    Loc      Coord        `json:"loc"`
    Class    VehicleClass `json:"class"`
    LastSeen time.Time    `json:"last_seen"`
}

// Candidate is a driver eligible to receive a proposal. Loc is the
// averaged position the ranking used; it feeds the ETA shown to the
// driver, never the ranking itself.
type Candidate struct {
    DriverID string       `json:"driver_id"`
    Class    VehicleClass `json:"class"`
    Loc      Coord        `json:"loc"`
}

// TransitRequest is the pickup side of a published transit. Class is
// nil when the rider accepts any active vehicle class.
type TransitRequest struct {
    RequestID string        `json:"request_id"`
    Pickup    Coord         `json:"pickup"`
    Class     *VehicleClass `json:"class,omitempty"`
}

// Summary is the read-only view of one matching attempt.
type Summary struct {
    RequestID string   `json:"request_id"`
    Status    string   `json:"status"`
    Proposed  []string `json:"proposed"`
    Rejected  []string `json:"rejected"`
    Assigned  *string  `json:"assigned,omitempty"`
}

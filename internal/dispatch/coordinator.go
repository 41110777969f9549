package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/transit-dispatch/internal/config"
	"github.com/example/transit-dispatch/internal/directory"
	"github.com/example/transit-dispatch/internal/eta"
	"github.com/example/transit-dispatch/internal/ledger"
	"github.com/example/transit-dispatch/internal/models"
	"github.com/example/transit-dispatch/internal/notify"
	"github.com/example/transit-dispatch/internal/observability"
	"github.com/example/transit-dispatch/internal/payments"
	"github.com/example/transit-dispatch/internal/search"
)

// FareHold describes a pre-authorization placed when a driver accepts.
// The amount is computed by the pricing service upstream; matching only
// forwards it.
type FareHold struct {
	AmountCents int64
	Currency    string
	CustomerID  string
}

// Coordinator orchestrates the end-to-end driver search for one
// assignment: the expanding-radius loop, proposal bookkeeping, and the
// accept/reject/cancel pass-throughs.
type Coordinator struct {
	Ledger    *ledger.Ledger
	Search    *search.Searcher
	Directory directory.Directory
	Gateway   notify.Gateway
	Payments  *payments.StripeClient // optional
	Logger    *slog.Logger
	Config    config.DispatchConfig

	ETAClient       eta.Client // optional routing engine
	ETACache        *eta.Cache // optional ETA cache
	DefaultSpeedMps float64
}

// CreateAssignment registers a matching attempt for a freshly published
// transit.
func (c *Coordinator) CreateAssignment(requestID string, when time.Time) (ledger.Assignment, error) {
	return c.Ledger.Create(requestID, when)
}

// Dispatch runs the expanding-radius search loop for one assignment.
// It is re-entrant: calling it again on a PENDING assignment restarts
// the radius counter at 1 and resumes; already-proposed and rejected
// drivers are filtered by the ledger so nobody is contacted twice.
//
// The loop halts for one of these reasons, the first three being pure
// predicates over the assignment snapshot plus current time and radius:
//   - too many proposals still unanswered (assignment stays PENDING,
//     responses may yet arrive);
//   - the wait threshold or the radius cap is exhausted (FAILED);
//   - the requested vehicle class resolves to nothing active (stays
//     PENDING, nothing can ever be proposed);
//   - proposals are outstanding at the current radius (stays PENDING
//     while the drivers' responses come in asynchronously).
//
// Termination never guarantees a winner, only that the loop halts.
func (c *Coordinator) Dispatch(ctx context.Context, req models.TransitRequest, now time.Time) (models.Summary, error) {
	start := time.Now()
	defer func() {
		observability.DispatchLatency.Observe(time.Since(start).Seconds())
	}()

	snap, err := c.Ledger.Snapshot(req.RequestID)
	if err != nil {
		return models.Summary{}, err
	}
	if snap.Status.Terminal() {
		return summaryFrom(snap), nil
	}

	classes, err := c.Search.ResolveClasses(ctx, req.Class)
	if err != nil {
		return models.Summary{}, err
	}
	if noActiveClasses(classes) {
		c.Logger.Info("dispatch halted: no active vehicle classes", "request_id", req.RequestID)
		return c.Summary(req.RequestID)
	}

	radius := 1
	iterations := 0
	defer func() { observability.LoopIterations.Observe(float64(iterations)) }()

	for {
		iterations++

		awaiting, err := c.Ledger.AwaitingResponses(req.RequestID)
		if err != nil {
			return models.Summary{}, err
		}
		if tooManyOutstanding(awaiting, c.Config.MaxAwaiting) {
			c.Logger.Info("dispatch halted: proposals outstanding",
				"request_id", req.RequestID, "awaiting", awaiting)
			break
		}

		radius++
		if exhausted(snap.CreatedAt, time.Now(), c.Config.WaitThreshold, radius, c.Config.MaxRadiusKm) {
			if err := c.Ledger.Fail(req.RequestID); err != nil {
				return models.Summary{}, err
			}
			observability.DispatchFailures.Inc()
			c.Logger.Info("dispatch exhausted",
				"request_id", req.RequestID, "radius_km", radius)
			break
		}

		cands, err := c.Search.Search(ctx, req.Pickup, float64(radius), classes, now)
		if err != nil {
			return models.Summary{}, err
		}
		if len(cands) == 0 {
			continue
		}

		for _, cand := range cands {
			added, err := c.Ledger.Propose(req.RequestID, cand.DriverID)
			if err != nil {
				return models.Summary{}, err
			}
			if !added {
				// already proposed, already rejected, or the
				// assignment went terminal under us
				continue
			}
			observability.ProposalsTotal.Inc()
			c.notifyProposal(ctx, req, cand)
		}

		// The ledger writes every mutation through to the persister,
		// so this iteration's proposals are already durable here.
		cur, err := c.Ledger.Snapshot(req.RequestID)
		if err != nil {
			return models.Summary{}, err
		}
		if cur.Status.Terminal() {
			// a concurrent accept or cancel won while we were
			// proposing; nothing further may act on this assignment
			break
		}
		outstanding, err := c.Ledger.AwaitingResponses(req.RequestID)
		if err != nil {
			return models.Summary{}, err
		}
		if outstanding > 0 {
			// Responses arrive asynchronously through Accept/Reject;
			// expanding further now would only flood distant drivers.
			// A later Dispatch call resumes the search if everyone
			// declines.
			break
		}
	}

	return c.Summary(req.RequestID)
}

// Termination predicates, kept pure so each is testable on its own.

func tooManyOutstanding(awaiting, limit int) bool { return awaiting > limit }

func exhausted(createdAt, now time.Time, wait time.Duration, radius, maxRadius int) bool {
	return now.Sub(createdAt) > wait || radius > maxRadius
}

func noActiveClasses(classes map[models.VehicleClass]bool) bool { return len(classes) == 0 }

// notifyProposal alerts the driver of the opportunity. Fire-and-forget:
// delivery failure is logged and must never stall the loop.
func (c *Coordinator) notifyProposal(ctx context.Context, req models.TransitRequest, cand models.Candidate) {
	p := notify.Proposal{
		RequestID:  req.RequestID,
		DriverID:   cand.DriverID,
		Pickup:     req.Pickup,
		Class:      cand.Class,
		EtaSeconds: c.pickupETA(cand.Loc, req.Pickup),
	}
	if err := c.Gateway.NotifyProposal(ctx, p); err != nil {
		c.Logger.Warn("proposal notification failed",
			"request_id", req.RequestID, "driver_id", cand.DriverID, "error", err)
	}
}

func (c *Coordinator) pickupETA(from, to models.Coord) float64 {
	if c.ETACache != nil {
		if v, ok := c.ETACache.Get(from, to); ok {
			return v
		}
	}
	if c.ETAClient != nil {
		if v, err := c.ETAClient.EstimateSeconds(from, to); err == nil {
			if c.ETACache != nil {
				c.ETACache.Set(from, to, v)
			}
			return v
		}
	}
	return eta.EstimateSeconds(from, to, c.DefaultSpeedMps)
}

// Accept records driverID winning the assignment, marks the driver
// occupied and, when payments are configured, places the fare hold.
func (c *Coordinator) Accept(ctx context.Context, requestID, driverID string, fare *FareHold) error {
	if err := c.Ledger.Accept(requestID, driverID); err != nil {
		return err
	}
	observability.AssignmentsTotal.Inc()
	if err := c.Directory.MarkOccupied(ctx, driverID, true); err != nil {
		c.Logger.Error("mark occupied failed", "driver_id", driverID, "error", err)
	}
	if c.Payments != nil && fare != nil {
		if _, err := c.Payments.Hold(ctx, fare.AmountCents, fare.Currency, fare.CustomerID); err != nil {
			c.Logger.Error("fare hold failed", "request_id", requestID, "error", err)
		}
	}
	return nil
}

// Reject records a driver declining. Idempotent, same as the ledger.
func (c *Coordinator) Reject(ctx context.Context, requestID, driverID string) error {
	return c.Ledger.Reject(requestID, driverID)
}

// Cancel tears down a pending assignment and tells every driver still
// awaiting a response. A no-op once a driver has accepted.
func (c *Coordinator) Cancel(ctx context.Context, requestID string) error {
	before, err := c.Ledger.Snapshot(requestID)
	if err != nil {
		return err
	}
	if err := c.Ledger.Cancel(requestID); err != nil {
		return err
	}
	after, err := c.Ledger.Snapshot(requestID)
	if err != nil {
		return err
	}
	if after.Status != ledger.StatusCancelled || before.Status.Terminal() {
		return nil
	}
	rejected := make(map[string]bool, len(before.Rejected))
	for _, d := range before.Rejected {
		rejected[d] = true
	}
	for _, d := range before.Proposed {
		if rejected[d] {
			continue
		}
		if err := c.Gateway.NotifyCancelled(ctx, d, requestID); err != nil {
			c.Logger.Warn("cancel notification failed",
				"request_id", requestID, "driver_id", d, "error", err)
		}
	}
	return nil
}

// AddressChanged tells drivers awaiting a response that the pickup
// moved. State is untouched; this is notification only.
func (c *Coordinator) AddressChanged(ctx context.Context, requestID string) error {
	snap, err := c.Ledger.Snapshot(requestID)
	if err != nil {
		return err
	}
	if snap.Status.Terminal() {
		return nil
	}
	rejected := make(map[string]bool, len(snap.Rejected))
	for _, d := range snap.Rejected {
		rejected[d] = true
	}
	for _, d := range snap.Proposed {
		if rejected[d] {
			continue
		}
		if err := c.Gateway.NotifyAddressChanged(ctx, d, requestID); err != nil {
			c.Logger.Warn("address change notification failed",
				"request_id", requestID, "driver_id", d, "error", err)
		}
	}
	return nil
}

// Summary returns the read-only view of an assignment.
func (c *Coordinator) Summary(requestID string) (models.Summary, error) {
	snap, err := c.Ledger.Snapshot(requestID)
	if err != nil {
		return models.Summary{}, err
	}
	return summaryFrom(snap), nil
}

func summaryFrom(a ledger.Assignment) models.Summary {
	return models.Summary{
		RequestID: a.RequestID,
		Status:    string(a.Status),
		Proposed:  a.Proposed,
		Rejected:  a.Rejected,
		Assigned:  a.AssignedDriverID,
	}
}

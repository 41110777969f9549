package ledger

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Status of one matching attempt. Pending is the only non-terminal state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusAssigned  Status = "ASSIGNED"
)

func (s Status) Terminal() bool { return s != StatusPending }

var (
	ErrNotFound        = errors.New("assignment not found")
	ErrAlreadyExists   = errors.New("assignment already exists")
	ErrAlreadyAssigned = errors.New("assignment already taken by another driver")
	ErrNotProposed     = errors.New("driver was never proposed for this request")
	ErrAlreadyRejected = errors.New("driver already rejected this request")
	ErrTerminal        = errors.New("assignment is in a terminal state")
)

// Assignment is an immutable snapshot of one matching attempt.
// Proposed and Rejected are sorted copies; mutating them has no effect
// on the ledger.
type Assignment struct {
	RequestID        string
	Status           Status
	CreatedAt        time.Time
	Proposed         []string
	Rejected         []string
	AssignedDriverID *string
}

// Persister receives write-through copies of assignments for durable
// storage. The in-memory ledger stays authoritative; persistence
// failures are logged and never block a state transition.
type Persister interface {
	SaveAssignment(a Assignment) error
	UpdateAssignment(a Assignment) error
}

// Ledger owns all assignment state and the transition rules. Each
// request id gets its own mutex so concurrent accepts for the same
// request serialize without a global lock.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*entry

	persister Persister
	logger    *slog.Logger
}

type entry struct {
	mu        sync.Mutex
	requestID string
	status    Status
	createdAt time.Time
	proposed  map[string]struct{}
	rejected  map[string]struct{}
	assigned  string
}

func New(persister Persister, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		entries:   make(map[string]*entry),
		persister: persister,
		logger:    logger,
	}
}

// Create registers a new pending assignment for requestID.
func (l *Ledger) Create(requestID string, when time.Time) (Assignment, error) {
	l.mu.Lock()
	if _, ok := l.entries[requestID]; ok {
		l.mu.Unlock()
		return Assignment{}, ErrAlreadyExists
	}
	e := &entry{
		requestID: requestID,
		status:    StatusPending,
		createdAt: when,
		proposed:  make(map[string]struct{}),
		rejected:  make(map[string]struct{}),
	}
	l.entries[requestID] = e
	l.mu.Unlock()

	snap := e.snapshot()
	if l.persister != nil {
		if err := l.persister.SaveAssignment(snap); err != nil {
			l.logger.Error("assignment save failed", "request_id", requestID, "error", err)
		}
	}
	return snap, nil
}

func (l *Ledger) lookup(requestID string) (*entry, error) {
	l.mu.RLock()
	e, ok := l.entries[requestID]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Propose adds driverID to the proposed set unless it was already
// proposed or previously rejected. Returns whether the driver was
// newly added; re-proposing is a no-op, not an error.
func (l *Ledger) Propose(requestID, driverID string) (bool, error) {
	e, err := l.lookup(requestID)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	if e.status.Terminal() {
		e.mu.Unlock()
		return false, nil
	}
	if _, ok := e.rejected[driverID]; ok {
		e.mu.Unlock()
		return false, nil
	}
	if _, ok := e.proposed[driverID]; ok {
		e.mu.Unlock()
		return false, nil
	}
	e.proposed[driverID] = struct{}{}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	l.persist(snap)
	return true, nil
}

// Accept is the race the ledger must close: the check of
// status == PENDING and the transition to ASSIGNED happen under the
// per-request lock, so exactly one concurrent accept wins.
func (l *Ledger) Accept(requestID, driverID string) error {
	e, err := l.lookup(requestID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if e.status == StatusAssigned {
		e.mu.Unlock()
		return ErrAlreadyAssigned
	}
	if e.status.Terminal() {
		e.mu.Unlock()
		return ErrTerminal
	}
	if _, ok := e.rejected[driverID]; ok {
		e.mu.Unlock()
		return ErrAlreadyRejected
	}
	if _, ok := e.proposed[driverID]; !ok {
		e.mu.Unlock()
		return ErrNotProposed
	}
	e.status = StatusAssigned
	e.assigned = driverID
	snap := e.snapshotLocked()
	e.mu.Unlock()

	l.persist(snap)
	return nil
}

// Reject marks driverID as having declined. Idempotent; a no-op once
// the assignment is terminal. A rejected driver is never re-proposed
// and can never accept.
func (l *Ledger) Reject(requestID, driverID string) error {
	e, err := l.lookup(requestID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if e.status.Terminal() {
		e.mu.Unlock()
		return nil
	}
	if _, ok := e.rejected[driverID]; ok {
		e.mu.Unlock()
		return nil
	}
	e.rejected[driverID] = struct{}{}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	l.persist(snap)
	return nil
}

// Cancel transitions to CANCELLED unless the assignment already has a
// winner or is otherwise terminal, in which case it is a silent no-op.
func (l *Ledger) Cancel(requestID string) error {
	e, err := l.lookup(requestID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if e.status.Terminal() {
		e.mu.Unlock()
		return nil
	}
	e.status = StatusCancelled
	snap := e.snapshotLocked()
	e.mu.Unlock()

	l.persist(snap)
	return nil
}

// Fail transitions PENDING to FAILED; a no-op from any other state.
func (l *Ledger) Fail(requestID string) error {
	e, err := l.lookup(requestID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if e.status != StatusPending {
		e.mu.Unlock()
		return nil
	}
	e.status = StatusFailed
	snap := e.snapshotLocked()
	e.mu.Unlock()

	l.persist(snap)
	return nil
}

// AwaitingResponses counts proposed drivers who have neither accepted
// nor rejected yet.
func (l *Ledger) AwaitingResponses(requestID string) (int, error) {
	e, err := l.lookup(requestID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for d := range e.proposed {
		if _, ok := e.rejected[d]; ok {
			continue
		}
		if d == e.assigned {
			continue
		}
		n++
	}
	return n, nil
}

// Snapshot returns a copy of the current assignment state.
func (l *Ledger) Snapshot(requestID string) (Assignment, error) {
	e, err := l.lookup(requestID)
	if err != nil {
		return Assignment{}, err
	}
	return e.snapshot(), nil
}

func (l *Ledger) persist(snap Assignment) {
	if l.persister == nil {
		return
	}
	if err := l.persister.UpdateAssignment(snap); err != nil {
		l.logger.Error("assignment update failed", "request_id", snap.RequestID, "error", err)
	}
}

func (e *entry) snapshot() Assignment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *entry) snapshotLocked() Assignment {
	a := Assignment{
		RequestID: e.requestID,
		Status:    e.status,
		CreatedAt: e.createdAt,
		Proposed:  setToSlice(e.proposed),
		Rejected:  setToSlice(e.rejected),
	}
	if e.assigned != "" {
		d := e.assigned
		a.AssignedDriverID = &d
	}
	return a
}

func setToSlice(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

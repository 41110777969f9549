package notify

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// WSSession represents a connected driver session
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// WSGateway delivers notifications over live driver websockets.
type WSGateway struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSGateway() *WSGateway { return &WSGateway{sessions: make(map[string]*WSSession)} }

func (g *WSGateway) Add(driverID string, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[driverID] = &WSSession{conn: conn}
}

func (g *WSGateway) Remove(driverID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, driverID)
}

func (g *WSGateway) Connected(driverID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.sessions[driverID]
	return ok
}

func (g *WSGateway) send(driverID string, v interface{}) error {
	g.mu.RLock()
	s, ok := g.sessions[driverID]
	g.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(v); err != nil {
		log.Printf("ws send error: %v", err)
		return err
	}
	return nil
}

func (g *WSGateway) NotifyProposal(_ context.Context, p Proposal) error {
	p.Type = TypeProposal
	return g.send(p.DriverID, p)
}

func (g *WSGateway) NotifyCancelled(_ context.Context, driverID, requestID string) error {
	return g.send(driverID, Event{Type: TypeCancelled, RequestID: requestID, DriverID: driverID})
}

func (g *WSGateway) NotifyAddressChanged(_ context.Context, driverID, requestID string) error {
	return g.send(driverID, Event{Type: TypeAddressChanged, RequestID: requestID, DriverID: driverID})
}

var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no ws session" }

package notify

import "context"

// Composite tries the live websocket first and falls back to push for
// drivers without an open session. Nil fallback means WS-only.
type Composite struct {
	WS       *WSGateway
	Fallback Gateway
}

func NewComposite(ws *WSGateway, fallback Gateway) *Composite {
	return &Composite{WS: ws, Fallback: fallback}
}

func (c *Composite) NotifyProposal(ctx context.Context, p Proposal) error {
	if c.WS != nil && c.WS.Connected(p.DriverID) {
		return c.WS.NotifyProposal(ctx, p)
	}
	if c.Fallback != nil {
		return c.Fallback.NotifyProposal(ctx, p)
	}
	return ErrNoSession
}

func (c *Composite) NotifyCancelled(ctx context.Context, driverID, requestID string) error {
	if c.WS != nil && c.WS.Connected(driverID) {
		return c.WS.NotifyCancelled(ctx, driverID, requestID)
	}
	if c.Fallback != nil {
		return c.Fallback.NotifyCancelled(ctx, driverID, requestID)
	}
	return ErrNoSession
}

func (c *Composite) NotifyAddressChanged(ctx context.Context, driverID, requestID string) error {
	if c.WS != nil && c.WS.Connected(driverID) {
		return c.WS.NotifyAddressChanged(ctx, driverID, requestID)
	}
	if c.Fallback != nil {
		return c.Fallback.NotifyAddressChanged(ctx, driverID, requestID)
	}
	return ErrNoSession
}

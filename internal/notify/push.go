package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// PushGateway posts JSON to a push provider HTTPv1 endpoint using a
// server key or oauth token. Best-effort: a non-2xx response is not an
// error worth retrying here.
type PushGateway struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewPushGateway(endpoint, key string) *PushGateway {
	return &PushGateway{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (g *PushGateway) post(ctx context.Context, driverID string, payload interface{}) error {
	body := map[string]interface{}{"message": map[string]interface{}{"token": driverID, "data": payload}}
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, "POST", g.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Key != "" {
		req.Header.Set("Authorization", "Bearer "+g.Key)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (g *PushGateway) NotifyProposal(ctx context.Context, p Proposal) error {
	p.Type = TypeProposal
	return g.post(ctx, p.DriverID, p)
}

func (g *PushGateway) NotifyCancelled(ctx context.Context, driverID, requestID string) error {
	return g.post(ctx, driverID, Event{Type: TypeCancelled, RequestID: requestID, DriverID: driverID})
}

func (g *PushGateway) NotifyAddressChanged(ctx context.Context, driverID, requestID string) error {
	return g.post(ctx, driverID, Event{Type: TypeAddressChanged, RequestID: requestID, DriverID: driverID})
}

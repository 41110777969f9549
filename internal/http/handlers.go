package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/transit-dispatch/internal/dispatch"
	"github.com/example/transit-dispatch/internal/ingest"
	"github.com/example/transit-dispatch/internal/ledger"
	"github.com/example/transit-dispatch/internal/models"
	"github.com/example/transit-dispatch/internal/notify"
	"github.com/example/transit-dispatch/internal/positions"
)

// Server exposes the dispatch core over HTTP. Routing and status-code
// mapping live here; all matching semantics stay in the coordinator.
type Server struct {
	Coordinator *dispatch.Coordinator
	Positions   positions.Store
	Kafka       *ingest.KafkaProducer // optional
	WSGateway   *notify.WSGateway

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(coord *dispatch.Coordinator, store positions.Store, kafka *ingest.KafkaProducer, ws *notify.WSGateway, logger *slog.Logger) *Server {
	s := &Server{
		Coordinator: coord,
		Positions:   store,
		Kafka:       kafka,
		WSGateway:   ws,
		logger:      logger,
		mux:         mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/internal/driver/positions", s.handlePosition).Methods("POST")
	s.mux.HandleFunc("/api/v1/transits", s.handlePublish).Methods("POST")
	s.mux.HandleFunc("/api/v1/transits/{request_id}", s.handleSummary).Methods("GET")
	s.mux.HandleFunc("/api/v1/transits/{request_id}/dispatch", s.handleDispatch).Methods("POST")
	s.mux.HandleFunc("/api/v1/transits/{request_id}/accept", s.handleAccept).Methods("POST")
	s.mux.HandleFunc("/api/v1/transits/{request_id}/reject", s.handleReject).Methods("POST")
	s.mux.HandleFunc("/api/v1/transits/{request_id}/cancel", s.handleCancel).Methods("POST")
	s.mux.HandleFunc("/api/v1/transits/{request_id}/address-changed", s.handleAddressChanged).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	var sample models.PositionSample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if sample.ObservedAt.IsZero() {
		sample.ObservedAt = time.Now()
	}
	if err := s.Positions.Record(r.Context(), sample); err != nil {
		s.logger.Error("position record failed", "driver_id", sample.DriverID, "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	// publish to kafka if configured; ingestion must not depend on it
	if s.Kafka != nil {
		if err := s.Kafka.PublishSample(sample); err != nil {
			s.logger.Warn("sample publish failed", "driver_id", sample.DriverID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type publishRequest struct {
	RequestID string               `json:"request_id"`
	Pickup    models.Coord         `json:"pickup"`
	Class     *models.VehicleClass `json:"class,omitempty"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var body publishRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.RequestID == "" {
		body.RequestID = newID()
	}
	if _, err := s.Coordinator.CreateAssignment(body.RequestID, time.Now()); err != nil {
		s.writeError(w, err)
		return
	}
	s.runDispatch(w, r, models.TransitRequest{RequestID: body.RequestID, Pickup: body.Pickup, Class: body.Class})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var body publishRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req := models.TransitRequest{
		RequestID: mux.Vars(r)["request_id"],
		Pickup:    body.Pickup,
		Class:     body.Class,
	}
	s.runDispatch(w, r, req)
}

func (s *Server) runDispatch(w http.ResponseWriter, r *http.Request, req models.TransitRequest) {
	summary, err := s.Coordinator.Dispatch(r.Context(), req, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, summary)
}

type driverAction struct {
	DriverID string `json:"driver_id"`
	Fare     *struct {
		AmountCents int64  `json:"amount_cents"`
		Currency    string `json:"currency"`
		CustomerID  string `json:"customer_id"`
	} `json:"fare,omitempty"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var body driverAction
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var fare *dispatch.FareHold
	if body.Fare != nil {
		fare = &dispatch.FareHold{
			AmountCents: body.Fare.AmountCents,
			Currency:    body.Fare.Currency,
			CustomerID:  body.Fare.CustomerID,
		}
	}
	requestID := mux.Vars(r)["request_id"]
	if err := s.Coordinator.Accept(r.Context(), requestID, body.DriverID, fare); err != nil {
		s.writeError(w, err)
		return
	}
	summary, err := s.Coordinator.Summary(requestID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var body driverAction
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	requestID := mux.Vars(r)["request_id"]
	if err := s.Coordinator.Reject(r.Context(), requestID, body.DriverID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]
	if err := s.Coordinator.Cancel(r.Context(), requestID); err != nil {
		s.writeError(w, err)
		return
	}
	summary, err := s.Coordinator.Summary(requestID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleAddressChanged(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]
	if err := s.Coordinator.AddressChanged(r.Context(), requestID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Coordinator.Summary(mux.Vars(r)["request_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, summary)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSGateway.Add(id, conn)
}

// writeError maps ledger failures onto status codes so driver apps can
// tell "someone else got it" (409) from "you were never eligible" (422).
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrAlreadyExists), errors.Is(err, ledger.ErrAlreadyAssigned):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrNotProposed), errors.Is(err, ledger.ErrAlreadyRejected), errors.Is(err, ledger.ErrTerminal):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.logger.Error("internal error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }

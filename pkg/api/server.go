package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/havona/darkbook/pkg/book"
	"github.com/havona/darkbook/pkg/crypto"
	"github.com/havona/darkbook/pkg/host"
	"github.com/havona/darkbook/pkg/oracle"
)

// Server exposes the engine over REST and streams public notices over
// WebSocket. It is also the relay boundary: requests may be delivered by
// anyone, but every mutating call carries the trader's own signature and is
// attributed to the signer by the engine's identity resolver.
type Server struct {
	log    *zap.SugaredLogger
	engine *book.Engine
	att    *oracle.Attestation
	env    *crypto.EnvelopeSigner
	router *mux.Router
	hub    *Hub
}

func NewServer(engine *book.Engine, att *oracle.Attestation, env *crypto.EnvelopeSigner, log *zap.SugaredLogger) *Server {
	s := &Server{
		log:    log,
		engine: engine,
		att:    att,
		env:    env,
		router: mux.NewRouter(),
		hub:    NewHub(log),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	api.HandleFunc("/my/orders", s.handleMyOrders(false)).Methods("GET")
	api.HandleFunc("/my/orders/open", s.handleMyOrders(true)).Methods("GET")

	api.HandleFunc("/matches/count", s.handleMatchCount).Methods("GET")
	api.HandleFunc("/matches/{id}/key", s.handleMatchKey).Methods("GET")

	api.HandleFunc("/prices/{commodity}", s.handlePrice).Methods("GET")
	api.HandleFunc("/notices", s.handleNotices).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	go s.pumpNotices()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Darkbook-Signature", "X-Darkbook-Nonce"},
	})

	s.log.Infow("api_started", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// pumpNotices forwards the engine's public notices into the hub.
func (s *Server) pumpNotices() {
	ch, cancel := s.engine.Feed().Subscribe()
	defer cancel()
	for n := range ch {
		s.hub.Broadcast(n)
	}
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	commodity, err := parseCommodity(req.Commodity)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_commodity", err.Error())
		return
	}
	qty, err := parseFixed(req.Quantity)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_quantity", err.Error())
		return
	}
	price, err := parseFixed(req.PriceLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_price", err.Error())
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_side", err.Error())
		return
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_signature", err.Error())
		return
	}

	digest, err := s.env.HashPlace(&crypto.PlaceEnvelope{
		Commodity:  commodity,
		Quantity:   big.NewInt(qty),
		PriceLimit: big.NewInt(price),
		Side:       uint8(side),
		Nonce:      new(big.Int).SetUint64(req.Nonce),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "hash_failed", err.Error())
		return
	}

	call := host.SignedCall{Digest: digest, Signature: sig}
	id, err := s.engine.PlaceOrder(call, commodity, qty, price, side)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, PlaceOrderResponse{OrderID: id})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_signature", err.Error())
		return
	}

	digest, err := s.env.HashCancel(&crypto.CancelEnvelope{
		OrderID: new(big.Int).SetUint64(req.OrderID),
		Nonce:   new(big.Int).SetUint64(req.Nonce),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "hash_failed", err.Error())
		return
	}

	call := host.SignedCall{Digest: digest, Signature: sig}
	if err := s.engine.CancelOrder(call, req.OrderID); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]bool{"cancelled": true})
}

// queryCall reconstructs the signed read envelope from request headers, or
// returns an anonymous call when the headers are absent or malformed.
// Anonymous reads are legitimate: the engine answers them with empty
// results.
func (s *Server) queryCall(r *http.Request, method string, param uint64) host.Call {
	sigHex := r.Header.Get("X-Darkbook-Signature")
	nonceStr := r.Header.Get("X-Darkbook-Nonce")
	if sigHex == "" {
		return host.AnonymousCall{}
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return host.AnonymousCall{}
	}
	nonce, err := strconv.ParseUint(nonceStr, 10, 64)
	if err != nil {
		return host.AnonymousCall{}
	}
	digest, err := s.env.HashQuery(&crypto.QueryEnvelope{
		Method: method,
		Param:  new(big.Int).SetUint64(param),
		Nonce:  new(big.Int).SetUint64(nonce),
	})
	if err != nil {
		return host.AnonymousCall{}
	}
	return host.SignedCall{Digest: digest, Signature: sig}
}

func (s *Server) handleMyOrders(openOnly bool) http.HandlerFunc {
	method := "myOrders"
	if openOnly {
		method = "myOpenOrders"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		call := s.queryCall(r, method, 0)
		var orders []book.Order
		if openOnly {
			orders = s.engine.MyOpenOrders(call)
		} else {
			orders = s.engine.MyOrders(call)
		}
		out := make([]OrderInfo, 0, len(orders))
		for _, o := range orders {
			out = append(out, orderInfo(o))
		}
		respondJSON(w, out)
	}
}

func (s *Server) handleMatchCount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, MatchCountResponse{Count: s.engine.MatchCount()})
}

func (s *Server) handleMatchKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_match_id", err.Error())
		return
	}

	call := s.queryCall(r, "matchKey", id)
	key, err := s.engine.MatchKey(call, id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, MatchKeyResponse{MatchID: id, Key: hexutil.Encode(key)})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	commodity, err := parseCommodity(mux.Vars(r)["commodity"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_commodity", err.Error())
		return
	}

	price, updatedAt, err := s.att.Price(commodity)
	switch {
	case errors.Is(err, oracle.ErrNoData):
		respondError(w, http.StatusNotFound, "no_data", "")
		return
	case errors.Is(err, oracle.ErrStalePrice):
		respondError(w, http.StatusGone, "stale", "")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "oracle_error", err.Error())
		return
	}
	respondJSON(w, PriceResponse{
		Commodity: commodity.Hex(),
		Price:     formatFixed(price),
		UpdatedAt: updatedAt,
	})
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.engine.Feed().All())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: code, Detail: detail})
}

// respondEngineError maps engine sentinels to HTTP statuses without adding
// any detail the sentinel itself does not reveal.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, book.ErrInvalidOrder):
		respondError(w, http.StatusBadRequest, "invalid_order", "")
	case errors.Is(err, book.ErrBookFull):
		respondError(w, http.StatusConflict, "book_full", "")
	case errors.Is(err, book.ErrNotOwner):
		respondError(w, http.StatusForbidden, "not_owner", "")
	case errors.Is(err, book.ErrNotCancellable):
		respondError(w, http.StatusConflict, "not_cancellable", "")
	case errors.Is(err, book.ErrNotCounterparty):
		respondError(w, http.StatusForbidden, "not_counterparty", "")
	case errors.Is(err, host.ErrUnsigned):
		respondError(w, http.StatusUnauthorized, "unsigned", "")
	default:
		respondError(w, http.StatusBadRequest, "rejected", err.Error())
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/crosslock/darkpool/internal/auth"
	"github.com/crosslock/darkpool/internal/book"
	"github.com/crosslock/darkpool/internal/models"
)

// Store is the slice of persistence the handlers need. *db.DB
// implements it; tests use an in-memory fake.
type Store interface {
	SaveOrder(ctx context.Context, order *models.Order) error
	SetOrderAmount(ctx context.Context, orderID, amount uint64) error
	RecordMatches(ctx context.Context, records []models.MatchRecord) ([]models.Match, error)
	GetMatches(ctx context.Context) ([]models.Match, error)
	GetTraderOrders(ctx context.Context, trader string) ([]models.Order, error)
	GetTraderMatches(ctx context.Context, trader string) ([]models.Match, error)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Store Store
	Book  *book.Book
	Auth  *auth.Service
	Clock Clock
	Admin string // trader allowed to pause and resume the book
	Log   *zap.Logger

	// Match records whose journaling failed. The book pass has already
	// committed by then, so these cannot be regenerated; they are held
	// here and journaled ahead of the next pass.
	pendingMu sync.Mutex
	pending   []models.MatchRecord
}

// NewHandler creates a new handler
func NewHandler(store Store, b *book.Book, authService *auth.Service, clock Clock, admin string, log *zap.Logger) *Handler {
	return &Handler{Store: store, Book: b, Auth: authService, Clock: clock, Admin: admin, Log: log}
}

// bookErrorStatus maps book errors to HTTP status codes.
func bookErrorStatus(err error) int {
	switch {
	case errors.Is(err, book.ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, book.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, book.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, book.ErrPaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeBookError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(bookErrorStatus(err))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// Register handles trader registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Password == "" {
		http.Error(w, `{"error": "Name and password required"}`, http.StatusBadRequest)
		return
	}

	trader, err := h.Auth.Register(r.Context(), req.Name, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Failed to register trader"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":   trader.ID,
		"name": trader.Name,
	})
}

// Login handles trader login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := h.Auth.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens and puts the trader identity
// in the request context. That identity is what the book trusts.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, `{"error": "Authorization header required"}`, http.StatusUnauthorized)
			return
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		trader, err := h.Auth.TraderFromToken(tokenString)
		if err != nil {
			http.Error(w, `{"error": "Invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "trader", trader)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SubmitOrder handles order submission
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	trader, ok := r.Context().Value("trader").(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		TokenIn    string `json:"token_in"`
		TokenOut   string `json:"token_out"`
		Amount     uint64 `json:"amount"`
		LimitPrice uint64 `json:"limit_price"`
		IsBuy      bool   `json:"is_buy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	id, err := h.Book.Submit(req.TokenIn, req.TokenOut, req.Amount, req.LimitPrice, req.IsBuy, trader, h.Clock.Now())
	if err != nil {
		writeBookError(w, err)
		return
	}

	// Mirror the accepted order. If the mirror write fails the
	// submission is undone, so the call fails without partial state:
	// the book must not hold ids the mirror never saw.
	order, err := h.Book.Order(id)
	if err == nil {
		err = h.Store.SaveOrder(r.Context(), &order)
	}
	if err != nil {
		h.Log.Error("failed to mirror order", zap.Uint64("order_id", id), zap.Error(err))
		if rerr := h.Book.Rescind(id); rerr != nil {
			h.Log.Error("failed to rescind unmirrored order", zap.Uint64("order_id", id), zap.Error(rerr))
		}
		http.Error(w, `{"error": "Failed to persist order"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":  "Order submitted",
		"order_id": id,
	})
}

// CancelOrder cancels a resting order
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	trader, ok := r.Context().Value("trader").(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orderID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, `{"error": "Invalid order ID"}`, http.StatusBadRequest)
		return
	}

	if err := h.Book.Cancel(orderID, trader); err != nil {
		writeBookError(w, err)
		return
	}

	if err := h.Store.SetOrderAmount(r.Context(), orderID, 0); err != nil {
		h.Log.Error("failed to mirror cancel", zap.Uint64("order_id", orderID), zap.Error(err))
		http.Error(w, `{"error": "Failed to persist cancellation"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Order cancelled"})
}

// GetOrderBook returns the active order view in insertion order
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"orders": h.Book.ActiveOrders(),
		"count":  h.Book.Count(),
	})
}

// GetTraderOrders retrieves the calling trader's orders
func (h *Handler) GetTraderOrders(w http.ResponseWriter, r *http.Request) {
	trader, ok := r.Context().Value("trader").(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orders, err := h.Store.GetTraderOrders(r.Context(), trader)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve orders"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(orders)
}

// ExecuteMatch triggers one matching pass and journals its results for
// settlement.
func (h *Handler) ExecuteMatch(w http.ResponseWriter, r *http.Request) {
	results, err := h.Book.ExecuteMatch()
	if err != nil {
		writeBookError(w, err)
		return
	}

	records := make([]models.MatchRecord, 0, len(results))
	for _, m := range results {
		buy, err := h.Book.Order(m.BuyOrderID)
		if err != nil {
			h.Log.Error("matched order missing from book", zap.Uint64("order_id", m.BuyOrderID), zap.Error(err))
			http.Error(w, `{"error": "Failed to journal matches"}`, http.StatusInternalServerError)
			return
		}
		sell, err := h.Book.Order(m.SellOrderID)
		if err != nil {
			h.Log.Error("matched order missing from book", zap.Uint64("order_id", m.SellOrderID), zap.Error(err))
			http.Error(w, `{"error": "Failed to journal matches"}`, http.StatusInternalServerError)
			return
		}
		records = append(records, models.MatchRecord{
			Result:        m,
			BuyRemaining:  buy.Amount,
			SellRemaining: sell.Amount,
		})
	}

	// Journal any records retained from an earlier failed pass ahead
	// of this pass's, in one transaction.
	h.pendingMu.Lock()
	records = append(h.pending, records...)
	h.pending = nil
	h.pendingMu.Unlock()

	if len(records) > 0 {
		if _, err := h.Store.RecordMatches(r.Context(), records); err != nil {
			// The pass has committed in the book; the records are the
			// only copy, so retain them for the next attempt.
			h.pendingMu.Lock()
			h.pending = append(records, h.pending...)
			h.pendingMu.Unlock()
			h.Log.Error("failed to journal matches; retained for retry",
				zap.Int("records", len(records)), zap.Error(err))
			http.Error(w, `{"error": "Failed to journal matches"}`, http.StatusInternalServerError)
			return
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"matches": results,
		"count":   len(results),
	})
}

// GetMatches returns the settlement journal
func (h *Handler) GetMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.Store.GetMatches(r.Context())
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve matches"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(matches)
}

// GetTraderMatches returns matches involving the calling trader's orders
func (h *Handler) GetTraderMatches(w http.ResponseWriter, r *http.Request) {
	trader, ok := r.Context().Value("trader").(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	matches, err := h.Store.GetTraderMatches(r.Context(), trader)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve matches"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(matches)
}

// Pause halts all mutating operations on the book
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// Resume lifts the halt
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *Handler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	trader, ok := r.Context().Value("trader").(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if trader != h.Admin {
		http.Error(w, `{"error": "Admin only"}`, http.StatusForbidden)
		return
	}

	h.Book.SetPaused(paused)
	h.Log.Info("book pause state changed", zap.Bool("paused", paused), zap.String("by", trader))
	json.NewEncoder(w).Encode(map[string]bool{"paused": paused})
}

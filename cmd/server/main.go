package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/crosslock/darkpool/internal/api"
	"github.com/crosslock/darkpool/internal/auth"
	"github.com/crosslock/darkpool/internal/book"
	"github.com/crosslock/darkpool/internal/config"
	"github.com/crosslock/darkpool/internal/db"
	"github.com/crosslock/darkpool/internal/logging"
	"github.com/crosslock/darkpool/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type WSClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

var (
	clients   = make(map[*WSClient]bool)
	clientsMu sync.RWMutex
)

func broadcastOrderBook(b *book.Book, log *zap.Logger) {
	view := struct {
		Orders []models.Order `json:"orders"`
		Count  int            `json:"count"`
	}{
		Orders: b.ActiveOrders(),
		Count:  b.Count(),
	}
	data, err := json.Marshal(view)
	if err != nil {
		log.Error("failed to marshal order book", zap.Error(err))
		return
	}

	clientsMu.RLock()
	stale := make([]*WSClient, 0)
	for client := range clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			log.Warn("failed to send order book", zap.Error(err))
			stale = append(stale, client)
		}
	}
	clientsMu.RUnlock()

	if len(stale) > 0 {
		clientsMu.Lock()
		for _, client := range stale {
			delete(clients, client)
		}
		clientsMu.Unlock()
	}
}

func handleWebSocket(b *book.Book, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("failed to upgrade connection", zap.Error(err))
			return
		}

		client := &WSClient{conn: conn}
		clientsMu.Lock()
		clients[client] = true
		clientsMu.Unlock()

		// Send initial order book
		broadcastOrderBook(b, log)

		// Keep connection alive and handle disconnection
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				clientsMu.Lock()
				delete(clients, client)
				clientsMu.Unlock()
				break
			}
		}
	}
}

// Main entry point: sets up database, book, and HTTP server
func main() {
	ctx := context.Background()
	cfg := config.Load()

	log, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Restore the book from the order mirror.
	b := book.New(book.Config{RetainRemainder: cfg.RetainRemainder})
	orders, err := database.LoadOrders(ctx)
	if err != nil {
		log.Fatal("failed to load orders", zap.Error(err))
	}
	b.Restore(orders)
	log.Info("order book restored",
		zap.Int("slots", b.Count()),
		zap.Int("active", len(b.ActiveOrders())))

	authService := auth.NewService(database, []byte(cfg.JWTSecret))
	handler := api.NewHandler(database, b, authService, api.RealClock(), cfg.AdminTrader, log)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WebSocket endpoint
	r.Get("/ws", handleWebSocket(b, log))

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Post("/orders", handler.SubmitOrder)
		r.Get("/orders", handler.GetTraderOrders)
		r.Delete("/orders/{id}", handler.CancelOrder)
		r.Get("/orderbook", handler.GetOrderBook)
		r.Post("/match", handler.ExecuteMatch)
		r.Get("/matches", handler.GetMatches)
		r.Get("/trades", handler.GetTraderMatches)
		r.Post("/admin/pause", handler.Pause)
		r.Post("/admin/resume", handler.Resume)
	})

	// Start periodic order book broadcast
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		for range ticker.C {
			broadcastOrderBook(b, log)
		}
	}()

	log.Info("starting server", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

// Package main our entry point.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/chatrelay/chatrelay/internal"
	"github.com/chatrelay/chatrelay/internal/broker"
	"github.com/chatrelay/chatrelay/internal/handler"
	"github.com/chatrelay/chatrelay/internal/history"
	"github.com/chatrelay/chatrelay/internal/model"
	ratelimiter "github.com/chatrelay/chatrelay/internal/rate_limiter"
	"github.com/chatrelay/chatrelay/internal/registry"
	"github.com/chatrelay/chatrelay/internal/relay"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("failed to load .env file: %+v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:              "0.0.0.0:" + port,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	log.Println("Starting application...")

	// Init NATS. The broker is optional: without NATS_URL the relay runs
	// without the history pipeline.
	var (
		conn   *nats.Conn
		js     jetstream.JetStream
		stream jetstream.Stream
	)

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		log.Println("Initializing NATS connection...")

		var natsCredentials []nats.Option

		if cred := os.Getenv("NATS_CRED"); cred != "" {
			natsCredentials = append(natsCredentials, nats.UserCredentials(cred))
		} else if user, pass := os.Getenv("NATS_USER"), os.Getenv("NATS_PASSWORD"); user != "" && pass != "" {
			natsCredentials = append(natsCredentials, nats.UserInfo(user, pass))
		}

		natsCredentials = append(natsCredentials, nats.Timeout(5*time.Second))

		var err error
		conn, err = nats.Connect(natsURL, natsCredentials...)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}

		js, err = jetstream.New(conn)
		if err != nil {
			log.Fatalf("failed to create jetstream instance: %v", err)
		}

		stream, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     broker.StreamName,
			Subjects: []string{broker.SubjectAllRooms},
			MaxBytes: 1 << 30, // 1GB max storage
		})
		if err != nil {
			log.Fatalf("failed to create/update stream: %v", err)
		}
	}

	// Init DB. Also optional; history queries need it.
	var (
		dbConn *pgxpool.Pool
		store  *history.Store
	)

	if dbURL := os.Getenv("DB_URL"); dbURL != "" {
		log.Println("Initializing Database connection...")

		var err error
		dbConn, err = pgxpool.New(ctx, dbURL)
		if err != nil {
			log.Fatalf("could not connect to the postgresql database: %v", err)
		}

		store = history.New(dbConn)
	}

	// hub.Run is our central event loop; it owns the room membership index.
	hub := relay.NewHub(registry.New(), js)
	go hub.Run(ctx)

	// Drain relayed messages from the broker into the history store.
	if stream != nil && store != nil {
		fromBroker := make(chan model.Message, 1024)
		if err := broker.Subscribe(ctx, stream, fromBroker); err != nil {
			log.Printf("failed to subscribe to broker: %v", err)
		} else {
			go store.Run(ctx, fromBroker)
		}
	}

	limiter := ratelimiter.NewIPRateLimiter(60, time.Minute, ratelimiter.CleanupOpts{
		TTL:      10 * time.Minute,
		Interval: time.Minute,
	})
	defer limiter.Cancel()

	limits := handler.Limits{
		MessagesPerMinute: envInt("MESSAGES_PER_MINUTE", 30),
		TypingPerMinute:   envInt("TYPING_PER_MINUTE", 120),
	}
	tokenSecret := os.Getenv("IDENTITY_SECRET")

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return limiter.Middleware(next) })

	fs := http.FileServer(http.Dir("static"))
	r.Handle("/static/*", http.StripPrefix("/static/", fs))

	r.Get("/healthz", handler.Healthz())
	r.Get("/history", handler.ServeHistory(store))
	r.Get("/rooms/{room}/stream", handler.StreamRoom(hub))
	r.Method(http.MethodGet, "/ws", internal.Middleware(handler.ServeWs(hub, limits), tokenSecret))
	r.Get("/", handler.ServeRoot())

	server.Handler = r

	go func() {
		log.Printf("Server starting at 0.0.0.0:%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutdown signal received; shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println(err)
	}

	// Drain NATS connection.
	if conn != nil {
		if err := conn.Drain(); err != nil {
			log.Printf("couldn't drain NATS conn: %+v", err)
		}
	}

	// Close DB connection.
	if dbConn != nil {
		dbConn.Close()
	}

	log.Println("Server stopped")
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid value for %s: %q, using %d", key, raw, fallback)
		return fallback
	}
	return n
}

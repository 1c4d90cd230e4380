package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/adapter/postgres"
	"github.com/confetex/tracker/internal/adapter/rabbitmq"
	"github.com/confetex/tracker/internal/adapter/ws"
	"github.com/confetex/tracker/internal/app/production"
	"github.com/confetex/tracker/internal/app/queue"
	"github.com/confetex/tracker/internal/cache"
	"github.com/confetex/tracker/internal/client"
	"github.com/confetex/tracker/internal/config"
	"github.com/confetex/tracker/internal/domain"
	"github.com/confetex/tracker/internal/interfaces"
	"github.com/confetex/tracker/internal/realtime"

	httpAdapter "github.com/confetex/tracker/internal/adapter/http"
)

func main() {
	mode := flag.String("mode", "", "Service mode: server, dashboard")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	serverURL := flag.String("server", "http://localhost:3000", "Server base URL (dashboard mode)")
	name := flag.String("name", "", "Operator name (dashboard mode)")
	department := flag.String("department", "", "Operator department (dashboard mode)")
	flag.Parse()

	if *mode == "" {
		log.Fatal("--mode flag is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lgr := logger.New(*mode)

	switch *mode {
	case "server":
		runServer(cfg, lgr)
	case "dashboard":
		if *name == "" || *department == "" {
			log.Fatal("--name and --department are required for dashboard mode")
		}
		runDashboard(cfg, lgr, *serverURL, *name, domain.Department(*department))
	default:
		log.Fatalf("Invalid mode: %s", *mode)
	}
}

func runServer(cfg *config.Config, lgr logger.Logger) {
	ctx := context.Background()

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
		"host": cfg.Database.Host,
		"db":   cfg.Database.Database,
	})

	// The broker mirror is optional: websocket delivery never depends on it.
	var publisher interfaces.EventPublisher
	if cfg.RabbitMQ.Enabled {
		mqConn, err := rabbitmq.Connect(cfg.RabbitMQ)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer mqConn.Close()
		publisher = rabbitmq.NewPublisher(mqConn)

		lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
			"host": cfg.RabbitMQ.Host,
		})
	}

	orderRepo := postgres.NewOrderRepository(db)
	progressRepo := postgres.NewProgressRepository(db)
	reprintRepo := postgres.NewReprintRepository(db)

	responses := cache.New(cfg.Cache.Capacity, cfg.Cache.PriorityPrefixes)
	dispatcher := realtime.NewDispatcher(lgr)

	productionService := production.NewService(orderRepo, progressRepo, reprintRepo, responses, dispatcher, publisher, lgr)
	queueService := queue.NewService(orderRepo, progressRepo, reprintRepo, responses, cfg.Cache, lgr)

	orderHandler := httpAdapter.NewOrderHandler(productionService, queueService, lgr)
	queueHandler := httpAdapter.NewQueueHandler(queueService, lgr)
	reprintHandler := httpAdapter.NewReprintHandler(productionService, queueService, lgr)
	wsServer := ws.NewServer(dispatcher, cfg.Realtime, lgr)

	mux := http.NewServeMux()
	mux.HandleFunc("/orders", orderHandler.HandleOrders)
	mux.HandleFunc("/orders/", orderHandler.HandleOrders)
	mux.HandleFunc("/departments/", queueHandler.HandleDepartments)
	mux.HandleFunc("/counts", queueHandler.HandleCounts)
	mux.HandleFunc("/reprints", reprintHandler.HandleReprints)
	mux.HandleFunc("/reprints/", reprintHandler.HandleReprints)
	mux.HandleFunc("/ws", wsServer.Handle)

	handler := httpAdapter.IdentityMiddleware()(mux)
	handler = httpAdapter.LoggingMiddleware(lgr)(handler)
	handler = httpAdapter.RecoveryMiddleware(lgr)(handler)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Write timeout would kill long-lived websocket connections; the
		// heartbeat protocol handles dead peers instead.
		IdleTimeout: 60 * time.Second,
	}

	lgr.Info("service_started", fmt.Sprintf("Tracking server started on port %d", cfg.Server.Port), "startup", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		lgr.Info("shutdown_initiated", "Shutting down tracking server", "shutdown", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			lgr.Error("shutdown_error", "Error during shutdown", "shutdown", nil, err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		lgr.Error("server_error", "Server error", "runtime", nil, err)
	}
}

// runDashboard drives the client core headless: event channel, invalidation
// bridge, query cache, and the polling safety net against a running server.
func runDashboard(cfg *config.Config, lgr logger.Logger, serverURL, name string, dept domain.Department) {
	if !domain.Valid(dept) {
		log.Fatalf("Invalid department: %s", dept)
	}
	identity := interfaces.StaticIdentity{Name: name, Department: dept}

	api := &apiClient{
		baseURL:  strings.TrimRight(serverURL, "/"),
		identity: interfaces.Identity(identity),
		http:     &http.Client{Timeout: 15 * time.Second},
	}

	queries := client.NewQueryCache()
	defer queries.Close()

	queries.Register(cache.QueueKey(string(dept)), api.fetcher("/departments/"+string(dept)+"/queue"))
	queries.Register(cache.CountsKey(), api.fetcher("/counts"))
	queries.Register(cache.StatsKey(string(dept)), api.fetcher("/departments/"+string(dept)+"/stats"))
	queries.Register(cache.ReprintsKey(), api.fetcher("/reprints"))

	var poller *client.Poller

	bridge := client.NewBridge(queries, lgr, func(ev domain.Event) {
		// Push delivery just refreshed us; hold the next scheduled poll off.
		poller.MarkRefreshed()
		lgr.Info("event_received", "Server event", "", map[string]interface{}{
			"type": string(ev.Type),
		})
	})

	wsURL := strings.Replace(api.baseURL, "http", "ws", 1) + "/ws"
	conn := client.NewConn(wsURL, cfg.Realtime, identity, bridge.HandleEvent, lgr)
	defer conn.Close()

	poller = client.NewPoller(cfg.Realtime, conn, func(ctx context.Context) error {
		queries.InvalidateAll()
		_, err := queries.Get(ctx, cache.CountsKey())
		return err
	}, lgr)
	defer poller.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn.Connect()
	poller.Start(ctx)

	lgr.Info("dashboard_started", "Dashboard client running", "startup", map[string]interface{}{
		"operator":   name,
		"department": string(dept),
		"server":     serverURL,
	})

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	<-sigint

	lgr.Info("shutdown_initiated", "Shutting down dashboard client", "shutdown", nil)
}

// apiClient fetches the server's read endpoints with the identity headers
// the auth proxy would normally inject.
type apiClient struct {
	baseURL  string
	identity interfaces.Identity
	http     *http.Client
}

func (a *apiClient) fetcher(path string) client.FetchFunc {
	return func(ctx context.Context) (any, error) {
		return a.getJSON(ctx, path)
	}
}

func (a *apiClient) getJSON(ctx context.Context, path string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-User-Name", a.identity.Name)
	req.Header.Set("X-User-Department", string(a.identity.Department))

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}

	var out any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("GET %s: decoding response: %w", path, err)
	}
	return out, nil
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"agentgateway/clients/natsclient"
	"agentgateway/config"
	"agentgateway/correlator"
	"agentgateway/db"
	"agentgateway/gateway"
	"agentgateway/handlers"
	"agentgateway/middleware"
	"agentgateway/models"
	"agentgateway/services/agents"
	"agentgateway/services/authrelay"
	"agentgateway/services/onboarding"
	"agentgateway/usecases/dispatch"
	"agentgateway/usecases/relay"
)

const staleAgentThresholdMinutes = 5

func main() {
	if err := run(); err != nil {
		log.Printf("❌ Fatal error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	// Initialize database connection
	dbConn, err := db.NewConnection(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	// Initialize message broker connection
	broker, err := natsclient.NewNATSBrokerClient(cfg.NATSURL)
	if err != nil {
		return err
	}
	defer broker.Close()

	// Initialize repositories and services
	agentsRepo := db.NewPostgresAgentsRepository(dbConn, cfg.DatabaseSchema)
	agentsService := agents.NewAgentsService(agentsRepo)
	coordinator := onboarding.NewCoordinator(agentsRepo)

	authClient := authrelay.NewClient(broker, correlator.NewCorrelator(), cfg.AuthTimeout)
	if err := authClient.Start(); err != nil {
		return err
	}
	defer authClient.Stop()

	// Session registry and the correlator shared by all agent sessions
	registry := gateway.NewRegistry()
	sessionCorr := correlator.NewCorrelator()

	resolver := &dispatch.RegistryResolver{Registry: registry}
	dispatcher := dispatch.NewDispatcher(authClient, resolver, cfg.CommandTimeout)

	commandRelay := relay.NewRelay(broker, resolver, cfg.CommandTimeout)
	if err := commandRelay.Start(); err != nil {
		return err
	}
	defer commandRelay.Stop()

	// Handlers
	onboardingHandler := handlers.NewOnboardingHandler(coordinator, authClient)
	wsHandler := handlers.NewWebSocketHandler(authClient, registry, agentsService, sessionCorr, gateway.SessionConfig{
		HeartbeatInterval:   cfg.WebSocket.HeartbeatInterval,
		IdleTimeout:         cfg.WebSocket.IdleTimeout,
		MaxOutstandingCalls: cfg.WebSocket.MaxOutstandingCalls,
	})
	commandsHandler := handlers.NewCommandsHandler(dispatcher)
	agentsHandler := handlers.NewAgentsHandler(agentsService, registry)
	relayHandler := handlers.NewRelayHandler(commandRelay)

	router := mux.NewRouter()

	router.HandleFunc("/v1/agents/onboard", onboardingHandler.OnboardAgent).Methods("POST")
	router.HandleFunc("/v1/agents/ws", wsHandler.ServeWS).Methods("GET")

	// Command endpoints authenticate inside the dispatcher
	router.HandleFunc("/v1/agents/{agentID}/namespaces", commandsHandler.GetNamespaces).Methods("GET")
	router.HandleFunc("/v1/agents/{agentID}/pods", commandsHandler.GetPods).Methods("GET")
	router.HandleFunc("/v1/agents/{agentID}/logs", commandsHandler.TailLogs).Methods("GET")

	readAuth := middleware.APIKeyAuthMiddleware(authClient, models.ScopeAgentsRead)
	router.Handle("/v1/agents", readAuth(http.HandlerFunc(agentsHandler.ListConnectedAgents))).Methods("GET")

	onboardAuth := middleware.APIKeyAuthMiddleware(authClient, models.ScopeAgentsOnboard)
	router.Handle("/v1/agents/{agentID}/cluster", onboardAuth(http.HandlerFunc(onboardingHandler.BindCluster))).Methods("POST")

	commandAuth := middleware.APIKeyAuthMiddleware(authClient, models.ScopeAgentsCommand)
	router.Handle("/v1/relay/agents/{agentID}/namespaces", commandAuth(http.HandlerFunc(relayHandler.GetNamespaces))).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			log.Printf("❌ Failed to write health check response: %v", err)
		}
	}).Methods("GET")

	// Periodically flip silent agents to disconnected in the durable table
	cleanupTicker := time.NewTicker(1 * time.Minute)
	go func() {
		for range cleanupTicker.C {
			if _, err := agentsService.CleanupStaleAgents(context.Background(), staleAgentThresholdMinutes); err != nil {
				log.Printf("❌ Stale agent cleanup failed: %v", err)
			}
		}
	}()
	defer cleanupTicker.Stop()

	// Setup CORS middleware
	allowedOrigins := strings.Split(cfg.CORSAllowedOrigins, ",")
	for i, origin := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(origin)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-API-Key", "X-Agent-API-Key", "X-Agent-ID"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 30 * time.Second,
	}

	return handleGracefulShutdown(server, registry)
}

func handleGracefulShutdown(server *http.Server, registry *gateway.Registry) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("✅ Listening on http://localhost%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ Server error: %v", err)
		}
	}()

	<-stop
	log.Printf("🛑 Shutdown signal received, cleaning up...")

	// Closing sessions first fails their in-flight calls instead of letting
	// them dangle through server shutdown.
	for _, agentID := range registry.ConnectedAgentIDs() {
		if session, ok := registry.Lookup(agentID); ok {
			session.Close()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("❌ Server shutdown error: %v", err)
		return err
	}

	log.Printf("✅ Server stopped gracefully")
	return nil
}

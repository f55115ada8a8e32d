package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/profitwave/support-chat-api/api"
	"github.com/profitwave/support-chat-api/api/chathub"
	"github.com/profitwave/support-chat-api/api/scheduler"
	"github.com/profitwave/support-chat-api/config"
	"github.com/profitwave/support-chat-api/databases"
	"github.com/profitwave/support-chat-api/models"
)

// App stores the router, db connection and realtime hub, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	Hub       *chathub.Hub
	Scheduler *scheduler.Scheduler

	dbHelper databases.DatabaseHelper
	socketio *SocketIO
	issuer   *api.SocketTokenIssuer
	notifier *NotificationHub
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	m := api.MiddlewareDB{DB: databases.NewUserDatabase(a.dbHelper)}
	m.SetupGoGuardian()

	r := mux.NewRouter()
	r.Use(api.MetricsMiddleware)

	chatDB := databases.NewChatDatabase(a.dbHelper)
	c := Chat{DB: chatDB, Notifier: a.notifier}
	auth := Auth{Issuer: a.issuer}
	ws := ChatWebSocket{Hub: a.Hub, Issuer: a.issuer}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)
	r.Handle("/metrics", promhttp.Handler())

	// realtime transports; both speak the same events against one hub
	r.Handle("/socket.io/", a.socketio.Server())
	r.HandleFunc("/ws/chat", ws.HandleWebSocket)
	r.HandleFunc("/ws/notifications", a.notifier.HandleWebSocket)

	// REST routes only; the realtime endpoints above hold connections open
	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(15 * time.Second))

	apiCreate.Handle("/auth/token", http.HandlerFunc(m.CreateToken)).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(api.RevokeToken))).Methods("DELETE")
	apiCreate.Handle("/auth/socket-token", api.Middleware(http.HandlerFunc(auth.SocketTokenHandler))).Methods("POST")

	apiCreate.Handle("/chat", api.Middleware(http.HandlerFunc(c.ChatHistoryHandler))).Methods("GET")
	apiCreate.Handle("/chat", api.Middleware(http.HandlerFunc(c.CreateChatMessageHandler))).Methods("POST")
	apiCreate.Handle("/chat", api.Middleware(http.HandlerFunc(c.MarkChatMessageReadHandler))).Methods("PUT")

	apiCreate.Handle("/admin/chat/conversations", api.AdminMiddleware(http.HandlerFunc(c.ConversationsHandler))).Methods("GET")
	apiCreate.Handle("/admin/chat/stale", api.AdminMiddleware(http.HandlerFunc(c.CleanupStaleHandler))).Methods("DELETE")
	apiCreate.Handle("/admin/chat", api.AdminMiddleware(http.HandlerFunc(c.ChatHistoryHandler))).Methods("GET")
	apiCreate.Handle("/admin/chat", api.AdminMiddleware(http.HandlerFunc(c.AdminCreateChatMessageHandler))).Methods("POST")
	apiCreate.Handle("/admin/chat", api.AdminMiddleware(http.HandlerFunc(c.MarkChatMessageReadHandler))).Methods("PUT")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("support-chat-api has connected to the database")

	mailer := chathub.NewSendgridMailer(a.Config.SendgridAPIKey, a.Config.SupportEmail)
	if mailer == nil {
		a.Hub = chathub.New(a.Config.MessageRPS, a.Config.MessageBurst, nil)
	} else {
		a.Hub = chathub.New(a.Config.MessageRPS, a.Config.MessageBurst, mailer)
	}

	a.issuer = api.NewSocketTokenIssuer(a.Config.SocketJWTSecret)
	a.notifier = NewNotificationHub(a.issuer)
	a.socketio = NewSocketIO(a.Hub, a.issuer)

	a.Scheduler = scheduler.NewScheduler(databases.NewChatDatabase(a.dbHelper), 24*time.Hour)
	a.Scheduler.Start()

	// initialize api router
	a.initializeRoutes()
	return nil

}

// Shutdown stops the background pieces started by Initialize
func (a *App) Shutdown() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.socketio != nil {
		_ = a.socketio.Close()
	}
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}

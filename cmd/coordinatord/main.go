// Command coordinatord is the coordination daemon: it serves the JSON-RPC
// tool surface, the project status resource, the websocket observer hub,
// and wires the supporting subsystems (AgentRunner, HealthMonitor, the
// NATS bridge, and notification channels) around the durable store.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/coordinator-core/coordinator/internal/coordination"
	"github.com/coordinator-core/coordinator/internal/events"
	"github.com/coordinator-core/coordinator/internal/health"
	natsbridge "github.com/coordinator-core/coordinator/internal/nats"
	"github.com/coordinator-core/coordinator/internal/notifications"
	"github.com/coordinator-core/coordinator/internal/notifications/external"
	"github.com/coordinator-core/coordinator/internal/runner"
	"github.com/coordinator-core/coordinator/internal/sandbox"
	"github.com/coordinator-core/coordinator/internal/store"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "coordinatord",
		Short:         "Multi-agent coordination daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

type serveFlags struct {
	dbPath            string
	httpAddr          string
	natsPort          int
	sandboxBaseDir    string
	maxSandboxes      int
	sandboxAutoClean  bool
	healthWebhookURL  string
	slackWebhookURL   string
	discordWebhookURL string
	smtpHost          string
	smtpPort          int
	smtpUser          string
	smtpPass          string
	smtpFrom          string
	smtpTo            string
}

func newServeCmd() *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordination daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(f)
		},
	}

	cmd.Flags().StringVar(&f.dbPath, "db", "data/coordinator.db", "path to the SQLite state store")
	cmd.Flags().StringVar(&f.httpAddr, "http-addr", ":8080", "address the coordination HTTP server listens on")
	cmd.Flags().IntVar(&f.natsPort, "nats-port", 4222, "port for the embedded NATS server")
	cmd.Flags().StringVar(&f.sandboxBaseDir, "sandbox-base-dir", "data/sandboxes", "base directory for agent sandboxes")
	cmd.Flags().IntVar(&f.maxSandboxes, "max-sandboxes", 8, "maximum concurrently running agent sandboxes")
	cmd.Flags().BoolVar(&f.sandboxAutoClean, "sandbox-auto-cleanup", true, "drop the in-memory records of non-running sandboxes after each stop, failure or timeout")
	cmd.Flags().StringVar(&f.healthWebhookURL, "health-webhook-url", "", "webhook POSTed on critical/offline health transitions")
	cmd.Flags().StringVar(&f.slackWebhookURL, "slack-webhook-url", "", "Slack incoming webhook for notification routing")
	cmd.Flags().StringVar(&f.discordWebhookURL, "discord-webhook-url", "", "Discord incoming webhook for notification routing")
	cmd.Flags().StringVar(&f.smtpHost, "smtp-host", "", "SMTP host for email notifications (unset disables the channel)")
	cmd.Flags().IntVar(&f.smtpPort, "smtp-port", 587, "SMTP port")
	cmd.Flags().StringVar(&f.smtpUser, "smtp-user", "", "SMTP username")
	cmd.Flags().StringVar(&f.smtpPass, "smtp-password", "", "SMTP password")
	cmd.Flags().StringVar(&f.smtpFrom, "smtp-from", "", "From address for email notifications")
	cmd.Flags().StringVar(&f.smtpTo, "smtp-to", "", "Comma-separated recipient list for email notifications")

	return cmd
}

// runServe wires every subsystem and blocks until a shutdown signal
// arrives, then tears them down in reverse dependency order.
func runServe(f *serveFlags) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}

	st, err := store.Open(f.dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	eventStore, eventsDB, err := openEventStore(f.dbPath)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	if eventsDB != nil {
		defer eventsDB.Close()
	}
	bus := events.NewBus(eventStore)

	if sqliteStore, ok := eventStore.(*events.SQLiteStore); ok {
		stopCleanup := startEventCleanup(sqliteStore, eventCleanupInterval, eventRetention)
		defer stopCleanup()
	}

	sandboxes := sandbox.NewManager(sandbox.NewLocalProvider(f.sandboxBaseDir), f.maxSandboxes, f.sandboxAutoClean)
	agentRunner := runner.NewRunner(sandboxes, bus)

	coordinator := coordination.NewCoordinator(st, bus)
	httpServer := coordination.NewServer(coordinator)
	router := mux.NewRouter()
	httpServer.RegisterRoutes(router)

	notifyRouter := buildNotificationRouter(f)
	stopNotify := pumpNotifications(bus, notifyRouter)
	defer stopNotify()

	monitor := health.NewMonitor(health.Config{
		Store: st,
		Bus:   bus,
		ProjectIDs: func() []string {
			ids, err := st.ListProjectIDs()
			if err != nil {
				return nil
			}
			return ids
		},
		WebhookURL: f.healthWebhookURL,
	})
	monitor.Start()
	defer monitor.Stop()

	natsServer, natsClient, natsHandler, err := startNATSBridge(f.natsPort, st, agentRunner)
	if err != nil {
		return fmt.Errorf("start nats bridge: %w", err)
	}
	defer natsHandler.Stop()
	defer natsClient.Close()
	defer natsServer.Shutdown()

	httpSrv := &http.Server{
		Addr:    f.httpAddr,
		Handler: router,
	}
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpSrv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
	case <-shutdown:
	}

	agentRunner.StopAllAgents(context.Background())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// eventCleanupInterval and eventRetention govern how often and how long
// delivered events stay in events.db before startEventCleanup prunes them;
// undelivered events are never touched regardless of age.
const (
	eventCleanupInterval = 1 * time.Hour
	eventRetention       = 72 * time.Hour
)

// startEventCleanup runs SQLiteStore.Cleanup on a fixed schedule so events.db
// doesn't grow unbounded across a long-lived coordinatord process. Returns a
// stop function that halts the loop and blocks until it has exited.
func startEventCleanup(store *events.SQLiteStore, interval, retention time.Duration) (stop func()) {
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if err := store.Cleanup(retention); err != nil {
					fmt.Fprintf(os.Stderr, "[EVENTS] cleanup failed: %v\n", err)
				}
			}
		}
	}()

	return func() {
		close(stopCh)
		<-doneCh
	}
}

// openEventStore opens a sibling SQLite database for durable event
// persistence, separate from the transactional state store so a burst of
// event writes never contends with task/lock transactions. Returns a nil
// store (in-memory-only bus) when dbPath is ":memory:".
func openEventStore(dbPath string) (events.EventStore, *sql.DB, error) {
	if dbPath == ":memory:" {
		return nil, nil, nil
	}
	dir := filepath.Dir(dbPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create event store directory: %w", err)
		}
	}
	eventsPath := filepath.Join(dir, "events.db")
	db, err := sql.Open("sqlite", "file:"+eventsPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, nil, err
	}
	eventStore, err := events.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return eventStore, db, nil
}

// buildNotificationRouter wires one channel per configured webhook/SMTP
// flag, activating a notifier only when its config is actually present.
func buildNotificationRouter(f *serveFlags) *notifications.Router {
	var channels []notifications.NotificationChannel
	if f.slackWebhookURL != "" {
		channels = append(channels, external.NewSlackNotifier(external.SlackConfig{
			WebhookURL: f.slackWebhookURL,
			Username:   "coordinator",
		}))
	}
	if f.discordWebhookURL != "" {
		channels = append(channels, external.NewDiscordNotifier(external.DiscordConfig{
			WebhookURL: f.discordWebhookURL,
			Username:   "coordinator",
		}))
	}
	if f.smtpHost != "" && f.smtpFrom != "" && f.smtpTo != "" {
		var to []string
		for _, addr := range strings.Split(f.smtpTo, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				to = append(to, addr)
			}
		}
		channels = append(channels, external.NewEmailNotifier(external.EmailConfig{
			SMTPHost: f.smtpHost,
			SMTPPort: f.smtpPort,
			Username: f.smtpUser,
			Password: f.smtpPass,
			From:     f.smtpFrom,
			To:       to,
		}))
	}
	return notifications.NewRouter(channels)
}

// pumpNotifications subscribes to every coordination event and routes it
// through notifyRouter, returning a function that unsubscribes.
func pumpNotifications(bus *events.Bus, notifyRouter *notifications.Router) func() {
	ch := bus.Subscribe("all", nil)
	go func() {
		for ev := range ch {
			notifyRouter.Route(ev)
		}
	}()
	return func() {
		bus.Unsubscribe("all", ch)
	}
}

// startNATSBridge brings up the embedded NATS server and a Handler that
// feeds agent heartbeats into the store, so agents that hold a NATS
// connection (rather than calling the HTTP RPC surface) still keep their
// liveness current for HealthMonitor.
func startNATSBridge(port int, st *store.Store, agentRunner *runner.Runner) (*natsbridge.EmbeddedServer, *natsbridge.Client, *natsbridge.Handler, error) {
	srv, err := natsbridge.NewEmbeddedServer(natsbridge.EmbeddedServerConfig{Port: port})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := srv.Start(); err != nil {
		return nil, nil, nil, err
	}

	client, err := natsbridge.NewClient(srv.URL())
	if err != nil {
		srv.Shutdown()
		return nil, nil, nil, err
	}

	handler := natsbridge.NewHandler(client, natsbridge.HandlerCallbacks{
		OnHeartbeat: func(agentID, projectID, status, currentTask string) error {
			srv.RecordAgentSeen(agentID)
			return st.Heartbeat(agentID, status)
		},
		OnStatusUpdate: func(agentID, status, message string) error {
			return st.UpdateAgentStatus(agentID, status)
		},
		OnRunnerStatus: func(status, currentOp string, runningAgents int) error {
			return nil
		},
		OnAccessRequestForward: func(id, agentID, requestedRole string, queuePosition int) error {
			return nil
		},
		OnSystemBroadcast: func(msgType, message string, data map[string]interface{}) error {
			return nil
		},
	})
	if err := handler.Start(); err != nil {
		client.Close()
		srv.Shutdown()
		return nil, nil, nil, err
	}

	_ = agentRunner // held by the daemon so runner.commands handling can be added without re-plumbing construction
	return srv, client, handler, nil
}

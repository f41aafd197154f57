// Command cmapid is the per-node cluster-management daemon: it watches
// peer heartbeats, elects an actor, and drives cluster transactions and
// ColumnStore process orchestration through the Node Monitor, Agent
// Communicator, and Failover Agent.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/mattn/go-sqlite3"

	"cmapid/internal/agentcomm"
	"cmapid/internal/audit"
	"cmapid/internal/clusterbackend"
	"cmapid/internal/clusterconfig"
	"cmapid/internal/dispatch"
	"cmapid/internal/failover"
	"cmapid/internal/heartbeat"
	"cmapid/internal/metrics"
	"cmapid/internal/monitor"
	"cmapid/internal/osops"
	"cmapid/internal/rpc"
	"cmapid/internal/statushub"
)

func main() {
	listenAddr := flag.String("listen", "0.0.0.0:8640", "RPC/status/metrics listen address")
	peerPort := flag.Int("peer-port", 8640, "Port peers' cmapid listens on")
	dbPath := flag.String("db", "/var/lib/cmapi/cmapi.db", "Path to the audit SQLite database")
	backupPath := flag.String("backup-path", "", "Path for the daily audit DB backup (defaults to db path + .backup)")
	auditKeyPath := flag.String("audit-key", "/var/lib/cmapi/audit.key", "Path to the audit HMAC key file")
	xmlConfigPath := flag.String("cluster-config", "/etc/columnstore/Columnstore.xml", "Path to the Columnstore cluster XML config")
	iniConfigPath := flag.String("cmapi-config", "/etc/columnstore/cmapi_server.conf", "Path to the cmapi INI settings file")
	binDir := flag.String("bin-dir", "/usr/bin", "Directory containing mcs-* binaries (container dispatcher only)")
	logDir := flag.String("log-dir", "/var/log/columnstore", "Directory for mcs-* process logs (container dispatcher only)")
	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath+"?_journal_mode=WAL&_busy_timeout=30000&cache=shared&_cache_size=-65536&_wal_autocheckpoint=1000&_synchronous=FULL")
	if err != nil {
		log.Fatalf("cmapid: open database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("cmapid: initial WAL checkpoint failed: %v", err)
	}

	auditKey, err := audit.LoadOrCreateAuditKey(*auditKeyPath)
	if err != nil {
		log.Printf("cmapid: audit HMAC key unavailable (%v), chain disabled", err)
		auditKey = nil
	}
	auditRecorder, err := audit.OpenSink(db, auditKey)
	if err != nil {
		log.Fatalf("cmapid: open audit sink: %v", err)
	}
	audit.SetDefault(auditRecorder)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
				log.Printf("cmapid: periodic WAL checkpoint failed: %v", err)
			}
		}
	}()

	go func() {
		dest := *backupPath
		if dest == "" {
			dest = *dbPath + ".backup"
		}
		if _, err := db.Exec("VACUUM INTO ?", dest); err != nil {
			log.Printf("cmapid: startup audit DB backup failed: %v", err)
		}
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := db.Exec("VACUUM INTO ?", dest); err != nil {
				log.Printf("cmapid: daily audit DB backup failed: %v", err)
			}
		}
	}()

	xmlCfg := clusterconfig.NewXMLConfig(*xmlConfigPath)
	core, err := clusterconfig.LoadCoreSettings(*iniConfigPath)
	if err != nil {
		log.Printf("cmapid: load ini settings (%v), using defaults", err)
		core = &clusterconfig.CoreSettings{SamplingInterval: time.Second, FlakyNodeThreshold: 0.5, DispatcherName: "systemd"}
	}

	self, err := xmlCfg.WhoAmI()
	if err != nil {
		log.Fatalf("cmapid: resolve self from cluster config: %v", err)
	}

	var baseDispatcher dispatch.Dispatcher
	switch core.DispatcherName {
	case "container":
		baseDispatcher = dispatch.NewContainerDispatcher(*binDir, *logDir)
	default:
		baseDispatcher = &dispatch.ServiceManagerDispatcher{Sudo: true}
	}

	registry := metrics.NewRegistry()
	meteredDispatcher := dispatch.NewMeteredDispatcher(baseDispatcher, registry)

	orch := osops.NewOrchestrator(meteredDispatcher, xmlAddrBook{cfg: xmlCfg}, nil)

	resolver := nodeResolver{port: *peerPort}
	httpClient := rpc.NewHTTPClient(resolver.resolveURL)
	backend := clusterbackend.New(orch, xmlCfg, self, auditRecorder)
	rpcServer := rpc.NewServer(backend)

	peers := peerLister{cfg: xmlCfg}
	agent := failover.NewFailoverAgent(httpClient, httpClient, xmlCfg, orch, peers, self)
	comm := agentcomm.NewCommunicator(agent, registry)

	history := heartbeat.NewHistory(32)
	prober := &heartbeat.TCPProber{Timeout: 2 * time.Second, Resolve: resolver.resolveAddr}
	hb := heartbeat.NewHeartbeater(prober, history, peers, core.SamplingInterval)

	hub := statushub.NewHub()

	nodeMonitor := monitor.NewNodeMonitor(xmlCfg, history, hb, comm, 5, core.FlakyNodeThreshold)
	nodeMonitor.Observer = hub
	nodeMonitor.Metrics = registry
	if core.SamplingInterval > 0 {
		nodeMonitor.TickInterval = core.SamplingInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubDone := make(chan struct{})
	go hub.Run(hubDone)

	hb.Start(ctx)
	defer hb.Stop()

	comm.Start(ctx)
	defer comm.Stop()

	go nodeMonitor.Run(ctx)

	router := mux.NewRouter()
	rpcServer.Register(router)
	router.HandleFunc("/ws/status", hub.ServeHTTP)
	router.Handle("/metrics", promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{}))
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.HandleFunc("/audit/verify-chain", func(w http.ResponseWriter, r *http.Request) {
		result, err := audit.VerifyChain(db, auditKey)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(result)
	})

	srv := &http.Server{
		Addr:         *listenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("cmapid: listening on %s (self=%s)", *listenAddr, self)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("cmapid: server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("cmapid: shutting down")
	close(hubDone)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("cmapid: server shutdown error: %v", err)
	}
	log.Println("cmapid: stopped")
}

// cmd/agentproof-bridge/main.go
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/BuilderBenv1/agentproof/internal/aggregate"
	"github.com/BuilderBenv1/agentproof/internal/keys"
	"github.com/BuilderBenv1/agentproof/internal/relay"
)

func main() {
	var (
		listen     = flag.String("listen", ":8091", "HTTP listen address")
		upstream   = flag.String("upstream", "ws://127.0.0.1:8090/relay/ws", "relay source WebSocket URL")
		srcDomain  = flag.String("source-domain", "main", "expected source domain identifier")
		srcAddress = flag.String("source-address", "", "expected source sender address")
		domain     = flag.String("domain", "remote", "local domain identifier")
		keyPath    = flag.String("key", defaultKeyPath(), "bridge signing key (created if missing)")
		agentList  = flag.String("agents", "", "comma-separated agent IDs to poll")
		poll       = flag.Duration("poll", time.Minute, "poll interval")
	)
	flag.Parse()

	if *srcAddress == "" {
		log.Fatal("source address required (-source-address); the bridge trusts exactly one sender")
	}

	agents := parseAgentIDs(*agentList)
	if len(agents) == 0 {
		log.Fatal("at least one agent ID required (-agents)")
	}

	_, priv, err := loadOrCreateKey(*keyPath)
	if err != nil {
		log.Fatalf("bridge key: %v", err)
	}

	bridge := relay.NewBridge(*domain, *srcDomain, *srcAddress)
	poller := relay.NewPoller(bridge, *upstream, *domain, priv, agents, *poll)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go poller.Run(ctx)

	srv := &http.Server{
		Addr:         *listen,
		Handler:      routes(bridge),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("agentproof-bridge listening on %s (domain %q, upstream %s)", *listen, *domain, *upstream)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// routes registers the bridge's read-only query API.
func routes(bridge *relay.Bridge) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"service":   "agentproof-bridge",
			"snapshots": bridge.SnapshotCount(),
		})
	})

	mux.HandleFunc("GET /api/reputation/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid agent id")
			return
		}
		snap, err := bridge.GetReputation(id)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	mux.HandleFunc("GET /api/reputation/{id}/fresh", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid agent id")
			return
		}
		maxAge, err := strconv.ParseInt(r.URL.Query().Get("maxAge"), 10, 64)
		if err != nil || maxAge < 0 {
			writeError(w, http.StatusBadRequest, "maxAge query parameter required")
			return
		}
		fresh, err := bridge.IsReputationFresh(id, maxAge, time.Now())
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"agent_id": id, "fresh": fresh})
	})

	mux.HandleFunc("GET /api/reputation/{id}/tier", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid agent id")
			return
		}
		required, ok := aggregate.ParseTier(r.URL.Query().Get("min"))
		if !ok {
			writeError(w, http.StatusBadRequest, "min query parameter must name a tier")
			return
		}
		meets, err := bridge.IsMinimumTier(id, required)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"agent_id": id,
			"minimum":  required.String(),
			"meets":    meets,
		})
	})

	return mux
}

func parseAgentIDs(s string) []uint64 {
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			log.Fatalf("invalid agent id %q", part)
		}
		out = append(out, id)
	}
	return out
}

func loadOrCreateKey(path string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if _, statErr := os.Stat(path); statErr == nil {
		return keys.Load(path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create key dir: %w", err)
	}
	pub, priv, err := keys.Generate()
	if err != nil {
		return nil, nil, err
	}
	if err := keys.Save(path, priv); err != nil {
		return nil, nil, err
	}
	log.Printf("generated bridge signing key at %s", path)
	return pub, priv, nil
}

func defaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("cannot determine home directory: %v", err)
	}
	return filepath.Join(home, ".agentproof", "bridge.key")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// cmd/agentproofd/main.go
package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BuilderBenv1/agentproof/internal/aggregate"
	"github.com/BuilderBenv1/agentproof/internal/insurance"
	"github.com/BuilderBenv1/agentproof/internal/keys"
	"github.com/BuilderBenv1/agentproof/internal/ledger"
	"github.com/BuilderBenv1/agentproof/internal/ratelimit"
	"github.com/BuilderBenv1/agentproof/internal/relay"
	"github.com/BuilderBenv1/agentproof/internal/server"
	"github.com/BuilderBenv1/agentproof/internal/storage"
)

func main() {
	var (
		listen      = flag.String("listen", ":8090", "HTTP listen address")
		dbPath      = flag.String("db", defaultDBPath(), "SQLite database path")
		domain      = flag.String("domain", "main", "local domain identifier for the relay source")
		keyPath     = flag.String("key", defaultKeyPath(), "relay source signing key (created if missing)")
		bond        = flag.Uint64("required-bond", 100, "initial registration bond (ignored once persisted)")
		adminSecret = flag.String("admin-secret", os.Getenv("AGENTPROOF_ADMIN_SECRET"), "admin/arbiter secret")
		allow       = flag.String("allow", "", "comma-separated relay domains to allow-list at boot")
	)
	flag.Parse()

	if *adminSecret == "" {
		log.Fatal("admin secret required (-admin-secret or AGENTPROOF_ADMIN_SECRET)")
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o700); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	db, err := storage.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer db.Close()

	journal := ledger.NewJournal()
	balances := ledger.NewBalances()
	ident := ledger.NewIdentity(*bond, balances, journal)
	rep := ledger.NewReputation(ident, journal)
	val := ledger.NewValidation(ident, journal)
	agg := aggregate.NewService(ident, rep, val, journal)
	pool := insurance.NewPool(ident, val, balances, journal)

	if err := loadState(db, ident, rep, val, agg, pool, balances, journal); err != nil {
		log.Fatalf("reload state: %v", err)
	}
	journal.SetSink(func(ev ledger.Event) {
		if err := db.SaveEvent(ev); err != nil {
			log.Printf("persist event %d: %v", ev.Seq, err)
		}
	})

	_, priv, err := loadOrCreateKey(*keyPath)
	if err != nil {
		log.Fatalf("relay key: %v", err)
	}
	source := relay.NewSource(*domain, priv, agg)
	for _, d := range strings.Split(*allow, ",") {
		if d = strings.TrimSpace(d); d != "" {
			source.AllowDomain(d)
		}
	}

	api := server.New(server.Config{
		Identity:    ident,
		Reputation:  rep,
		Validation:  val,
		Aggregate:   agg,
		Pool:        pool,
		Balances:    balances,
		Journal:     journal,
		DB:          db,
		Source:      source,
		AdminSecret: *adminSecret,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", api)
	mux.Handle("/relay/ws", relay.HandleWebSocket(source, ratelimit.NewKeyed(60, time.Minute)))

	srv := &http.Server{
		Addr:         *listen,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("agentproofd listening on %s (domain %q, source address %s, %d agents)",
			*listen, *domain, source.Address(), ident.TotalAgents())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// loadState rebuilds every ledger from the database.
func loadState(db *storage.DB, ident *ledger.Identity, rep *ledger.Reputation,
	val *ledger.Validation, agg *aggregate.Service, pool *insurance.Pool,
	balances *ledger.Balances, journal *ledger.Journal) error {

	requiredBond, paused, found, err := db.LoadConfig()
	if err != nil {
		return err
	}
	agents, err := db.LoadAgents()
	if err != nil {
		return err
	}
	if found {
		ident.Restore(agents, requiredBond, paused)
	} else if len(agents) > 0 {
		ident.Restore(agents, ident.RequiredBond(), false)
	}

	feedback, err := db.LoadFeedback()
	if err != nil {
		return err
	}
	rep.Restore(feedback)

	requests, err := db.LoadValidationRequests()
	if err != nil {
		return err
	}
	responses, err := db.LoadValidationResponses()
	if err != nil {
		return err
	}
	val.Restore(requests, responses)

	categories, err := db.LoadCategories()
	if err != nil {
		return err
	}
	agg.RestoreCategories(categories)

	stakes, err := db.LoadStakes()
	if err != nil {
		return err
	}
	pool.RestoreStakes(stakes)

	claims, err := db.LoadClaims()
	if err != nil {
		return err
	}
	pool.RestoreClaims(claims)

	funds, err := db.LoadBalances()
	if err != nil {
		return err
	}
	balances.Restore(funds)

	events, err := db.LoadEvents()
	if err != nil {
		return err
	}
	journal.Restore(events)
	return nil
}

func loadOrCreateKey(path string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if _, statErr := os.Stat(path); statErr == nil {
		return keys.Load(path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create key dir: %w", err)
	}
	p, k, err := keys.Generate()
	if err != nil {
		return nil, nil, err
	}
	if err := keys.Save(path, k); err != nil {
		return nil, nil, err
	}
	log.Printf("generated relay signing key at %s", path)
	return p, k, nil
}

func agentproofDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot determine home directory: %v\n", err)
		os.Exit(1)
	}
	return filepath.Join(home, ".agentproof")
}

func defaultDBPath() string {
	return filepath.Join(agentproofDir(), "agentproof.db")
}

func defaultKeyPath() string {
	return filepath.Join(agentproofDir(), "relay.key")
}

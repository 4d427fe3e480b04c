// Mock trust registry for local development and e2e testing.
//
// Serves GET /issuers/{did} with {"trusted": bool}. Magic DID substrings
// control the response so tests can exercise every verification outcome
// without editing registry state.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort      = "8081"
	defaultLatencyMs = "100"
)

type IssuerStatus struct {
	IssuerDID string `json:"issuerDid"`
	Trusted   bool   `json:"trusted"`
	CheckedAt string `json:"checkedAt"`
}

var latencyMs = getEnvInt("LATENCY_MS", defaultLatencyMs)

// knownIssuers is seed data for demo flows. Anything not listed here falls
// back to the magic-substring rules in handleIssuerLookup.
var knownIssuers = map[string]bool{
	"did:web:clinic.example:dev-issuer":    true,
	"did:web:hospital.example:cardiology":  true,
	"did:web:clinic.example:suspended-gp":  false,
	"did:web:millpond.example:vet-surgery": true,
}

func main() {
	port := getEnv("PORT", defaultPort)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /issuers/{did}", handleIssuerLookup)

	log.Printf("🏥 Mock trust registry starting on port %s", port)
	log.Printf("⏱️  Simulated latency: %dms", latencyMs)

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "trust-registry",
		"version": "1.0.0",
	})
}

func handleIssuerLookup(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)

	did, err := url.PathUnescape(r.PathValue("did"))
	if err != nil || did == "" {
		http.Error(w, "invalid DID", http.StatusBadRequest)
		return
	}

	log.Printf("📥 Issuer lookup: %s", did)

	// Magic substrings let tests steer the response:
	//   "slow"        extra 2s delay (deadline tests)
	//   "unavailable" 503 (transient failure tests)
	//   "unknown"     404 (issuer never registered)
	switch {
	case strings.Contains(did, "slow"):
		time.Sleep(2 * time.Second)
	case strings.Contains(did, "unavailable"):
		http.Error(w, "registry maintenance window", http.StatusServiceUnavailable)
		return
	case strings.Contains(did, "unknown"):
		http.NotFound(w, r)
		return
	}

	trusted, found := knownIssuers[did]
	if !found {
		trusted = !strings.Contains(did, "untrusted")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(IssuerStatus{
		IssuerDID: did,
		Trusted:   trusted,
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	})

	if !trusted {
		log.Printf("🚫 Issuer %s -> NOT TRUSTED", did)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key, fallback string) int {
	v := getEnv(key, fallback)
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		n, _ = strconv.Atoi(fallback)
	}
	return n
}

// Mock revocation list for local development and e2e testing.
//
// Serves GET /revocations/{credentialID} with {"revoked": bool, "reason": ...}
// and accepts POST /revocations/{credentialID} so a demo prescriber can revoke
// a live prescription mid-flow. Credential IDs containing "revoked" are always
// reported revoked without any prior POST.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultPort      = "8082"
	defaultLatencyMs = "50"
)

type RevocationStatus struct {
	CredentialID string `json:"credentialId"`
	Revoked      bool   `json:"revoked"`
	Reason       string `json:"reason,omitempty"`
	CheckedAt    string `json:"checkedAt"`
}

type RevokeRequest struct {
	Reason string `json:"reason"`
}

var latencyMs = getEnvInt("LATENCY_MS", defaultLatencyMs)

var (
	mu      sync.RWMutex
	revoked = map[string]string{}
)

func main() {
	port := getEnv("PORT", defaultPort)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /revocations/{credentialID}", handleLookup)
	mux.HandleFunc("POST /revocations/{credentialID}", handleRevoke)

	log.Printf("📋 Mock revocation list starting on port %s", port)
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
		"service": "revocation-list",
		"version": "1.0.0",
	})
}

func handleLookup(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)

	id, err := url.PathUnescape(r.PathValue("credentialID"))
	if err != nil || id == "" {
		http.Error(w, "invalid credential ID", http.StatusBadRequest)
		return
	}

	// Magic substrings, as in the trust registry mock.
	switch {
	case strings.Contains(id, "slow"):
		time.Sleep(2 * time.Second)
	case strings.Contains(id, "unavailable"):
		http.Error(w, "revocation list maintenance window", http.StatusServiceUnavailable)
		return
	}

	mu.RLock()
	reason, isRevoked := revoked[id]
	mu.RUnlock()

	if !isRevoked && strings.Contains(id, "revoked") {
		isRevoked = true
		reason = "revoked by prescriber"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(RevocationStatus{
		CredentialID: id,
		Revoked:      isRevoked,
		Reason:       reason,
		CheckedAt:    time.Now().UTC().Format(time.RFC3339),
	})

	if isRevoked {
		log.Printf("🚨 Revocation lookup: %s -> REVOKED (%s)", id, reason)
	}
}

func handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(r.PathValue("credentialID"))
	if err != nil || id == "" {
		http.Error(w, "invalid credential ID", http.StatusBadRequest)
		return
	}

	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "revoked via mock API"
	}

	mu.Lock()
	revoked[id] = req.Reason
	mu.Unlock()

	log.Printf("✍️  Revoked %s: %s", id, req.Reason)
	w.WriteHeader(http.StatusNoContent)
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

// Mock stake token service for local development. Keeps balances in memory
// and honors the transfer contract the ledger depends on: every unknown
// account starts with a configurable faucet balance so locks can be opened
// immediately.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const defaultFaucet = 1_000_000

type bank struct {
	mu       sync.Mutex
	balances map[string]int64
	faucet   int64
}

func (b *bank) balance(account string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.balances[account]; !ok {
		b.balances[account] = b.faucet
	}
	return b.balances[account]
}

func (b *bank) transfer(from, to string, amount int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, account := range []string{from, to} {
		if _, ok := b.balances[account]; !ok {
			b.balances[account] = b.faucet
		}
	}
	if b.balances[from] < amount {
		return false
	}
	b.balances[from] -= amount
	b.balances[to] += amount
	return true
}

type transferRequest struct {
	Asset  string `json:"asset"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func main() {
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8091"
	}
	faucet := int64(defaultFaucet)
	if raw := os.Getenv("FAUCET_BALANCE"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Fatalf("invalid FAUCET_BALANCE %q: %v", raw, err)
		}
		faucet = parsed
	}

	b := &bank{balances: make(map[string]int64), faucet: faucet}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/assets/{asset}/balances/{account}", func(w http.ResponseWriter, r *http.Request) {
		account := r.PathValue("account")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"balance": b.balance(account)})
	})
	mux.HandleFunc("POST /v1/transfers", func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed transfer request", http.StatusBadRequest)
			return
		}
		if req.From == "" || req.To == "" || req.Amount <= 0 {
			http.Error(w, "from, to, and a positive amount are required", http.StatusBadRequest)
			return
		}
		if !b.transfer(req.From, req.To, req.Amount) {
			http.Error(w, "insufficient balance", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("mock stake token service listening on %s (faucet %d)", addr, faucet)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

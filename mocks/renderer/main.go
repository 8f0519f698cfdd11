// Mock renderer service for local development. Returns a canned descriptor
// for any credential so the ledger's render endpoint can be exercised
// without the real rendering pipeline.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	MintedAt    int64  `json:"minted_at,omitempty"`
	Owner       string `json:"owner,omitempty"`
}

func main() {
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/render/{id}", func(w http.ResponseWriter, r *http.Request) {
		credID := r.PathValue("id")
		if strings.TrimSpace(credID) == "" {
			http.Error(w, "missing credential id", http.StatusBadRequest)
			return
		}

		mintedAt, _ := strconv.ParseInt(r.URL.Query().Get("minted_at"), 10, 64)
		desc := descriptor{
			Name:        "Citizenship Credential #" + credID,
			Description: "Mock descriptor issued by the local renderer.",
			Image:       "https://renderer.local/credentials/" + credID + ".png",
			MintedAt:    mintedAt,
			Owner:       r.URL.Query().Get("owner"),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(desc); err != nil {
			log.Printf("encode descriptor: %v", err)
		}
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("mock renderer listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

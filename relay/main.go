package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/hollowpoint/doomgate-mp/shared/netconfig"
)

type iceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

func newMux(relay *Relay, iceServers []iceServer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", relay.HandleWS)
	mux.HandleFunc("GET /rooms", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if err := json.NewEncoder(w).Encode(relay.Directory().List()); err != nil {
			log.Printf("[relay] room list encode error: %v", err)
		}
	})
	mux.HandleFunc("GET /ice-servers", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		_ = json.NewEncoder(w).Encode(map[string]any{"iceServers": iceServers})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func main() {
	port := flag.Int("port", 3001, "HTTP/WebSocket listen port")
	enableTURN := flag.Bool("turn", false, "Run an embedded STUN/TURN server")
	turnPort := flag.Int("turn-port", 3478, "TURN listen port")
	publicIP := flag.String("public-ip", "", "Public IP for the TURN relay (auto-detected if empty)")
	realm := flag.String("realm", "doomgate", "TURN realm")
	turnUser := flag.String("turn-user", "doomgate", "TURN username")
	turnPass := flag.String("turn-pass", "hellwalker", "TURN password")
	flag.Parse()

	relay := NewRelay()

	iceServers := []iceServer{{URLs: netconfig.DefaultSTUNServers}}
	if *enableTURN {
		relayIP, err := startTURN(turnConfig{
			port:     *turnPort,
			publicIP: *publicIP,
			realm:    *realm,
			username: *turnUser,
			password: *turnPass,
		})
		if err != nil {
			log.Fatalf("[relay] fatal: %v", err)
		}
		iceServers = append(iceServers, iceServer{
			URLs: []string{
				fmt.Sprintf("turn:%s:%d", relayIP, *turnPort),
				fmt.Sprintf("turn:%s:%d?transport=tcp", relayIP, *turnPort),
			},
			Username:   *turnUser,
			Credential: *turnPass,
		})
	}

	mux := newMux(relay, iceServers)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("[relay] signaling relay starting on %s (TURN enabled: %v)", addr, *enableTURN)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("[relay] fatal: %v", err)
	}
}

package server

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"originchats/pkg/auth"
	"originchats/pkg/logger"
	"originchats/pkg/plugin"
	"originchats/pkg/protocol"
	"originchats/pkg/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from arbitrary origins; identity comes from
	// the validator exchange, not the Origin header.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Router builds the HTTP surface: the websocket endpoint, liveness and
// metrics.
func Router(hub *Hub, d *protocol.Dispatcher, a *auth.Service, plugins *plugin.Registry) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", serveWS(hub, d, a, plugins))
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", telemetry.Handler()).Methods(http.MethodGet)
	return r
}

func serveWS(hub *Hub, d *protocol.Dispatcher, a *auth.Service, plugins *plugin.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws_upgrade_failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		client := NewClient(hub, conn, d, a, plugins, remoteIP(r))
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}
}

// remoteIP strips the ephemeral port so auth throttling keys by address.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

package app

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/viscotheque/spectackler/internal/config"
	"github.com/viscotheque/spectackler/internal/trace"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // rig network only
	},
}

// RunMonitor subscribes to the whole reading topic tree and serves the
// latest reading per runner as JSON plus a websocket that pushes every
// reading to all connected clients. The static UI is served from ./web.
func RunMonitor() error {
	cfg := config.Get()

	var (
		mu     sync.RWMutex
		latest = make(map[string]trace.Reading)
	)
	var (
		connsMu sync.Mutex
		conns   = make(map[*websocket.Conn]bool)
	)

	broadcast := func(payload []byte) {
		connsMu.Lock()
		defer connsMu.Unlock()
		for conn := range conns {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				conn.Close()
				delete(conns, conn)
			}
		}
	}

	client, err := connectMQTT("monitor")
	if err != nil {
		return err
	}

	topic := cfg.MQTTTopicRoot + "/#"
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r trace.Reading
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("monitor: payload unmarshal error on %s: %v", msg.Topic(), err)
			return
		}
		mu.Lock()
		latest[r.Source] = r
		mu.Unlock()
		broadcast(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("monitor: subscribed to %s", topic)

	http.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()

		if len(latest) == 0 {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(latest); err != nil {
			log.Printf("monitor: json encode error: %v", err)
		}
	})

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("monitor: websocket upgrade error: %v", err)
			return
		}
		connsMu.Lock()
		conns[conn] = true
		connsMu.Unlock()
		log.Printf("monitor: websocket client %s connected", conn.RemoteAddr())

		// drain the client side; deregister on error
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					connsMu.Lock()
					delete(conns, conn)
					connsMu.Unlock()
					conn.Close()
					return
				}
			}
		}()
	})

	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	log.Printf("monitor: listening on %s", cfg.MonitorAddr)
	return http.ListenAndServe(cfg.MonitorAddr, nil)
}

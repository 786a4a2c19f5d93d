package relay

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BuilderBenv1/agentproof/internal/ratelimit"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket returns an HTTP handler that upgrades connections to
// WebSocket and feeds each inbound frame through the Source. Messages that
// fail authentication are dropped without a reply.
func HandleWebSocket(source *Source, limiter *ratelimit.Keyed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("relay: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("relay: websocket read error: %v", err)
				}
				return
			}

			if !limiter.Allow(r.RemoteAddr) {
				continue // drop, no reply
			}

			reply, err := source.HandleQuery(&msg, time.Now())
			if err != nil {
				log.Printf("relay: dropped message from domain %q: %v", msg.Domain, err)
				continue
			}
			if err := conn.WriteJSON(reply); err != nil {
				log.Printf("relay: websocket write error: %v", err)
				return
			}
		}
	}
}

// Poller is the bridge-side client: it dials the source's relay endpoint,
// sends signed queries for a fixed set of agents on an interval, and feeds
// every inbound frame through the bridge. Delivery is fire-and-forget; a
// missed or out-of-order reply only delays the next cache write.
type Poller struct {
	bridge   *Bridge
	url      string
	domain   string
	key      ed25519.PrivateKey
	agents   []uint64
	interval time.Duration
}

// NewPoller returns a poller for the given source URL.
func NewPoller(bridge *Bridge, url, domain string, key ed25519.PrivateKey, agents []uint64, interval time.Duration) *Poller {
	return &Poller{
		bridge:   bridge,
		url:      url,
		domain:   domain,
		key:      key,
		agents:   agents,
		interval: interval,
	}
}

// Run polls until ctx is cancelled, redialing after connection failures.
func (p *Poller) Run(ctx context.Context) {
	for {
		if err := p.connectAndPoll(ctx); err != nil {
			log.Printf("relay: poll connection lost: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}

func (p *Poller) connectAndPoll(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		for _, agentID := range p.agents {
			if err := p.queryOnce(conn, agentID); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// queryOnce sends one signed query and processes the reply frame.
func (p *Poller) queryOnce(conn *websocket.Conn, agentID uint64) error {
	payload, _ := json.Marshal(QueryPayload{AgentID: agentID})
	msg := &Message{
		Type:      MsgRepQuery,
		ID:        uuid.New().String(),
		Domain:    p.domain,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
	}
	msg.Sign(p.key)

	if err := conn.WriteJSON(msg); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var reply Message
	if err := conn.ReadJSON(&reply); err != nil {
		return err
	}
	if err := p.bridge.HandleMessage(&reply, time.Now()); err != nil {
		log.Printf("relay: dropped reply for agent %d: %v", agentID, err)
	}
	return nil
}

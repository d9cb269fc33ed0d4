package feed

import (
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// Sample is the most recent tick from the upstream stream. The adapter
// keeps a single replace-on-write slot, not a queue; intermediate
// ticks may be dropped because only the latest value is ever consulted.
type Sample struct {
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// tradeMessage is the upstream trade payload; the price arrives as a
// decimal string.
type tradeMessage struct {
	Price string `json:"p"`
}

// Adapter maintains a persistent subscription to the upstream price
// stream. On a delivery failure it reports degraded and stays degraded;
// reconnection policy belongs to the collaborator running the adapter.
type Adapter struct {
	url string

	mu        sync.RWMutex
	latest    Sample
	hasSample bool
	status    Status

	conn    *websocket.Conn
	stopCh  chan struct{}
	stopped sync.Once
}

func New(url string) *Adapter {
	return &Adapter{
		url:    url,
		status: StatusDegraded,
		stopCh: make(chan struct{}),
	}
}

// Start dials the upstream stream and begins delivering samples.
func (a *Adapter) Start() error {
	conn, _, err := websocket.DefaultDialer.Dial(a.url, nil)
	if err != nil {
		log.Printf("[FEED] Failed to connect to %s: %v", a.url, err)
		return err
	}
	a.conn = conn
	a.setStatus(StatusHealthy)
	log.Printf("[FEED] Connected to %s", a.url)

	go a.readLoop(conn)
	return nil
}

func (a *Adapter) Stop() {
	a.stopped.Do(func() {
		close(a.stopCh)
		if a.conn != nil {
			a.conn.Close()
		}
	})
}

func (a *Adapter) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-a.stopCh:
			default:
				log.Printf("[FEED] Stream read error, feed degraded: %v", err)
			}
			a.setStatus(StatusDegraded)
			return
		}

		var tm tradeMessage
		if err := json.Unmarshal(msg, &tm); err != nil {
			continue
		}
		price, err := strconv.ParseFloat(tm.Price, 64)
		if err != nil {
			continue
		}
		a.store(Sample{Value: price, ObservedAt: time.Now()})
	}
}

func (a *Adapter) store(s Sample) {
	a.mu.Lock()
	a.latest = s
	a.hasSample = true
	a.mu.Unlock()
}

// ObserveLatest returns the most recent sample, non-blocking. The
// second return is false before any sample has arrived.
func (a *Adapter) ObserveLatest() (Sample, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest, a.hasSample
}

func (a *Adapter) Healthy() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status == StatusHealthy
}

func (a *Adapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

func (a *Adapter) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/concordhq/concord/internal/logging"
)

// Options bounds per-connection resource usage.
type Options struct {
	// MaxMessageSize caps a single inbound frame in bytes.
	MaxMessageSize int64
	// MessageRate is the sustained inbound events-per-second allowance.
	MessageRate float64
	// MessageBurst is the token bucket depth for inbound events.
	MessageBurst int
}

// Hub owns connection lifecycle for the realtime layer: registration,
// teardown, and graceful shutdown. Broadcasts themselves flow through the
// room registry from each sender's read pump, which keeps events from a
// single actor in the order the actor issued them.
type Hub struct {
	opts       Options
	oracle     Authorizer
	registry   *Registry
	dispatcher *Dispatcher

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub with its own registry and dispatcher wired to the
// given oracle. Call Run in a goroutine before registering clients.
func NewHub(oracle Authorizer, opts Options) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry()
	return &Hub{
		opts:       opts,
		oracle:     oracle,
		registry:   registry,
		dispatcher: NewDispatcher(oracle, registry),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry exposes the room registry, primarily for tests and handlers.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Dispatcher exposes the event dispatcher.
func (h *Hub) Dispatcher() *Dispatcher {
	return h.dispatcher
}

// Register hands a new client to the hub, which launches its pumps. Once the
// hub has shut down nothing drains the register channel, so a connection that
// arrives mid-shutdown is dropped instead of wedging the caller.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.ctx.Done():
	}
}

// Run is the hub's lifecycle loop. It runs until Shutdown cancels it.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				continue
			}
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			logging.Info().
				Str("conn_id", client.id).
				Str("user_id", client.userID).
				Str("addr", client.addr).
				Int("total_clients", total).
				Msg("client connected")

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.drop(client)
		}
	}
}

// drop tears a connection down exactly once: all room memberships are removed
// atomically, then the send channel is closed so the write pump exits.
func (h *Hub) drop(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	total := len(h.clients)
	h.mutex.Unlock()

	h.registry.Disconnect(client)
	client.markClosed()
	close(client.send)

	logging.Info().
		Str("conn_id", client.id).
		Str("user_id", client.userID).
		Int("total_clients", total).
		Msg("client disconnected")
}

// shutdownClients closes every active connection during hub shutdown.
func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mutex.Unlock()

	for _, client := range clients {
		h.registry.Disconnect(client)
		client.markClosed()
		close(client.send)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				logging.Debug().Err(err).Str("addr", client.addr).Msg("error closing connection during shutdown")
			}
		}
	}

	logging.Info().Int("clients_closed", len(clients)).Msg("closed all realtime connections")
}

// Shutdown stops the hub and waits for all pump goroutines to finish or the
// timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		logging.Info().Msg("realtime hub shutdown complete")
		return nil
	case <-time.After(timeout):
		logging.Warn().Msg("realtime hub shutdown timed out")
		return context.DeadlineExceeded
	}
}

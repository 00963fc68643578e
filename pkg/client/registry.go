package client

import "sync"

// Registry shares one Client per endpoint URL. It replaces an implicit
// process-global singleton with an explicit object whose lifecycle the
// caller owns, so tests can construct isolated instances.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
	factory func(endpoint string) (*Client, error)
}

// NewRegistry creates an empty registry. factory constructs clients on
// first use of an endpoint; pass nil to use [New] with no options.
func NewRegistry(factory func(endpoint string) (*Client, error)) *Registry {
	if factory == nil {
		factory = func(endpoint string) (*Client, error) { return New(endpoint) }
	}
	return &Registry{
		clients: make(map[string]*Client),
		factory: factory,
	}
}

// Get returns the shared Client for the endpoint, constructing it on first
// use.
func (r *Registry) Get(endpoint string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[endpoint]; ok {
		return c, nil
	}
	c, err := r.factory(endpoint)
	if err != nil {
		return nil, err
	}
	r.clients[endpoint] = c
	return c, nil
}

// Dispose closes and removes the Client for the endpoint, if any.
func (r *Registry) Dispose(endpoint string) {
	r.mu.Lock()
	c := r.clients[endpoint]
	delete(r.clients, endpoint)
	r.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

// Close disposes every registered Client.
func (r *Registry) Close() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.clients = make(map[string]*Client)
	r.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
}

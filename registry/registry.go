// Package registry tells a bridge where its peer listens. Peers register
// themselves under a service name; bridges resolve the service to a list of
// endpoints and pick one on every (re)connect.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// DefaultService is the service name peers register under.
const DefaultService = "madigan"

var ErrNoEndpoints = errors.New("registry: no endpoints")

// Endpoint is one peer server.
type Endpoint struct {
	ID       string `json:"id,omitempty"`
	Addr     string `json:"addr"`
	HTTPAddr string `json:"http_addr,omitempty"`
	Weight   int    `json:"weight,omitempty"`
	Version  string `json:"version,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, service string, ep Endpoint, ttl int64) error
	Deregister(ctx context.Context, service string, addr string) error
	Discover(ctx context.Context, service string) ([]Endpoint, error)
	Watch(ctx context.Context, service string) <-chan []Endpoint
}

// Resolver yields the endpoints a bridge may dial.
type Resolver interface {
	Resolve(ctx context.Context) ([]Endpoint, error)
}

// Static resolves to a fixed list.
type Static []Endpoint

func StaticAddr(addrs ...string) Static {
	s := make(Static, 0, len(addrs))
	for _, a := range addrs {
		s = append(s, Endpoint{Addr: a})
	}
	return s
}

func (s Static) Resolve(context.Context) ([]Endpoint, error) {
	if len(s) == 0 {
		return nil, ErrNoEndpoints
	}
	return []Endpoint(s), nil
}

// ServiceResolver resolves through a Registry.
type ServiceResolver struct {
	Registry Registry
	Service  string
}

func (r ServiceResolver) Resolve(ctx context.Context) ([]Endpoint, error) {
	eps, err := r.Registry.Discover(ctx, r.Service)
	if err != nil {
		return nil, err
	}
	if len(eps) == 0 {
		return nil, ErrNoEndpoints
	}
	return eps, nil
}

// MemoryRegistry keeps registrations in process. TTLs are ignored.
type MemoryRegistry struct {
	mu       sync.Mutex
	services map[string]map[string]Endpoint
	watchers map[string][]chan []Endpoint
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string]map[string]Endpoint),
		watchers: make(map[string][]chan []Endpoint),
	}
}

func (r *MemoryRegistry) Register(_ context.Context, service string, ep Endpoint, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.services[service] == nil {
		r.services[service] = make(map[string]Endpoint)
	}
	r.services[service][ep.Addr] = ep
	r.notify(service)
	return nil
}

func (r *MemoryRegistry) Deregister(_ context.Context, service string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services[service], addr)
	r.notify(service)
	return nil
}

func (r *MemoryRegistry) Discover(_ context.Context, service string) ([]Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(service), nil
}

// Watch emits the full list after every change until ctx is done. A slow
// reader only ever sees the latest list.
func (r *MemoryRegistry) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	r.mu.Lock()
	r.watchers[service] = append(r.watchers[service], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		ws := r.watchers[service]
		for i, w := range ws {
			if w == ch {
				r.watchers[service] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (r *MemoryRegistry) notify(service string) {
	list := r.list(service)
	for _, ch := range r.watchers[service] {
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}

func (r *MemoryRegistry) list(service string) []Endpoint {
	eps := make([]Endpoint, 0, len(r.services[service]))
	for _, ep := range r.services[service] {
		eps = append(eps, ep)
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].Addr < eps[j].Addr })
	return eps
}

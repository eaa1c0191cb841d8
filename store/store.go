/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package store provides the shared realtime keyed document store the
// game protocol is built on: JSON documents addressed by slash-separated
// paths, atomic multi-path commits guarded by per-document versions,
// prefix subscriptions delivered in commit order, and per-connection
// on-disconnect cleanup hooks.
//
// There is no cross-client mutual exclusion beyond the version guards;
// every state transition must be expressed as a single guarded commit.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned when no document exists at the given path.
	ErrNotFound = errors.New("store: path not found")

	// ErrConflict is returned when a commit's version guard no longer
	// matches the current document version.
	ErrConflict = errors.New("store: version conflict")

	// ErrClosed is returned for operations on a closed connection.
	ErrClosed = errors.New("store: connection closed")
)

// Op writes Value as a JSON document at Path, or removes the document
// when Value is nil.
type Op struct {
	Path  string
	Value any
}

// Remove returns an Op that deletes the document at path.
func Remove(path string) Op {
	return Op{Path: path}
}

// Guard requires the document at Path to be at exactly Version for a
// commit to apply. Version 0 requires the path to not exist.
type Guard struct {
	Path    string
	Version int64
}

// Event describes one committed change to a single path. Data is nil
// when the document was removed.
type Event struct {
	Path    string
	Data    json.RawMessage
	Version int64
}

type backend interface {
	get(path string) ([]byte, int64, error)
	list(prefix string) (map[string][]byte, error)
	apply(writes []write) error
	close() error
}

// write is a validated, marshaled mutation with its assigned version.
type write struct {
	path    string
	data    []byte
	version int64
}

// Store is one process-embedded instance of the shared state store.
// All connections created from it observe the same documents.
type Store struct {
	mu      sync.Mutex
	back    backend
	subs    map[*subscription]struct{}
	nextVer int64
}

// NewMemory returns a store holding all documents in memory. It is the
// default runtime backend and the one injected throughout the tests.
func NewMemory() *Store {
	return &Store{
		back: newMemoryBackend(),
		subs: make(map[*subscription]struct{}),
	}
}

// Close releases the backing resources. Connections must be closed first.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.back.close()
}

// Connect returns a new client connection. Each protocol participant
// (one websocket, one test actor) holds its own connection so that the
// on-disconnect hooks fire independently.
func (s *Store) Connect() *Conn {
	return &Conn{
		store: s,
		armed: make(map[string]struct{}),
	}
}

func (s *Store) read(path string, dst any) (int64, error) {
	s.mu.Lock()
	data, version, err := s.back.get(path)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if dst != nil {
		if err := json.Unmarshal(data, dst); err != nil {
			return 0, fmt.Errorf("store: decode %s: %w", path, err)
		}
	}
	return version, nil
}

func (s *Store) list(prefix string) (map[string]json.RawMessage, error) {
	s.mu.Lock()
	raw, err := s.back.list(prefix)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(raw))
	for path, data := range raw {
		out[path] = json.RawMessage(data)
	}
	return out, nil
}

// apply commits the ops atomically after checking every guard, then
// fans the resulting events out to matching subscribers in commit order.
func (s *Store) apply(guards []Guard, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	writes := make([]write, 0, len(ops))
	for _, op := range ops {
		w := write{path: op.Path}
		if op.Value != nil {
			data, err := json.Marshal(op.Value)
			if err != nil {
				return fmt.Errorf("store: encode %s: %w", op.Path, err)
			}
			w.data = data
		}
		writes = append(writes, w)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range guards {
		_, version, err := s.back.get(g.Path)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if version != g.Version {
			return ErrConflict
		}
	}

	// Removing a document that does not exist is a no-op and must not
	// produce a phantom deletion event.
	existed := make(map[string]bool)
	for i := range writes {
		if writes[i].data != nil {
			s.nextVer++
			writes[i].version = s.nextVer
			continue
		}
		if _, _, err := s.back.get(writes[i].path); err == nil {
			existed[writes[i].path] = true
		}
	}

	if err := s.back.apply(writes); err != nil {
		return err
	}

	for _, w := range writes {
		if w.data == nil && !existed[w.path] {
			continue
		}
		ev := Event{Path: w.path, Version: w.version}
		if w.data != nil {
			ev.Data = json.RawMessage(w.data)
		}
		for sub := range s.subs {
			if pathUnder(w.path, sub.prefix) {
				sub.enqueue(ev)
			}
		}
	}

	return nil
}

func (s *Store) subscribe(prefix string, fn func(Event)) func() {
	sub := &subscription{prefix: prefix, fn: fn}
	sub.cond = sync.NewCond(&sub.mu)

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go sub.pump()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			sub.stop()
		})
	}
}

// pathUnder reports whether path is at or below prefix.
func pathUnder(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// subscription buffers events so that commits never block on slow
// consumers while still delivering in commit order.
type subscription struct {
	prefix string
	fn     func(Event)

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Event
	done    bool
}

func (sub *subscription) enqueue(ev Event) {
	sub.mu.Lock()
	sub.pending = append(sub.pending, ev)
	sub.mu.Unlock()
	sub.cond.Signal()
}

func (sub *subscription) stop() {
	sub.mu.Lock()
	sub.done = true
	sub.mu.Unlock()
	sub.cond.Signal()
}

func (sub *subscription) pump() {
	for {
		sub.mu.Lock()
		for len(sub.pending) == 0 && !sub.done {
			sub.cond.Wait()
		}
		if sub.done {
			sub.mu.Unlock()
			return
		}
		batch := sub.pending
		sub.pending = nil
		sub.mu.Unlock()

		for _, ev := range batch {
			sub.fn(ev)
		}
	}
}

// Conn is one client's handle on the store. It tracks the paths armed
// for on-disconnect removal and the active subscriptions so that Close
// tears both down, mirroring an abrupt client disconnect.
type Conn struct {
	store *Store

	mu      sync.Mutex
	armed   map[string]struct{}
	cancels []func()
	closed  bool
}

// Read unmarshals the document at path into dst (which may be nil to
// probe existence) and returns its current version.
func (c *Conn) Read(ctx context.Context, path string, dst any) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	return c.store.read(path, dst)
}

// List returns every document at or under prefix, keyed by full path.
func (c *Conn) List(ctx context.Context, prefix string) (map[string]json.RawMessage, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	return c.store.list(prefix)
}

// Apply atomically commits ops if every guard still holds.
func (c *Conn) Apply(ctx context.Context, guards []Guard, ops ...Op) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.store.apply(guards, ops)
}

// Subscribe registers fn for every commit at or under prefix and
// returns a cancel function. Delivery is in commit order, on a
// goroutine owned by the subscription.
func (c *Conn) Subscribe(prefix string, fn func(Event)) func() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	cancel := c.store.subscribe(prefix, fn)
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()
	return cancel
}

// OnDisconnectRemove arms path for removal when this connection closes.
func (c *Conn) OnDisconnectRemove(path string) {
	c.mu.Lock()
	if !c.closed {
		c.armed[path] = struct{}{}
	}
	c.mu.Unlock()
}

// CancelOnDisconnect disarms a previously armed path, used when the
// owning record has already been removed explicitly.
func (c *Conn) CancelOnDisconnect(path string) {
	c.mu.Lock()
	delete(c.armed, path)
	c.mu.Unlock()
}

// Close cancels the connection's subscriptions and removes every armed
// path in a single commit. It is safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancels := c.cancels
	c.cancels = nil
	ops := make([]Op, 0, len(c.armed))
	for path := range c.armed {
		ops = append(ops, Remove(path))
	}
	c.armed = make(map[string]struct{})
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	// Cleanup is best-effort: the documents may already be gone.
	_ = c.store.apply(nil, ops)
}

func (c *Conn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return nil
}

package notifyws

import (
	"context"
	"sort"
	"sync"

	"github.com/pubsub-social/notify-go/notify-ws/connectiondao"
)

// memRegistry is an in-memory connection registry.
type memRegistry struct {
	mu       sync.Mutex
	conns    map[string]connectiondao.Connection
	removes  []string
	listErrs []error
}

func newMemRegistry(conns ...connectiondao.Connection) *memRegistry {
	r := &memRegistry{conns: map[string]connectiondao.Connection{}}
	for _, conn := range conns {
		r.conns[conn.UserID+"/"+conn.ConnectionID] = conn
	}
	return r
}

func (r *memRegistry) Put(_ context.Context, conn connectiondao.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.UserID+"/"+conn.ConnectionID] = conn
	return nil
}

func (r *memRegistry) Remove(_ context.Context, userID, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes = append(r.removes, connectionID)
	delete(r.conns, userID+"/"+connectionID)
	return nil
}

func (r *memRegistry) ListByUser(_ context.Context, userID string) ([]connectiondao.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.listErrs) > 0 {
		err := r.listErrs[0]
		r.listErrs = r.listErrs[1:]
		return nil, err
	}
	var found []connectiondao.Connection
	for _, conn := range r.conns {
		if conn.UserID == userID {
			found = append(found, conn)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ConnectionID < found[j].ConnectionID })
	return found, nil
}

func (r *memRegistry) FindByConnection(_ context.Context, connectionID string) (*connectiondao.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.conns {
		if conn.ConnectionID == connectionID {
			conn := conn
			return &conn, nil
		}
	}
	return nil, nil
}

func (r *memRegistry) Each(ctx context.Context, fn func(connectiondao.Connection) error) error {
	r.mu.Lock()
	var all []connectiondao.Connection
	for _, conn := range r.conns {
		all = append(all, conn)
	}
	r.mu.Unlock()
	for _, conn := range all {
		if err := fn(conn); err != nil {
			return err
		}
	}
	return nil
}

func (r *memRegistry) ids(userID string) []string {
	conns, _ := r.ListByUser(context.Background(), userID)
	var ids []string
	for _, conn := range conns {
		ids = append(ids, conn.ConnectionID)
	}
	return ids
}

func (r *memRegistry) removed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removes...)
}

// fakeTransport returns scripted results per connection; once a script runs
// out every push succeeds.
type fakeTransport struct {
	mu       sync.Mutex
	results  map[string][]error
	block    map[string]bool
	pushes   map[string]int
	payloads map[string][]byte
	closed   []string
	dead     map[string]bool
	closeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		results:  map[string][]error{},
		block:    map[string]bool{},
		pushes:   map[string]int{},
		payloads: map[string][]byte{},
		dead:     map[string]bool{},
	}
}

func (f *fakeTransport) Push(ctx context.Context, conn connectiondao.Connection, payload []byte) error {
	f.mu.Lock()
	f.pushes[conn.ConnectionID]++
	f.payloads[conn.ConnectionID] = payload
	block := f.block[conn.ConnectionID]
	var err error
	if script := f.results[conn.ConnectionID]; len(script) > 0 {
		err = script[0]
		f.results[conn.ConnectionID] = script[1:]
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeTransport) Close(_ context.Context, conn connectiondao.Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, conn.ConnectionID)
	return f.closeErr
}

func (f *fakeTransport) Alive(_ context.Context, conn connectiondao.Connection) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead[conn.ConnectionID], nil
}

func (f *fakeTransport) pushCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes[id]
}

func (f *fakeTransport) totalPushes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, v := range f.pushes {
		n += v
	}
	return n
}

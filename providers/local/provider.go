// Package local is an in-memory provider used for examples and tests. It
// never touches the network: objects live in the provider instance and
// behave deterministically, with optional simulated latency and failures.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/lakeforge/lakeforge/pkg/provider"
)

type object struct {
	attrs        map[string]any
	readsUntilUp int
}

// Provider stores objects in memory.
type Provider struct {
	mu      sync.Mutex
	objects map[string]*object

	// FailNext, when set, fails the next matching operation once. Keyed by
	// "op:kind.name" (create/update/delete) or "op:id" for deletes.
	FailNext map[string]error
	// AsyncReads makes creates report InProgress and require this many
	// Read calls before the object settles.
	AsyncReads int
}

func New() *Provider {
	return &Provider{
		objects:  make(map[string]*object),
		FailNext: make(map[string]error),
	}
}

func (p *Provider) Configure(ctx context.Context, settings map[string]any) error {
	return nil
}

func (p *Provider) Create(ctx context.Context, req *provider.CreateRequest) (*provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFault("create:" + req.Kind + "." + req.Name); err != nil {
		return nil, err
	}

	id := fmt.Sprintf("local-%s-%s", req.Kind, req.Name)
	attrs := make(map[string]any, len(req.Desired)+2)
	for k, v := range req.Desired {
		attrs[k] = v
	}
	attrs["id"] = id
	attrs["token"] = deriveToken(id, req.Desired)

	obj := &object{attrs: attrs}
	if p.AsyncReads > 0 {
		obj.readsUntilUp = p.AsyncReads
	}
	p.objects[id] = obj

	return &provider.Response{Attributes: attrs, InProgress: obj.readsUntilUp > 0}, nil
}

func (p *Provider) Update(ctx context.Context, req *provider.UpdateRequest) (*provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFault("update:" + req.Kind + "." + req.Name); err != nil {
		return nil, err
	}

	obj, ok := p.objects[req.ID]
	if !ok {
		return nil, provider.ErrNotFound
	}

	for k, v := range req.Desired {
		obj.attrs[k] = v
	}
	obj.attrs["token"] = deriveToken(req.ID, req.Desired)
	return &provider.Response{Attributes: obj.attrs}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFault("delete:" + req.ID); err != nil {
		return err
	}

	// Deleting something already gone is a success.
	delete(p.objects, req.ID)
	return nil
}

func (p *Provider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	obj, ok := p.objects[req.ID]
	if !ok {
		return nil, provider.ErrNotFound
	}
	if obj.readsUntilUp > 0 {
		obj.readsUntilUp--
		if obj.readsUntilUp > 0 {
			return &provider.Response{Attributes: obj.attrs, InProgress: true}, nil
		}
	}
	return &provider.Response{Attributes: obj.attrs}, nil
}

// Exists reports whether an object is stored, for test assertions.
func (p *Provider) Exists(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.objects[id]
	return ok
}

// Len returns the number of stored objects.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.objects)
}

func (p *Provider) takeFault(key string) error {
	if err, ok := p.FailNext[key]; ok {
		delete(p.FailNext, key)
		return err
	}
	return nil
}

// deriveToken computes a stable computed attribute from the object identity
// and its declared content, standing in for server-generated secrets.
func deriveToken(id string, desired map[string]any) string {
	h := sha256.New()
	h.Write([]byte(id))
	for _, k := range sortedKeys(desired) {
		fmt.Fprintf(h, "%s=%v;", k, desired[k])
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

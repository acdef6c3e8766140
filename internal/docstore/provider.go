package docstore

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	gserrors "github.com/tradegazette/gsearch/pkg/errors"
)

type providerState int

const (
	stateUninitialized providerState = iota
	stateReady
	stateClosed
)

// Provider lazily opens the row store on first use so the process can boot
// before the file exists. It is an explicit Uninitialized -> Ready -> Closed
// state machine: reads while Uninitialized and the file is still missing
// return ErrNotReady instead of crashing or blocking.
type Provider struct {
	path string

	mu    sync.Mutex
	state providerState
	ready atomic.Pointer[Store]
}

// NewProvider creates a Provider for the given path without touching disk.
func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// Store returns the open row store, opening it on first call. A missing file
// yields ErrNotReady (retryable); a present but malformed file yields the
// open error.
func (p *Provider) Store() (*Store, error) {
	if s := p.ready.Load(); s != nil {
		return s, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateReady:
		return p.ready.Load(), nil
	case stateClosed:
		return nil, gserrors.ErrClosed
	}
	if _, err := os.Stat(p.path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", p.path, gserrors.ErrNotReady)
		}
		return nil, err
	}
	s, err := Open(p.path)
	if err != nil {
		return nil, err
	}
	p.ready.Store(s)
	p.state = stateReady
	return s, nil
}

// RowCount returns the row count, or 0 when the store is not yet open.
func (p *Provider) RowCount() int {
	if s := p.ready.Load(); s != nil {
		return s.RowCount()
	}
	return 0
}

// Close releases the store if it was opened. Further reads fail with
// ErrClosed.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == stateClosed {
		return nil
	}
	p.state = stateClosed
	if s := p.ready.Load(); s != nil {
		p.ready.Store(nil)
		return s.Close()
	}
	return nil
}

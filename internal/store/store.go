package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"chainPulse/internal/model"
	"chainPulse/internal/swaphelper"
)

// Store receives published actions.
type Store interface {
	Dispatch(ctx context.Context, action Action) error
}

// State is the reduced view held by Memory.
type State struct {
	BlockNumber    map[uint64]uint64    `json:"block_number"`
	NativePrice    *model.PriceSnapshot `json:"native_price,omitempty"`
	SecondaryPrice *model.PriceSnapshot `json:"secondary_price,omitempty"`
	SwapHelper     *swaphelper.Helper   `json:"-"`
	SwapHelperKey  string               `json:"swap_helper,omitempty"`
}

func (s State) clone() State {
	out := s
	out.BlockNumber = make(map[uint64]uint64, len(s.BlockNumber))
	for k, v := range s.BlockNumber {
		out.BlockNumber[k] = v
	}
	return out
}

// Reduce applies action to state and returns the next state.
func Reduce(state State, action Action) (State, error) {
	next := state.clone()
	switch a := action.(type) {
	case SetLatestBlock:
		next.BlockNumber[a.ChainID] = a.BlockNumber
	case SetNativePrice:
		snap := a.Snapshot
		next.NativePrice = &snap
	case SetSecondaryPrice:
		snap := a.Snapshot
		next.SecondaryPrice = &snap
	case SetSwapHelper:
		next.SwapHelper = a.Helper
		next.SwapHelperKey = fmt.Sprintf("%d:%s", a.ChainID, a.Account.Hex())
	default:
		return state, fmt.Errorf("unknown action %T", action)
	}
	return next, nil
}

// Memory is an in-process store that notifies subscribers on every change.
type Memory struct {
	mu        sync.RWMutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

func NewMemory() *Memory {
	return &Memory{
		state:     State{BlockNumber: make(map[uint64]uint64)},
		listeners: make(map[int]func(State)),
	}
}

// Dispatch reduces action into the current state and notifies listeners.
func (m *Memory) Dispatch(ctx context.Context, action Action) error {
	m.mu.Lock()
	next, err := Reduce(m.state, action)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = next
	listeners := make([]func(State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(next.clone())
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (m *Memory) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Subscribe registers fn for state changes and returns its release func.
func (m *Memory) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Fanout dispatches every action to all stores.
type Fanout []Store

// Dispatch forwards action to each store and joins their errors.
func (f Fanout) Dispatch(ctx context.Context, action Action) error {
	var err error
	for _, s := range f {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Dispatch(ctx, action))
	}
	return err
}

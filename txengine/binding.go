// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// bindState is the lifecycle state of an engine.
type bindState uint32

const (
	// bindUnbound indicates Start has not been called.
	bindUnbound bindState = iota

	// bindBinding indicates Start is in progress.
	bindBinding

	// bindBound indicates the engine is bound to a source and target.
	bindBound

	// bindStopped indicates the engine has been torn down.
	bindStopped
)

// String returns the string representation of a bind state.
func (b bindState) String() string {
	switch b {
	case bindUnbound:
		return "unbound"

	case bindBinding:
		return "binding"

	case bindBound:
		return "bound"

	case bindStopped:
		return "stopped"

	default:
		return "unknown bind state"
	}
}

// binding holds what Start binds an engine to and tracks the engine's
// lifecycle. Every engine embeds one.
type binding struct {
	state atomic.Uint32

	// mu guards the fields below. The target can be replaced after
	// Start by decorators that learn the real destination late.
	mu     sync.RWMutex
	source Account
	target Target
	rates  ExchangeRates
}

// bind moves the engine from unbound to bound. It panics if the engine was
// started or stopped before.
func (b *binding) bind(source Account, target Target, rates ExchangeRates) {
	if !b.state.CompareAndSwap(
		uint32(bindUnbound), uint32(bindBinding)) {

		current := bindState(b.state.Load())
		if current == bindStopped {
			precondition(ErrEngineStopped)
		}

		precondition(fmt.Errorf("%w: engine is %v",
			ErrEngineAlreadyStarted, current))
	}

	b.mu.Lock()
	b.source = source
	b.target = target
	b.rates = rates
	b.mu.Unlock()

	b.state.Store(uint32(bindBound))
}

// ready returns an error unless the engine is bound.
func (b *binding) ready() error {
	switch bindState(b.state.Load()) {
	case bindBound:
		return nil

	case bindStopped:
		return ErrEngineStopped

	default:
		return ErrEngineNotStarted
	}
}

// unbind marks the engine stopped. It returns false if it already was.
func (b *binding) unbind() bool {
	return bindState(b.state.Swap(uint32(bindStopped))) != bindStopped
}

// wasBound reports whether the engine got past Start at some point.
func (b *binding) wasBound() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.source != nil
}

// boundSource returns the source account.
func (b *binding) boundSource() Account {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.source
}

// boundTarget returns the current target.
func (b *binding) boundTarget() Target {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.target
}

// boundRates returns the exchange rates.
func (b *binding) boundRates() ExchangeRates {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.rates
}

// setTarget replaces the target.
func (b *binding) setTarget(target Target) {
	b.mu.Lock()
	b.target = target
	b.mu.Unlock()
}

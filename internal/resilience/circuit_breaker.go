package resilience

import (
	"sync"
	"time"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"` // consecutive failures before opening
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`  // how long to stay open
	SuccessThreshold int           `json:"success_threshold"` // half-open successes needed to close

	// OnStateChange is called outside the breaker lock
	OnStateChange func(name string, from, to CircuitBreakerState) `json:"-"`
}

// CircuitBreaker guards calls to an upstream that may be failing
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	now    func() time.Time

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	successes   int
	nextAttempt time.Time
}

// NewCircuitBreaker creates a closed circuit breaker; zero config values get defaults
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Call executes fn unless the circuit is open
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()
	if err != nil {
		cb.onFailure()
		return err
	}

	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return nil
	}
	if cb.now().Before(cb.nextAttempt) {
		cb.mu.Unlock()
		return NewCircuitBreakerError(cb.name, StateOpen)
	}
	cb.successes = 0
	change := cb.transition(StateHalfOpen)
	cb.mu.Unlock()

	change()
	return nil
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	cb.failures++
	cb.successes = 0

	change := func() {}
	if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.nextAttempt = cb.now().Add(cb.config.RecoveryTimeout)
		change = cb.transition(StateOpen)
	}
	cb.mu.Unlock()

	change()
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	cb.failures = 0

	change := func() {}
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			change = cb.transition(StateClosed)
		}
	}
	cb.mu.Unlock()

	change()
}

// transition must be called with mu held; the returned func fires the callback
func (cb *CircuitBreaker) transition(to CircuitBreakerState) func() {
	from := cb.state
	cb.state = to
	if from == to || cb.config.OnStateChange == nil {
		return func() {}
	}
	return func() { cb.config.OnStateChange(cb.name, from, to) }
}

// Name returns the breaker's registry name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the circuit and clears its counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.failures = 0
	cb.successes = 0
	change := cb.transition(StateClosed)
	cb.mu.Unlock()

	change()
}

// CircuitBreakerError is returned while the circuit is open
type CircuitBreakerError struct {
	Name  string
	State CircuitBreakerState
}

func (e *CircuitBreakerError) Error() string {
	return "circuit breaker " + e.Name + " is " + e.State.String()
}

// NewCircuitBreakerError creates a new circuit breaker error
func NewCircuitBreakerError(name string, state CircuitBreakerState) *CircuitBreakerError {
	return &CircuitBreakerError{Name: name, State: state}
}

// CircuitBreakerRegistry manages named circuit breakers
type CircuitBreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewCircuitBreakerRegistry creates a new registry
func NewCircuitBreakerRegistry() *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate returns the named breaker, creating it with config on first use
func (r *CircuitBreakerRegistry) GetOrCreate(name string, config CircuitBreakerConfig) *CircuitBreaker {
	r.mu.RLock()
	breaker, exists := r.breakers[name]
	r.mu.RUnlock()
	if exists {
		return breaker
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if breaker, exists := r.breakers[name]; exists {
		return breaker
	}
	breaker = NewCircuitBreaker(name, config)
	r.breakers[name] = breaker
	return breaker
}

// Get returns a circuit breaker by name
func (r *CircuitBreakerRegistry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	breaker, exists := r.breakers[name]
	return breaker, exists
}

// GetStats returns state and failure count per breaker
func (r *CircuitBreakerRegistry) GetStats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]interface{}, len(r.breakers))
	for name, breaker := range r.breakers {
		stats[name] = map[string]interface{}{
			"state":    breaker.State().String(),
			"failures": breaker.Failures(),
		}
	}
	return stats
}

// Package health runs periodic component checks. The inference server
// check drives the connection indicator shown in the UI.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"chatmallu/client/ai"
	"chatmallu/client/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component names.
const (
	ComponentSelf      = "self"
	ComponentStorage   = "storage"
	ComponentInference = "inference"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function. It must honour ctx.
type Check func(ctx context.Context) (Status, string, error)

// ChangeFunc is called after a component's status or description changed.
type ChangeFunc func(c Component)

// Checker manages health checks for the system
type Checker struct {
	checks      map[string]Check
	components  map[string]*Component
	checkPeriod time.Duration
	timeout     time.Duration
	onChange    []ChangeFunc
	mutex       sync.RWMutex
	log         *logger.Logger
}

// NewChecker creates a health checker running every checkPeriod, each
// check bounded by timeout.
func NewChecker(log *logger.Logger, checkPeriod, timeout time.Duration) *Checker {
	checker := &Checker{
		checks:      make(map[string]Check),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		timeout:     timeout,
		log:         log.WithComponent("health"),
	}

	checker.RegisterCheck(ComponentSelf, func(context.Context) (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})

	return checker
}

// RegisterCheck registers a new health check
func (c *Checker) RegisterCheck(name string, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = check
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Description: "Not checked yet",
	}
}

// OnChange registers fn to be told about status changes.
func (c *Checker) OnChange(fn ChangeFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onChange = append(c.onChange, fn)
}

// RunChecks executes all registered health checks
func (c *Checker) RunChecks(ctx context.Context) {
	c.mutex.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mutex.RUnlock()

	var changed []Component
	for name, check := range checks {
		status, description, err := c.run(ctx, check)

		c.mutex.Lock()
		component := c.components[name]
		previous := *component
		component.Status = status
		component.Description = description
		component.LastChecked = time.Now()
		component.Error = ""
		if err != nil {
			component.Error = err.Error()
		}
		if previous.Status != component.Status || previous.Description != component.Description ||
			previous.Error != component.Error {
			changed = append(changed, *component)
		}
		c.mutex.Unlock()

		if err != nil {
			c.log.Warn("Health check failed",
				"component", name,
				"status", string(status),
				"error", err.Error(),
			)
		} else {
			c.log.Debug("Health check completed",
				"component", name,
				"status", string(status),
			)
		}
	}

	c.mutex.RLock()
	listeners := append([]ChangeFunc(nil), c.onChange...)
	c.mutex.RUnlock()
	for _, comp := range changed {
		for _, fn := range listeners {
			fn(comp)
		}
	}
}

func (c *Checker) run(ctx context.Context, check Check) (Status, string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return check(ctx)
}

// Run checks immediately and then every checkPeriod until ctx is done.
func (c *Checker) Run(ctx context.Context) error {
	c.RunChecks(ctx)

	ticker := time.NewTicker(c.checkPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.RunChecks(ctx)
		}
	}
}

// GetStatus returns the current health status
func (c *Checker) GetStatus() map[string]Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]Component, len(c.components))
	for k, v := range c.components {
		result[k] = *v
	}

	return result
}

// Component returns the latest state of one component.
func (c *Checker) Component(name string) (Component, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	comp, ok := c.components[name]
	if !ok {
		return Component{}, false
	}
	return *comp, true
}

// IsSystemHealthy returns true if all critical components are up. The
// inference server is not critical: the client keeps working while it is
// away and only replies fail.
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, component := range c.components {
		if component.Status == StatusDown && isCriticalComponent(component.Name) {
			return false
		}
	}

	return true
}

func isCriticalComponent(name string) bool {
	return name == ComponentStorage
}

// HTTPHandler returns an HTTP handler for health checks
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.GetStatus()

		w.Header().Set("Content-Type", "application/json")

		overall := "ok"
		if !c.IsSystemHealthy() {
			overall = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		response := map[string]any{
			"status":     overall,
			"timestamp":  time.Now(),
			"components": status,
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			c.log.Error("Failed to encode health check response", "error", err.Error())
		}
	}
}

// RegisterStorageCheck registers a check of the state storage backend.
func (c *Checker) RegisterStorageCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck(ComponentStorage, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, "Storage is unreachable", err
		}
		return StatusUp, "Storage is reachable", nil
	})
}

// InferenceProber is satisfied by *ai.Client.
type InferenceProber interface {
	Health(ctx context.Context) (*ai.HealthStatus, error)
}

// RegisterInferenceCheck registers the inference server check. An up
// server reports its model as the description.
func (c *Checker) RegisterInferenceCheck(client InferenceProber) {
	c.RegisterCheck(ComponentInference, func(ctx context.Context) (Status, string, error) {
		hs, err := client.Health(ctx)
		if err != nil {
			return StatusDown, "Inference server is unreachable", err
		}
		return StatusUp, hs.Model, nil
	})
}

// Connection is the inference server indicator pushed to the UI.
type Connection struct {
	Status    Status    `json:"status"`
	Model     string    `json:"model,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// ConnectionOf converts the inference component into the indicator.
func ConnectionOf(comp Component) Connection {
	conn := Connection{Status: comp.Status, Error: comp.Error, CheckedAt: comp.LastChecked}
	if comp.Status != StatusDown {
		conn.Model = comp.Description
	}
	return conn
}

// Connection returns the latest inference server indicator.
func (c *Checker) Connection() Connection {
	comp, ok := c.Component(ComponentInference)
	if !ok {
		return Connection{Status: StatusDown, Error: "not monitored"}
	}
	return ConnectionOf(comp)
}

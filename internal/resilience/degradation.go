package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// DegradationLevel represents the current degradation state
type DegradationLevel int

const (
	LevelNormal DegradationLevel = iota
	LevelDegraded
	LevelCritical
	LevelEmergency
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelDegraded:
		return "degraded"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// DegradationConfig holds error-rate thresholds (0.0-1.0)
type DegradationConfig struct {
	DegradedThreshold  float64 `json:"degraded_threshold"`
	CriticalThreshold  float64 `json:"critical_threshold"`
	EmergencyThreshold float64 `json:"emergency_threshold"`
	// levels stay normal until a service has seen this many requests
	MinRequests int64 `json:"min_requests"`
}

// DefaultDegradationConfig returns sensible defaults
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		DegradedThreshold:  0.1,
		CriticalThreshold:  0.25,
		EmergencyThreshold: 0.5,
		MinRequests:        5,
	}
}

// ServiceHealth is a snapshot of one upstream's health
type ServiceHealth struct {
	ServiceName   string           `json:"service_name"`
	Level         DegradationLevel `json:"-"`
	LevelName     string           `json:"level"`
	ErrorRate     float64          `json:"error_rate"`
	TotalRequests int64            `json:"total_requests"`
	ErrorCount    int64            `json:"error_count"`
	LastError     string           `json:"last_error,omitempty"`
	LastErrorTime *time.Time       `json:"last_error_time,omitempty"`
}

// DegradationManager tracks request outcomes per upstream service
type DegradationManager struct {
	config   DegradationConfig
	services map[string]*ServiceHealth
	mutex    sync.RWMutex
}

// NewDegradationManager creates a new degradation manager
func NewDegradationManager(config DegradationConfig) *DegradationManager {
	return &DegradationManager{
		config:   config,
		services: make(map[string]*ServiceHealth),
	}
}

// RegisterService starts tracking a service; registering twice is a no-op
func (dm *DegradationManager) RegisterService(serviceName string) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if _, exists := dm.services[serviceName]; exists {
		return
	}
	dm.services[serviceName] = &ServiceHealth{
		ServiceName: serviceName,
		Level:       LevelNormal,
		LevelName:   LevelNormal.String(),
	}
}

// RecordResult records one request outcome; a nil err is a success
func (dm *DegradationManager) RecordResult(serviceName string, err error) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return
	}

	service.TotalRequests++
	if err != nil {
		now := time.Now()
		service.ErrorCount++
		service.LastError = err.Error()
		service.LastErrorTime = &now
	}
	service.ErrorRate = float64(service.ErrorCount) / float64(service.TotalRequests)

	dm.updateDegradationLevel(service)
}

func (dm *DegradationManager) updateDegradationLevel(service *ServiceHealth) {
	oldLevel := service.Level

	newLevel := LevelNormal
	if service.TotalRequests >= dm.config.MinRequests {
		switch {
		case service.ErrorRate >= dm.config.EmergencyThreshold:
			newLevel = LevelEmergency
		case service.ErrorRate >= dm.config.CriticalThreshold:
			newLevel = LevelCritical
		case service.ErrorRate >= dm.config.DegradedThreshold:
			newLevel = LevelDegraded
		}
	}

	service.Level = newLevel
	service.LevelName = newLevel.String()

	if oldLevel != newLevel {
		slog.Warn("Service degradation level changed",
			"service", service.ServiceName,
			"old_level", oldLevel.String(),
			"new_level", newLevel.String(),
			"error_rate", service.ErrorRate,
		)
	}
}

// GetServiceHealth returns a copy of one service's health
func (dm *DegradationManager) GetServiceHealth(serviceName string) (ServiceHealth, bool) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return ServiceHealth{}, false
	}
	return *service, true
}

// GetAllServiceHealth returns copies of every tracked service
func (dm *DegradationManager) GetAllServiceHealth() map[string]ServiceHealth {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	out := make(map[string]ServiceHealth, len(dm.services))
	for name, service := range dm.services {
		out[name] = *service
	}
	return out
}

// IsServiceAvailable is false only for services in emergency
func (dm *DegradationManager) IsServiceAvailable(serviceName string) bool {
	health, exists := dm.GetServiceHealth(serviceName)
	return !exists || health.Level < LevelEmergency
}

// ResetService clears a service's counters
func (dm *DegradationManager) ResetService(serviceName string) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if _, exists := dm.services[serviceName]; exists {
		dm.services[serviceName] = &ServiceHealth{
			ServiceName: serviceName,
			Level:       LevelNormal,
			LevelName:   LevelNormal.String(),
		}
	}
}

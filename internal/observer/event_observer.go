package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ExtractionEvent represents one step in the life of an extraction
type ExtractionEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	ExtractionID   string                 `json:"extraction_id"`
	Source         string                 `json:"source,omitempty"`
	Engine         string                 `json:"engine,omitempty"`
	Method         string                 `json:"method,omitempty"`
	Results        int                    `json:"results"`
	Progress       int                    `json:"progress"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of extraction event
type EventType string

const (
	ExtractionStarted   EventType = "extraction_started"
	ExtractionProgress  EventType = "extraction_progress"
	PassCompleted       EventType = "pass_completed"
	PassFailed          EventType = "pass_failed"
	ExtractionCompleted EventType = "extraction_completed"
	ExtractionFailed    EventType = "extraction_failed"
	ImageFetched        EventType = "image_fetched"
	ImageFetchFailed    EventType = "image_fetch_failed"
	ResultsPersisted    EventType = "results_persisted"
	PersistenceFailed   EventType = "persistence_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event ExtractionEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event ExtractionEvent)
}

// LoggingObserver logs extraction events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles extraction events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event ExtractionEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"extraction_id":   event.ExtractionID,
		"processing_time": event.ProcessingTime,
		"success":         event.Success,
	}
	if event.Source != "" {
		fields["source"] = event.Source
	}
	if event.Engine != "" {
		fields["engine"] = event.Engine
		fields["method"] = event.Method
		fields["results"] = event.Results
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case ExtractionStarted:
		entry.Info("Extraction started")
	case ExtractionProgress:
		entry.WithField("progress", event.Progress).Debug("Extraction progress")
	case PassCompleted:
		entry.Debug("OCR pass completed")
	case PassFailed:
		entry.Warn("OCR pass failed")
	case ExtractionCompleted:
		entry.WithField("results", event.Results).Info("Extraction completed")
	case ExtractionFailed:
		entry.Error("Extraction failed")
	case ImageFetched:
		entry.Debug("Image fetched successfully")
	case ImageFetchFailed:
		entry.Error("Image fetch failed")
	case ResultsPersisted:
		entry.WithField("rows", event.Results).Info("Results persisted")
	case PersistenceFailed:
		entry.Error("Persisting results failed")
	default:
		entry.Info("Extraction event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from extraction events
type MetricsObserver struct {
	mu                    sync.RWMutex
	totalExtractions      int64
	completedExtractions  int64
	failedExtractions     int64
	totalResults          int64
	failedPasses          int64
	persistedRows         int64
	persistenceFailures   int64
	totalProcessingTime   time.Duration
	resultsByEngine       map[string]int64
	completedPassesByName map[string]int64
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{
		resultsByEngine:       make(map[string]int64),
		completedPassesByName: make(map[string]int64),
	}
}

// OnEvent handles extraction events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event ExtractionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case ExtractionStarted:
		o.totalExtractions++
	case PassCompleted:
		key := event.Engine + "/" + event.Method
		o.completedPassesByName[key]++
		o.resultsByEngine[event.Engine] += int64(event.Results)
	case PassFailed:
		o.failedPasses++
	case ExtractionCompleted:
		o.completedExtractions++
		o.totalResults += int64(event.Results)
		o.totalProcessingTime += event.ProcessingTime
	case ExtractionFailed:
		o.failedExtractions++
	case ResultsPersisted:
		o.persistedRows += int64(event.Results)
	case PersistenceFailed:
		o.persistenceFailures++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.completedExtractions > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.completedExtractions)
	}

	byEngine := make(map[string]int64, len(o.resultsByEngine))
	for k, v := range o.resultsByEngine {
		byEngine[k] = v
	}
	passes := make(map[string]int64, len(o.completedPassesByName))
	for k, v := range o.completedPassesByName {
		passes[k] = v
	}

	return map[string]interface{}{
		"total_extractions":     o.totalExtractions,
		"completed_extractions": o.completedExtractions,
		"failed_extractions":    o.failedExtractions,
		"total_results":         o.totalResults,
		"failed_passes":         o.failedPasses,
		"completed_passes":      passes,
		"pass_results":          byEngine,
		"persisted_rows":        o.persistedRows,
		"persistence_failures":  o.persistenceFailures,
		"total_processing_time": o.totalProcessingTime,
		"avg_processing_time":   avgProcessingTime,
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() Subject {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event. Observers run on their
// own goroutines and must not block the extraction.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event ExtractionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		go func(obs Observer) {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}

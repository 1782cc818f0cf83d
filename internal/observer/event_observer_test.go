package observer

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	name   string
	mu     sync.Mutex
	events []ExtractionEvent
	done   chan struct{}
}

func newRecordingObserver(name string, expected int) *recordingObserver {
	return &recordingObserver{name: name, done: make(chan struct{}, expected)}
}

func (o *recordingObserver) OnEvent(ctx context.Context, event ExtractionEvent) {
	o.mu.Lock()
	o.events = append(o.events, event)
	o.mu.Unlock()
	o.done <- struct{}{}
}

func (o *recordingObserver) GetObserverName() string { return o.name }

func TestMetricsObserver(t *testing.T) {
	m := NewMetricsObserver()
	ctx := context.Background()

	m.OnEvent(ctx, ExtractionEvent{EventType: ExtractionStarted})
	m.OnEvent(ctx, ExtractionEvent{EventType: PassCompleted, Engine: "tesseract_block", Method: "cell_ocr", Results: 3})
	m.OnEvent(ctx, ExtractionEvent{EventType: PassCompleted, Engine: "tesseract_block", Method: "full_image_ocr", Results: 2})
	m.OnEvent(ctx, ExtractionEvent{EventType: PassFailed, Engine: "tesseract_line"})
	m.OnEvent(ctx, ExtractionEvent{EventType: ExtractionCompleted, Results: 4, ProcessingTime: 2 * time.Second})
	m.OnEvent(ctx, ExtractionEvent{EventType: ExtractionStarted})
	m.OnEvent(ctx, ExtractionEvent{EventType: ExtractionFailed})
	m.OnEvent(ctx, ExtractionEvent{EventType: ResultsPersisted, Results: 4})

	metrics := m.GetMetrics()

	if metrics["total_extractions"] != int64(2) {
		t.Errorf("Expected 2 extractions, got %v", metrics["total_extractions"])
	}
	if metrics["completed_extractions"] != int64(1) || metrics["failed_extractions"] != int64(1) {
		t.Errorf("Unexpected completion counters: %v", metrics)
	}
	if metrics["failed_passes"] != int64(1) {
		t.Errorf("Expected 1 failed pass, got %v", metrics["failed_passes"])
	}
	if metrics["avg_processing_time"] != 2*time.Second {
		t.Errorf("Expected 2s average, got %v", metrics["avg_processing_time"])
	}
	byEngine := metrics["pass_results"].(map[string]int64)
	if byEngine["tesseract_block"] != 5 {
		t.Errorf("Expected 5 pass results for tesseract_block, got %d", byEngine["tesseract_block"])
	}
	if metrics["persisted_rows"] != int64(4) {
		t.Errorf("Expected 4 persisted rows, got %v", metrics["persisted_rows"])
	}
}

func TestEventPublisher_NotifyAndUnsubscribe(t *testing.T) {
	publisher := NewEventPublisher()
	a := newRecordingObserver("a", 2)
	b := newRecordingObserver("b", 2)
	publisher.Subscribe(a)
	publisher.Subscribe(b)

	publisher.NotifyObservers(context.Background(), ExtractionEvent{EventType: ExtractionStarted, ExtractionID: "x"})
	waitFor(t, a.done)
	waitFor(t, b.done)

	publisher.Unsubscribe(b)
	publisher.NotifyObservers(context.Background(), ExtractionEvent{EventType: ExtractionCompleted, ExtractionID: "x"})
	waitFor(t, a.done)

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.events) != 2 {
		t.Fatalf("Expected observer a to see 2 events, got %d", len(a.events))
	}
	if a.events[0].Timestamp.IsZero() {
		t.Error("Expected publisher to stamp the event")
	}

	select {
	case <-b.done:
		t.Error("Expected unsubscribed observer to receive nothing")
	case <-time.After(20 * time.Millisecond):
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for observer")
	}
}

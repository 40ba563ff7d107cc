package router

import (
	"context"
	"log"
	"sync"
	"time"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// auditor writes control events off the hub goroutine.
// FUNCTIONAL DISCOVERY: The event log waits for the SQLite writer; recording
// inline would stall every channel behind a disk write.
type auditor struct {
	log     interfaces.EventLog
	queue   chan *types.ChannelEvent
	timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once
}

func newAuditor(eventLog interfaces.EventLog, buffer int, timeout time.Duration) *auditor {
	a := &auditor{
		log:     eventLog,
		queue:   make(chan *types.ChannelEvent, buffer),
		timeout: timeout,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *auditor) run() {
	defer a.wg.Done()
	for event := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.log.RecordEvent(ctx, event); err != nil {
			log.Printf("Audit write failed for %s/%s: %v", event.ChannelID, event.Kind, err)
		}
		cancel()
	}
}

// record queues event; when the queue is full the event is dropped and logged.
func (a *auditor) record(event *types.ChannelEvent) {
	select {
	case a.queue <- event:
	default:
		log.Printf("Audit queue full, dropping %s event for channel %s", event.Kind, event.ChannelID)
	}
}

// close drains queued events and stops the writer.
func (a *auditor) close() {
	a.once.Do(func() {
		close(a.queue)
		a.wg.Wait()
	})
}

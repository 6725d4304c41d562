package nodesystem

import "sync"

// EventType names a notification emitted by a System.
type EventType string

const (
	EventResult   EventType = "result"   // the output node produced a new result
	EventError    EventType = "error"    // an operation or a node computation failed
	EventSave     EventType = "save"     // a serialized snapshot is ready to persist
	EventComputed EventType = "computed" // a single node recomputed successfully
)

// Error categories carried by EventError.
const (
	ErrorTypeConnection  = "connection"
	ErrorTypeLoading     = "loading"
	ErrorTypeComputation = "computation"
)

// Event is a notification from a System. Which fields are set depends on
// Type: Result for result and computed, NodeID for computed and per-node
// errors, ErrorType and Err for errors, Data for save.
type Event struct {
	Type      EventType
	SystemID  int
	NodeID    string
	Result    *Result
	ErrorType string
	Err       error
	Data      *SystemData
}

// Listener receives events. Listeners run after the system has released its
// lock, so they may call back into the system.
type Listener func(Event)

type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]Listener
	ids  []int
}

func (l *listeners) add(fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]Listener)
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	l.ids = append(l.ids, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.fns, id)
			for i, v := range l.ids {
				if v == id {
					l.ids = append(l.ids[:i:i], l.ids[i+1:]...)
					break
				}
			}
		})
	}
}

func (l *listeners) snapshot() []Listener {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Listener, 0, len(l.ids))
	for _, id := range l.ids {
		out = append(out, l.fns[id])
	}
	return out
}

func (l *listeners) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	fns := l.snapshot()
	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

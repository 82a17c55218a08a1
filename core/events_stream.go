package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"benevault/core/state"
	"benevault/core/types"
)

const (
	eventHeadKey       = "node/events/head"
	eventKeyPrefix     = "node/events/"
	eventSubscriberBuf = 32
)

// EventUpdate couples an emitted vault event with its feed cursor. Cursors
// increase strictly and survive restarts, so consumers can resume from the
// last sequence they persisted.
type EventUpdate struct {
	Sequence uint64       `json:"sequence"`
	Event    *types.Event `json:"event"`
}

type eventFeed struct {
	mu     sync.Mutex
	head   uint64
	subs   map[uint64]chan EventUpdate
	nextID uint64
}

func eventStorageKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", eventKeyPrefix, seq))
}

// load restores the feed head so sequences continue across restarts.
func (f *eventFeed) load(manager *state.Manager) error {
	var head uint64
	if _, err := manager.KVGet([]byte(eventHeadKey), &head); err != nil {
		return err
	}
	f.head = head
	return nil
}

func cloneEvent(event *types.Event) *types.Event {
	cloned := &types.Event{Type: event.Type}
	if len(event.Attributes) > 0 {
		cloned.Attributes = make(map[string]string, len(event.Attributes))
		for key, value := range event.Attributes {
			cloned.Attributes[key] = value
		}
	}
	return cloned
}

// publishEvent assigns the next sequence, persists the entry and fans it out
// to subscribers. Slow subscribers miss live updates and are expected to
// resubscribe from their last cursor. Callers hold the node state lock.
func (n *Node) publishEvent(event *types.Event) {
	if n == nil || event == nil {
		return
	}
	n.feed.mu.Lock()
	seq := n.feed.head + 1
	update := EventUpdate{Sequence: seq, Event: cloneEvent(event)}
	encoded, err := json.Marshal(update)
	if err == nil {
		if perr := n.state.KVPut(eventStorageKey(seq), encoded); perr != nil {
			err = perr
		} else if perr := n.state.KVPut([]byte(eventHeadKey), seq); perr != nil {
			err = perr
		}
	}
	if err != nil {
		n.feed.mu.Unlock()
		n.logger.Error("event feed write failed", "type", event.Type, "error", err)
		return
	}
	n.feed.head = seq
	subscribers := make([]chan EventUpdate, 0, len(n.feed.subs))
	for _, ch := range n.feed.subs {
		subscribers = append(subscribers, ch)
	}
	n.feed.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- update:
		default:
		}
	}
}

func (n *Node) loadEvent(seq uint64) (EventUpdate, bool, error) {
	var raw []byte
	ok, err := n.state.KVGet(eventStorageKey(seq), &raw)
	if err != nil || !ok {
		return EventUpdate{}, ok, err
	}
	var update EventUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return EventUpdate{}, false, fmt.Errorf("decode event %d: %w", seq, err)
	}
	return update, true, nil
}

// EventsHead returns the highest assigned event sequence.
func (n *Node) EventsHead() uint64 {
	n.feed.mu.Lock()
	defer n.feed.mu.Unlock()
	return n.feed.head
}

// EventsRange returns stored events with sequence greater than fromSequence,
// at most limit entries. A non-positive limit returns everything.
func (n *Node) EventsRange(fromSequence uint64, limit int) ([]EventUpdate, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	n.feed.mu.Lock()
	head := n.feed.head
	n.feed.mu.Unlock()

	out := make([]EventUpdate, 0)
	for seq := fromSequence + 1; seq <= head; seq++ {
		update, ok, err := n.loadEvent(seq)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, update)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// EventsSubscribe registers a subscriber for vault events starting after the
// supplied cursor. The returned backlog holds the stored events the cursor
// missed; the channel streams everything published afterwards.
func (n *Node) EventsSubscribe(ctx context.Context, cursor uint64) (<-chan EventUpdate, func(), []EventUpdate, error) {
	if n == nil {
		return nil, nil, nil, fmt.Errorf("node not initialised")
	}
	updates := make(chan EventUpdate, eventSubscriberBuf)

	n.stateMu.Lock()
	n.feed.mu.Lock()
	head := n.feed.head
	if n.feed.subs == nil {
		n.feed.subs = make(map[uint64]chan EventUpdate)
	}
	id := n.feed.nextID
	n.feed.nextID++
	n.feed.subs[id] = updates
	n.feed.mu.Unlock()

	backlog := make([]EventUpdate, 0)
	var backlogErr error
	for seq := cursor + 1; seq <= head; seq++ {
		update, ok, err := n.loadEvent(seq)
		if err != nil {
			backlogErr = err
			break
		}
		if !ok {
			continue
		}
		backlog = append(backlog, update)
	}
	n.stateMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.feed.mu.Lock()
			sub, ok := n.feed.subs[id]
			if ok {
				delete(n.feed.subs, id)
				close(sub)
			}
			n.feed.mu.Unlock()
		})
	}

	if backlogErr != nil {
		cancel()
		return nil, nil, nil, backlogErr
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog, nil
}

package filequeue

import (
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/intellect4all/filequeue/internal/handlecache"
)

// Engine is the root of the queue: one process-local handle onto a root
// directory of topic subdirectories. Many Engine instances (in many
// processes) may point at the same Folder concurrently; all coordination
// between them happens through on-disk advisory locks and sentinel files.
type Engine struct {
	config Config

	mu     sync.Mutex
	cache  *handlecache.Cache
	topics map[string]*Topic

	buffersMu sync.Mutex
	buffers   map[string][]bufferedItem
}

type bufferedItem struct {
	payload      []byte
	delaySeconds int32
}

// New creates an Engine rooted at config.Folder, creating it if absent.
func New(config Config) (*Engine, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	config = config.normalized()

	if err := ensureDir(config.Folder); err != nil {
		return nil, fmt.Errorf("creating root folder: %w", err)
	}

	return &Engine{
		config:  config,
		cache:   handlecache.New(),
		topics:  make(map[string]*Topic),
		buffers: make(map[string][]bufferedItem),
	}, nil
}

// topic lazily creates and caches the Topic for name, creating its
// directory if absent. Each topic directory is the unit of isolation;
// there is no cross-topic coordination.
func (e *Engine) topic(name string) (*Topic, error) {
	if name == "" {
		name = DefaultTopic
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.topics[name]; ok {
		return t, nil
	}

	dir := filepath.Join(e.config.Folder, name)
	if err := ensureDir(dir); err != nil {
		return nil, fmt.Errorf("creating topic directory: %w", err)
	}

	t := newTopic(e.config.Folder, name, dir, e.cache, e.config)
	e.topics[name] = t
	return t, nil
}

// Push appends a single message to topic (DefaultTopic if empty). delay
// seconds <= 0 routes to the segment store immediately; delay > 0 routes to
// the delay log.
func (e *Engine) Push(payload []byte, delaySeconds int32, topicName string) error {
	t, err := e.topic(topicName)
	if err != nil {
		return err
	}
	return t.Push(payload, delaySeconds)
}

// PushMulti appends multiple immediate messages to topic in one call: they
// land in the segment store contiguously, in argument order, with strictly
// increasing sequence numbers.
func (e *Engine) PushMulti(payloads [][]byte, topicName string) error {
	t, err := e.topic(topicName)
	if err != nil {
		return err
	}
	return t.PushMulti(payloads)
}

// SetMessage buffers one message for topicName in memory without writing
// it; call Send to flush. The buffered items for a topic accumulate in
// memory and flush atomically as one batch.
func (e *Engine) SetMessage(topicName string, payload []byte, delaySeconds int32) {
	if topicName == "" {
		topicName = DefaultTopic
	}
	e.buffersMu.Lock()
	defer e.buffersMu.Unlock()
	e.buffers[topicName] = append(e.buffers[topicName], bufferedItem{payload: payload, delaySeconds: delaySeconds})
}

// Send flushes buffered items for the given topics (or every topic with a
// pending buffer, if none are named). Each topic's buffered items flush as
// one atomic batch: immediate items in one segment Append call, delayed
// items in one delay-log Write call.
func (e *Engine) Send(topicNames ...string) error {
	e.buffersMu.Lock()
	names := topicNames
	if len(names) == 0 {
		for name := range e.buffers {
			names = append(names, name)
		}
	}
	pending := make(map[string][]bufferedItem, len(names))
	for _, name := range names {
		pending[name] = e.buffers[name]
		delete(e.buffers, name)
	}
	e.buffersMu.Unlock()

	for name, items := range pending {
		if len(items) == 0 {
			continue
		}
		t, err := e.topic(name)
		if err != nil {
			return err
		}
		if err := t.sendBuffered(items); err != nil {
			return err
		}
	}
	return nil
}

// Pop returns the next message for topic, advancing its cursor, or nil if
// none is ready. If ignoreErr is true, any Io/FileError/CreateFailed is
// swallowed and (nil, nil) is returned instead of propagating.
func (e *Engine) Pop(topicName string, ignoreErr bool) (*Message, error) {
	t, err := e.topic(topicName)
	if err != nil {
		if ignoreErr {
			return nil, nil
		}
		return nil, err
	}
	msg, err := t.Pop()
	if err != nil {
		if ignoreErr {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// GetQueue performs a non-destructive range read of up to limit messages
// starting at offset, without touching the cursor.
func (e *Engine) GetQueue(topicName string, offset int64, limit int) ([]Message, error) {
	t, err := e.topic(topicName)
	if err != nil {
		return nil, err
	}
	return t.GetQueue(offset, limit)
}

// GetMessage is GetQueue(offset, 1) degenerate to a single message.
func (e *Engine) GetMessage(topicName string, offset int64) (*Message, error) {
	msgs, err := e.GetQueue(topicName, offset, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

// Length returns max(0, MaxOffset - CurrentOffset) for topic.
func (e *Engine) Length(topicName string) (int64, error) {
	t, err := e.topic(topicName)
	if err != nil {
		return 0, err
	}
	return t.Length()
}

// MaxOffset runs delay promotion then reports the highest sequence number
// ever written to topic, plus one. fromStart folds in prior generations'
// full sequence space.
func (e *Engine) MaxOffset(topicName string, fromStart bool) (int64, error) {
	t, err := e.topic(topicName)
	if err != nil {
		return 0, err
	}
	return t.MaxOffset(fromStart)
}

// CurrentOffset reports topic's consumer cursor. fromStart folds in prior
// generations' full sequence space.
func (e *Engine) CurrentOffset(topicName string, fromStart bool) (int64, error) {
	t, err := e.topic(topicName)
	if err != nil {
		return 0, err
	}
	return t.CurrentOffset(fromStart)
}

// Label returns topic's current generation counter.
func (e *Engine) Label(topicName string) (int32, error) {
	t, err := e.topic(topicName)
	if err != nil {
		return 0, err
	}
	return t.Label()
}

// Stats reports topic's operation counters.
func (e *Engine) Stats(topicName string) (Stats, error) {
	t, err := e.topic(topicName)
	if err != nil {
		return Stats{}, err
	}
	return t.Stats(), nil
}

// Close releases every cached file handle across every topic this Engine
// has touched. It does not delete any data.
func (e *Engine) Close() error {
	e.cache.CloseAll()
	return nil
}

func (e *Engine) logger() *zap.Logger {
	return e.config.Logger
}

// Package convqueue serializes turn work per conversation. Two concurrent
// triggers for the same conversation (a duplicate execute, or an approval
// racing a fresh user message) would otherwise interleave writes to the same
// transcript; each conversation gets a single-consumer lane instead.
package convqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is a unit of work executed on a conversation's lane
type Task func(ctx context.Context) error

type taskRecord struct {
	id     string
	task   Task
	ctx    context.Context
	result chan error
}

type laneState struct {
	queue   []*taskRecord
	running bool
	mu      sync.Mutex
}

// Queue provides per-conversation single-consumer lanes
type Queue struct {
	lanes     map[string]*laneState
	taskIDSeq int
	mu        sync.Mutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new queue
func New() *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue adds a task to the conversation's lane and blocks until it has run.
// Tasks on the same lane execute strictly one at a time in enqueue order.
func (q *Queue) Enqueue(ctx context.Context, conversationID string, task Task) error {
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	ls, exists := q.lanes[conversationID]
	if !exists {
		ls = &laneState{}
		q.lanes[conversationID] = ls
	}
	q.taskIDSeq++
	taskID := fmt.Sprintf("%s-%d", conversationID, q.taskIDSeq)
	q.mu.Unlock()

	record := &taskRecord{
		id:     taskID,
		task:   task,
		ctx:    ctx,
		result: make(chan error, 1),
	}

	ls.mu.Lock()
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	log.Debug().
		Str("conversation_id", conversationID).
		Str("taskId", taskID).
		Int("queueSize", queueSize).
		Msg("Task enqueued")

	go q.processLane(conversationID, ls)

	return <-record.result
}

// processLane drains queued tasks one at a time
func (q *Queue) processLane(conversationID string, ls *laneState) {
	ls.mu.Lock()
	if ls.running || len(ls.queue) == 0 {
		ls.mu.Unlock()
		return
	}
	record := ls.queue[0]
	ls.queue = ls.queue[1:]
	ls.running = true
	ls.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		runCtx, cancel := context.WithCancel(record.ctx)
		stopCancel := context.AfterFunc(q.ctx, cancel)
		defer func() {
			stopCancel()
			cancel()
		}()

		start := time.Now()
		err := record.task(runCtx)
		duration := time.Since(start)

		ls.mu.Lock()
		ls.running = false
		ls.mu.Unlock()

		record.result <- err
		close(record.result)

		if err != nil {
			log.Error().
				Str("conversation_id", conversationID).
				Str("taskId", record.id).
				Dur("duration", duration).
				Err(err).
				Msg("Task failed")
		} else {
			log.Debug().
				Str("conversation_id", conversationID).
				Str("taskId", record.id).
				Dur("duration", duration).
				Msg("Task completed")
		}

		go q.processLane(conversationID, ls)
	}()
}

// Pending returns the number of queued tasks for a conversation
func (q *Queue) Pending(conversationID string) int {
	q.mu.Lock()
	ls, exists := q.lanes[conversationID]
	q.mu.Unlock()

	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.queue)
}

// Close cancels the run context of in-flight tasks and waits for them
func (q *Queue) Close() error {
	q.cancel()
	q.wg.Wait()
	return nil
}

package worker

import (
	"context"
	"log"
	"time"

	"github.com/autovid/autovid/internal/pipeline"
	"github.com/autovid/autovid/internal/queue"
)

const dequeueTimeout = 5 * time.Second

// Worker consumes every stage queue and hands tasks to the executor. The
// heavy stages (video, images) bound their own parallelism internally, so
// one consumer goroutine per queue is enough for the light stages and
// concurrency only multiplies the rest.
type Worker struct {
	queue    *queue.Queue
	executor *pipeline.Executor
}

func New(q *queue.Queue, executor *pipeline.Executor) *Worker {
	return &Worker{queue: q, executor: executor}
}

// Start begins processing tasks from all stage queues and blocks until ctx
// is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	log.Printf("[Worker] Started (concurrency %d, %d queues)", concurrency, len(queue.AllQueues))

	for i := 0; i < concurrency; i++ {
		for _, queueName := range queue.AllQueues {
			go w.processQueue(ctx, queueName)
		}
	}

	<-ctx.Done()
	log.Println("[Worker] Shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			task, err := w.queue.Dequeue(ctx, queueName, dequeueTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[Worker] Error dequeuing from %s: %v", queueName, err)
				continue
			}
			if task == nil {
				continue // No task available, retry
			}

			log.Printf("[Worker] Processing task %s (stage: %s, project: %d)", task.ID, task.Stage, task.ProjectID)
			w.executor.Execute(ctx, task)
		}
	}
}

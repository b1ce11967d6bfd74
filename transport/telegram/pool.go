package telegram

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// workerPool runs a fixed set of goroutines, each with its own queue. An
// update always lands on the queue picked by its user id, so one user's
// updates are handled in receipt order.
type workerPool struct {
	queues []chan tgbotapi.Update
	handle func(ctx context.Context, upd tgbotapi.Update)
	wg     *sync.WaitGroup
}

func newWorkerPool(workers, depth int, handle func(context.Context, tgbotapi.Update)) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	p := &workerPool{
		queues: make([]chan tgbotapi.Update, workers),
		handle: handle,
		wg:     &sync.WaitGroup{},
	}
	for i := range p.queues {
		p.queues[i] = make(chan tgbotapi.Update, depth)
	}
	return p
}

func (p *workerPool) Start(ctx context.Context) {
	for _, q := range p.queues {
		p.wg.Add(1)
		go func(q <-chan tgbotapi.Update) {
			defer p.wg.Done()
			for upd := range q {
				p.handle(ctx, upd)
			}
		}(q)
	}
}

func (p *workerPool) shard(userID int64) int {
	return int(uint64(userID) % uint64(len(p.queues)))
}

// Dispatch queues upd for userID. It blocks while that worker is busy and
// gives up when ctx is done.
func (p *workerPool) Dispatch(ctx context.Context, userID int64, upd tgbotapi.Update) bool {
	select {
	case p.queues[p.shard(userID)] <- upd:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop closes the queues and waits for queued updates to drain. Dispatch
// must not be called after Stop.
func (p *workerPool) Stop() {
	for _, q := range p.queues {
		close(q)
	}
	p.wg.Wait()
}

package queue

import (
	"context"
	"log"
	"sync"
	"time"
)

// Result tells the pool what to do with a finished job. The handler reports
// the failure class; the pool owns the retry/dead-letter decision.
type Result int

const (
	Done Result = iota
	Retry
	Dead
)

// HandlerFunc executes one job.
type HandlerFunc func(ctx context.Context, env Envelope) Result

// promoteEvery is how often ripe delayed retries are moved onto the queue.
const promoteEvery = 500 * time.Millisecond

// Pool consumes one queue with bounded concurrency. Jobs stay on the
// processing list until their outcome is recorded, so a crash between
// dequeue and ack loses nothing: Start reclaims leftovers before consuming.
type Pool struct {
	queue       *Queue
	name        string
	concurrency int
	maxAttempts int
	backoffBase time.Duration
	handler     HandlerFunc

	wg sync.WaitGroup
}

func NewPool(q *Queue, name string, concurrency, maxAttempts int, backoffBase time.Duration, handler HandlerFunc) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		queue:       q,
		name:        name,
		concurrency: concurrency,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		handler:     handler,
	}
}

func (p *Pool) Start(ctx context.Context) {
	reclaimCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if n, err := p.queue.Reclaim(reclaimCtx, p.name); err != nil {
		log.Printf("⚠️  [%s] reclaim: %v", p.name, err)
	} else if n > 0 {
		log.Printf("🟡 [%s] reclaimed %d unfinished jobs", p.name, n)
	}
	cancel()

	p.wg.Add(1)
	go p.promote(ctx)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx)
	}
	log.Printf("✅ Worker pool %s started (%d workers)", p.name, p.concurrency)
}

func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) promote(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(promoteEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := p.queue.PromoteDue(ctx, p.name, now); err != nil && ctx.Err() == nil {
				log.Printf("❌ [%s] promote delayed: %v", p.name, err)
			}
		}
	}
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}

		env, raw, ok, err := p.queue.Dequeue(ctx, p.name, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("❌ [%s] dequeue: %v", p.name, err)
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}

		// The ack comes after the outcome is recorded: a crash in between
		// redelivers the job rather than losing it.
		switch p.handler(ctx, env) {
		case Done:
			p.ack(raw)

		case Dead:
			p.park(env)
			p.ack(raw)

		case Retry:
			env.Attempts++
			if env.Attempts >= p.maxAttempts {
				log.Printf("❌ [%s] job exhausted after %d attempts", p.name, env.Attempts)
				p.park(env)
				p.ack(raw)
				continue
			}
			delay := Backoff(p.backoffBase, env.Attempts)
			log.Printf("⚠️  [%s] retrying in %s (attempt %d/%d)", p.name, delay, env.Attempts, p.maxAttempts)
			p.delay(env, delay)
			p.ack(raw)
		}
	}
}

func (p *Pool) ack(raw string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.queue.Ack(ctx, p.name, raw); err != nil {
		log.Printf("❌ [%s] ack failed: %v", p.name, err)
	}
}

func (p *Pool) delay(env Envelope, delay time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.queue.EnqueueDelayed(ctx, p.name, env, delay); err != nil {
		log.Printf("❌ [%s] delayed re-enqueue failed, dead-lettering: %v", p.name, err)
		_ = p.queue.DeadLetter(ctx, p.name, env)
	}
}

func (p *Pool) park(env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.queue.DeadLetter(ctx, p.name, env); err != nil {
		log.Printf("❌ [%s] dead-letter failed: %v", p.name, err)
	}
}

// Backoff is exponential on the attempt count, capped at five minutes.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base << (attempt - 1)
	if max := 5 * time.Minute; d > max || d <= 0 {
		return max
	}
	return d
}

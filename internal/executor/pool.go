package executor

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"go.uber.org/zap"
)

type job struct {
	handle  *Handle
	model   string
	records []models.Features
}

// Pool scores jobs on a fixed set of goroutines fed by an unbounded queue.
type Pool struct {
	scorers ScorerSource
	log     *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []job
	closed bool
	wg     sync.WaitGroup
}

func NewPool(scorers ScorerSource, workers int, log *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{scorers: scorers, log: log}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) Submit(ctx context.Context, modelName string, records []models.Features) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := NewHandle(uuid.New().String(), nil)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	p.queue = append(p.queue, job{handle: h, model: modelName, records: records})
	p.cond.Signal()
	return h, nil
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue[0] = job{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		answers, err := Score(p.scorers, j.model, j.records)
		if !j.handle.Resolve(answers, err) {
			p.log.Warn("late prediction result discarded",
				zap.String("job_id", j.handle.ID),
				zap.String("model", j.model))
		}
	}
}

// Close stops accepting jobs, lets the workers drain the queue and waits for them.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

var _ Executor = (*Pool)(nil)

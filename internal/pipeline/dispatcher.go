package pipeline

import (
	"context"
	"errors"
	"sync"

	"arrhythmia-service/internal/models"
)

// ErrDispatcherStopped задача не выполнена, так как пул остановлен
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Evaluator выполняет анализ одного сигнала
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (*models.SignalVerdict, error)
}

// Result результат задачи пула
type Result struct {
	Index   int
	Verdict *models.SignalVerdict
	Err     error
}

type job struct {
	ctx  context.Context
	req  Request
	done func(*models.SignalVerdict, error)
}

// Dispatcher пул воркеров, выполняющих независимые запуски конвейера
type Dispatcher struct {
	eval     Evaluator
	mu       sync.RWMutex
	stopped  bool
	jobs     chan job
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher создает пул с очередью заданного размера
func NewDispatcher(eval Evaluator, bufferSize int) *Dispatcher {
	return &Dispatcher{
		eval:     eval,
		jobs:     make(chan job, bufferSize),
		stopChan: make(chan struct{}),
	}
}

// Start запускает воркеры
func (d *Dispatcher) Start(numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	for i := 0; i < numWorkers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case j := <-d.jobs:
			if err := j.ctx.Err(); err != nil {
				j.done(nil, err)
				continue
			}
			j.done(d.eval.Evaluate(j.ctx, j.req))
		case <-d.stopChan:
			return
		}
	}
}

// Submit ставит сигнал в очередь. done вызывается ровно один раз, если задача принята.
// Блокируется при заполненной очереди до отмены ctx
func (d *Dispatcher) Submit(ctx context.Context, req Request, done func(*models.SignalVerdict, error)) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return false
	}

	select {
	case d.jobs <- job{ctx: ctx, req: req, done: done}:
		return true
	case <-ctx.Done():
		return false
	}
}

// EvaluateBatch выполняет пакет сигналов параллельно, сохраняя порядок результатов
func (d *Dispatcher) EvaluateBatch(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	var wg sync.WaitGroup

	for i, req := range reqs {
		i := i
		results[i].Index = i
		wg.Add(1)
		accepted := d.Submit(ctx, req, func(v *models.SignalVerdict, err error) {
			results[i].Verdict = v
			results[i].Err = err
			wg.Done()
		})
		if !accepted {
			results[i].Err = ErrDispatcherStopped
			if ctx.Err() != nil {
				results[i].Err = ctx.Err()
			}
			wg.Done()
		}
	}

	wg.Wait()
	return results
}

// Stop останавливает воркеры; задачи, оставшиеся в очереди, завершаются с ErrDispatcherStopped
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.stopChan)
	d.wg.Wait()

	for {
		select {
		case j := <-d.jobs:
			j.done(nil, ErrDispatcherStopped)
		default:
			return
		}
	}
}

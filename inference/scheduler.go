package inference

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// flushTimeout is the dispatcher's "form a partial batch anyway" wait,
// per spec.md §5's "short timeout (~1ms)".
const flushTimeout = time.Millisecond

// request is one leaf's in-flight inference: a feature tensor plus a
// done signal, grounded on janpfeifer-hiveGo's AutoBatchRequest (a
// features pointer and a done channel the worker closes on completion).
type request struct {
	features tensor.Tensor
	output   Output
	err      error
	done     chan struct{}
}

// BatchingModel multiplexes many concurrent callers' single-leaf
// RunMany requests onto a small worker pool, forming batches of up to
// batchSize. One BatchingModel exists per distinct model identity; the
// teacher's Agent.inferer chan Inferer worker-borrow pattern
// (agent.go#SwitchToInference/#Infer) generalizes here from "one worker
// per borrowed inference" to "one worker per batch".
type BatchingModel struct {
	model     Model
	batchSize int

	numActive int32 // games currently referring to this model

	submit chan *request
	drain  chan struct{}
	done   chan struct{}

	tokens chan struct{} // worker pool: one token per concurrent RunMany call

	drainOnce sync.Once
	wg        sync.WaitGroup
}

func newBatchingModel(model Model, batchSize, workers int) *BatchingModel {
	bm := &BatchingModel{
		model:     model,
		batchSize: batchSize,
		submit:    make(chan *request),
		drain:     make(chan struct{}),
		done:      make(chan struct{}),
		tokens:    make(chan struct{}, workers),
	}
	for i := 0; i < workers; i++ {
		bm.tokens <- struct{}{}
	}
	go bm.dispatch()
	return bm
}

// RunMany submits every input as an independent single-leaf request,
// blocks until every one has a result, and returns the outputs in the
// same order as inputs — satisfying spec.md §8's "|outputs|==|inputs|,
// order matches" property even though, internally, inputs may land in
// different physical batches.
func (bm *BatchingModel) RunMany(inputs []tensor.Tensor) ([]Output, error) {
	reqs := make([]*request, len(inputs))
	for i, in := range inputs {
		reqs[i] = &request{features: in, done: make(chan struct{})}
		bm.submit <- reqs[i]
	}

	outputs := make([]Output, len(inputs))
	var firstErr error
	for i, r := range reqs {
		<-r.done
		outputs[i] = r.output
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
	}
	if firstErr != nil {
		return nil, errors.Wrap(firstErr, "inference: backend error")
	}
	return outputs, nil
}

// Name returns the identity of the underlying model, for cache
// fingerprinting and logging.
func (bm *BatchingModel) Name() string { return bm.model.Name() }

// StartGame registers one more game as referring to this model.
func (bm *BatchingModel) StartGame() { atomic.AddInt32(&bm.numActive, 1) }

// EndGame deregisters a game. When the last referring game ends, the
// dispatcher flushes any partial batch and the backing workers shut
// down; no in-flight request is ever aborted.
func (bm *BatchingModel) EndGame() {
	if bm.endGame() <= 0 {
		bm.drainOnce.Do(func() { close(bm.drain) })
	}
}

// endGame decrements numActive and returns the count after decrementing,
// letting a caller that needs the authoritative post-decrement value
// (the factory, deciding whether to drop its map entry) avoid a separate
// racy re-read of numActive.
func (bm *BatchingModel) endGame() int32 {
	return atomic.AddInt32(&bm.numActive, -1)
}

// Shutdown blocks until the dispatcher has fully drained and exited.
func (bm *BatchingModel) Shutdown() {
	bm.drainOnce.Do(func() { close(bm.drain) })
	<-bm.done
}

func (bm *BatchingModel) dispatch() {
	defer close(bm.done)
	var batch []*request
	timer := time.NewTimer(flushTimeout)
	defer timer.Stop()

	flush := func() {
		for len(batch) > 0 {
			n := bm.batchSize
			if n > len(batch) {
				n = len(batch)
			}
			head := batch[:n]
			batch = batch[n:]
			bm.wg.Add(1)
			go bm.runBatch(head)
		}
	}

	for {
		select {
		case req := <-bm.submit:
			batch = append(batch, req)
			active := atomic.LoadInt32(&bm.numActive)
			threshold := bm.batchSize
			if active > 0 && int(active) < threshold {
				threshold = int(active)
			}
			if threshold > 0 && len(batch) >= threshold {
				flush()
			}
		case <-timer.C:
			flush()
			timer.Reset(flushTimeout)
		case <-bm.drain:
			flush()
			bm.wg.Wait()
			return
		}
	}
}

// runBatch performs one inference for reqs, borrowing a worker token,
// and writes each result (or a shared failure) back to its requester.
func (bm *BatchingModel) runBatch(reqs []*request) {
	defer bm.wg.Done()
	<-bm.tokens
	defer func() { bm.tokens <- struct{}{} }()

	inputs := make([]tensor.Tensor, len(reqs))
	for i, r := range reqs {
		inputs[i] = r.features
	}

	outputs, err := bm.model.RunMany(inputs)
	for i, r := range reqs {
		if err != nil {
			r.err = errors.Wrapf(err, "model %q", bm.model.Name())
		} else {
			r.output = outputs[i]
		}
		close(r.done)
	}
}

// BatchingFactory tracks one BatchingModel per distinct model identity,
// sharing a worker pool across every game using the same model and
// releasing it once no game refers to it anymore.
type BatchingFactory struct {
	mu      sync.Mutex
	models  map[string]*BatchingModel
	workers int
	batchSz int
}

// NewBatchingFactory configures the worker count and target batch size
// applied to every model it hands out.
func NewBatchingFactory(workers, batchSize int) *BatchingFactory {
	return &BatchingFactory{
		models:  make(map[string]*BatchingModel),
		workers: workers,
		batchSz: batchSize,
	}
}

// Acquire returns the shared BatchingModel facade for model.Name(),
// constructing it on first use, and registers one more game against it.
func (f *BatchingFactory) Acquire(model Model) *BatchingModel {
	f.mu.Lock()
	defer f.mu.Unlock()

	bm, ok := f.models[model.Name()]
	if !ok {
		bm = newBatchingModel(model, f.batchSz, f.workers)
		f.models[model.Name()] = bm
	}
	bm.StartGame()
	return bm
}

// Release deregisters one game from name's BatchingModel. When the last
// game referring to it ends, the facade is removed from the factory and
// its workers are drained and shut down.
func (f *BatchingFactory) Release(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	bm, ok := f.models[name]
	if !ok {
		return errors.Errorf("inference: no active model named %q", name)
	}

	// The decrement and the map deletion must happen under the same
	// lock: two concurrent Releases both reading numActive==2 before
	// either decrements would otherwise leave the entry in the map
	// forever once both games actually end, orphaning a dispatcher no
	// later Acquire can ever reach again.
	if bm.endGame() <= 0 {
		delete(f.models, name)
		bm.drainOnce.Do(func() { close(bm.drain) })
	}
	return nil
}

// Shutdown tears down every model still tracked by the factory,
// aggregating any errors with go-multierror exactly as the teacher's
// Agent.Close does for its inferers.
func (f *BatchingFactory) Shutdown() error {
	f.mu.Lock()
	models := make([]*BatchingModel, 0, len(f.models))
	for name, bm := range f.models {
		models = append(models, bm)
		delete(f.models, name)
	}
	f.mu.Unlock()

	var result *multierror.Error
	for _, bm := range models {
		func() {
			defer func() {
				if r := recover(); r != nil {
					result = multierror.Append(result, errors.Errorf("inference: panic during shutdown: %v", r))
				}
			}()
			bm.Shutdown()
		}()
	}
	return result.ErrorOrNil()
}

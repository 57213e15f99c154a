package worker

import (
	"context"
	"runtime"
	"sync"
	"time"

	cr "github.com/gofhir/cqlretrieve"
)

// Batch runs one query for many context subjects in parallel.
type Batch struct {
	retriever cr.Retriever
	workers   int
}

// NewBatch creates a batch runner. If workers <= 0 it defaults to
// runtime.NumCPU().
func NewBatch(r cr.Retriever, workers int) *Batch {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Batch{
		retriever: r,
		workers:   workers,
	}
}

// Workers returns the configured parallelism.
func (b *Batch) Workers() int { return b.workers }

// Run retrieves q once per subject with the context value replaced.
// Results are returned in subject order. Subjects not started before ctx is
// canceled carry ctx.Err().
func (b *Batch) Run(ctx context.Context, q cr.Query, subjects []string) *BatchResult {
	if len(subjects) == 0 {
		return &BatchResult{
			Results: make([]*SubjectResult, 0),
		}
	}

	// For small batches, don't use parallelism
	if len(subjects) <= 2 || b.workers == 1 {
		return b.runSequential(ctx, q, subjects)
	}

	return b.runParallel(ctx, q, subjects)
}

func (b *Batch) runSequential(ctx context.Context, q cr.Query, subjects []string) *BatchResult {
	result := &BatchResult{
		Results:   make([]*SubjectResult, len(subjects)),
		TotalJobs: len(subjects),
	}
	for i, subject := range subjects {
		result.record(i, b.retrieve(ctx, q, subject))
	}
	return result
}

func (b *Batch) runParallel(ctx context.Context, q cr.Query, subjects []string) *BatchResult {
	numWorkers := b.workers
	if numWorkers > len(subjects) {
		numWorkers = len(subjects)
	}

	jobs := make(chan int, len(subjects))
	resultsChan := make(chan indexedResult, len(subjects))

	// Start workers
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for index := range jobs {
				resultsChan <- indexedResult{
					index:  index,
					result: b.retrieve(ctx, q, subjects[index]),
				}
			}
		}()
	}

	for i := range subjects {
		jobs <- i
	}
	close(jobs)

	// Wait for workers and close results channel
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Collect results in order
	result := &BatchResult{
		Results:   make([]*SubjectResult, len(subjects)),
		TotalJobs: len(subjects),
	}
	for ir := range resultsChan {
		result.record(ir.index, ir.result)
	}
	return result
}

func (b *Batch) retrieve(ctx context.Context, q cr.Query, subject string) *SubjectResult {
	sr := &SubjectResult{Subject: subject}
	if err := ctx.Err(); err != nil {
		sr.Err = err
		return sr
	}

	start := time.Now()
	rs, err := b.retriever.Retrieve(ctx, q.WithContextValue(subject))
	sr.Duration = time.Since(start)
	if err != nil {
		sr.Err = err
		return sr
	}
	sr.Result = rs
	return sr
}

func (r *BatchResult) record(index int, sr *SubjectResult) {
	r.Results[index] = sr
	r.CompletedJobs++
	r.TotalDuration += sr.Duration
	if sr.Err != nil {
		r.FailedJobs++
	}
}

type indexedResult struct {
	index  int
	result *SubjectResult
}

// RetrieveForSubjects runs q for every subject using up to workers
// goroutines and returns the result sets in subject order. The first
// failure, in subject order, is returned as the error.
func RetrieveForSubjects(ctx context.Context, r cr.Retriever, q cr.Query, subjects []string, workers int) ([]cr.ResultSet, error) {
	batch := NewBatch(r, workers).Run(ctx, q, subjects)
	if err := batch.FirstError(); err != nil {
		return nil, err
	}
	return batch.ResultSets(), nil
}

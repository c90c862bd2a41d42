package pipeline

import (
	"context"
	"time"

	"github.com/sps-pm/sps/internal/resolver"
)

// Runner is the Pipeline Runner (§4.5): it owns the authoritative per-job
// state map, reconciles download and worker outcomes, gates worker dispatch
// on dependency completion, and propagates failures to dependents.
type Runner struct {
	jobs      map[string]*PlannedJob
	graph     *resolver.ResolvedGraph
	states    *stateMap
	dependents map[string][]string // reverse edges, for propagate_failure

	jobCh  chan WorkerJob
	events chan Event

	active  int
	success int
	failed  int
}

// NewRunner builds a Runner for the given job list and resolved graph. jobCh
// is the Runner-to-WorkerPool channel (§5); events is the broadcast channel
// consumed by the status-UI collaborator and, here, also by the downloader.
func NewRunner(jobs []*PlannedJob, graph *resolver.ResolvedGraph, jobCh chan WorkerJob, events chan Event) *Runner {
	r := &Runner{
		jobs:       make(map[string]*PlannedJob, len(jobs)),
		graph:      graph,
		states:     newStateMap(),
		dependents: make(map[string][]string),
		jobCh:      jobCh,
		events:     events,
	}
	for _, j := range jobs {
		r.jobs[j.TargetID] = j
	}
	for _, j := range jobs {
		for _, dep := range DependencySet(j, graph) {
			r.dependents[dep] = append(r.dependents[dep], j.TargetID)
		}
	}
	return r
}

// Start initializes every job's state per §4.5 Startup and returns the jobs
// that need a download (the rest are already satisfied, used
// private-store source, or failed in planning).
func (r *Runner) Start(plannerErrors map[string]error, alreadySatisfied map[string]bool) []*PlannedJob {
	var needDownload []*PlannedJob
	for id, job := range r.jobs {
		switch {
		case alreadySatisfied[id]:
			r.states.set(id, JobProcessingState{Kind: StateSucceeded})
			r.success++
		case plannerErrors[id] != nil:
			r.states.set(id, JobProcessingState{Kind: StateFailed, Err: plannerErrors[id]})
			r.failed++
		case job.UsePrivateStoreSource != "":
			r.states.set(id, JobProcessingState{Kind: StateDownloaded, Path: job.UsePrivateStoreSource})
			r.active++
			needDownload = append(needDownload, nil) // placeholder kept for symmetry; no download needed
		default:
			r.states.set(id, JobProcessingState{Kind: StatePendingDownload})
			r.active++
			needDownload = append(needDownload, job)
		}
	}
	// Drop the private-store placeholders; the pipeline's first
	// check_and_dispatch pass (driven from Run) picks those jobs up from
	// their Downloaded state directly.
	filtered := needDownload[:0]
	for _, j := range needDownload {
		if j != nil {
			filtered = append(filtered, j)
		}
	}
	return filtered
}

// Run drives the select-loop described in §4.5 until the active-job count
// reaches zero, then emits PipelineFinished and returns the final counts.
func (r *Runner) Run(ctx context.Context, downloadOutcomes <-chan DownloadOutcome, workerEvents <-chan Event) (success, failed int) {
	start := time.Now()

	// Private-store-sourced jobs are already Downloaded; give them an
	// initial dispatch pass before entering the select-loop.
	r.checkAndDispatch()

	for r.active > 0 {
		select {
		case <-ctx.Done():
			r.active = 0
		case out, ok := <-downloadOutcomes:
			if !ok {
				downloadOutcomes = nil
				continue
			}
			r.onDownloadOutcome(out)
		case ev, ok := <-workerEvents:
			if !ok {
				workerEvents = nil
				continue
			}
			r.onWorkerEvent(ev)
		}
		if downloadOutcomes == nil && workerEvents == nil {
			break
		}
	}

	close(r.jobCh)

	r.emit(Event{Kind: EventPipelineFinished, Duration: start, Success: r.success, Failed: r.failed})
	close(r.events)
	return r.success, r.failed
}

func (r *Runner) onDownloadOutcome(out DownloadOutcome) {
	cur, ok := r.states.get(out.TargetID)
	if ok && cur.Kind.Terminal() {
		return
	}
	if out.Err != nil {
		r.states.set(out.TargetID, JobProcessingState{Kind: StateFailed, Err: out.Err})
		r.failed++
		r.active--
		r.emit(Event{Kind: EventJobFailed, TargetID: out.TargetID, Err: out.Err})
		r.propagateFailure(out.TargetID)
		return
	}
	r.states.set(out.TargetID, JobProcessingState{Kind: StateDownloaded, Path: out.Path})
	r.checkAndDispatch()
}

func (r *Runner) onWorkerEvent(ev Event) {
	cur, ok := r.states.get(ev.TargetID)
	if ok && cur.Kind.Terminal() {
		return
	}
	switch ev.Kind {
	case EventJobSuccess:
		r.states.set(ev.TargetID, JobProcessingState{Kind: StateSucceeded})
		r.success++
		r.active--
		r.checkAndDispatch()
	case EventJobFailed:
		r.states.set(ev.TargetID, JobProcessingState{Kind: StateFailed, Err: ev.Err})
		r.failed++
		r.active--
		r.emit(ev)
		r.propagateFailure(ev.TargetID)
	}
}

// checkAndDispatch implements §4.5: for every job in Downloaded or
// WaitingForDependencies, dispatch it once every dependency has Succeeded
// or was pre-Installed.
func (r *Runner) checkAndDispatch() {
	for id, job := range r.jobs {
		st, ok := r.states.get(id)
		if !ok || (st.Kind != StateDownloaded && st.Kind != StateWaitingForDependencies) {
			continue
		}

		if !r.depsSucceeded(job) {
			if st.Kind == StateDownloaded {
				r.states.set(id, JobProcessingState{Kind: StateWaitingForDependencies, Path: st.Path})
			}
			continue
		}

		select {
		case r.jobCh <- WorkerJob{Job: job, Path: st.Path}:
			r.states.set(id, JobProcessingState{Kind: StateDispatchedToCore, Path: st.Path})
		default:
			// Channel send would block: try a blocking send in a goroutine
			// so check_and_dispatch itself never stalls the select-loop.
			go func(id string, job *PlannedJob, path string) {
				r.jobCh <- WorkerJob{Job: job, Path: path}
			}(id, job, st.Path)
			r.states.set(id, JobProcessingState{Kind: StateDispatchedToCore, Path: st.Path})
		}
	}
}

func (r *Runner) depsSucceeded(job *PlannedJob) bool {
	for _, dep := range DependencySet(job, r.graph) {
		if node, ok := r.graph.Lookup(dep); ok && node.Status == resolver.StatusInstalled {
			continue
		}
		st, ok := r.states.get(dep)
		if !ok {
			continue // dependency not part of this job set (e.g. already on disk)
		}
		if st.Kind == StateFailed {
			return false
		}
		if st.Kind != StateSucceeded {
			return false
		}
	}
	return true
}

// propagateFailure is a queue-based BFS (§9) over the reverse-dependency
// graph: any non-terminal job depending (directly or transitively) on a
// newly-Failed job becomes Failed too.
func (r *Runner) propagateFailure(rootID string) {
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, depID := range r.dependents[id] {
			st, ok := r.states.get(depID)
			if ok && st.Kind.Terminal() {
				continue
			}
			rootErr, _ := r.states.get(id)
			r.states.set(depID, JobProcessingState{Kind: StateFailed, Err: rootErr.Err})
			r.failed++
			r.active--
			r.emit(Event{Kind: EventJobFailed, TargetID: depID, Err: rootErr.Err})
			queue = append(queue, depID)
		}
	}
}

func (r *Runner) emit(e Event) {
	select {
	case r.events <- e:
	default:
		go func() { r.events <- e }()
	}
}

package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/sps-pm/sps/internal/logger"
)

// BottleInstaller performs the bottle-install + relocate step (§4.7).
type BottleInstaller interface {
	InstallBottle(job *PlannedJob, bottlePath string) error
}

// SourceBuilder performs the from-source build, reusing the build-system
// detection and compile/install steps the teacher already implements.
type SourceBuilder interface {
	BuildFromSource(job *PlannedJob, sourcePath string) error
}

// CaskInstaller performs cask artifact staging (§4.9).
type CaskInstaller interface {
	InstallCask(job *PlannedJob, downloadPath string) error
}

// PreUninstaller removes a prior version ahead of an Upgrade/Reinstall,
// without zapping (§4.10: skip_zap=true for this call site).
type PreUninstaller interface {
	SoftUninstall(job *PlannedJob) error
}

// WorkerPool is the Worker Pool Manager (§4.6): a fixed-size goroutine pool
// that drains Runner-dispatched WorkerJobs and performs the actual install.
type WorkerPool struct {
	bottle       BottleInstaller
	source       SourceBuilder
	cask         CaskInstaller
	preUninstall PreUninstaller
}

// NewWorkerPool wires the four install-time collaborators. Any of them may
// be nil if the pipeline run never dispatches that kind of job.
func NewWorkerPool(bottle BottleInstaller, source SourceBuilder, cask CaskInstaller, preUninstall PreUninstaller) *WorkerPool {
	return &WorkerPool{bottle: bottle, source: source, cask: cask, preUninstall: preUninstall}
}

// poolSize is min(6, NumCPU-1), floored at 1 (§5 Concurrency Model).
func poolSize() int {
	n := runtime.NumCPU() - 1
	if n > 6 {
		n = 6
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run drains jobCh with a bounded goroutine pool until the channel is
// closed by the Runner, reporting one JobSuccess/JobFailed Event per job.
// The returned channel is closed once every in-flight job has reported.
func (w *WorkerPool) Run(ctx context.Context, jobCh <-chan WorkerJob) <-chan Event {
	out := make(chan Event, 64)

	go func() {
		defer close(out)

		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(poolSize())

		for wj := range jobCh {
			wj := wj
			g.Go(func() error {
				err := w.process(wj)
				if err != nil {
					out <- Event{Kind: EventJobFailed, TargetID: wj.Job.TargetID, Action: wj.Job.Action, Err: err}
				} else {
					out <- Event{Kind: EventJobSuccess, TargetID: wj.Job.TargetID, Action: wj.Job.Action}
				}
				return nil // a failed job does not abort the pool
			})
		}
		_ = g.Wait()
	}()

	return out
}

func (w *WorkerPool) process(wj WorkerJob) error {
	job := wj.Job

	if job.Action == ActionUpgrade || job.Action == ActionReinstall {
		if w.preUninstall != nil {
			if err := w.preUninstall.SoftUninstall(job); err != nil {
				logger.Warn("pre-uninstall of prior version for %s failed: %v", job.TargetID, err)
			}
		}
	}

	switch job.Kind {
	case TargetCask:
		if w.cask == nil {
			return fmt.Errorf("no cask installer configured for %s", job.TargetID)
		}
		return w.cask.InstallCask(job, wj.Path)
	default:
		if job.IsSourceBuild {
			if w.source == nil {
				return fmt.Errorf("no source builder configured for %s", job.TargetID)
			}
			return w.source.BuildFromSource(job, wj.Path)
		}
		if w.bottle == nil {
			return fmt.Errorf("no bottle installer configured for %s", job.TargetID)
		}
		return w.bottle.InstallBottle(job, wj.Path)
	}
}

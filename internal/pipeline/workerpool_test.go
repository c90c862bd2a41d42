package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sps-pm/sps/internal/formula"
)

type fakeBottleInstaller struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeBottleInstaller) InstallBottle(job *PlannedJob, bottlePath string) error {
	f.mu.Lock()
	f.calls = append(f.calls, job.TargetID)
	f.mu.Unlock()
	return f.err
}

type fakeSourceBuilder struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeSourceBuilder) BuildFromSource(job *PlannedJob, sourcePath string) error {
	f.mu.Lock()
	f.calls = append(f.calls, job.TargetID)
	f.mu.Unlock()
	return nil
}

type fakeCaskInstaller struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeCaskInstaller) InstallCask(job *PlannedJob, downloadPath string) error {
	f.mu.Lock()
	f.calls = append(f.calls, job.TargetID)
	f.mu.Unlock()
	return nil
}

type fakePreUninstaller struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakePreUninstaller) SoftUninstall(job *PlannedJob) error {
	f.mu.Lock()
	f.calls = append(f.calls, job.TargetID)
	f.mu.Unlock()
	return nil
}

func collectEvents(t *testing.T, events <-chan Event, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	timeout := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case ev := <-events:
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(out))
		}
	}
	return out
}

func TestWorkerPool_BottleInstallDispatchesToBottleInstaller(t *testing.T) {
	bottle := &fakeBottleInstaller{}
	pool := NewWorkerPool(bottle, nil, nil, nil)

	jobCh := make(chan WorkerJob, 1)
	jobCh <- WorkerJob{Job: &PlannedJob{TargetID: "jq", Kind: TargetFormula, Formula: &formula.Formula{Name: "jq"}}, Path: "/tmp/jq.bottle"}
	close(jobCh)

	events := pool.Run(context.Background(), jobCh)
	got := collectEvents(t, events, 1)
	if got[0].Kind != EventJobSuccess || got[0].TargetID != "jq" {
		t.Fatalf("unexpected event: %+v", got[0])
	}
	if len(bottle.calls) != 1 || bottle.calls[0] != "jq" {
		t.Fatalf("expected bottle installer called once for jq, got %v", bottle.calls)
	}
}

func TestWorkerPool_SourceBuildDispatchesToSourceBuilder(t *testing.T) {
	source := &fakeSourceBuilder{}
	pool := NewWorkerPool(nil, source, nil, nil)

	jobCh := make(chan WorkerJob, 1)
	jobCh <- WorkerJob{Job: &PlannedJob{TargetID: "jq", Kind: TargetFormula, IsSourceBuild: true}, Path: "/tmp/jq-src"}
	close(jobCh)

	events := pool.Run(context.Background(), jobCh)
	got := collectEvents(t, events, 1)
	if got[0].Kind != EventJobSuccess {
		t.Fatalf("unexpected event: %+v", got[0])
	}
	if len(source.calls) != 1 {
		t.Fatalf("expected source builder called once, got %v", source.calls)
	}
}

func TestWorkerPool_CaskInstallDispatchesToCaskInstaller(t *testing.T) {
	caskInst := &fakeCaskInstaller{}
	pool := NewWorkerPool(nil, nil, caskInst, nil)

	jobCh := make(chan WorkerJob, 1)
	jobCh <- WorkerJob{Job: &PlannedJob{TargetID: "slack", Kind: TargetCask}, Path: "/tmp/slack.dmg"}
	close(jobCh)

	events := pool.Run(context.Background(), jobCh)
	got := collectEvents(t, events, 1)
	if got[0].Kind != EventJobSuccess {
		t.Fatalf("unexpected event: %+v", got[0])
	}
	if len(caskInst.calls) != 1 {
		t.Fatalf("expected cask installer called once, got %v", caskInst.calls)
	}
}

func TestWorkerPool_UpgradeTriggersPreUninstall(t *testing.T) {
	bottle := &fakeBottleInstaller{}
	pre := &fakePreUninstaller{}
	pool := NewWorkerPool(bottle, nil, nil, pre)

	jobCh := make(chan WorkerJob, 1)
	jobCh <- WorkerJob{Job: &PlannedJob{TargetID: "jq", Kind: TargetFormula, Action: ActionUpgrade}, Path: "/tmp/jq.bottle"}
	close(jobCh)

	events := pool.Run(context.Background(), jobCh)
	collectEvents(t, events, 1)

	if len(pre.calls) != 1 || pre.calls[0] != "jq" {
		t.Fatalf("expected pre-uninstall to run once for an upgrade, got %v", pre.calls)
	}
}

func TestWorkerPool_InstallDoesNotTriggerPreUninstall(t *testing.T) {
	bottle := &fakeBottleInstaller{}
	pre := &fakePreUninstaller{}
	pool := NewWorkerPool(bottle, nil, nil, pre)

	jobCh := make(chan WorkerJob, 1)
	jobCh <- WorkerJob{Job: &PlannedJob{TargetID: "jq", Kind: TargetFormula, Action: ActionInstall}, Path: "/tmp/jq.bottle"}
	close(jobCh)

	events := pool.Run(context.Background(), jobCh)
	collectEvents(t, events, 1)

	if len(pre.calls) != 0 {
		t.Fatalf("expected no pre-uninstall on a plain install, got %v", pre.calls)
	}
}

func TestWorkerPool_MissingCollaboratorReportsFailure(t *testing.T) {
	pool := NewWorkerPool(nil, nil, nil, nil)

	jobCh := make(chan WorkerJob, 1)
	jobCh <- WorkerJob{Job: &PlannedJob{TargetID: "jq", Kind: TargetFormula}, Path: "/tmp/jq.bottle"}
	close(jobCh)

	events := pool.Run(context.Background(), jobCh)
	got := collectEvents(t, events, 1)
	if got[0].Kind != EventJobFailed {
		t.Fatalf("expected a failure event when no bottle installer is wired, got %+v", got[0])
	}
}

func TestWorkerPool_BottleInstallErrorReportsFailure(t *testing.T) {
	bottle := &fakeBottleInstaller{err: fmt.Errorf("relocate failed")}
	pool := NewWorkerPool(bottle, nil, nil, nil)

	jobCh := make(chan WorkerJob, 1)
	jobCh <- WorkerJob{Job: &PlannedJob{TargetID: "jq", Kind: TargetFormula}, Path: "/tmp/jq.bottle"}
	close(jobCh)

	events := pool.Run(context.Background(), jobCh)
	got := collectEvents(t, events, 1)
	if got[0].Kind != EventJobFailed || got[0].Err == nil {
		t.Fatalf("expected a failure event carrying the installer's error, got %+v", got[0])
	}
}

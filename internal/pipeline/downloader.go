package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"context"

	"github.com/sps-pm/sps/internal/api"
	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/formula"
	"github.com/sps-pm/sps/internal/logger"
	"github.com/sps-pm/sps/internal/utils"
)

// maxConcurrentDownloads is the "order of 256 permits" figure from §5.
const maxConcurrentDownloads = 256

// macOSFallbackChain is the fixed list of compatible older OS names walked
// when the exact current-platform tag has no bottle (§4.4).
var macOSFallbackChain = []string{"sequoia", "sonoma", "ventura", "monterey", "big_sur", "catalina", "mojave"}

// Downloader is the Download Coordinator (§4.4): it fetches every job's
// artifact to a content-addressed cache under a bounded concurrency cap.
type Downloader struct {
	cfg    *config.Config
	api    *api.Client
	sem    *semaphore.Weighted
	events chan<- Event
}

// NewDownloader creates a Downloader that publishes progress on events.
func NewDownloader(cfg *config.Config, apiClient *api.Client, events chan<- Event) *Downloader {
	return &Downloader{
		cfg:    cfg,
		api:    apiClient,
		sem:    semaphore.NewWeighted(maxConcurrentDownloads),
		events: events,
	}
}

// Run fetches every job's artifact concurrently (bounded) and returns one
// DownloadOutcome per job on the returned channel. The channel is closed
// once every job has reported.
func (d *Downloader) Run(ctx context.Context, jobs []*PlannedJob) <-chan DownloadOutcome {
	out := make(chan DownloadOutcome, len(jobs))

	go func() {
		defer close(out)

		g, gctx := errgroup.WithContext(ctx)
		for _, job := range jobs {
			job := job
			if err := d.sem.Acquire(gctx, 1); err != nil {
				out <- DownloadOutcome{TargetID: job.TargetID, Err: err}
				continue
			}
			g.Go(func() error {
				defer d.sem.Release(1)
				path, err := d.fetch(job)
				out <- DownloadOutcome{TargetID: job.TargetID, Path: path, Err: err}
				return nil // individual job failures don't abort the group
			})
		}
		_ = g.Wait()
	}()

	return out
}

func (d *Downloader) fetch(job *PlannedJob) (string, error) {
	if job.UsePrivateStoreSource != "" {
		return job.UsePrivateStoreSource, nil
	}

	switch job.Kind {
	case TargetFormula:
		return d.fetchFormula(job)
	default:
		return d.fetchCask(job)
	}
}

func (d *Downloader) fetchFormula(job *PlannedJob) (string, error) {
	f := job.Formula

	if job.IsSourceBuild {
		d.emit(Event{Kind: EventDownloadStarted, TargetID: job.TargetID, URL: f.URL})
		path, err := d.downloadToCache(f.URL, filepath.Join(d.cfg.HomebrewCache, "source"), f.Name+"-"+f.VersionString()+".tar.gz", f.SHA256)
		d.reportDownload(job.TargetID, f.URL, path, err)
		return path, err
	}

	tag, file, ok := SelectBottleTag(f, d.api.GetPlatformTag())
	if !ok {
		return "", fmt.Errorf("no bottle available for %s on any compatible platform", f.Name)
	}

	d.emit(Event{Kind: EventDownloadStarted, TargetID: job.TargetID, URL: file.URL})
	path, err := d.api.DownloadBottle(f, tag)
	d.reportDownload(job.TargetID, file.URL, path, err)
	return path, err
}

func (d *Downloader) fetchCask(job *PlannedJob) (string, error) {
	c := job.Cask
	url := c.GetDownloadURL()
	filename := fmt.Sprintf("cask-%s-%s", c.Token, filepath.Base(url))
	cachePath := filepath.Join(d.cfg.HomebrewCache, filename)

	d.emit(Event{Kind: EventDownloadStarted, TargetID: job.TargetID, URL: url})
	path, err := d.downloadToCache(url, d.cfg.HomebrewCache, filename, c.Sha256)
	d.reportDownload(job.TargetID, url, path, err)
	if err != nil {
		return "", err
	}

	if err := setQuarantine(path); err != nil {
		logger.Warn("failed to set quarantine xattr on %s: %v", path, err)
	}

	return cachePath, nil
}

func (d *Downloader) downloadToCache(url, dir, filename, expectedSHA256 string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, filename)

	if expectedSHA256 == "" {
		logger.Warn("no checksum provided for %s, skipping verification", url)
	} else if _, err := os.Stat(path); err == nil {
		if verr := utils.VerifySHA256(path, expectedSHA256); verr == nil {
			return path, nil
		}
		os.Remove(path)
	}

	if err := httpDownloadFile(url, path); err != nil {
		return "", err
	}

	if expectedSHA256 != "" {
		if err := utils.VerifySHA256(path, expectedSHA256); err != nil {
			os.Remove(path)
			// One retry on checksum mismatch (§7), then a hard failure.
			if err2 := httpDownloadFile(url, path); err2 != nil {
				return "", err2
			}
			if err := utils.VerifySHA256(path, expectedSHA256); err != nil {
				os.Remove(path)
				return "", fmt.Errorf("checksum mismatch for %s after retry: %w", url, err)
			}
		}
	}

	return path, nil
}

func (d *Downloader) reportDownload(targetID, url, path string, err error) {
	if err != nil {
		d.emit(Event{Kind: EventDownloadFailed, TargetID: targetID, URL: url, Err: err})
		return
	}
	size := int64(0)
	if fi, statErr := os.Stat(path); statErr == nil {
		size = fi.Size()
	}
	d.emit(Event{Kind: EventDownloadFinished, TargetID: targetID, URL: url, Size: size})
}

func (d *Downloader) emit(e Event) {
	if d.events == nil {
		return
	}
	d.events <- e
}

// SelectBottleTag walks the bottle-selection fallback chain of §4.4: exact
// current-platform tag, then (for macOS) compatible older OS names
// preserving an arm64_ prefix, then arm64_big_sur/big_sur, then "all".
func SelectBottleTag(f *formula.Formula, platform string) (string, *formula.BottleFile, bool) {
	if f.Bottle == nil || f.Bottle.Stable == nil {
		return "", nil, false
	}
	files := f.Bottle.Stable.Files

	if file, ok := files[platform]; ok {
		return platform, &file, true
	}

	arm64 := strings.HasPrefix(platform, "arm64_")
	isIntelOnly := func(name string) bool { return name == "catalina" || name == "mojave" }
	linux := strings.HasSuffix(platform, "_linux")

	for _, name := range macOSFallbackChain {
		if linux || (isIntelOnly(name) && arm64) {
			continue
		}
		tag := name
		if arm64 {
			tag = "arm64_" + name
		}
		if file, ok := files[tag]; ok {
			return tag, &file, true
		}
	}

	for _, tag := range []string{"arm64_big_sur", "big_sur"} {
		if file, ok := files[tag]; ok {
			return tag, &file, true
		}
	}

	if file, ok := files["all"]; ok {
		return "all", &file, true
	}

	return "", nil, false
}

func httpDownloadFile(url, dest string) error {
	return downloadHTTP(url, dest)
}

func quarantineSentinel() string {
	return "com.sps.pm;" + strconv.FormatInt(int64(os.Getpid()), 10) + ";SPS/" + runtime.GOOS
}

package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Seunghyun-Min/nextjs-recoru/internal/portal"
)

// ModalOpener brings up the import modal. portal.Navigator implements it.
type ModalOpener interface {
	OpenImportModal(ctx context.Context) error
}

// Uploader submits one file into an open modal. portal.Executor implements it.
type Uploader interface {
	Submit(ctx context.Context, path string) (portal.Outcome, error)
}

type Dirs struct {
	Processed string
	Errors    string
}

// Orchestrator drains a file queue against one portal session. It owns a
// single consumer, so no two files are ever in the modal at once.
type Orchestrator struct {
	nav    ModalOpener
	up     Uploader
	dirs   Dirs
	logger *slog.Logger
	now    func() time.Time
}

func New(nav ModalOpener, up Uploader, dirs Dirs, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{nav: nav, up: up, dirs: dirs, logger: logger, now: time.Now}
}

// Run processes tasks in order. Per-file upload failures are recorded and
// the queue continues. A navigation or relocation fault stops the queue and
// is returned with the partial result; files after it stay in the input
// directory for the next run.
func (o *Orchestrator) Run(ctx context.Context, runID string, tasks []FileTask) (*Result, error) {
	res := newResult(runID, o.now())
	if len(tasks) == 0 {
		res.Note = NoFilesMessage
		res.Finished = o.now()
		o.logger.Info(NoFilesMessage, "run", runID)
		return res, nil
	}

	queue := make(chan FileTask, len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	for task := range queue {
		if err := o.process(ctx, res, task); err != nil {
			res.Finished = o.now()
			o.logger.Error("run aborted", "run", runID, "file", task.Name,
				"remaining", len(queue), "err", err)
			return res, err
		}
	}

	res.Finished = o.now()
	o.logger.Info("run finished", "run", runID,
		"succeeded", len(res.Succeeded), "failed", len(res.Failed))
	return res, nil
}

func (o *Orchestrator) process(ctx context.Context, res *Result, task FileTask) error {
	log := o.logger.With("run", res.RunID, "file", task.Name)

	if err := o.nav.OpenImportModal(ctx); err != nil {
		return fmt.Errorf("open import modal for %s: %w", task.Name, err)
	}

	rec := Record{Name: task.Name, Source: task.Path}
	out, err := o.up.Submit(ctx, task.Path)
	switch {
	case err != nil:
		var stepErr *portal.UploadStepTimeout
		if !errors.As(err, &stepErr) {
			return fmt.Errorf("upload %s: %w", task.Name, err)
		}
		log.Warn("upload step failed", "step", stepErr.Step, "err", err)
		rec.ErrorText = joinNonEmpty(out.ErrorText, err.Error())
	case out.IsAccepted():
		rec.Accepted = true
	default:
		rec.ErrorText = out.ErrorText
	}

	if !rec.Accepted {
		path, werr := o.writeErrorLog(res.RunID, task.Name, rec.ErrorText)
		if werr != nil {
			log.Error("write error log", "err", werr)
		}
		rec.ErrorLog = path
	}

	dest, taken := processedPath(o.dirs.Processed, task.Name, res.RunID)
	if taken {
		log.Warn("processed file already exists, keeping both", "moved_to", dest)
	}
	if err := moveFile(task.Path, dest); err != nil {
		res.add(rec)
		return fmt.Errorf("relocate %s: %w", task.Name, err)
	}
	rec.Relocated = dest
	res.add(rec)

	log.Info("file processed", "accepted", rec.Accepted, "moved_to", dest)
	return nil
}

func (o *Orchestrator) writeErrorLog(runID, name, text string) (string, error) {
	path := filepath.Join(o.dirs.Errors, ErrorLogName(name, runID))
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func joinNonEmpty(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p
	}
	return out
}

// processedPath is the relocation target for name. If an earlier run left a
// file of the same name, the run ID is added so that copy survives.
func processedPath(dir, name, runID string) (string, bool) {
	dest := filepath.Join(dir, name)
	if _, err := os.Lstat(dest); errors.Is(err, fs.ErrNotExist) {
		return dest, false
	}
	ext := filepath.Ext(name)
	return filepath.Join(dir, strings.TrimSuffix(name, ext)+"_"+runID+ext), true
}

// moveFile renames src to dst, falling back to copy+remove across devices.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}

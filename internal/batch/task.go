package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RunIDLayout formats the run timestamp that names every artifact of a run.
const RunIDLayout = "20060102_150405"

func NewRunID(t time.Time) string { return t.Format(RunIDLayout) }

// UniqueRunID is NewRunID with a _2, _3, ... suffix while taken reports the
// ID as already used, so two runs in the same second keep separate artifacts.
func UniqueRunID(t time.Time, taken func(id string) bool) string {
	id := NewRunID(t)
	if taken == nil || !taken(id) {
		return id
	}
	for n := 2; ; n++ {
		next := fmt.Sprintf("%s_%d", id, n)
		if !taken(next) {
			return next
		}
	}
}

// FileTask is one pending attendance file.
type FileTask struct {
	Path string
	Name string
}

// Scan lists regular files in dir whose extension matches ext
// (case-insensitive), sorted by name.
func Scan(dir, ext string) ([]FileTask, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	var tasks []FileTask
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		tasks = append(tasks, FileTask{Path: filepath.Join(dir, e.Name()), Name: e.Name()})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks, nil
}

// ErrorLogName is the error artifact name for a file: a.txt in run R
// becomes a_error_R.txt.
func ErrorLogName(name, runID string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return fmt.Sprintf("%s_error_%s.txt", base, runID)
}

package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seunghyun-Min/nextjs-recoru/internal/portal"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/portal/portaltest"
)

type testDirs struct {
	input string
	Dirs
}

func newTestDirs(t *testing.T) testDirs {
	t.Helper()
	root := t.TempDir()
	d := testDirs{
		input: filepath.Join(root, "input"),
		Dirs: Dirs{
			Processed: filepath.Join(root, "processed"),
			Errors:    filepath.Join(root, "errors"),
		},
	}
	for _, dir := range []string{d.input, d.Processed, d.Errors} {
		require.NoError(t, os.MkdirAll(dir, 0755))
	}
	return d
}

func (d testDirs) seed(t *testing.T, names ...string) []FileTask {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(d.input, n), []byte(n), 0644))
	}
	tasks, err := Scan(d.input, ".txt")
	require.NoError(t, err)
	return tasks
}

// fakeNav fails on the listed call numbers (1-based).
type fakeNav struct {
	calls  int
	failAt map[int]error
}

func (f *fakeNav) OpenImportModal(ctx context.Context) error {
	f.calls++
	return f.failAt[f.calls]
}

type fakeResult struct {
	out portal.Outcome
	err error
}

type fakeUploader struct {
	results map[string]fakeResult
	order   []string
}

func (f *fakeUploader) Submit(ctx context.Context, path string) (portal.Outcome, error) {
	name := filepath.Base(path)
	f.order = append(f.order, name)
	if r, ok := f.results[name]; ok {
		return r.out, r.err
	}
	return portal.Accepted(), nil
}

func TestRun_EveryFileEndsInExactlyOneList(t *testing.T) {
	d := newTestDirs(t)
	tasks := d.seed(t, "c.txt", "a.txt", "b.txt", "d.txt")
	up := &fakeUploader{results: map[string]fakeResult{
		"b.txt": {out: portal.Rejected("bad header")},
		"d.txt": {err: &portal.UploadStepTimeout{Step: portal.StepCheckEnabled, File: "d.txt", Err: context.DeadlineExceeded}},
	}}

	res, err := New(&fakeNav{}, up, d.Dirs, nil).Run(context.Background(), "20261015_090000", tasks)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt", "d.txt"}, up.order, "scan order is name order")
	assert.Equal(t, []string{"a.txt", "c.txt"}, res.Succeeded)
	assert.Equal(t, []string{"b.txt", "d.txt"}, res.Failed)
	assert.Len(t, res.Records, len(tasks))

	for _, task := range tasks {
		assert.NoFileExists(t, task.Path)
		assert.FileExists(t, filepath.Join(d.Processed, task.Name))
	}
}

func TestRun_ErrorArtifacts(t *testing.T) {
	d := newTestDirs(t)
	tasks := d.seed(t, "a.txt", "b.txt", "c.txt")
	up := &fakeUploader{results: map[string]fakeResult{
		"a.txt": {out: portal.Rejected("missing field X\ninvalid date Y")},
		"c.txt": {err: &portal.UploadStepTimeout{Step: portal.StepAttach, File: "c.txt", Err: errors.New("no node")}},
	}}

	res, err := New(&fakeNav{}, up, d.Dirs, nil).Run(context.Background(), "R1", tasks)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(d.Errors, "a_error_R1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "missing field X\ninvalid date Y", string(data))

	assert.NoFileExists(t, filepath.Join(d.Errors, "b_error_R1.txt"), "accepted files get no error artifact")

	data, err = os.ReadFile(filepath.Join(d.Errors, "c_error_R1.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "step attach")

	assert.Equal(t, filepath.Join(d.Errors, "a_error_R1.txt"), res.Records[0].ErrorLog)
	assert.Empty(t, res.Records[1].ErrorLog)
}

func TestRun_EmptyQueue(t *testing.T) {
	d := newTestDirs(t)
	nav := &fakeNav{}

	res, err := New(nav, &fakeUploader{}, d.Dirs, nil).Run(context.Background(), "R2", nil)
	require.NoError(t, err)

	assert.True(t, res.Empty())
	assert.Equal(t, NoFilesMessage, res.Note)
	assert.Zero(t, nav.calls)
}

func TestRun_NavigationFaultAbortsQueue(t *testing.T) {
	d := newTestDirs(t)
	tasks := d.seed(t, "a.txt", "b.txt", "c.txt")
	navErr := &portal.NavigationTimeout{Stage: portal.StageVisible, Err: context.DeadlineExceeded}
	nav := &fakeNav{failAt: map[int]error{2: navErr}}
	up := &fakeUploader{}

	res, err := New(nav, up, d.Dirs, nil).Run(context.Background(), "R3", tasks)

	var got *portal.NavigationTimeout
	require.ErrorAs(t, err, &got)
	assert.Equal(t, portal.StageVisible, got.Stage)
	assert.Equal(t, []string{"a.txt"}, res.Succeeded)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []string{"a.txt"}, up.order)

	assert.FileExists(t, filepath.Join(d.Processed, "a.txt"))
	assert.FileExists(t, filepath.Join(d.input, "b.txt"), "unsubmitted files stay queued")
	assert.FileExists(t, filepath.Join(d.input, "c.txt"))
}

func TestRun_CancelledUploadAborts(t *testing.T) {
	d := newTestDirs(t)
	tasks := d.seed(t, "a.txt", "b.txt")
	up := &fakeUploader{results: map[string]fakeResult{
		"a.txt": {err: context.Canceled},
	}}

	_, err := New(&fakeNav{}, up, d.Dirs, nil).Run(context.Background(), "R4", tasks)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a.txt"}, up.order)
}

func TestRun_RelocationFailureAborts(t *testing.T) {
	d := newTestDirs(t)
	tasks := d.seed(t, "a.txt", "b.txt")
	d.Processed = filepath.Join(d.Processed, "missing")

	res, err := New(&fakeNav{}, &fakeUploader{}, d.Dirs, nil).Run(context.Background(), "R5", tasks)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "relocate a.txt")
	assert.Equal(t, []string{"a.txt"}, res.Succeeded, "submitted file is still recorded")
}

func TestRun_ProcessedNameCollisionKeepsEarlierFile(t *testing.T) {
	d := newTestDirs(t)
	earlier := filepath.Join(d.Processed, "a.txt")
	require.NoError(t, os.WriteFile(earlier, []byte("last week"), 0644))
	tasks := d.seed(t, "a.txt", "b.txt")

	res, err := New(&fakeNav{}, &fakeUploader{}, d.Dirs, nil).Run(context.Background(), "R6", tasks)
	require.NoError(t, err)

	data, err := os.ReadFile(earlier)
	require.NoError(t, err)
	assert.Equal(t, "last week", string(data))

	renamed := filepath.Join(d.Processed, "a_R6.txt")
	data, err = os.ReadFile(renamed)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", string(data))
	assert.Equal(t, renamed, res.Records[0].Relocated)
	assert.Equal(t, filepath.Join(d.Processed, "b.txt"), res.Records[1].Relocated)
}

func TestRun_EndToEndWithPortal(t *testing.T) {
	d := newTestDirs(t)
	tasks := d.seed(t, "a.txt", "b.txt")

	creds := portal.Credentials{ContractID: "C001", UserID: "u", Password: "p"}
	fake := portaltest.New(creds)
	fake.ErrorsFor = func(name string) []string {
		if name == "a.txt" {
			return []string{"missing field X", "invalid date Y"}
		}
		return nil
	}
	cfg := portal.DefaultConfig()
	cfg.Timeouts = portaltest.FastTimeouts()

	s, err := portal.Open(context.Background(), fake, cfg, creds, nil)
	require.NoError(t, err)
	defer s.Close()

	runID := "20261015_220000"
	res, err := New(portal.NewNavigator(s), portal.NewExecutor(s), d.Dirs, nil).
		Run(context.Background(), runID, tasks)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, res.Failed)
	assert.Equal(t, []string{"b.txt"}, res.Succeeded)
	assert.Equal(t, []string{"a.txt"}, fake.Dismissed())
	assert.Equal(t, []string{"b.txt"}, fake.Committed())

	data, err := os.ReadFile(filepath.Join(d.Errors, ErrorLogName("a.txt", runID)))
	require.NoError(t, err)
	assert.Equal(t, "missing field X\ninvalid date Y", string(data))

	for _, n := range []string{"a.txt", "b.txt"} {
		assert.FileExists(t, filepath.Join(d.Processed, n))
		assert.NoFileExists(t, filepath.Join(d.input, n))
	}
}

func TestRun_StepFaultContinuesWithPortal(t *testing.T) {
	d := newTestDirs(t)
	tasks := d.seed(t, "a.txt", "b.txt")

	creds := portal.Credentials{ContractID: "C001", UserID: "u", Password: "p"}
	fake := portaltest.New(creds)
	fake.StalledFor = func(name string) []string {
		if name == "a.txt" {
			return []string{"enabled " + fake.Selectors.CheckButton}
		}
		return nil
	}
	cfg := portal.DefaultConfig()
	cfg.Timeouts = portaltest.FastTimeouts()

	s, err := portal.Open(context.Background(), fake, cfg, creds, nil)
	require.NoError(t, err)
	defer s.Close()

	runID := "20261015_223000"
	res, err := New(portal.NewNavigator(s), portal.NewExecutor(s), d.Dirs, nil).
		Run(context.Background(), runID, tasks)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, res.Failed)
	assert.Equal(t, []string{"b.txt"}, res.Succeeded)
	assert.Equal(t, []string{"a.txt"}, fake.Dismissed())
	assert.Equal(t, []string{"b.txt"}, fake.Committed())
	assert.False(t, fake.ModalOpen())

	data, err := os.ReadFile(filepath.Join(d.Errors, ErrorLogName("a.txt", runID)))
	require.NoError(t, err)
	assert.Contains(t, string(data), "step check-enabled")
	for _, n := range []string{"a.txt", "b.txt"} {
		assert.FileExists(t, filepath.Join(d.Processed, n))
	}
}

func TestRun_CountConservation(t *testing.T) {
	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprintf("%d files", n), func(t *testing.T) {
			d := newTestDirs(t)
			var names []string
			results := map[string]fakeResult{}
			for i := 0; i < n; i++ {
				name := fmt.Sprintf("f%02d.txt", i)
				names = append(names, name)
				if i%2 == 1 {
					results[name] = fakeResult{out: portal.Rejected("e")}
				}
			}
			tasks := d.seed(t, names...)

			res, err := New(&fakeNav{}, &fakeUploader{results: results}, d.Dirs, nil).
				Run(context.Background(), "R", tasks)
			require.NoError(t, err)

			assert.Equal(t, n, len(res.Succeeded)+len(res.Failed))
			seen := map[string]int{}
			for _, s := range append(append([]string{}, res.Succeeded...), res.Failed...) {
				seen[s]++
			}
			for _, name := range names {
				assert.Equal(t, 1, seen[name], name)
			}
		})
	}
}

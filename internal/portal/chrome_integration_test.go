//go:build integration

package portal_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seunghyun-Min/nextjs-recoru/internal/portal"
)

// fakePortalHTML imitates the login form and import modal closely enough
// for the selectors in DefaultSelectors. Files whose name contains "bad"
// fail validation with two error lines.
const fakePortalHTML = `<!doctype html>
<html><body>
<form id="login" onsubmit="return false">
  <input id="contractId"><input id="authId"><input id="password" type="password">
  <button id="submit" type="button" onclick="login()">login</button>
</form>
<nav id="globalNavi" style="display:none">
  <a href="#attendance" onclick="document.getElementById('importWorkData').style.display='inline'">attendance</a>
</nav>
<button id="importWorkData" style="display:none" onclick="openModal()">import</button>
<div id="importModal" style="display:none">
  <h2>勤務データ取込</h2>
  <input type="file" onchange="document.querySelector('.btn-check').disabled = !this.files.length">
  <button class="btn-check" disabled onclick="check()">check</button>
  <ul class="import-error" style="display:none"></ul>
  <button class="btn-close" onclick="closeModal()">close</button>
  <button class="btn-execute" onclick="alert('imported'); closeModal()">execute</button>
</div>
<script>
function login() {
  if (document.getElementById('password').value === 'secret') {
    document.getElementById('globalNavi').style.display = 'block';
  }
}
function openModal() {
  const m = document.getElementById('importModal');
  m.querySelector('.import-error').style.display = 'none';
  m.querySelector('.btn-check').disabled = true;
  setTimeout(() => { m.style.display = 'block'; }, 50);
}
function closeModal() { document.getElementById('importModal').style.display = 'none'; }
function check() {
  const f = document.querySelector('#importModal input[type=file]').files[0];
  if (f.name.includes('bad')) {
    const ul = document.querySelector('.import-error');
    ul.innerHTML = '<li>missing field X</li><li>invalid date Y</li>';
    setTimeout(() => { ul.style.display = 'block'; }, 100);
  }
}
</script>
</body></html>`

func TestChromeDriver_UploadFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fakePortalHTML))
	}))
	defer srv.Close()

	drv, err := portal.LaunchChrome(portal.BrowserOptions{Headless: true, NoSandbox: true}, nil)
	require.NoError(t, err)

	cfg := portal.DefaultConfig()
	cfg.LoginURL = srv.URL
	cfg.Selectors.WorkArea = "#globalNavi a"

	s, err := portal.Open(context.Background(), drv, cfg, portal.Credentials{
		ContractID: "C001", UserID: "importer", Password: "secret",
	}, nil)
	require.NoError(t, err)
	defer s.Close()

	dir := t.TempDir()
	for _, tc := range []struct {
		name string
		want portal.Status
		text string
	}{
		{"bad.txt", portal.StatusRejected, "missing field X\ninvalid date Y"},
		{"good.txt", portal.StatusAccepted, ""},
	} {
		path := filepath.Join(dir, tc.name)
		require.NoError(t, os.WriteFile(path, []byte("row\n"), 0644))

		require.NoError(t, portal.NewNavigator(s).OpenImportModal(context.Background()))
		out, err := portal.NewExecutor(s).Submit(context.Background(), path)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, out.Status, tc.name)
		assert.Equal(t, tc.text, out.ErrorText, tc.name)
	}
}

func TestChromeDriver_Version(t *testing.T) {
	drv, err := portal.LaunchChrome(portal.BrowserOptions{Headless: true, NoSandbox: true}, nil)
	require.NoError(t, err)
	defer drv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	v, err := drv.Version(ctx)
	require.NoError(t, err)
	assert.Regexp(t, `^\d+\.\d+\.\d+\.\d+$`, v)
}

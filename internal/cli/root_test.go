package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/lu-zhengda/loreterm/internal/provider/lore"
)

// newTestArchive serves the testdata files the way lore does.
func newTestArchive(t *testing.T) *httptest.Server {
	t.Helper()
	read := func(name string) []byte {
		data, err := os.ReadFile(filepath.Join("testdata", name))
		if err != nil {
			t.Fatal(err)
		}
		return data
	}
	feed, lists, thread := read("feed.xml"), read("lists.html"), read("thread.mbox")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/" && r.URL.Query().Get("o") == "0":
			w.Write(lists)
		case r.URL.Path == "/":
			w.Write([]byte("<pre>navigation</pre>"))
		case r.URL.Path == "/netdev/":
			w.Write(feed)
		case r.URL.Path == "/all/cover.1@example.com/t.mbox.gz":
			w.Write(thread)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupCLI points every loreterm directory into a temp dir and writes a
// config for a test archive. It returns the config path.
func setupCLI(t *testing.T) string {
	t.Helper()
	keyring.MockInit()
	srv := newTestArchive(t)
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(root, "cache"))

	prev := isTerminal
	isTerminal = func() bool { return false }
	t.Cleanup(func() { isTerminal = prev })

	cfg := `
[archive]
base_url = "` + srv.URL + `"
retries = 0

[reply]
identity = "Alice Reviewer <alice@example.com>"

[apply]
git = "loreterm-no-such-git"

[targets.linux]
path = "` + filepath.Join(root, "linux") + `"
`
	path := filepath.Join(root, "config.toml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRoot_Version(t *testing.T) {
	out, err := runCLI(t, setupCLI(t), "--version")
	if err != nil {
		t.Fatalf("--version error = %v", err)
	}
	if out != "loreterm dev\n" {
		t.Errorf("--version = %q", out)
	}
}

func TestRoot_DumpConfig(t *testing.T) {
	cfgPath := setupCLI(t)

	out, err := runCLI(t, cfgPath, "--dump-config")
	if err != nil {
		t.Fatalf("--dump-config error = %v", err)
	}
	if !strings.Contains(out, "[targets.linux]") || !strings.Contains(out, `identity = "Alice Reviewer <alice@example.com>"`) {
		t.Errorf("--dump-config =\n%s", out)
	}

	out, err = runCLI(t, cfgPath, "--dump-config", "--json")
	if err != nil {
		t.Fatalf("--dump-config --json error = %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("--dump-config --json is not JSON: %v\n%s", err, out)
	}
	if _, ok := parsed["targets"]; !ok {
		t.Errorf("dumped JSON has no targets: %s", out)
	}
}

func TestRoot_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[archive]\ntimeout = \"never\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, path, "--dump-config"); err == nil || !strings.Contains(err.Error(), "archive.timeout") {
		t.Errorf("error = %v, want archive.timeout", err)
	}
}

func TestRoot_NeedsTerminal(t *testing.T) {
	_, err := runCLI(t, setupCLI(t))
	if err == nil || !strings.Contains(err.Error(), "needs a terminal") {
		t.Errorf("error = %v, want terminal error", err)
	}
}

func TestLists(t *testing.T) {
	out, err := runCLI(t, setupCLI(t), "lists", "net")
	if err != nil {
		t.Fatalf("lists error = %v", err)
	}
	if !strings.Contains(out, "netdev") || strings.Contains(out, "amd-gfx") {
		t.Errorf("lists net =\n%s", out)
	}
}

func TestFeed_JSON(t *testing.T) {
	out, err := runCLI(t, setupCLI(t), "feed", "netdev", "--json")
	if err != nil {
		t.Fatalf("feed error = %v", err)
	}
	var sums []jsonSummary
	if err := json.Unmarshal([]byte(out), &sums); err != nil {
		t.Fatalf("feed --json is not JSON: %v\n%s", err, out)
	}
	if len(sums) != 3 || sums[0].MessageID != "cover.1@example.com" {
		t.Errorf("feed = %+v", sums)
	}
}

func TestFeed_NegativePage(t *testing.T) {
	if _, err := runCLI(t, setupCLI(t), "feed", "netdev", "--page", "-1"); err == nil {
		t.Error("feed --page -1 succeeded")
	}
}

func TestShow_FetchFailureIsError(t *testing.T) {
	_, err := runCLI(t, setupCLI(t), "show", "missing@example.com")
	var perr *lore.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("show of unknown thread error = %v, want *lore.ProtocolError", err)
	}
	if perr.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", perr.Status)
	}
}

func TestShow(t *testing.T) {
	out, err := runCLI(t, setupCLI(t), "show", "cover.1@example.com")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	for _, want := range []string{
		"Title: net: tidy up foo",
		"Reviewed-by: Alice Reviewer <alice@example.com>",
		"[1/2] [PATCH net-next v2 1/2] net: rename foo",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestBookmarkCommands(t *testing.T) {
	cfgPath := setupCLI(t)

	for range 2 {
		if _, err := runCLI(t, cfgPath, "bookmark", "add", "cover.1@example.com"); err != nil {
			t.Fatalf("bookmark add error = %v", err)
		}
	}
	out, err := runCLI(t, cfgPath, "bookmark", "ls", "--json")
	if err != nil {
		t.Fatalf("bookmark ls error = %v", err)
	}
	var bookmarks []jsonBookmark
	if err := json.Unmarshal([]byte(out), &bookmarks); err != nil {
		t.Fatal(err)
	}
	if len(bookmarks) != 1 || bookmarks[0].Title != "net: tidy up foo" || bookmarks[0].List != "netdev" {
		t.Errorf("bookmarks = %+v", bookmarks)
	}

	for range 2 {
		if _, err := runCLI(t, cfgPath, "bookmark", "rm", "cover.1@example.com"); err != nil {
			t.Fatalf("bookmark rm error = %v", err)
		}
	}
	out, _ = runCLI(t, cfgPath, "bookmark", "ls")
	if !strings.Contains(out, "No bookmarks.") {
		t.Errorf("bookmark ls = %q", out)
	}
}

func TestApply_ReportsOutcomes(t *testing.T) {
	out, err := runCLI(t, setupCLI(t), "apply", "cover.1@example.com", "--target", "linux", "--target", "ghost", "--json")
	if err != nil {
		t.Fatalf("apply error = %v (failed outcomes must not fail the command)", err)
	}
	var outcomes []jsonOutcome
	if err := json.Unmarshal([]byte(out), &outcomes); err != nil {
		t.Fatalf("apply --json is not JSON: %v\n%s", err, out)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if outcomes[0].Result != "failed" || !strings.Contains(outcomes[0].Error, "not available") {
		t.Errorf("linux = %+v, want tool missing", outcomes[0])
	}
	if outcomes[1].Result != "failed" || !strings.Contains(outcomes[1].Error, "target not configured") {
		t.Errorf("ghost = %+v, want not configured", outcomes[1])
	}
}

func TestReply_Outcomes(t *testing.T) {
	cfgPath := setupCLI(t)

	out, err := runCLI(t, cfgPath, "reply", "cover.1@example.com", "--patch", "1", "--patch", "2", "--json")
	if err != nil {
		t.Fatalf("reply error = %v", err)
	}
	var outcomes []jsonOutcome
	if err := json.Unmarshal([]byte(out), &outcomes); err != nil {
		t.Fatalf("reply --json is not JSON: %v\n%s", err, out)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if outcomes[0].Result != "failed" || !strings.Contains(outcomes[0].Message, "Reviewed-by: Alice Reviewer <alice@example.com>") {
		t.Errorf("patch 1 = %+v, want composed reply with missing mail tool", outcomes[0])
	}
	if outcomes[1].Result != "skipped" || outcomes[1].Detail != "already tagged" {
		t.Errorf("patch 2 = %+v, want already tagged", outcomes[1])
	}
}

func TestReply_BadInput(t *testing.T) {
	cfgPath := setupCLI(t)
	if _, err := runCLI(t, cfgPath, "reply", "cover.1@example.com", "--tag", "Signed-off-by"); err == nil {
		t.Error("reply with Signed-off-by succeeded")
	}
	if _, err := runCLI(t, cfgPath, "reply", "cover.1@example.com", "--patch", "7"); err == nil {
		t.Error("reply to patch 7 of 2 succeeded")
	}
}

func TestCacheCommands(t *testing.T) {
	cfgPath := setupCLI(t)
	if _, err := runCLI(t, cfgPath, "feed", "netdev"); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, cfgPath, "cache", "invalidate", "--kind", "feed", "--json")
	if err != nil {
		t.Fatalf("cache invalidate error = %v", err)
	}
	var res jsonAction
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Count != 1 {
		t.Errorf("invalidate = %+v, want 1 entry", res)
	}

	out, err = runCLI(t, cfgPath, "cache", "gc")
	if err != nil {
		t.Fatalf("cache gc error = %v", err)
	}
	if !strings.HasPrefix(out, "Removed 0 entries") {
		t.Errorf("cache gc = %q", out)
	}

	if _, err := runCLI(t, cfgPath, "cache", "invalidate", "--kind", "bogus"); err == nil {
		t.Error("invalidate --kind bogus succeeded")
	}
}

func TestSecretSetSMTPPassword(t *testing.T) {
	cfgPath := setupCLI(t)
	pwFile := filepath.Join(t.TempDir(), "pw")
	if err := os.WriteFile(pwFile, []byte("hunter2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, cfgPath, "secret", "set-smtp-password", "--password-file", pwFile); err != nil {
		t.Fatalf("set-smtp-password error = %v", err)
	}
	got, err := keyring.Get("loreterm", "smtp-password:Alice Reviewer <alice@example.com>")
	if err != nil || got != "hunter2" {
		t.Errorf("stored password = %q, %v", got, err)
	}

	if _, err := runCLI(t, cfgPath, "secret", "delete-smtp-password"); err != nil {
		t.Fatalf("delete-smtp-password error = %v", err)
	}
	if _, err := keyring.Get("loreterm", "smtp-password:Alice Reviewer <alice@example.com>"); err == nil {
		t.Error("password still stored")
	}
}

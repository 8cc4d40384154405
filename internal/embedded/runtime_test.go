package embedded

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testBundle is a minimal policy bundle: one no-tabs policy with a
// resolver, entry points stored on globalThis, results delivered
// through the shared result slot. The handler path resolves its result
// asynchronously to exercise the job queue drain.
const testBundle = `
globalThis.__repopo_metadata = JSON.stringify({
	policies: [
		{ name: "no-tabs", description: "Disallow tab characters", matchPattern: "\\.ts$", hasResolver: true }
	],
	excludeFiles: ["node_modules/"]
});

function checkFiles(files) {
	var pass = [], fail = [];
	files.forEach(function(f) {
		var text = __fs_readFileSync(f, "utf8");
		if (text.indexOf("\t") === -1) {
			pass.push(f);
		} else {
			fail.push({ file: f, error: "tab found", errorMessages: ["contains tab"], fixable: true });
		}
	});
	return { pass: pass, fail: fail };
}

globalThis.runHandlerBatchSync = function(policyId, filesJson, root, resolve) {
	var files = JSON.parse(filesJson);
	new Promise(function(done) { setTimeout(done, 0); }).then(function() {
		__repopo_lastResult = JSON.stringify(checkFiles(files));
	});
};

globalThis.runResolverBatchSync = function(policyId, filesJson, root) {
	var files = JSON.parse(filesJson);
	var fail = [];
	files.forEach(function(f) {
		var text = __fs_readFileSync(f, "utf8");
		__fs_writeFileSync(f, text.split("\t").join("  "));
		fail.push({ file: f, error: "tab found", fixable: true, fixed: true });
	});
	__repopo_lastResult = JSON.stringify({ pass: [], fail: fail });
};
`

func newTestRuntime(t *testing.T, root string) *Runtime {
	t.Helper()
	r, err := New(root, testBundle, Options{})
	if err != nil {
		t.Fatalf("failed to create runtime: %v", err)
	}
	return r
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHandlerBatchAsyncResult(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "clean.ts", "const a = 1;\n")
	writeFile(t, root, "tabbed.ts", "\tconst b = 2;\n")

	r := newTestRuntime(t, root)
	results, err := r.RunHandlerBatch(0, []string{"clean.ts", "tabbed.ts"}, root, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	for _, fr := range results {
		switch fr.File {
		case "clean.ts":
			if !fr.Result.IsPass() {
				t.Error("clean.ts should pass")
			}
		case "tabbed.ts":
			if fr.Result.IsPass() {
				t.Error("tabbed.ts should fail")
			}
			if !fr.Result.IsFixable() {
				t.Error("tabbed.ts failure should be fixable")
			}
			// The primary error field wins over errorMessages.
			if got := fr.Result.ErrorMessage(); got != "tab found" {
				t.Errorf("error message = %q", got)
			}
		default:
			t.Errorf("unexpected file %q", fr.File)
		}
	}
}

func TestResolverBatchRewritesFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "tabbed.ts", "\tx\n")

	r := newTestRuntime(t, root)
	results, err := r.RunResolverBatch(0, []string{"tabbed.ts"}, root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !results[0].Result.IsFixed() {
		t.Fatalf("expected one fixed result, got %+v", results)
	}

	fixed, err := os.ReadFile(filepath.Join(root, "tabbed.ts"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(fixed), "\t") {
		t.Errorf("resolver should have removed tabs, got %q", fixed)
	}
}

func TestMetadata(t *testing.T) {
	r := newTestRuntime(t, t.TempDir())

	config, err := r.Metadata()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(config.Policies) != 1 || config.Policies[0].Name != "no-tabs" {
		t.Errorf("unexpected policies: %+v", config.Policies)
	}
	if !config.Policies[0].HasResolver {
		t.Error("hasResolver lost")
	}
	if len(config.ExcludeFiles) != 1 {
		t.Errorf("unexpected excludes: %v", config.ExcludeFiles)
	}
}

func TestMissingMetadata(t *testing.T) {
	r, err := New(t.TempDir(), `var nothing = 1;`, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Metadata(); err == nil {
		t.Fatal("expected error for missing metadata")
	}
}

func TestMissingEntryPoint(t *testing.T) {
	r, err := New(t.TempDir(), `var nothing = 1;`, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.RunHandlerBatch(0, []string{"a.ts"}, "/", false); err == nil {
		t.Fatal("expected eval error for missing entry point")
	}
}

func TestNoResultAfterDrain(t *testing.T) {
	bundle := `globalThis.runHandlerBatchSync = function() {};`
	r, err := New(t.TempDir(), bundle, Options{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.RunHandlerBatch(0, []string{"a.ts"}, "/", false)
	if err == nil || !strings.Contains(err.Error(), "no result") {
		t.Fatalf("expected no-result error, got %v", err)
	}
}

func TestReadFailureIsCatchable(t *testing.T) {
	bundle := `
globalThis.runHandlerBatchSync = function(policyId, filesJson) {
	var files = JSON.parse(filesJson);
	var fail = [];
	files.forEach(function(f) {
		try {
			__fs_readFileSync(f, "utf8");
		} catch (e) {
			fail.push({ file: f, error: String(e.message || e) });
		}
	});
	__repopo_lastResult = JSON.stringify({ pass: [], fail: fail });
};`
	root := t.TempDir()
	r, err := New(root, bundle, Options{})
	if err != nil {
		t.Fatal(err)
	}

	results, err := r.RunHandlerBatch(0, []string{"missing.ts"}, root, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Result.IsPass() {
		t.Fatalf("expected a caught failure, got %+v", results)
	}
	if !strings.Contains(results[0].Result.Failure.Error, "ENOENT") {
		t.Errorf("expected ENOENT-style message, got %q", results[0].Result.Failure.Error)
	}
}

func TestFilesystemPrimitives(t *testing.T) {
	bundle := `
globalThis.runHandlerBatchSync = function(policyId, filesJson, root) {
	__fs_mkdirSync("out/nested", true);
	__fs_writeFileSync("out/nested/a.txt", "hello");
	var stat = JSON.parse(__fs_statSync("out/nested/a.txt"));
	var listing = JSON.parse(__fs_readdirSync("out/nested"));
	__fs_copyFileSync("out/nested/a.txt", "out/nested/b.txt");
	__fs_renameSync("out/nested/b.txt", "out/nested/c.txt");
	__fs_unlinkSync("out/nested/c.txt");
	var summary = {
		exists: __fs_existsSync("out/nested/a.txt"),
		missing: __fs_existsSync("out/nested/c.txt"),
		size: stat.size,
		isFile: stat.isFile,
		listed: listing.indexOf("a.txt") !== -1,
		cwd: __process_cwd(),
	};
	__repopo_lastResult = JSON.stringify({ pass: [], fail: [{ file: "probe", error: JSON.stringify(summary) }] });
};`
	root := t.TempDir()
	r, err := New(root, bundle, Options{})
	if err != nil {
		t.Fatal(err)
	}

	results, err := r.RunHandlerBatch(0, nil, root, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	probe := results[0].Result.Failure.Error
	for _, want := range []string{`"exists":true`, `"missing":false`, `"size":5`, `"isFile":true`, `"listed":true`} {
		if !strings.Contains(probe, want) {
			t.Errorf("probe missing %s: %s", want, probe)
		}
	}
	if !strings.Contains(probe, root) {
		t.Errorf("cwd should report the git root, got %s", probe)
	}
}

func TestJobErrorDoesNotStopDrain(t *testing.T) {
	bundle := `
globalThis.runHandlerBatchSync = function() {
	setTimeout(function() { throw new Error("first job fails"); }, 0);
	setTimeout(function() {
		__repopo_lastResult = JSON.stringify({ pass: ["survivor.ts"], fail: [] });
	}, 0);
};`
	r, err := New(t.TempDir(), bundle, Options{})
	if err != nil {
		t.Fatal(err)
	}

	results, err := r.RunHandlerBatch(0, nil, "/", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].File != "survivor.ts" {
		t.Fatalf("second job should still have run, got %+v", results)
	}
}

func TestChainedTimerJobs(t *testing.T) {
	// An async chain that hops through several timer jobs, with promise
	// reactions between the hops, must fully settle within one drain.
	bundle := `
globalThis.runHandlerBatchSync = function(policyId, filesJson) {
	var files = JSON.parse(filesJson);
	function hop() {
		return new Promise(function(done) { setTimeout(done, 0); });
	}
	hop()
		.then(hop)
		.then(function() { return Promise.resolve(files); })
		.then(hop)
		.then(function() {
			__repopo_lastResult = JSON.stringify({ pass: files, fail: [] });
		});
};`
	r, err := New(t.TempDir(), bundle, Options{})
	if err != nil {
		t.Fatal(err)
	}

	results, err := r.RunHandlerBatch(0, []string{"a.ts", "b.ts"}, "/", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("chain did not settle, got %+v", results)
	}
	for _, fr := range results {
		if !fr.Result.IsPass() {
			t.Errorf("%s should pass", fr.File)
		}
	}
}

func TestFilePathEscaping(t *testing.T) {
	bundle := `
globalThis.runHandlerBatchSync = function(policyId, filesJson) {
	var files = JSON.parse(filesJson);
	__repopo_lastResult = JSON.stringify({ pass: files, fail: [] });
};`
	r, err := New(t.TempDir(), bundle, Options{})
	if err != nil {
		t.Fatal(err)
	}

	tricky := []string{"it's.ts", `back\slash.ts`}
	results, err := r.RunHandlerBatch(0, tricky, "/", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[0].File != tricky[0] || results[1].File != tricky[1] {
		t.Fatalf("file names mangled in transit: %+v", results)
	}
}

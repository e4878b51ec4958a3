package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func parseCLI(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("endpointgen"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	if err != nil {
		t.Fatal(err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return cli, kctx
}

func TestGenerateCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "endpointgen.yaml"), "sourceDir: api\noutDir: gen\nroutesDir: app\n")
	writeFile(t, filepath.Join(dir, "api", "tasks", "list.ts"), `export default endpoint.get({
  name: "listTasks",
  handler: async () => [],
});
`)

	cli, kctx := parseCLI(t, "--config", filepath.Join(dir, "endpointgen.yaml"), "generate")
	if kctx.Command() != "generate" {
		t.Fatalf("command = %q", kctx.Command())
	}
	if err := kctx.Run(&cli.Globals); err != nil {
		t.Fatal(err)
	}
	for _, rel := range []string{"gen/api.ts", "gen/store.ts", "gen/invalidate.ts", "app/tasks/route.ts"} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}

	cli, kctx = parseCLI(t, "--config", filepath.Join(dir, "endpointgen.yaml"), "generate", "--force")
	if !cli.Generate.Force {
		t.Error("--force not bound")
	}
	if err := kctx.Run(&cli.Globals); err != nil {
		t.Fatal(err)
	}
}

func TestMissingExplicitConfig(t *testing.T) {
	dir := t.TempDir()
	cli, kctx := parseCLI(t, "--config", filepath.Join(dir, "custom.yaml"), "generate")
	if err := kctx.Run(&cli.Globals); err == nil {
		t.Fatal("expected error for missing custom config")
	}
}

func TestMissingDefaultConfigFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "endpoints", "ping.ts"), `export default endpoint.get({ name: "ping" });`)

	g := &Globals{Config: filepath.Join(dir, "endpointgen.yaml")}
	cfg, err := g.load()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "src", "endpoints"); cfg.SourceDir != want {
		t.Errorf("SourceDir = %q, want %q", cfg.SourceDir, want)
	}
}

func TestPrintTree(t *testing.T) {
	var buf bytes.Buffer
	if err := printTree(&buf, []byte(`export default { name: "abcdefghij" };`), 8); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"program ", "\n  export_statement ", "\n    object ", `"\"abcdefg..."`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestVersion(t *testing.T) {
	if Version() == "" {
		t.Error("empty version")
	}
}

package languages

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := NewCatalog()

	all := c.List()
	if len(all) != 12 {
		t.Fatalf("expected 12 built-in languages, got %d", len(all))
	}
	if all[0].Value != "javascript" {
		t.Errorf("expected javascript first, got %s", all[0].Value)
	}

	js := c.Default()
	if js == nil || js.JudgeID != 63 {
		t.Fatalf("expected javascript with judge id 63, got %+v", js)
	}

	for _, name := range []string{"html", "css"} {
		if c.Get(name).Executable() {
			t.Errorf("%s should not be executable", name)
		}
	}
	if !c.Get("python").Executable() {
		t.Error("python should be executable")
	}

	if got := c.ByJudgeID(71); got == nil || got.Value != "python" {
		t.Errorf("ByJudgeID(71) = %+v", got)
	}
	if c.Get("cobol") != nil {
		t.Error("unknown language should be nil")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "languages.yaml")
	data := `languages:
  - value: python
    label: Python 3.12
    default_code: print("hi")
    judge_id: 92
  - value: kotlin
    judge_id: 78
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCatalog()
	if err := c.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	py := c.Get("python")
	if py.JudgeID != 92 || py.Label != "Python 3.12" {
		t.Errorf("python not overridden: %+v", py)
	}

	kt := c.Get("kotlin")
	if kt == nil {
		t.Fatal("kotlin not loaded")
	}
	if kt.Label != "kotlin" {
		t.Errorf("expected label to default to value, got %q", kt.Label)
	}

	all := c.List()
	if all[len(all)-1].Value != "kotlin" {
		t.Error("new languages should be appended")
	}
	if len(all) != 13 {
		t.Errorf("expected 13 languages, got %d", len(all))
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	if err := NewCatalog().LoadFromFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("languages:\n  - label: nameless\n"), 0o644)
	if err := NewCatalog().LoadFromFile(bad); err == nil {
		t.Error("expected error for entry without value")
	}

	broken := filepath.Join(dir, "broken.yaml")
	os.WriteFile(broken, []byte("languages: [\n"), 0o644)
	if err := NewCatalog().LoadFromFile(broken); err == nil {
		t.Error("expected parse error")
	}
}

func TestSourceFile(t *testing.T) {
	c := NewCatalog()
	if got := SourceFile(c.Get("java")); got != "Main.java" {
		t.Errorf("expected Main.java, got %s", got)
	}
	if got := SourceFile(c.Get("go")); got != "main.go" {
		t.Errorf("expected main.go, got %s", got)
	}
}

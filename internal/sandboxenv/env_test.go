package sandboxenv

import "testing"

func TestBuildSuppressesBytecodeCache(t *testing.T) {
	env := Build(nil)
	if v, ok := Contains(env, "PYTHONDONTWRITEBYTECODE"); !ok || v != "1" {
		t.Errorf("PYTHONDONTWRITEBYTECODE = %q, %v, want 1, true", v, ok)
	}
}

func TestBuildHasMinimalPath(t *testing.T) {
	env := Build(nil)
	path, ok := Contains(env, "PATH")
	if !ok {
		t.Fatal("expected PATH to be set")
	}
	if path == "" {
		t.Error("expected non-empty PATH")
	}
}

func TestBuildExtraOverridesDefaults(t *testing.T) {
	env := Build(map[string]string{"PATH": "/custom/bin"})
	path, _ := Contains(env, "PATH")
	if path != "/custom/bin" {
		t.Errorf("PATH = %q, want /custom/bin", path)
	}
}

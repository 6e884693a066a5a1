package main

import (
	"os"
	"path/filepath"
	"testing"

	"xwire/internal/config"
	"xwire/pkg/wire"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseStreamFlagsKeepsConfigPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "xwiredump.yaml", "strict:\n  padding: true\n")
	f, err := parseStreamFlags([]string{"--config=" + path, "capture.bin"})
	if err != nil {
		t.Fatal(err)
	}
	if f.cfgPath != path {
		t.Errorf("cfgPath: got %q, want %q", f.cfgPath, path)
	}
	if f.cfg.Policy() != wire.Strict {
		t.Error("config not loaded")
	}
	if len(f.rest) != 1 || f.rest[0] != "capture.bin" {
		t.Errorf("rest: %v", f.rest)
	}
}

func TestTailSessionFollowsReload(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "xwiredump.yaml", "{}\n")

	r, err := config.NewReloadable(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	sess := &tailSession{}
	if err := sess.apply(r.Get()); err != nil {
		t.Fatal(err)
	}
	if sess.policy != wire.Lenient {
		t.Error("initial policy not lenient")
	}
	if _, ok := sess.reg.RequestByName("ShapeQueryVersion"); ok {
		t.Fatal("extension registered before reload")
	}
	coreReg := sess.reg

	// An unchanged config must not rebuild the registry between drains.
	if err := sess.apply(r.Get()); err != nil {
		t.Fatal(err)
	}
	if sess.reg != coreReg {
		t.Error("registry rebuilt without a config change")
	}

	schemaPath := writeFile(t, dir, "shape.yaml", `
requests:
  - name: ShapeQueryVersion
    opcode: 128
`)
	writeFile(t, dir, "xwiredump.yaml", "strict:\n  padding: true\nschema_files:\n  - "+schemaPath+"\n")
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	if err := sess.apply(r.Get()); err != nil {
		t.Fatal(err)
	}
	if sess.policy != wire.Strict {
		t.Error("reloaded strictness not applied")
	}
	if _, ok := sess.reg.RequestByName("ShapeQueryVersion"); !ok {
		t.Error("reloaded schema file not registered")
	}
}

func TestTailSessionKeepsStateOnBadReload(t *testing.T) {
	sess := &tailSession{}
	if err := sess.apply(config.Default()); err != nil {
		t.Fatal(err)
	}
	reg := sess.reg

	bad := config.Default()
	bad.SchemaFiles = []string{filepath.Join(t.TempDir(), "missing.yaml")}
	if err := sess.apply(bad); err == nil {
		t.Fatal("missing schema file should fail")
	}
	if sess.reg != reg {
		t.Error("failed apply replaced the registry")
	}
	if sess.policy != wire.Lenient {
		t.Error("failed apply changed the policy")
	}
}

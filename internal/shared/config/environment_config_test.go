package config

import "testing"

const sampleConfig = `
worktrees_directory: "/tmp/slopcoord-worktrees"
environments:
  - "/tmp/test-project"
  - "/home/user/projects/another"
`

func TestFromYAMLParsesEnvironments(t *testing.T) {
	cfg, err := FromYAML([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Environments) != 2 {
		t.Fatalf("expected 2 environments, got %d", len(cfg.Environments))
	}
	if cfg.Environments[0].Directory != "/tmp/test-project" {
		t.Fatalf("unexpected directory: %q", cfg.Environments[0].Directory)
	}
}

func TestFindEnvironment(t *testing.T) {
	cfg, err := FromYAML([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env, ok := cfg.Find("/tmp/test-project")
	if !ok || env.Directory != "/tmp/test-project" {
		t.Fatalf("expected to find environment, got %+v ok=%v", env, ok)
	}
	if _, ok := cfg.Find("nonexistent"); ok {
		t.Fatalf("expected not to find nonexistent environment")
	}
}

func TestFromYAMLRejectsUnknownFields(t *testing.T) {
	bad := sampleConfig + "\nextra_field: true\n"
	if _, err := FromYAML([]byte(bad)); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

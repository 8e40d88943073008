package agent

import "testing"

func TestLoadSeedSpecs(t *testing.T) {
	specs, err := LoadSeedSpecs()
	if err != nil {
		t.Fatalf("LoadSeedSpecs() returned error: %v", err)
	}
	if len(specs) == 0 {
		t.Fatal("LoadSeedSpecs() returned no specs")
	}

	want := map[string]string{
		"claude-code": "npm",
		"codex":       "npm",
		"aider":       "pip",
	}
	for _, s := range specs {
		method, ok := want[s.Name]
		if !ok {
			t.Errorf("unexpected seed spec %q", s.Name)
			continue
		}
		if s.InstallMethod != method {
			t.Errorf("%s: install method = %q, want %q", s.Name, s.InstallMethod, method)
		}
		if s.DefaultModel == "" {
			t.Errorf("%s: default model is empty", s.Name)
		}
	}
}

package security

import "testing"

func TestParseMemoryLimit(t *testing.T) {
	cases := map[string]int64{
		"":      0,
		"4g":    4 << 30,
		"512m":  512 << 20,
		"128k":  128 << 10,
		"1G":    1 << 30,
		"bogus": 0,
	}
	for input, want := range cases {
		if got := ParseMemoryLimit(input); got != want {
			t.Errorf("ParseMemoryLimit(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestParseCPULimit(t *testing.T) {
	cases := map[string]int64{
		"":      0,
		"2":     2e9,
		"0.5":   5e8,
		"0":     0,
		"bogus": 0,
	}
	for input, want := range cases {
		if got := ParseCPULimit(input); got != want {
			t.Errorf("ParseCPULimit(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestDefaultContainerSecurityOptions(t *testing.T) {
	opts := DefaultContainerSecurityOptions()
	if len(opts.DropCapabilities) == 0 {
		t.Error("expected non-empty DropCapabilities")
	}
	if !opts.NoNewPrivileges {
		t.Error("expected NoNewPrivileges to default true")
	}
}

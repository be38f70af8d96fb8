package security

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"front-door", "front-door"},
		{"Garage Cam 2", "Garage_Cam_2"},
		{"back/yard", "back_yard"},
		{"../../etc/passwd", "etc_passwd"},
		{"cam:*?<>|", "cam"},
		{"", "unknown"},
		{"///", "unknown"},
		{"a  b", "a_b"},
	}
	for _, c := range cases {
		if got := SanitizeFilename(c.in); got != c.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeFilename_Truncates(t *testing.T) {
	long := strings.Repeat("a", 500)
	if got := SanitizeFilename(long); len(got) > 128 {
		t.Errorf("sanitized name is %d bytes, want at most 128", len(got))
	}
}

func TestValidatePathWithinDirectory(t *testing.T) {
	dir := t.TempDir()

	if err := ValidatePathWithinDirectory(filepath.Join(dir, "cam_1.jpg"), dir); err != nil {
		t.Errorf("path inside dir rejected: %v", err)
	}
	if err := ValidatePathWithinDirectory(filepath.Join(dir, "sub", "cam.jpg"), dir); err != nil {
		t.Errorf("nested path rejected: %v", err)
	}
	if err := ValidatePathWithinDirectory(filepath.Join(dir, "..", "escape.jpg"), dir); err == nil {
		t.Error("parent escape accepted")
	}
	if err := ValidatePathWithinDirectory("/etc/passwd", dir); err == nil {
		t.Error("absolute path outside dir accepted")
	}
}

package gdb

import "testing"

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("4.2.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Major != 4 || v.Minor != 2 || v.Patch != 1 {
		t.Errorf("parsed wrong: %+v", v)
	}

	if _, err := ParseVersion("not-a-version"); err == nil {
		t.Error("expected error for malformed version")
	}
}

func TestSupportsNativeVector(t *testing.T) {
	cases := []struct {
		ver  string
		want bool
	}{
		{"4.2.0", true},
		{"4.3.1", true},
		{"5.0.0", true},
		{"4.1.9", false},
		{"3.9.3", false},
	}
	for _, tc := range cases {
		v, err := ParseVersion(tc.ver)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", tc.ver, err)
		}
		if got := v.SupportsNativeVector(); got != tc.want {
			t.Errorf("SupportsNativeVector(%s) = %v, want %v", tc.ver, got, tc.want)
		}
	}
}

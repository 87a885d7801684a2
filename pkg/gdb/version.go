package gdb

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed backend version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses a "major.minor.patch" version string. The patch
// component is optional.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return Version{}, fmt.Errorf("malformed version %q", s)
	}

	var v Version
	var err error
	if v.Major, err = strconv.Atoi(parts[0]); err != nil {
		return Version{}, fmt.Errorf("malformed version %q: %w", s, err)
	}
	if v.Minor, err = strconv.Atoi(parts[1]); err != nil {
		return Version{}, fmt.Errorf("malformed version %q: %w", s, err)
	}
	if len(parts) > 2 {
		if v.Patch, err = strconv.Atoi(parts[2]); err != nil {
			return Version{}, fmt.Errorf("malformed version %q: %w", s, err)
		}
	}
	return v, nil
}

// SupportsNativeVector reports whether the backend ships native vector
// attributes and similarity search. Requires version 4.2 or later.
func (v Version) SupportsNativeVector() bool {
	if v.Major != 4 {
		return v.Major > 4
	}
	return v.Minor >= 2
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

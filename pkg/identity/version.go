package identity

import (
	"fmt"
	"strings"
)

// Version is the identity API version a deployment talks to. It is resolved
// once from configuration and never rechecked per call.
type Version int

const (
	V2 Version = 2
	V3 Version = 3
)

// ParseVersion accepts the spellings operators use for the identity API
// version: "2", "2.0", "v2.0", "3", "3.0", "v3".
func ParseVersion(s string) (Version, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "v") {
	case "2", "2.0":
		return V2, nil
	case "3", "3.0":
		return V3, nil
	default:
		return 0, fmt.Errorf("unsupported identity API version %q", s)
	}
}

// AtLeast3 reports whether the v3 API (domains, federation) is available
func (v Version) AtLeast3() bool {
	return v >= V3
}

// PathSegment is the version component of identity endpoint URLs
func (v Version) PathSegment() string {
	if v.AtLeast3() {
		return "/v3"
	}
	return "/v2.0"
}

func (v Version) String() string {
	switch v {
	case V2:
		return "v2.0"
	case V3:
		return "v3"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

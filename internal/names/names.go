// Package names decides whether VIRT names and registration targets are
// acceptable. Every function here is pure and safe on untrusted input.
package names

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/virt/internal/apperr"
)

// Scheme is the prefix every VIRT name starts with.
const Scheme = "virt://"

// Tag is one of the reserved top-level labels.
type Tag string

// Reserved tags.
const (
	TagVC  Tag = "vc"
	TagBiz Tag = "biz"
	TagOrg Tag = "org"
	TagLit Tag = "lit"
)

// Tags lists the reserved tags in display order.
var Tags = []Tag{TagVC, TagBiz, TagOrg, TagLit}

// System names resolve to bundled content and never touch the registry.
const (
	SystemHome     = "lookin.at"
	SystemRegister = "register.at"
	SystemAbout    = "about.at"
)

// SystemNames lists the hosts of the three system names.
var SystemNames = []string{SystemHome, SystemRegister, SystemAbout}

// Label length bounds.
const (
	MinLabelLen = 3
	MaxLabelLen = 63
)

var (
	labelRe     = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	labelCharRe = regexp.MustCompile(`^[a-z0-9-]+$`)
	httpsRe     = regexp.MustCompile(`^https://.+`)
	ipv4Re      = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})(?::(\d{1,5}))?$`)
)

// String returns the tag as written after the dot.
func (t Tag) String() string { return string(t) }

// Valid reports whether t is one of the reserved tags.
func (t Tag) Valid() bool {
	for _, r := range Tags {
		if t == r {
			return true
		}
	}
	return false
}

// ParseTag converts s into a Tag. Anything outside the reserved set is
// rejected with apperr.ErrInvalidTag.
func ParseTag(s string) (Tag, error) {
	t := Tag(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q is not one of %s", apperr.ErrInvalidTag, s, tagList())
	}
	return t, nil
}

func tagList() string {
	parts := make([]string, len(Tags))
	for i, t := range Tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// ValidLabel reports whether s can be registered as a label.
func ValidLabel(s string) bool {
	if len(s) < MinLabelLen || len(s) > MaxLabelLen {
		return false
	}
	return labelRe.MatchString(s)
}

// Compose joins a label and tag into the canonical "label.tag" form.
func Compose(label string, tag Tag) string {
	return label + "." + string(tag)
}

// hostAndPath strips the scheme and splits the remainder into a lowercase
// host and the path after the first slash. Query strings are dropped.
func hostAndPath(name string) (host, path string, ok bool) {
	if !strings.HasPrefix(strings.ToLower(name), Scheme) {
		return "", "", false
	}
	rest := name[len(Scheme):]
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	host, path, _ = strings.Cut(rest, "/")
	host = strings.ToLower(host)
	if host == "" {
		return "", "", false
	}
	return host, path, true
}

// IsSystemName reports whether name is one of the three system names.
// A sub-path is allowed: "virt://register.at/style.css" is a system name.
func IsSystemName(name string) bool {
	host, _, ok := hostAndPath(name)
	if !ok {
		return false
	}
	for _, s := range SystemNames {
		if host == s {
			return true
		}
	}
	return false
}

// HasReservedTag reports whether the host of name is "label.tag" with a
// non-empty label and a reserved tag.
func HasReservedTag(name string) bool {
	_, _, _, ok := Split(name)
	return ok
}

// IsAcceptableName reports whether name carries the scheme and is either a
// system name or ends with a reserved tag.
func IsAcceptableName(name string) bool {
	return IsSystemName(name) || HasReservedTag(name)
}

// Split breaks a reserved name into label, tag and sub-path. ok is false
// when name is not a reserved-tag name.
func Split(name string) (label string, tag Tag, path string, ok bool) {
	host, path, found := hostAndPath(name)
	if !found {
		return "", "", "", false
	}
	i := strings.LastIndexByte(host, '.')
	if i <= 0 || i == len(host)-1 {
		return "", "", "", false
	}
	label, tag = host[:i], Tag(host[i+1:])
	if !tag.Valid() || !labelCharRe.MatchString(label) {
		return "", "", "", false
	}
	return label, tag, path, true
}

// IsAcceptableTarget reports whether target is an HTTPS URL or a bare IPv4
// literal with an optional port.
func IsAcceptableTarget(target string) bool {
	if httpsRe.MatchString(target) {
		return true
	}
	m := ipv4Re.FindStringSubmatch(target)
	if m == nil {
		return false
	}
	for _, octet := range m[1:5] {
		n, err := strconv.Atoi(octet)
		if err != nil || n > 255 {
			return false
		}
	}
	if m[5] != "" {
		port, err := strconv.Atoi(m[5])
		if err != nil || port < 1 || port > 65535 {
			return false
		}
	}
	return true
}

// IsSecureWebURL reports whether s is a plain https:// URL with a host.
func IsSecureWebURL(s string) bool {
	if !strings.HasPrefix(strings.ToLower(s), "https://") {
		return false
	}
	rest := s[len("https://"):]
	host, _, _ := strings.Cut(rest, "/")
	return host != "" && !strings.ContainsAny(host, " \t\n")
}

// SplitSystem returns the host and sub-path of a system name.
func SplitSystem(name string) (host, path string, ok bool) {
	if !IsSystemName(name) {
		return "", "", false
	}
	return hostAndPath(name)
}

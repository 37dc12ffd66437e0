package registrar

import (
	"net/url"
	"strings"
)

// RawHost is the raw-content host that source-hosting URLs are rewritten to.
const RawHost = "raw.githubusercontent.com"

var sourceHosts = map[string]struct{}{
	"github.com":     {},
	"www.github.com": {},
}

// RawBase rewrites a github.com repository URL into its raw-content base:
//
//	https://github.com/u/r               -> https://raw.githubusercontent.com/u/r/
//	https://github.com/u/r/tree/main/doc -> https://raw.githubusercontent.com/u/r/main/doc/
//
// Targets on any other host come back unchanged, which makes the rewrite
// idempotent.
func RawBase(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "https" || u.User != nil || u.Port() != "" {
		return target
	}
	if _, ok := sourceHosts[strings.ToLower(u.Hostname())]; !ok {
		return target
	}

	segs := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(segs) < 2 {
		return target
	}
	if len(segs) > 2 && (segs[2] == "tree" || segs[2] == "blob") {
		segs = append(segs[:2], segs[3:]...)
	}
	return "https://" + RawHost + "/" + strings.Join(segs, "/") + "/"
}

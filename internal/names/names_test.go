package names

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/starford/virt/internal/apperr"
)

func TestIsAcceptableName(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"virt://lookin.at", true},
		{"virt://register.at/", true},
		{"virt://about.at/team.html", true},
		{"virt://abc.vc", true},
		{"virt://my-app.lit/docs/index.html", true},
		{"VIRT://Abc.ORG", true},
		{"virt://abc.com", false},
		{"https://example.com", false},
		{"", false},
		{"virt://", false},
		{"virt://abc.", false},
		{"virt://.vc", false},
		{"virt://.", false},
		{"virt://a b.vc", false},
		{"virt:/abc.vc", false},
		{"abc.vc", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsAcceptableName(tc.name))
		})
	}
}

func TestIsSystemName(t *testing.T) {
	require.True(t, IsSystemName("virt://lookin.at"))
	require.True(t, IsSystemName("virt://register.at?name=foo.vc"))
	require.False(t, IsSystemName("virt://lookin.at.vc"))
	require.False(t, IsSystemName("https://lookin.at"))
	require.False(t, IsSystemName("virt://abc.vc"))
}

func TestSplitSystem(t *testing.T) {
	host, path, ok := SplitSystem("virt://Register.at/css/x.css?v=2")
	require.True(t, ok)
	require.Equal(t, SystemRegister, host)
	require.Equal(t, "css/x.css", path)

	_, _, ok = SplitSystem("virt://abc.vc/x")
	require.False(t, ok)
}

func TestHasReservedTag(t *testing.T) {
	require.True(t, HasReservedTag("virt://abc.vc"))
	require.True(t, HasReservedTag("virt://abc.biz/x"))
	require.False(t, HasReservedTag("virt://lookin.at"))
	require.False(t, HasReservedTag("virt://abc.net"))
}

func TestSplit(t *testing.T) {
	label, tag, path, ok := Split("virt://MyApp.vc/docs/readme.md?x=1")
	require.True(t, ok)
	require.Equal(t, "myapp", label)
	require.Equal(t, TagVC, tag)
	require.Equal(t, "docs/readme.md", path)

	_, _, _, ok = Split("virt://myapp.xyz")
	require.False(t, ok)
}

func TestIsAcceptableTarget(t *testing.T) {
	cases := []struct {
		target string
		want   bool
	}{
		{"https://example.com", true},
		{"https://github.com/u/r", true},
		{"10.0.0.1", true},
		{"192.168.1.20:8080", true},
		{"255.255.255.255:65535", true},
		{"http://example.com", false},
		{"https://", false},
		{"256.1.1.1", false},
		{"1.2.3", false},
		{"1.2.3.4:0", false},
		{"1.2.3.4:70000", false},
		{"ftp://1.2.3.4", false},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			require.Equal(t, tc.want, IsAcceptableTarget(tc.target))
		})
	}
}

func TestIsSecureWebURL(t *testing.T) {
	require.True(t, IsSecureWebURL("https://example.com"))
	require.True(t, IsSecureWebURL("https://example.com/a/b"))
	require.False(t, IsSecureWebURL("https://"))
	require.False(t, IsSecureWebURL("http://example.com"))
	require.False(t, IsSecureWebURL("virt://abc.vc"))
}

func TestParseTag(t *testing.T) {
	for _, tag := range Tags {
		got, err := ParseTag(string(tag))
		require.NoError(t, err)
		require.Equal(t, tag, got)
	}
	_, err := ParseTag("com")
	require.True(t, errors.Is(err, apperr.ErrInvalidTag))
	_, err = ParseTag("")
	require.True(t, errors.Is(err, apperr.ErrInvalidTag))
}

func TestValidLabel(t *testing.T) {
	require.True(t, ValidLabel("abc"))
	require.True(t, ValidLabel("my-app-2"))
	require.True(t, ValidLabel(strings.Repeat("a", 63)))
	require.False(t, ValidLabel("ab"))
	require.False(t, ValidLabel(strings.Repeat("a", 64)))
	require.False(t, ValidLabel("-abc"))
	require.False(t, ValidLabel("abc-"))
	require.False(t, ValidLabel("ABC"))
	require.False(t, ValidLabel("a.bc"))
}

func TestReservedNamesRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		label := rapid.StringMatching(`[a-z0-9][a-z0-9-]{1,20}[a-z0-9]`).Draw(t, "label")
		tag := rapid.SampledFrom(Tags).Draw(t, "tag")
		name := Scheme + Compose(label, tag)

		if !IsAcceptableName(name) {
			t.Fatalf("%q should be acceptable", name)
		}
		gotLabel, gotTag, path, ok := Split(name)
		if !ok || gotLabel != label || gotTag != tag || path != "" {
			t.Fatalf("Split(%q) = %q %q %q %v", name, gotLabel, gotTag, path, ok)
		}
	})
}

func TestUnknownTagsRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tld := rapid.StringMatching(`[a-z]{2,6}`).Draw(t, "tld")
		if Tag(tld).Valid() {
			t.Skip("reserved tag drawn")
		}
		name := Scheme + "sample." + tld
		if IsSystemName(name) {
			t.Skip("system name drawn")
		}
		if IsAcceptableName(name) {
			t.Fatalf("%q should be rejected", name)
		}
	})
}

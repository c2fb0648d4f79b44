package netutil_test

import (
	"testing"

	netutil "duel-service/pkg/utils/net"
)

func TestPrefix(t *testing.T) {
	cases := map[string]string{
		"192.168.1.77":      "192.168.1.0/24",
		"::ffff:10.0.0.9":   "10.0.0.0/24",
		"2001:db8:1:2:3::4": "2001:db8:1:2::/64",
		"not-an-ip":         "",
		"":                  "",
	}
	for in, want := range cases {
		if got := netutil.Prefix(in); got != want {
			t.Fatalf("Prefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSameNetwork(t *testing.T) {
	if !netutil.SameNetwork("10.1.2.3", "10.1.2.200") {
		t.Fatalf("same /24 should match")
	}
	if netutil.SameNetwork("10.1.2.3", "10.1.3.3") {
		t.Fatalf("different /24 should not match")
	}
	if netutil.SameNetwork("", "") {
		t.Fatalf("unknown addresses must not match")
	}
}

package apic

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// dnAttribute is the attribute key carrying a managed object's DN.
const dnAttribute = "dn"

// dnSafe lists the bytes embedded verbatim when a DN appears in a URL path,
// beyond letters and digits. It covers RFC 3986 pchar plus the DN grammar's
// own separators: '/' between RDNs and '[' ']' around escaped values.
const dnSafe = "-._~!$&'()*+,;=:@/[]"

const upperhex = "0123456789ABCDEF"

// EscapeDN renders a DN for embedding in a URL path. The same routine backs
// query paths, mutation paths and delete paths, so a DN always escapes the
// same way no matter which operation carries it.
func EscapeDN(dn string) string {
	escaped := 0
	for i := 0; i < len(dn); i++ {
		if !dnSafeByte(dn[i]) {
			escaped++
		}
	}
	if escaped == 0 {
		return dn
	}

	var b strings.Builder
	b.Grow(len(dn) + 2*escaped)
	for i := 0; i < len(dn); i++ {
		c := dn[i]
		if dnSafeByte(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

func dnSafeByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	default:
		return strings.IndexByte(dnSafe, c) >= 0
	}
}

// SplitDN splits a DN into its relative distinguished names. RDNs are joined
// by forward slashes, and a slash inside square brackets does not split;
// brackets nest.
//
//	uni/tn-EXAMPLE/rsprov-[uni/tn-common/brc-default]
//
// splits into three RDNs, the last keeping its bracketed DN intact.
func SplitDN(dn string) ([]string, error) {
	var rdns []string
	start := 0
	depth := 0

	for i := 0; i < len(dn); i++ {
		switch dn[i] {
		case '[':
			depth++
		case ']':
			if depth == 0 {
				return nil, errors.Newf("unbalanced ']' at byte %d in %q", i, dn)
			}
			depth--
		case '/':
			if depth == 0 {
				rdns = append(rdns, dn[start:i])
				start = i + 1
			}
		}
	}

	rdns = append(rdns, dn[start:])

	if depth > 0 {
		return nil, errors.Newf("%d unclosed '[' in %q", depth, dn)
	}
	return rdns, nil
}

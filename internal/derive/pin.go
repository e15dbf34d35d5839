package derive

import "strings"

// DefaultSentinel is the related-parcel prefix that marks a placeholder
// relation in the export.
const DefaultSentinel = "70-15-17-6"

// PINRule decides which parcel number a PIN is derived from and how the
// remaining segments are joined.
//
// With SentinelUsesPnum unset, relatedpnum is used whenever it is present.
// With it set, a relatedpnum starting with Sentinel falls back to pnum.
type PINRule struct {
	Sentinel         string
	SentinelUsesPnum bool
	Separator        string
}

// DefaultPINRule prefers relatedpnum whenever it is present and keeps the
// hyphens between the retained segments.
func DefaultPINRule() PINRule {
	return PINRule{Sentinel: DefaultSentinel, Separator: "-"}
}

// Source returns the parcel number the PIN is built from and whether one is
// present. Empty and missing values are treated alike.
func (r PINRule) Source(pnum, relatedpnum string) (string, bool) {
	pnum = strings.TrimSpace(pnum)
	relatedpnum = strings.TrimSpace(relatedpnum)

	if relatedpnum != "" {
		sentinel := r.Sentinel
		if sentinel == "" {
			sentinel = DefaultSentinel
		}
		if !r.SentinelUsesPnum || !strings.HasPrefix(relatedpnum, sentinel) {
			return relatedpnum, true
		}
	}
	return pnum, pnum != ""
}

// PIN derives the canonical parcel identifier. It never fails: a missing
// source, or one without a hyphen, yields ok=false.
func (r PINRule) PIN(pnum, relatedpnum string) (pin string, ok bool) {
	src, ok := r.Source(pnum, relatedpnum)
	if !ok {
		return "", false
	}
	return StripFirstSegment(src, r.Separator)
}

// StripFirstSegment splits s on hyphens, drops the first segment and joins
// the rest with sep.
func StripFirstSegment(s, sep string) (string, bool) {
	parts := strings.Split(s, "-")
	if len(parts) < 2 {
		return "", false
	}
	out := strings.Join(parts[1:], sep)
	if strings.Trim(out, sep) == "" {
		return "", false
	}
	return out, true
}

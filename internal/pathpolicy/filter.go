package pathpolicy

import (
	"strconv"
	"strings"

	"tgspider/internal/domain"
)

// SizeRangeLookup resolves the "min-max" string for a (kind, channelID)
// pair, checking the per-channel override before the global default.
type SizeRangeLookup func(kind domain.MediaKind, channelID string) (string, bool)

// parseRange parses a "min-max" string in bytes, base 1024. Returns
// ok=false if either bound fails to parse, in which case the caller must
// default-accept.
func parseRange(s string) (lo, hi int64, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, errLo := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	hi, errHi := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if errLo != nil || errHi != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// Filter evaluates every media kind present on msg against the allowed set
// and the size-range configuration. The result is idempotent:
// Filter(Filter(m)) == Filter(m), since it is a pure function of msg,
// allowed and lookup.
func Filter(msg domain.Message, allowed map[domain.MediaKind]bool, lookup SizeRangeLookup) []domain.FilterDecision {
	kind, has := msg.Media.Kind()
	if !has {
		return nil
	}

	decision := domain.FilterDecision{Kind: kind}

	if !allowed[kind] {
		decision.Reason = "media kind not allowed"
		return []domain.FilterDecision{decision}
	}

	size, known := msg.Media.SizeBytes()
	if !known {
		decision.Accepted = true
		decision.Reason = "size undeterminable, default accept"
		return []domain.FilterDecision{decision}
	}

	rangeStr, set := lookup(kind, msg.ChannelID)
	if !set {
		decision.Accepted = true
		decision.Reason = "no size filter configured"
		return []domain.FilterDecision{decision}
	}

	lo, hi, ok := parseRange(rangeStr)
	if !ok {
		decision.Accepted = true
		decision.Reason = "unparsable range, default accept"
		return []domain.FilterDecision{decision}
	}

	if lo > hi {
		lo, hi = hi, lo
	}
	if size >= lo && size <= hi {
		decision.Accepted = true
		decision.Reason = "within configured size range"
	} else {
		decision.Reason = "outside configured size range"
	}
	return []domain.FilterDecision{decision}
}

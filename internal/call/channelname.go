package call

import (
	"sort"
	"strings"

	"heartlink-client/pkg/constants"
)

// ChannelName derives the media channel name for a pair of users. Both peers
// compute it independently, so the result must be bit-for-bit identical
// regardless of argument order: ids are sanitized, truncated, sorted, and
// joined under the shared prefix, and the whole name is capped at the vendor's
// 64-byte limit. Only letters, digits, and underscores survive sanitization.
func ChannelName(a, b string) string {
	ids := []string{sanitizeID(a), sanitizeID(b)}
	sort.Strings(ids)

	name := constants.ChannelNamePrefix + "_" + ids[0] + "_" + ids[1]
	if len(name) > constants.MaxChannelNameLength {
		name = name[:constants.MaxChannelNameLength]
	}
	return name
}

// sanitizeID strips non-alphanumeric characters and bounds the id length so a
// pair of ids always fits the channel limit
func sanitizeID(id string) string {
	var sb strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	s := sb.String()
	if len(s) > constants.MaxChannelIDSegment {
		s = s[:constants.MaxChannelIDSegment]
	}
	return s
}

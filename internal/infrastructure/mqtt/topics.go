package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the vueflux mirror.
//
// Usage topics follow the scheme: vueflux/usage/{account}/{channel}
const (
	// TopicPrefix is the base for all vueflux topics.
	TopicPrefix = "vueflux"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "vueflux/system"
)

// Topics provides builders for vueflux MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// SystemStatus returns the topic for the mirror's online/offline status.
//
// Example: vueflux/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// Usage returns the topic for realtime usage points of one channel.
//
// Account and channel names are sanitised: MQTT topic-level separators and
// wildcards are replaced with underscores so a display name like "A/C Unit"
// cannot split or match topic levels.
//
// Example: vueflux/usage/home/Dryer
func (Topics) Usage(account, channel string) string {
	return fmt.Sprintf("%s/usage/%s/%s", TopicPrefix,
		sanitizeSegment(account), sanitizeSegment(channel))
}

// sanitizeSegment makes a name safe to embed as a single topic level.
func sanitizeSegment(s string) string {
	replacer := strings.NewReplacer("/", "_", "+", "_", "#", "_")
	return replacer.Replace(s)
}

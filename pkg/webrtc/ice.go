package webrtc

import (
	"strings"

	"github.com/meetgrid/meetgrid/pkg/config"
)

// Replacement substitutes {From} placeholders in ICE server urls, so
// one config template covers addresses known only at runtime.
type Replacement struct {
	From string
	To   string
}

// ReplaceServers returns a copy of the ICE server list with all url
// placeholders substituted. The source list stays intact.
func ReplaceServers(iceServers []config.IceServer, replacements ...Replacement) []config.IceServer {
	if len(replacements) == 0 {
		return iceServers
	}
	out := make([]config.IceServer, len(iceServers))
	copy(out, iceServers)
	for i := range out {
		for _, replacement := range replacements {
			out[i].Urls = strings.Replace(out[i].Urls, "{"+replacement.From+"}", replacement.To, -1)
		}
	}
	return out
}

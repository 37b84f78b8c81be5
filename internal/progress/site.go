package progress

import (
	"net/url"
	"strings"
)

func siteOf(rawURI string) string {
	u, err := url.Parse(rawURI)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

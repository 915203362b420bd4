package cmd

import "net/url"

// redactURL hides the password of a connection URL
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}

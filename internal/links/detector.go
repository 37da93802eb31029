// Package links finds video meeting links in appointment text.
package links

import "regexp"

type service struct {
	name    string
	pattern *regexp.Regexp
}

// Known meeting services, checked in order.
var services = []service{
	{"Zoom", regexp.MustCompile(`https?://[\w.-]*zoom\.us/j/[\w?=&-]+`)},
	{"Teams", regexp.MustCompile(`https?://teams\.microsoft\.com/l/meetup-join/[\w%/-]+`)},
	{"Meet", regexp.MustCompile(`https?://meet\.google\.com/[\w-]+`)},
	{"Webex", regexp.MustCompile(`https?://[\w.-]*\.webex\.com/[\w./-]+`)},
}

// anyURL is the fallback when no known service matches.
var anyURL = regexp.MustCompile(`https?://[^\s<>"]+`)

// Detect returns the first meeting link in location, then description.
// Known services win over generic URLs within the same field.
func Detect(location, description string) string {
	if link := detectInText(location); link != "" {
		return link
	}
	return detectInText(description)
}

func detectInText(text string) string {
	if text == "" {
		return ""
	}
	for _, s := range services {
		if match := s.pattern.FindString(text); match != "" {
			return match
		}
	}
	return anyURL.FindString(text)
}

// Service names the meeting service behind url, or "Link" for anything else.
func Service(url string) string {
	for _, s := range services {
		if s.pattern.MatchString(url) {
			return s.name
		}
	}
	return "Link"
}

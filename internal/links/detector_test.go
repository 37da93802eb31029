package links

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		location    string
		description string
		want        string
	}{
		{"empty", "", "", ""},
		{"plain room", "Room 12", "bring notes", ""},
		{"zoom in location", "https://acme.zoom.us/j/123456?pwd=abc", "", "https://acme.zoom.us/j/123456?pwd=abc"},
		{"location wins", "https://meet.google.com/aaa-bbbb-ccc", "https://acme.zoom.us/j/1", "https://meet.google.com/aaa-bbbb-ccc"},
		{"known service beats generic", "", "see https://example.com/agenda or https://meet.google.com/xyz-abcd-efg", "https://meet.google.com/xyz-abcd-efg"},
		{"generic fallback", "", "details at https://example.com/agenda", "https://example.com/agenda"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.location, tt.description); got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestService(t *testing.T) {
	tests := map[string]string{
		"https://acme.zoom.us/j/123":                     "Zoom",
		"https://teams.microsoft.com/l/meetup-join/19%3a": "Teams",
		"https://meet.google.com/abc-defg-hij":           "Meet",
		"https://acme.webex.com/meet/room":               "Webex",
		"https://example.com":                            "Link",
	}
	for url, want := range tests {
		if got := Service(url); got != want {
			t.Errorf("Service(%q) = %q, want %q", url, got, want)
		}
	}
}

package playback

import "strings"

// DefaultDeviceLabel is used when no hint matches.
const DefaultDeviceLabel = "Web Browser"

type hintRule struct {
	needles []string
	label   string
}

// hintRules is evaluated in order; the first rule with any matching needle wins.
// Order matters: Edge and Chrome user agents both contain "Chrome" and "Safari".
var hintRules = []hintRule{
	{needles: []string{"Dart", "Flutter"}, label: "Mobile App"},
	{needles: []string{"Mobile", "Android", "iPhone"}, label: "Mobile Browser"},
	{needles: []string{"Electron"}, label: "Desktop App"},
	{needles: []string{"Edg"}, label: "Edge Browser"},
	{needles: []string{"Chrome"}, label: "Chrome Browser"},
	{needles: []string{"Firefox"}, label: "Firefox Browser"},
	{needles: []string{"Safari"}, label: "Safari Browser"},
}

// ClassifyTransportHints maps a free-text client descriptor (usually a User-Agent)
// to a coarse device label. It never fails.
func ClassifyTransportHints(hints string) string {
	for _, rule := range hintRules {
		for _, needle := range rule.needles {
			if strings.Contains(hints, needle) {
				return rule.label
			}
		}
	}
	return DefaultDeviceLabel
}

// resolveLabel applies label precedence: an explicit name wins over inference.
func resolveLabel(explicit, hints string) string {
	if explicit != "" {
		return explicit
	}
	return ClassifyTransportHints(hints)
}

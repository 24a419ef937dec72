package provisioning

import "strings"

// SanitizeImageID strips list formatting from an image id, as produced by
// tools that render a single-element list: `["ami-123"]` becomes ami-123.
// For a multi-element list the first element is used.
func SanitizeImageID(id string) string {
	id = strings.NewReplacer("[", "", "]", "").Replace(id)
	if first, _, ok := strings.Cut(id, ","); ok {
		id = first
	}
	return strings.Trim(id, " \t\r\n\"'")
}

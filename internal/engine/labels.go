package engine

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// replaceLabels drops every label in from and appends to once.
func replaceLabels(labels []string, from []string, to string) []string {
	out := make([]string, 0, len(labels)+1)
	for _, l := range labels {
		drop := false
		for _, f := range from {
			if l == f {
				drop = true
				break
			}
		}
		if !drop && l != to {
			out = append(out, l)
		}
	}
	return append(out, to)
}

package tcx

// Flatten converts the children of n into a nested map keyed by local tag name.
// A child with non-whitespace text maps to that text; any other child maps to
// its own flattened children. Repeated tags collect into a []any in document
// order. Attributes are not included.
func Flatten(n *Node) map[string]any {
	result := make(map[string]any, len(n.Children))
	for _, c := range n.Children {
		key := c.Name.Local

		var value any
		if text := c.TrimmedText(); text != "" {
			value = c.Text
		} else {
			value = Flatten(c)
		}

		existing, seen := result[key]
		switch {
		case !seen:
			result[key] = value
		default:
			if list, ok := existing.([]any); ok {
				result[key] = append(list, value)
			} else {
				result[key] = []any{existing, value}
			}
		}
	}
	return result
}

package tcx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Node is one element of a parsed XML document.
type Node struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Text     string
	Parent   *Node
	Children []*Node
}

// parseDocument reads a complete XML document into a node tree and returns its root element.
func parseDocument(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)

	var (
		root  *Node
		stack []*Node
		text  [][]byte
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name, Attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				n.Parent = parent
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
			text = append(text, nil)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced end element %q: %w", t.Name.Local, ErrStructure)
			}
			stack[len(stack)-1].Text = string(text[len(text)-1])
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1] = append(text[len(text)-1], t...)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("document has no root element: %w", ErrStructure)
	}
	return root, nil
}

// Attr returns the value of the attribute with the given local name.
func (n *Node) Attr(local string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// TrimmedText returns the node text without surrounding whitespace.
func (n *Node) TrimmedText() string {
	return strings.TrimSpace(n.Text)
}

// Child follows a chain of direct children and returns the first match, or nil.
func (n *Node) Child(path ...xml.Name) *Node {
	cur := n
	for _, name := range path {
		var next *Node
		for _, c := range cur.Children {
			if c.Name == name {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// Find returns, in document order, every descendant of n whose trailing
// ancestor chain matches path, in the manner of the XPath expression //a/b/c.
func (n *Node) Find(path ...xml.Name) []*Node {
	if len(path) == 0 {
		return nil
	}
	var out []*Node
	n.walk(func(c *Node) {
		if c != n && c.matchesTail(path) {
			out = append(out, c)
		}
	})
	return out
}

func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.walk(fn)
	}
}

func (n *Node) matchesTail(path []xml.Name) bool {
	cur := n
	for i := len(path) - 1; i >= 0; i-- {
		if cur == nil || cur.Name != path[i] {
			return false
		}
		cur = cur.Parent
	}
	return true
}

// parsePath converts "prefix:Local" segments into qualified names. A segment
// without a prefix belongs to the TrainingCenterDatabase namespace.
func parsePath(segments []string) ([]xml.Name, error) {
	names := make([]xml.Name, 0, len(segments))
	for _, seg := range segments {
		prefix, local, ok := strings.Cut(seg, ":")
		if !ok {
			names = append(names, tcd(seg))
			continue
		}
		space, known := namespacePrefixes[prefix]
		if !known || local == "" {
			return nil, fmt.Errorf("path segment %q: unknown namespace prefix: %w", seg, ErrInvalidValue)
		}
		names = append(names, xml.Name{Space: space, Local: local})
	}
	return names, nil
}

func tcd(local string) xml.Name {
	return xml.Name{Space: NamespaceTCD, Local: local}
}

func ext(local string) xml.Name {
	return xml.Name{Space: NamespaceActivityExt, Local: local}
}

var (
	nameActivities     = tcd("Activities")
	nameActivity       = tcd("Activity")
	nameID             = tcd("Id")
	nameLap            = tcd("Lap")
	nameTrack          = tcd("Track")
	nameTrackpoint     = tcd("Trackpoint")
	nameTime           = tcd("Time")
	nameDistanceMeters = tcd("DistanceMeters")
	nameAltitudeMeters = tcd("AltitudeMeters")
	nameHeartRateBpm   = tcd("HeartRateBpm")
	nameValue          = tcd("Value")
	nameCadence        = tcd("Cadence")
	nameExtensions     = tcd("Extensions")
	nameCalories       = tcd("Calories")
	nameTotalTime      = tcd("TotalTimeSeconds")
	nameAvgHeartRate   = tcd("AverageHeartRateBpm")
	nameMaxHeartRate   = tcd("MaximumHeartRateBpm")
	nameIntensity      = tcd("Intensity")
	nameTriggerMethod  = tcd("TriggerMethod")
	nameTPX            = ext("TPX")
	nameWatts          = ext("Watts")
	nameSpeed          = ext("Speed")
)

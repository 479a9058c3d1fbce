package timeline

// MetricNode is one level of the nested metric selector. Leaf nodes carry the
// metric id; inner nodes only carry children, in first-seen order.
type MetricNode struct {
	Label    string        `json:"label"`
	MetricID string        `json:"metric,omitempty"`
	Children []*MetricNode `json:"children,omitempty"`
}

// MetricTree groups metrics by their hierarchical names. "Build - Size" and
// "Build - Time" share a "Build" node with two leaves.
func MetricTree(metrics []Metric) []*MetricNode {
	root := &MetricNode{}

	for _, m := range metrics {
		node := root

		path := m.Path()
		for i, label := range path {
			leaf := i == len(path)-1

			child := node.child(label, leaf)
			if leaf {
				child.MetricID = m.ID
			}

			node = child
		}
	}

	return root.Children
}

// child returns the inner child labelled label, creating it when missing.
// Leaves are always appended so two metrics with one name stay selectable.
func (n *MetricNode) child(label string, leaf bool) *MetricNode {
	if !leaf {
		for _, c := range n.Children {
			if c.Label == label && c.MetricID == "" {
				return c
			}
		}
	}

	c := &MetricNode{Label: label}
	n.Children = append(n.Children, c)

	return c
}

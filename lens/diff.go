package lens

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffBody is the data of an EventDiff envelope.
type DiffBody struct {
	Label string    `json:"label" msgpack:"label"`
	Equal bool      `json:"equal" msgpack:"equal"`
	Diff  string    `json:"diff,omitempty" msgpack:"diff,omitempty"`
	Left  *TreeNode `json:"left" msgpack:"left"`
	Right *TreeNode `json:"right" msgpack:"right"`
}

// Diff inspects both values and sends a unified diff of their rendered trees.
func (c *Client) Diff(label string, left, right any) error {
	if !c.Enabled() {
		return nil
	}
	body, err := c.diffBody(label, left, right)
	if err != nil {
		return err
	}
	return c.send(EventDiff, body)
}

func (c *Client) diffBody(label string, left, right any) (DiffBody, error) {
	body := DiffBody{
		Label: label,
		Left:  c.inspector.Inspect(left),
		Right: c.inspector.Inspect(right),
	}
	diff, err := DiffTrees(body.Left, body.Right)
	if err != nil {
		return body, err
	}
	body.Diff = diff
	body.Equal = diff == ""
	return body, nil
}

// DiffTrees returns the unified diff between the text renderings of two trees, empty when equal.
func DiffTrees(left, right *TreeNode) (string, error) {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(left.Text()),
		B:        difflib.SplitLines(right.Text()),
		FromFile: "left",
		ToFile:   "right",
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("diff failed: %w", err)
	}
	return diff, nil
}

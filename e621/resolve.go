package e621

import (
	"context"
	"fmt"
)

// Mode selects which relatives of a result set Resolve returns.
type Mode int

const (
	ModeNone Mode = iota
	ModeParents
	ModeChildren
)

func (m Mode) String() string {
	switch m {
	case ModeParents:
		return "parents"
	case ModeChildren:
		return "children"
	}
	return "none"
}

// Resolve replaces posts by their parents or children. Each relative costs
// one request; the API has no way to fetch several ids at once.
func (c *Client) Resolve(ctx context.Context, posts []Post, mode Mode) ([]Post, error) {
	switch mode {
	case ModeNone:
		return posts, nil
	case ModeParents:
		parents := []Post{}
		for _, p := range posts {
			if !p.HasParent() {
				continue
			}
			parent, err := c.PostByID(ctx, *p.ParentID)
			if err != nil {
				return nil, fmt.Errorf("parent of #%d: %w", p.ID, err)
			}
			parents = append(parents, parent)
		}
		return parents, nil
	case ModeChildren:
		children := []Post{}
		for _, p := range posts {
			for _, id := range p.Children {
				child, err := c.PostByID(ctx, id)
				if err != nil {
					return nil, fmt.Errorf("child of #%d: %w", p.ID, err)
				}
				children = append(children, child)
			}
		}
		return children, nil
	}
	return nil, &InvalidArgumentError{Arg: "mode", Msg: fmt.Sprintf("unknown traversal mode %d", mode)}
}

package e621

import (
	"bugmaschine/get621/logging"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
)

const (
	MaxLimit = 320

	defaultOrder = "order:random"
	// queries with this many tags or more are left in the server's order
	orderThreshold = 5
)

// BuildQuery joins tags with spaces, adding order:random to short queries that
// don't ask for an order themselves.
func BuildQuery(tags []string) string {
	ordered := lo.SomeBy(tags, func(tag string) bool {
		return strings.Contains(tag, "order:")
	})
	if !ordered && len(tags) < orderThreshold {
		tags = append(tags[:len(tags):len(tags)], defaultOrder)
	}
	return strings.Join(tags, " ")
}

// Search returns up to limit posts matching tags. No match is an empty slice.
func (c *Client) Search(ctx context.Context, tags []string, limit int) ([]Post, error) {
	if limit < 1 || limit > MaxLimit {
		return nil, &InvalidArgumentError{Arg: "limit", Msg: fmt.Sprintf("%d is not within [1, %d]", limit, MaxLimit)}
	}
	query := BuildQuery(tags)
	logging.Debug("Searching %q (limit %d)", query, limit)
	return c.search(ctx, query, limit)
}

// PostByID looks a single post up through the search endpoint.
func (c *Client) PostByID(ctx context.Context, id int64) (Post, error) {
	posts, err := c.search(ctx, "id:"+strconv.FormatInt(id, 10), 1)
	if err != nil {
		return Post{}, err
	}
	if len(posts) == 0 {
		return Post{}, &NotFoundError{What: fmt.Sprintf("post #%d", id)}
	}
	return posts[0], nil
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]Post, error) {
	data, err := c.getJSON(ctx, c.searchURL(query, limit))
	if err != nil {
		return nil, err
	}
	return mapPosts(data, "posts")
}

func (c *Client) searchURL(query string, limit int) string {
	return fmt.Sprintf("%s/post/index.json?limit=%d&tags=%s&typed_tags=true", c.baseURL, limit, encodeQuery(query))
}

// encodeQuery percent-encodes spaces as %20 rather than '+'.
func encodeQuery(q string) string {
	return strings.ReplaceAll(url.QueryEscape(q), "+", "%20")
}

func mapPosts(data []byte, field string) ([]Post, error) {
	var raws []jsoniter.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, &MappingError{Field: field, Msg: err.Error()}
	}
	posts := make([]Post, 0, len(raws))
	for _, raw := range raws {
		p, err := MapPost(raw)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

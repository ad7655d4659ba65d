package e621

import (
	"bugmaschine/get621/logging"
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// MaxPoolPages stops a server that never sends the empty terminating page.
const MaxPoolPages = 1000

// Pool fetches a pool and every one of its posts, page by page, until the
// server returns a page without posts.
func (c *Client) Pool(ctx context.Context, id int64) (Pool, error) {
	data, err := c.getJSON(ctx, c.poolURL(id, 1))
	if err != nil {
		return Pool{}, err
	}

	pool, meta, err := mapPoolPage(id, data)
	if err != nil {
		return Pool{}, err
	}

	page := meta.posts
	for n := 1; len(page) > 0; n++ {
		for _, raw := range page {
			p, err := MapPost(raw)
			if err != nil {
				return Pool{}, err
			}
			pool.Posts = append(pool.Posts, p)
			meta.raws = append(meta.raws, raw)
		}

		if n >= MaxPoolPages {
			return Pool{}, fmt.Errorf("pool #%d: no empty page after %d pages", id, MaxPoolPages)
		}
		data, err := c.getJSON(ctx, c.poolURL(id, n+1))
		if err != nil {
			return Pool{}, err
		}
		if page, err = poolPosts(id, data); err != nil {
			return Pool{}, err
		}
	}

	if !pool.Complete() {
		logging.Warn("Pool #%d reports %d posts but %d were fetched", id, pool.PostCount, len(pool.Posts))
	}

	if meta.doc["posts"], err = json.Marshal(meta.raws); err != nil {
		return Pool{}, fmt.Errorf("pool #%d: encoding raw JSON: %w", id, err)
	}
	if pool.Raw, err = json.Marshal(meta.doc); err != nil {
		return Pool{}, fmt.Errorf("pool #%d: encoding raw JSON: %w", id, err)
	}
	return pool, nil
}

func (c *Client) poolURL(id int64, page int) string {
	return fmt.Sprintf("%s/pool/show.json?id=%d&page=%d", c.baseURL, id, page)
}

type poolMeta struct {
	doc   map[string]jsoniter.RawMessage
	posts []jsoniter.RawMessage
	raws  []jsoniter.RawMessage
}

// mapPoolPage reads the pool's metadata from its first page.
func mapPoolPage(id int64, data []byte) (Pool, *poolMeta, error) {
	o, err := decodeObject(data, "pool")
	if err != nil {
		return Pool{}, nil, err
	}
	if success, ok := o["success"].(bool); ok && !success {
		reason, _ := o["reason"].(string)
		return Pool{}, nil, &NotFoundError{What: fmt.Sprintf("pool #%d", id), Reason: reason}
	}

	pool := Pool{ID: id, Posts: []Post{}}
	if pool.Name, err = o.str("name"); err != nil {
		return Pool{}, nil, err
	}
	if pool.Description, err = o.optStr("description"); err != nil {
		return Pool{}, nil, err
	}
	if pool.IsActive, err = o.optBool("is_active"); err != nil {
		return Pool{}, nil, err
	}
	if pool.IsLocked, err = o.optBool("is_locked"); err != nil {
		return Pool{}, nil, err
	}
	count, err := o.int("post_count")
	if err != nil {
		return Pool{}, nil, err
	}
	pool.PostCount = int(count)
	if pool.CreatedAt, err = o.time("created_at", false); err != nil {
		return Pool{}, nil, err
	}
	if pool.UpdatedAt, err = o.time("updated_at", false); err != nil {
		return Pool{}, nil, err
	}
	if pool.UserID, err = o.optInt("user_id"); err != nil {
		return Pool{}, nil, err
	}

	meta := &poolMeta{raws: []jsoniter.RawMessage{}}
	if err := json.Unmarshal(data, &meta.doc); err != nil {
		return Pool{}, nil, &MappingError{Field: "pool", Msg: err.Error()}
	}
	if meta.posts, err = poolPosts(id, data); err != nil {
		return Pool{}, nil, err
	}
	return pool, meta, nil
}

// poolPosts reads one page's posts. The pool can vanish between two pages.
func poolPosts(id int64, data []byte) ([]jsoniter.RawMessage, error) {
	var page struct {
		Success *bool                 `json:"success"`
		Reason  string                `json:"reason"`
		Posts   []jsoniter.RawMessage `json:"posts"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, &MappingError{Field: "posts", Msg: err.Error()}
	}
	if page.Success != nil && !*page.Success {
		return nil, &NotFoundError{What: fmt.Sprintf("pool #%d", id), Reason: page.Reason}
	}
	return page.Posts, nil
}

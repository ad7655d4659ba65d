package e621

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/e621.yaml
var e621Routes []byte

// fakeAPI serves the legacy endpoints from in-memory fixtures and records
// every request and cooldown in the order they happen.
type fakeAPI struct {
	t      *testing.T
	server *httptest.Server

	posts     map[int64]string   // raw post objects served by id:N lookups
	results   []string           // raw post objects served by every other search
	poolPages map[int64][]string // raw page objects, index 0 is page 1
	files     map[string][]byte

	mu     sync.Mutex
	events []string
	waits  []time.Duration
}

func (f *fakeAPI) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fakeAPI{
		t:         t,
		posts:     map[int64]string{},
		poolPages: map[int64][]string{},
		files:     map[string][]byte{},
	}

	router := gin.New()
	router.Use(func(c *gin.Context) {
		f.record("GET " + c.Request.URL.RequestURI())
		assert.NotEmpty(t, c.GetHeader("User-Agent"), "every request carries a user agent")
	})
	registerRoutes(t, router, map[string]gin.HandlerFunc{
		"searchPosts":  f.searchPosts,
		"showPool":     f.showPool,
		"downloadFile": f.downloadFile,
	})

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

// registerRoutes turns the OpenAPI paths into gin routes, {param} becoming :param.
func registerRoutes(t *testing.T, router *gin.Engine, handlers map[string]gin.HandlerFunc) {
	doc, err := openapi3.NewLoader().LoadFromData(e621Routes)
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))

	re := regexp.MustCompile(`\{(.+?)\}`)
	for _, path := range doc.Paths.InMatchingOrder() {
		item := doc.Paths.Find(path)
		for method, op := range item.Operations() {
			handler, ok := handlers[op.OperationID]
			require.True(t, ok, "no handler for %s", op.OperationID)
			router.Handle(method, re.ReplaceAllString(path, ":$1"), handler)
		}
	}
}

func (f *fakeAPI) client(cooldown time.Duration) *Client {
	f.t.Helper()
	epoch := time.Unix(1_500_000_000, 0)
	c, err := NewClient(Config{
		BaseURL:  f.server.URL,
		Cooldown: cooldown,
		// the clock never moves, so every wait is a full cooldown
		Now: func() time.Time { return epoch },
		Wait: func(ctx context.Context, d time.Duration) error {
			f.mu.Lock()
			f.waits = append(f.waits, d)
			f.mu.Unlock()
			f.record("wait")
			return ctx.Err()
		},
	})
	require.NoError(f.t, err)
	f.t.Cleanup(c.Close)
	return c
}

// requests lists the request URIs, without the method and the waits.
func (f *fakeAPI) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		if uri, ok := strings.CutPrefix(e, "GET "); ok {
			out = append(out, uri)
		}
	}
	return out
}

func (f *fakeAPI) searchPosts(c *gin.Context) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 || limit > MaxLimit {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "reason": "bad limit"})
		return
	}
	assert.Equal(f.t, "true", c.Query("typed_tags"))

	tags := c.Query("tags")
	if id, ok := strings.CutPrefix(tags, "id:"); ok {
		n, _ := strconv.ParseInt(id, 10, 64)
		if raw, found := f.posts[n]; found {
			f.writeArray(c, []string{raw})
			return
		}
		f.writeArray(c, nil)
		return
	}

	results := f.results
	if len(results) > limit {
		results = results[:limit]
	}
	f.writeArray(c, results)
}

func (f *fakeAPI) showPool(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Query("id"), 10, 64)
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if !assert.NoError(f.t, err) {
		c.Status(http.StatusBadRequest)
		return
	}

	pages, ok := f.poolPages[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "reason": "not found"})
		return
	}
	if page > len(pages) {
		c.Data(http.StatusOK, "application/json", []byte(`{"posts":[]}`))
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(pages[page-1]))
}

func (f *fakeAPI) downloadFile(c *gin.Context) {
	data, ok := f.files[c.Param("file")]
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (f *fakeAPI) writeArray(c *gin.Context, raws []string) {
	c.Data(http.StatusOK, "application/json", []byte("["+strings.Join(raws, ",")+"]"))
}

// legacyPost renders a post object the way the legacy API does; edit can
// change or delete fields before encoding.
func legacyPost(id int64, edit func(map[string]any)) string {
	p := map[string]any{
		"id":             id,
		"author":         "someone",
		"creator_id":     42,
		"created_at":     map[string]any{"json_class": "Time", "s": 1530000000, "n": 0},
		"status":         "active",
		"rating":         "s",
		"tags":           "fluffy cute",
		"artist":         []any{"someone"},
		"description":    "",
		"parent_id":      nil,
		"children":       "",
		"has_notes":      false,
		"has_comments":   true,
		"score":          10,
		"fav_count":      3,
		"md5":            "d41d8cd98f00b204e9800998ecf8427e",
		"file_url":       fmt.Sprintf("https://static1.e926.net/data/%d.png", id),
		"file_ext":       "png",
		"file_size":      1024,
		"width":          640,
		"height":         480,
		"sample_url":     "",
		"sample_width":   0,
		"sample_height":  0,
		"preview_url":    "",
		"preview_width":  0,
		"preview_height": 0,
		"sources":        []any{},
		"delreason":      nil,
	}
	if edit != nil {
		edit(p)
	}
	out, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	return string(out)
}

func poolPage(fields map[string]any, posts []string) string {
	raws := make([]any, 0, len(posts))
	for _, p := range posts {
		var v any
		if err := json.Unmarshal([]byte(p), &v); err != nil {
			panic(err)
		}
		raws = append(raws, v)
	}
	page := map[string]any{"posts": raws}
	for k, v := range fields {
		page[k] = v
	}
	out, err := json.Marshal(page)
	if err != nil {
		panic(err)
	}
	return string(out)
}

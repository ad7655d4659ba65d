package e621

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// MapPost converts one post object of the legacy JSON API into a Post.
func MapPost(raw []byte) (Post, error) {
	o, err := decodeObject(raw, "post")
	if err != nil {
		return Post{}, err
	}

	p := Post{Raw: append([]byte(nil), raw...)}

	if p.ID, err = o.int("id"); err != nil {
		return Post{}, err
	}
	if p.ID <= 0 {
		return Post{}, &MappingError{Field: "id", Msg: fmt.Sprintf("expected a positive id, got %d", p.ID)}
	}
	if p.Author, err = o.str("author"); err != nil {
		return Post{}, err
	}
	if p.CreatorID, err = o.int("creator_id"); err != nil {
		return Post{}, err
	}
	if p.CreatedAt, err = o.time("created_at", true); err != nil {
		return Post{}, err
	}

	status, err := o.optStr("status")
	if err != nil {
		return Post{}, err
	}
	p.Status = parseStatus(status)

	rating, err := o.optStr("rating")
	if err != nil {
		return Post{}, err
	}
	p.Rating = parseRating(rating)

	if p.Tags, err = mapTags(o); err != nil {
		return Post{}, err
	}
	if p.Artists, err = o.optStrings("artist"); err != nil {
		return Post{}, err
	}

	if o.present("parent_id") {
		parent, err := o.int("parent_id")
		if err != nil {
			return Post{}, err
		}
		p.ParentID = &parent
	}
	children, err := o.optStr("children")
	if err != nil {
		return Post{}, err
	}
	if p.Children, err = parseChildren(children); err != nil {
		return Post{}, err
	}

	if p.Score, err = o.int("score"); err != nil {
		return Post{}, err
	}
	if p.FavCount, err = o.int("fav_count"); err != nil {
		return Post{}, err
	}
	if p.FavCount < 0 {
		return Post{}, &MappingError{Field: "fav_count", Msg: fmt.Sprintf("negative count %d", p.FavCount)}
	}

	if err := mapMedia(o, &p); err != nil {
		return Post{}, err
	}

	if p.Sources, err = o.optStrings("sources"); err != nil {
		// anything that isn't an array of strings counts as no sources
		p.Sources = []string{}
	}
	if p.Description, err = o.optStr("description"); err != nil {
		return Post{}, err
	}
	if p.HasNotes, err = o.optBool("has_notes"); err != nil {
		return Post{}, err
	}
	if p.HasComments, err = o.optBool("has_comments"); err != nil {
		return Post{}, err
	}
	if p.DelReason, err = o.optStr("delreason"); err != nil {
		return Post{}, err
	}

	return p, nil
}

func parseStatus(s string) Status {
	switch s {
	case "active":
		return StatusActive
	case "flagged":
		return StatusFlagged
	case "pending":
		return StatusPending
	}
	return StatusDeleted
}

// parseRating only looks at the first character; unknown ratings are Explicit.
func parseRating(s string) Rating {
	if s == "" {
		return RatingExplicit
	}
	switch s[0] {
	case 's':
		return RatingSafe
	case 'q':
		return RatingQuestionable
	}
	return RatingExplicit
}

func mapTags(o object) (Tags, error) {
	v, ok := o["tags"]
	if !ok || v == nil {
		return Tags{}, &MappingError{Field: "tags", Msg: "missing"}
	}

	switch t := v.(type) {
	case string:
		return Tags{Untyped: splitTags(t)}, nil
	case map[string]any:
		typed := object(t)
		tags := Tags{Typed: true}
		var err error
		for _, c := range []struct {
			name string
			dst  *[]string
		}{
			{"general", &tags.General},
			{"artist", &tags.Artist},
			{"copyright", &tags.Copyright},
			{"character", &tags.Character},
			{"species", &tags.Species},
		} {
			if *c.dst, err = typed.optStrings(c.name); err != nil {
				return Tags{}, &MappingError{Field: "tags." + c.name, Msg: err.(*MappingError).Msg}
			}
		}
		return tags, nil
	}
	return Tags{}, &MappingError{Field: "tags", Msg: fmt.Sprintf("expected a string or an object, got %T", v)}
}

// splitTags splits on single spaces. Runs of spaces would produce empty
// tokens, those are dropped.
func splitTags(s string) []string {
	return lo.Compact(strings.Split(s, " "))
}

func parseChildren(s string) ([]int64, error) {
	if s == "" {
		return []int64{}, nil
	}
	segments := strings.Split(s, ",")
	children := make([]int64, 0, len(segments))
	for _, seg := range segments {
		id, err := strconv.ParseInt(seg, 10, 64)
		if err != nil {
			return nil, &MappingError{Field: "children", Msg: fmt.Sprintf("%q is not a post id", seg)}
		}
		children = append(children, id)
	}
	return children, nil
}

func mapMedia(o object, p *Post) error {
	var err error
	ints := func(key string) int64 {
		if err != nil {
			return 0
		}
		var n int64
		n, err = o.optInt(key)
		return n
	}
	strs := func(key string) string {
		if err != nil {
			return ""
		}
		var s string
		s, err = o.optStr(key)
		return s
	}

	p.File = File{
		URL:    strs("file_url"),
		Ext:    strs("file_ext"),
		Size:   ints("file_size"),
		Width:  int(ints("width")),
		Height: int(ints("height")),
		MD5:    strs("md5"),
	}
	p.Sample = Image{URL: strs("sample_url"), Width: int(ints("sample_width")), Height: int(ints("sample_height"))}
	p.Preview = Image{URL: strs("preview_url"), Width: int(ints("preview_width")), Height: int(ints("preview_height"))}
	return err
}

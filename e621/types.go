package e621

import "time"

type Status int

const (
	StatusActive Status = iota
	StatusFlagged
	StatusPending
	StatusDeleted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusFlagged:
		return "flagged"
	case StatusPending:
		return "pending"
	}
	return "deleted"
}

type Rating int

const (
	RatingSafe Rating = iota
	RatingQuestionable
	RatingExplicit
)

func (r Rating) String() string {
	switch r {
	case RatingSafe:
		return "Safe"
	case RatingQuestionable:
		return "Questionable"
	}
	return "Explicit"
}

// Tags holds one of two shapes. Typed is the discriminant: when true only the
// category lists are set, otherwise only Untyped is.
type Tags struct {
	Typed bool

	Untyped []string

	General   []string
	Artist    []string
	Copyright []string
	Character []string
	Species   []string
}

// All returns every tag, category order for typed tags.
func (t Tags) All() []string {
	if !t.Typed {
		return t.Untyped
	}
	all := make([]string, 0, len(t.General)+len(t.Artist)+len(t.Copyright)+len(t.Character)+len(t.Species))
	for _, list := range [][]string{t.General, t.Artist, t.Copyright, t.Character, t.Species} {
		all = append(all, list...)
	}
	return all
}

type File struct {
	URL    string
	Ext    string
	Size   int64
	Width  int
	Height int
	MD5    string
}

type Image struct {
	URL    string
	Width  int
	Height int
}

type Post struct {
	ID        int64
	Author    string
	CreatorID int64
	CreatedAt time.Time
	Status    Status
	Rating    Rating
	Tags      Tags
	Artists   []string

	ParentID *int64 // nil when the post has no parent
	Children []int64

	Score    int64
	FavCount int64

	File    File
	Sample  Image
	Preview Image

	Sources     []string
	Description string
	HasNotes    bool
	HasComments bool
	DelReason   string

	// Raw is the post object exactly as the server sent it.
	Raw []byte
}

func (p Post) IsDeleted() bool { return p.Status == StatusDeleted }

func (p Post) HasParent() bool { return p.ParentID != nil }

type Pool struct {
	ID          int64
	Name        string
	Description string
	IsActive    bool
	IsLocked    bool
	PostCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	UserID      int64

	Posts []Post

	// Raw is the first page object with "posts" holding every fetched post.
	Raw []byte
}

// Complete reports whether the fetched posts match the server's post_count.
func (p Pool) Complete() bool { return len(p.Posts) == p.PostCount }

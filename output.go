package main

import (
	"bugmaschine/get621/e621"
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/samber/lo"
)

const separator = "--------------------------------"

var (
	headerColor = color.New(color.FgHiYellow, color.Bold)
	labelColor  = color.New(color.FgHiBlack)
	deleted     = color.New(color.FgRed)
)

// printRelations tells, before the relatives are fetched, which posts have
// parents or children.
func printRelations(w io.Writer, posts []e621.Post, mode e621.Mode) {
	switch mode {
	case e621.ModeParents:
		for _, p := range posts {
			if p.HasParent() {
				fmt.Fprintf(w, "#%d is the parent of #%d\n", *p.ParentID, p.ID)
			} else {
				fmt.Fprintf(w, "#%d doesn't have a parent.\n", p.ID)
			}
		}
	case e621.ModeChildren:
		for _, p := range posts {
			switch len(p.Children) {
			case 0:
				fmt.Fprintf(w, "#%d doesn't have any children.\n", p.ID)
			case 1:
				fmt.Fprintf(w, "#%d is the only child of #%d\n", p.Children[0], p.ID)
			default:
				ids := lo.Map(p.Children, func(id int64, _ int) string { return fmt.Sprintf("#%d", id) })
				fmt.Fprintf(w, "Children of #%d: %s\n", p.ID, strings.Join(ids, ", "))
			}
		}
	default:
		return
	}
	fmt.Fprintln(w)
}

func printIDs(w io.Writer, posts []e621.Post) {
	for _, p := range posts {
		fmt.Fprintln(w, p.ID)
	}
}

// printJSON writes the pool document in pool mode, an array of the raw post
// objects otherwise.
func printJSON(w io.Writer, posts []e621.Post, pool *e621.Pool) error {
	if pool != nil {
		_, err := fmt.Fprintf(w, "%s\n", pool.Raw)
		return err
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, p := range posts {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(p.Raw)
	}
	buf.WriteString("]\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func printVerbose(w io.Writer, posts []e621.Post, pool *e621.Pool) {
	if pool != nil {
		writePool(w, pool)
		fmt.Fprint(w, "\n\n")
	}

	if len(posts) == 0 {
		fmt.Fprintln(w, "No posts matched your search.")
		return
	}
	for i := range posts {
		if i > 0 {
			fmt.Fprintln(w, separator)
		}
		writePost(w, &posts[i])
		fmt.Fprintln(w)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.ANSIC)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// joinArtists lists names as "a, b and c".
func joinArtists(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

func writePool(w io.Writer, p *e621.Pool) {
	headerColor.Fprintf(w, "Pool #%d by user #%d", p.ID, p.UserID)
	fmt.Fprintln(w)
	field(w, "Name", p.Name)
	field(w, "Active", yesNo(p.IsActive))
	field(w, "Locked", yesNo(p.IsLocked))
	field(w, "Post count", p.PostCount)
	field(w, "Last updated", formatTime(p.UpdatedAt))
	description(w, p.Description)
}

func writePost(w io.Writer, p *e621.Post) {
	if p.IsDeleted() {
		if p.DelReason != "" {
			deleted.Fprintf(w, "#%d (deleted: %s)", p.ID, p.DelReason)
		} else {
			deleted.Fprintf(w, "#%d (deleted)", p.ID)
		}
		return
	}

	if len(p.Artists) > 0 {
		headerColor.Fprintf(w, "#%d by %s", p.ID, joinArtists(p.Artists))
	} else {
		headerColor.Fprintf(w, "#%d", p.ID)
	}
	fmt.Fprintln(w)

	field(w, "Rating", p.Rating)
	field(w, "Score", p.Score)
	field(w, "Favs", p.FavCount)
	field(w, "Type", p.File.Ext)
	field(w, "Created at", formatTime(p.CreatedAt))

	if p.Tags.Typed {
		labelColor.Fprintln(w, "Tags:")
		for _, cat := range []struct {
			name string
			tags []string
		}{
			{"General", p.Tags.General},
			{"Artist", p.Tags.Artist},
			{"Copyright", p.Tags.Copyright},
			{"Character", p.Tags.Character},
			{"Species", p.Tags.Species},
		} {
			if len(cat.tags) > 0 {
				fmt.Fprintf(w, "- %s: %s\n", cat.name, strings.Join(cat.tags, " "))
			}
		}
	} else {
		labelColor.Fprint(w, "Tags (untyped):")
		for _, tag := range p.Tags.Untyped {
			fmt.Fprint(w, " ", tag)
		}
		fmt.Fprintln(w)
	}

	description(w, p.Description)
}

// description ends without a newline, the caller separates entries.
func description(w io.Writer, text string) {
	labelColor.Fprint(w, "Description:")
	if text != "" {
		fmt.Fprint(w, " ", text)
	}
}

func field(w io.Writer, label string, value any) {
	labelColor.Fprint(w, label+":")
	fmt.Fprintln(w, "", value)
}

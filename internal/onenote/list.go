package onenote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
)

// Entity is a listed notebook, section or page.
type Entity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type listPage struct {
	Value []struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Title       string `json:"title"`
	} `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// Notebooks lists every notebook of the signed-in account.
func (c *Client) Notebooks(ctx context.Context) ([]Entity, error) {
	return c.list(ctx, "notebooks?$select=id,displayName&$top=200")
}

// Sections lists the sections of a notebook.
func (c *Client) Sections(ctx context.Context, notebookID string) ([]Entity, error) {
	return c.list(ctx, "notebooks/"+url.PathEscape(notebookID)+"/sections?$select=id,displayName&$top=200")
}

// Pages lists the pages of a section. Page titles serve as display names.
func (c *Client) Pages(ctx context.Context, sectionID string) ([]Entity, error) {
	return c.list(ctx, "sections/"+url.PathEscape(sectionID)+"/pages?$select=id,title&$top=100")
}

// list follows next links until none is returned, then sorts the whole set.
func (c *Client) list(ctx context.Context, path string) ([]Entity, error) {
	var (
		all  []Entity
		seen = map[string]bool{}
		next = path
	)
	for next != "" {
		resp, err := c.do(ctx, "GET", next, "", nil)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", path, err)
		}
		var page listPage
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		for _, item := range page.Value {
			if item.ID != "" && seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			name := item.DisplayName
			if name == "" {
				name = item.Title
			}
			all = append(all, Entity{ID: item.ID, DisplayName: name})
		}
		next = page.NextLink
	}
	SortEntities(all)
	return all, nil
}

// SortEntities orders entities case-insensitively by display name, using the
// id when the name is empty and as a tie breaker.
func SortEntities(entities []Entity) {
	fold := cases.Fold()
	key := func(e Entity) string {
		if e.DisplayName != "" {
			return fold.String(e.DisplayName)
		}
		return fold.String(e.ID)
	}
	sort.SliceStable(entities, func(i, j int) bool {
		ki, kj := key(entities[i]), key(entities[j])
		if ki != kj {
			return ki < kj
		}
		return entities[i].ID < entities[j].ID
	})
}

// NotebookTree is a notebook with its sections.
type NotebookTree struct {
	Notebook Entity
	Sections []Entity
}

// Tree lists notebooks and fetches their sections concurrently.
func (c *Client) Tree(ctx context.Context) ([]NotebookTree, error) {
	notebooks, err := c.Notebooks(ctx)
	if err != nil {
		return nil, err
	}
	tree := make([]NotebookTree, len(notebooks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, nb := range notebooks {
		tree[i].Notebook = nb
		g.Go(func() error {
			sections, err := c.Sections(gctx, nb.ID)
			if err != nil {
				return err
			}
			tree[i].Sections = sections
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tree, nil
}

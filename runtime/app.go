package runtime

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// App holds the wizard page definitions of one deployment.
type App struct {
	Pages  map[string]*Page
	byPath map[string]*Page
}

// NewApp loads every *.yaml page definition in dir.
func NewApp(pagesDir string) (*App, error) {
	files, err := filepath.Glob(filepath.Join(pagesDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("error reading directory: %w", err)
	}

	app := App{
		Pages:  make(map[string]*Page),
		byPath: make(map[string]*Page),
	}

	for _, file := range files {
		page, err := readPage(file)
		if err != nil {
			return nil, err
		}
		if err := app.RegisterPage(page); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(file), err)
		}
	}

	return &app, nil
}

// RegisterPage validates and adds a page. Ids and paths must be unique.
func (a *App) RegisterPage(page Page) error {
	if err := page.Validate(); err != nil {
		return err
	}
	if _, ok := a.Pages[page.ID]; ok {
		return fmt.Errorf("%w: duplicate page id %s", ErrInvalidPage, page.ID)
	}
	if other, ok := a.byPath[page.Path]; ok {
		return fmt.Errorf("%w: page %s is mounted at %s like %s", ErrInvalidPage, page.ID, page.Path, other.ID)
	}

	p := &page
	a.Pages[p.ID] = p
	a.byPath[p.Path] = p
	return nil
}

// Page returns the page with the given id.
func (a *App) Page(id string) (*Page, error) {
	p, ok := a.Pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	return p, nil
}

// PageAt returns the page mounted at a step identifier.
func (a *App) PageAt(path string) (*Page, bool) {
	p, ok := a.byPath[path]
	return p, ok
}

// List returns the pages ordered by id.
func (a *App) List() []*Page {
	pages := make([]*Page, 0, len(a.Pages))
	for _, id := range slices.Sorted(maps.Keys(a.Pages)) {
		pages = append(pages, a.Pages[id])
	}
	return pages
}

func readPage(file string) (Page, error) {
	yamlFile, err := os.ReadFile(file)
	if err != nil {
		return Page{}, fmt.Errorf("error reading YAML file: %w", err)
	}

	var page Page
	err = yaml.Unmarshal(yamlFile, &page)
	if err != nil {
		return Page{}, fmt.Errorf("error unmarshalling YAML %s: %w", filepath.Base(file), err)
	}

	return page, nil
}

// Package host runs wizard pages in a terminal. It plays the part of the
// page component: it builds the engine, reference loader and
// save-and-advance for each page and follows navigation between pages.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BDNK1/dossierflow/cli/internal/prompt"
	"github.com/BDNK1/dossierflow/runtime"
)

// ErrStopped is returned when the user leaves the wizard.
var ErrStopped = errors.New("wizard stopped")

const (
	actionNext   = "Volgende"
	actionBack   = "Vorige"
	actionEdit   = "Wijzigen"
	actionReset  = "Opnieuw invullen"
	actionStop   = "Stoppen"
	actionPrompt = "Wat wilt u doen?"

	actionReload = "Opnieuw laden"
	actionManual = "Handmatig invullen"
)

var actions = []string{actionNext, actionBack, actionEdit, actionReset, actionStop}

// Host drives the pages of one App.
type Host struct {
	App       *runtime.App
	Resource  runtime.Resource
	Driver    prompt.Driver
	Reference runtime.ReferenceConfig
	// Age overrides the age calculation, mainly to pin the clock in tests.
	Age runtime.AgeFunc

	l *slog.Logger
}

func New(app *runtime.App, resource runtime.Resource, driver prompt.Driver, reference runtime.ReferenceConfig, l *slog.Logger) *Host {
	if l == nil {
		l = slog.Default()
	}
	return &Host{App: app, Resource: resource, Driver: driver, Reference: reference, l: l}
}

// Run hosts the wizard starting at pageID for the dossier id ("" for a new
// one). It follows navigation until it reaches a step no page is mounted
// at and returns the dossier id, which a create may have assigned.
func (h *Host) Run(ctx context.Context, pageID, id string) (string, error) {
	page, err := h.App.Page(pageID)
	if err != nil {
		return id, err
	}

	for {
		target, nextID, err := h.runPage(ctx, page, id)
		id = nextID
		if err != nil {
			return id, err
		}

		next, ok := h.App.PageAt(target)
		if !ok {
			h.info(ctx, fmt.Sprintf("Wizard afgerond (dossier %s)", id))
			h.l.InfoContext(ctx, "Wizard finished", "step", target, "dossier", id)
			return id, nil
		}
		page = next
	}
}

// runPage mounts one page and returns the step navigated to.
func (h *Host) runPage(ctx context.Context, page *runtime.Page, id string) (string, string, error) {
	var target string
	nav := runtime.NavigatorFunc(func(step string) { target = step })

	engine := runtime.NewEngine(page.EngineConfig(h.Age), h.Resource, nav, h.l)
	defer engine.Close()
	refs := runtime.NewReferenceLoader(ctx, h.Resource, page.Sources, h.Reference, h.l)
	defer refs.Close()

	h.info(ctx, fmt.Sprintf("== %s ==", pageTitle(page)))
	if err := engine.Hydrate(ctx, page.HydrateLocator(id)); err != nil {
		h.info(ctx, "Kon dossier niet laden: "+engine.HydrationErr().Error())
	}
	if err := refs.Wait(ctx); err != nil {
		return "", id, err
	}
	for _, seed := range page.Seed {
		if err := engine.SeedEntries(seed.Field, seed.Count, seed.Template); err != nil {
			return "", id, fmt.Errorf("seed %s: %w", seed.Field, err)
		}
	}

	saver := runtime.NewSaveAndAdvance(h.Resource, page.Save, id, engine.GoNext, h.l)
	if err := h.fill(ctx, page, engine, refs); err != nil {
		return "", id, err
	}

	for {
		h.summarize(ctx, page, engine)

		choice, err := h.Driver.Select(ctx, prompt.SelectConfig{Message: actionPrompt, Options: actions})
		if err != nil {
			return "", id, err
		}
		if choice < 0 || choice >= len(actions) {
			continue
		}

		switch actions[choice] {
		case actionNext:
			moved, err := h.next(ctx, page, engine, saver)
			if err != nil {
				return "", id, err
			}
			if moved {
				return target, saver.ID(), nil
			}
		case actionBack:
			if engine.GoBack(page.Path) {
				return target, saver.ID(), nil
			}
			h.info(ctx, "Dit is de eerste stap")
		case actionEdit:
			if err := h.fill(ctx, page, engine, refs); err != nil {
				return "", id, err
			}
		case actionReset:
			engine.Reset()
			if err := h.fill(ctx, page, engine, refs); err != nil {
				return "", id, err
			}
		case actionStop:
			return "", saver.ID(), ErrStopped
		}
	}
}

// next saves when the page has a save endpoint and advances. A failed save
// is shown and keeps the user on the page.
func (h *Host) next(ctx context.Context, page *runtime.Page, engine *runtime.Engine, saver *runtime.SaveAndAdvance) (bool, error) {
	if page.Save == "" {
		if !engine.GoNext(page.Path) {
			h.info(ctx, "Dit is de laatste stap")
			return false, nil
		}
		return true, nil
	}

	if err := saver.Next(ctx, engine.Record(), page.Path); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		h.info(ctx, saver.Message())
		return false, nil
	}
	// The last step has no successor; the save still counts as done.
	return true, nil
}

func (h *Host) summarize(ctx context.Context, page *runtime.Page, engine *runtime.Engine) {
	record := engine.Record()
	if page.DateField != "" {
		ageField := page.AgeField
		if ageField == "" {
			ageField = "age"
		}
		h.info(ctx, fmt.Sprintf("Leeftijd: %s", record.String(ageField)))
	}
	for _, d := range page.Derived {
		h.info(ctx, fmt.Sprintf("%s: %s", d.Field, record.String(d.Field)))
	}
	for _, w := range engine.Warnings() {
		h.info(ctx, "Let op: "+w)
	}
}

func (h *Host) fill(ctx context.Context, page *runtime.Page, engine *runtime.Engine, refs *runtime.ReferenceLoader) error {
	for _, f := range page.Fields {
		if err := h.fillField(ctx, engine, refs, f); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) fillField(ctx context.Context, engine *runtime.Engine, refs *runtime.ReferenceLoader, f runtime.Field) error {
	record := engine.Record()

	switch f.Type {
	case runtime.FieldEntries:
		return h.fillEntries(ctx, engine, refs, f)
	case runtime.FieldCheckbox:
		checked, err := h.Driver.Confirm(ctx, prompt.ConfirmConfig{Message: label(f), Default: isChecked(record[f.Name])})
		if err != nil {
			return err
		}
		engine.UpdateInput(runtime.Input{Name: f.Name, Type: f.Type, Checked: checked})
	case runtime.FieldDate:
		value, err := h.ask(ctx, refs, f, record.String(f.Name))
		if err != nil {
			return err
		}
		engine.UpdateDate(f.Name, value.(string))
	default:
		value, err := h.ask(ctx, refs, f, record.String(f.Name))
		if err != nil {
			return err
		}
		engine.UpdateInput(runtime.Input{Name: f.Name, Type: f.Type, Value: value})
	}
	return nil
}

func (h *Host) fillEntries(ctx context.Context, engine *runtime.Engine, refs *runtime.ReferenceLoader, f runtime.Field) error {
	for i := 0; i < len(engine.Record().Entries(f.Name)); {
		h.info(ctx, fmt.Sprintf("%s %d", label(f), i+1))
		remove, err := h.Driver.Confirm(ctx, prompt.ConfirmConfig{Message: "Regel verwijderen?"})
		if err != nil {
			return err
		}
		if remove {
			if err := engine.RemoveEntry(f.Name, i); err != nil {
				return err
			}
			continue
		}
		if err := h.fillEntry(ctx, engine, refs, f, i); err != nil {
			return err
		}
		i++
	}

	for {
		more, err := h.Driver.Confirm(ctx, prompt.ConfirmConfig{Message: fmt.Sprintf("%s: regel toevoegen?", label(f))})
		if err != nil || !more {
			return err
		}
		if err := engine.AppendEntry(f.Name, blankEntry(f)); err != nil {
			return err
		}
		if err := h.fillEntry(ctx, engine, refs, f, len(engine.Record().Entries(f.Name))-1); err != nil {
			return err
		}
	}
}

func (h *Host) fillEntry(ctx context.Context, engine *runtime.Engine, refs *runtime.ReferenceLoader, f runtime.Field, index int) error {
	for _, sub := range f.Entry {
		entry, _ := engine.Record().Entries(f.Name)[index].(map[string]any)
		current := runtime.Record(entry)

		var value any
		var err error
		if sub.Type == runtime.FieldCheckbox {
			value, err = h.Driver.Confirm(ctx, prompt.ConfirmConfig{Message: label(sub), Default: isChecked(current[sub.Name])})
		} else {
			value, err = h.ask(ctx, refs, sub, current.String(sub.Name))
		}
		if err != nil {
			return err
		}
		if err := engine.UpdateEntry(f.Name, index, sub.Name, value); err != nil {
			return err
		}
	}
	return nil
}

// ask prompts for a scalar field and returns the value to store.
func (h *Host) ask(ctx context.Context, refs *runtime.ReferenceLoader, f runtime.Field, current string) (any, error) {
	switch f.Type {
	case runtime.FieldSelect:
		if err := h.retrySource(ctx, refs, f); err != nil {
			return nil, err
		}
		items := refs.Items(f.Source)
		if len(items) > 0 {
			return h.choose(ctx, f, items, current)
		}
		return h.input(ctx, f, current, nil)
	case runtime.FieldTextarea:
		return h.Driver.TextArea(ctx, prompt.TextAreaConfig{Message: label(f), Default: current})
	case runtime.FieldNumber:
		text, err := h.input(ctx, f, current, validateNumber)
		if err != nil || text == "" {
			return text, err
		}
		n, _ := parseNumber(text)
		return n, nil
	case runtime.FieldDate:
		return h.input(ctx, f, current, validateDate)
	case runtime.FieldTime:
		return h.input(ctx, f, current, validateTime)
	default:
		return h.input(ctx, f, current, nil)
	}
}

// retrySource offers to reload the reference lists while the field's source
// has an error. Declining falls back to whatever items are known.
func (h *Host) retrySource(ctx context.Context, refs *runtime.ReferenceLoader, f runtime.Field) error {
	for {
		msg := refs.Err(f.Source)
		if msg == "" {
			return nil
		}
		h.info(ctx, msg)

		choice, err := h.Driver.Select(ctx, prompt.SelectConfig{
			Message: fmt.Sprintf("%s: keuzelijst niet geladen", label(f)),
			Options: []string{actionReload, actionManual},
		})
		if err != nil {
			return err
		}
		if choice != 0 {
			return nil
		}

		select {
		case <-refs.Refetch(ctx):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Host) choose(ctx context.Context, f runtime.Field, items []runtime.DropdownItem, current string) (string, error) {
	options := make([]string, len(items))
	defaultIndex := -1
	for i, item := range items {
		options[i] = item.Label
		if item.Value == current {
			defaultIndex = i
		}
	}
	idx, err := h.Driver.Select(ctx, prompt.SelectConfig{
		Message:      label(f),
		Options:      options,
		DefaultIndex: defaultIndex,
		PageSize:     10,
	})
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(items) {
		return current, nil
	}
	return items[idx].Value, nil
}

func (h *Host) input(ctx context.Context, f runtime.Field, current string, check func(string) error) (string, error) {
	return h.Driver.Input(ctx, prompt.InputConfig{
		Message: label(f),
		Default: current,
		Validator: func(v string) error {
			v = strings.TrimSpace(v)
			if v == "" {
				if f.Required {
					return errors.New("verplicht veld")
				}
				return nil
			}
			if check != nil {
				return check(v)
			}
			return nil
		},
	})
}

func (h *Host) info(ctx context.Context, msg string) {
	if err := h.Driver.Info(ctx, msg); err != nil {
		h.l.WarnContext(ctx, "Failed to show message", "error", err)
	}
}

func validateNumber(v string) error {
	if _, ok := parseNumber(v); !ok {
		return errors.New("geen geldig getal")
	}
	return nil
}

func validateDate(v string) error {
	if _, ok := runtime.ParseDate(v); !ok {
		return errors.New("geen geldige datum (jjjj-mm-dd)")
	}
	return nil
}

func validateTime(v string) error {
	if _, err := time.Parse("15:04", v); err != nil {
		return errors.New("geen geldige tijd (uu:mm)")
	}
	return nil
}

func parseNumber(v string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(v), ",", ".", 1), 64)
	return n, err == nil
}

func label(f runtime.Field) string {
	text := f.Label
	if text == "" {
		text = f.Name
	}
	if f.Required {
		text += " *"
	}
	return text
}

func pageTitle(p *runtime.Page) string {
	if p.Title != "" {
		return p.Title
	}
	return p.ID
}

func isChecked(v any) bool {
	b, _ := v.(bool)
	return b
}

func blankEntry(f runtime.Field) map[string]any {
	entry := make(map[string]any, len(f.Entry))
	for _, sub := range f.Entry {
		if sub.Type == runtime.FieldCheckbox {
			entry[sub.Name] = false
		} else {
			entry[sub.Name] = ""
		}
	}
	return entry
}

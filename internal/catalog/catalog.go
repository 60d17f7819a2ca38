// Package catalog imports the fleet register and the component catalog
// from a YAML file into empty collections.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"fms-backend/internal/model"
	"fms-backend/internal/store"
	"fms-backend/internal/validation"
)

// UnitEntry is one unit of the fleet register.
type UnitEntry struct {
	Code  string `yaml:"code"`
	Model string `yaml:"model"`
	Class string `yaml:"class"`
	EGI   string `yaml:"egi"`
	Spare bool   `yaml:"spare"`
}

// ComponentEntry is one reportable component.
type ComponentEntry struct {
	System       string `yaml:"system" validate:"required"`
	Section      string `yaml:"section" validate:"required"`
	SubComponent string `yaml:"sub_component" validate:"required"`
}

// File is the catalog document.
type File struct {
	Units      []UnitEntry      `yaml:"units"`
	Components []ComponentEntry `yaml:"components" validate:"dive"`
}

// Result counts what an import inserted.
type Result struct {
	Units      int
	Components int
}

// Read decodes a catalog file.
func Read(r io.Reader) (*File, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &f, nil
}

// Importer loads a catalog into the store.
type Importer struct {
	store  store.Store
	writer *validation.Writer
	log    *zap.Logger
}

// NewImporter creates an Importer. Units go through the gated writer so the
// register obeys the same rules as the HTTP surface.
func NewImporter(s store.Store, w *validation.Writer, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{store: s, writer: w, log: log}
}

// ImportFile reads path and imports it.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer fh.Close()

	f, err := Read(fh)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", path, err)
	}
	return im.Import(ctx, f)
}

// Import inserts f's units when the units collection is empty and its
// components when the components collection is empty.
func (im *Importer) Import(ctx context.Context, f *File) (Result, error) {
	var res Result

	units, err := im.store.ScanAll(ctx, model.CollectionUnits)
	if err != nil {
		return res, err
	}
	if len(units) == 0 {
		for _, u := range f.Units {
			form := validation.UnitForm{Code: u.Code, Model: u.Model, Class: u.Class, EGI: u.EGI, Spare: u.Spare}
			if _, err := im.writer.CreateUnit(ctx, form); err != nil {
				return res, fmt.Errorf("unit %q: %w", u.Code, err)
			}
			res.Units++
		}
	} else {
		im.log.Info("units already present, skipping fleet register", zap.Int("existing", len(units)))
	}

	components, err := im.store.ScanAll(ctx, model.CollectionComponents)
	if err != nil {
		return res, err
	}
	if len(components) == 0 {
		for _, c := range f.Components {
			comp := &model.Component{System: c.System, Section: c.Section, SubComponent: c.SubComponent}
			if _, err := im.store.Insert(ctx, comp); err != nil {
				return res, fmt.Errorf("component %s/%s/%s: %w", c.System, c.Section, c.SubComponent, err)
			}
			res.Components++
		}
	} else {
		im.log.Info("components already present, skipping catalog", zap.Int("existing", len(components)))
	}

	im.log.Info("catalog imported", zap.Int("units", res.Units), zap.Int("components", res.Components))
	return res, nil
}

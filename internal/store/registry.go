package store

import (
	"fms-backend/internal/model"
)

// collectionSpec describes how one collection maps onto its table.
type collectionSpec struct {
	newRecord func() any
	newSlice  func() any
	entities  func(slice any) []model.Entity
	record    func(ptr any) model.Entity

	// indexes maps a key path to the columns it compares, in order.
	indexes map[string][]string
	// mutable maps an update key to its column.
	mutable  map[string]string
	syncable bool
}

func specFor[T model.Entity](indexes map[string][]string, mutable map[string]string, syncable bool) collectionSpec {
	return collectionSpec{
		newRecord: func() any { return new(T) },
		newSlice:  func() any { return new([]T) },
		entities: func(slice any) []model.Entity {
			rows := *slice.(*[]T)
			out := make([]model.Entity, len(rows))
			for i, r := range rows {
				out[i] = r
			}
			return out
		},
		record:   func(ptr any) model.Entity { return *ptr.(*T) },
		indexes:  indexes,
		mutable:  mutable,
		syncable: syncable,
	}
}

var registry = map[model.Collection]collectionSpec{
	model.CollectionUnits: specFor[model.Unit](
		map[string][]string{
			"id":    {"id"},
			"code":  {"code"},
			"model": {"model"},
			"class": {"class"},
		},
		map[string]string{"code": "code", "model": "model", "class": "class", "egi": "egi", "spare": "spare"},
		false,
	),
	model.CollectionComponents: specFor[model.Component](
		map[string][]string{
			"id":            {"id"},
			"system":        {"system"},
			"section":       {"section"},
			"sub_component": {"sub_component"},
		},
		map[string]string{"system": "system", "section": "section", "sub_component": "sub_component"},
		false,
	),
	model.CollectionHMLogs: specFor[model.HMLog](
		map[string][]string{
			"id":                 {"id"},
			"unit_id":            {"unit_id"},
			"date":               {"date"},
			"shift":              {"shift"},
			"unit_id+date+shift": {"unit_id", "date", "shift"},
		},
		map[string]string{"unit_id": "unit_id", "date": "date", "shift": "shift", "hm_value": "hm_value", "synced": "synced"},
		true,
	),
	model.CollectionBreakdownLogs: specFor[model.BreakdownLog](
		map[string][]string{
			"id":      {"id"},
			"unit_id": {"unit_id"},
			"start":   {"start_at"},
		},
		map[string]string{
			"unit_id":      "unit_id",
			"component_id": "component_id",
			"start":        "start_at",
			"end":          "end_at",
			"description":  "description",
			"category":     "category",
			"synced":       "synced",
		},
		true,
	),
}

func lookup(c model.Collection) (collectionSpec, error) {
	spec, ok := registry[c]
	if !ok {
		return collectionSpec{}, unknownCollection(c)
	}
	return spec, nil
}

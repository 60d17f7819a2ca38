package model

// Collection names one of the store's persisted collections.
type Collection string

const (
	CollectionUnits         Collection = "units"
	CollectionComponents    Collection = "components"
	CollectionHMLogs        Collection = "hm_logs"
	CollectionBreakdownLogs Collection = "breakdown_logs"
)

// Collections lists every collection owned by the store.
var Collections = []Collection{
	CollectionUnits,
	CollectionComponents,
	CollectionHMLogs,
	CollectionBreakdownLogs,
}

// Entity is a row of one of the store's collections.
type Entity interface {
	Collection() Collection
	PrimaryKey() int64
}

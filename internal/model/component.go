package model

// Component is a reportable equipment part, e.g. ENGINE / FUEL SYSTEM / INJECTION PUMP.
type Component struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	System       string `gorm:"size:64;not null;index" json:"system"`
	Section      string `gorm:"size:64;not null;index" json:"section"`
	SubComponent string `gorm:"size:128;not null;index" json:"sub_component"`
}

func (Component) TableName() string      { return string(CollectionComponents) }
func (Component) Collection() Collection { return CollectionComponents }
func (c Component) PrimaryKey() int64    { return c.ID }

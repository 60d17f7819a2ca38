package model

// Unit is a physical equipment asset.
type Unit struct {
	ID    int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Code  string `gorm:"size:32;not null;index" json:"code"`
	Model string `gorm:"size:128;not null;index" json:"model"`
	Class string `gorm:"size:64;not null;index" json:"class"`
	EGI   string `gorm:"column:egi;size:64" json:"egi"`
	Spare bool   `gorm:"not null;default:false" json:"spare"`
}

func (Unit) TableName() string      { return string(CollectionUnits) }
func (Unit) Collection() Collection { return CollectionUnits }
func (u Unit) PrimaryKey() int64    { return u.ID }

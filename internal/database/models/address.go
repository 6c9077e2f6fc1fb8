package models

type Address struct {
	ID       string  `gorm:"type:varchar(36);primaryKey" json:"-"`
	State    *string `json:"state"`
	City     *string `json:"city"`
	Zip      *string `json:"zip"`
	Address1 *string `json:"address1"`
	Address2 *string `json:"address2"`
	Timestamps
}

func (Address) TableName() string {
	return "addresses"
}

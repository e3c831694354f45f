package entity

// Party is a buyer or seller as published by the marketplace directory.
// The messaging service only reads this table.
type Party struct {
	Id          string `json:"id" gorm:"column:id;primaryKey;size:64"`
	Role        string `json:"role" gorm:"column:role;size:16"`
	DisplayName string `json:"display_name" gorm:"column:display_name"`
	Avatar      string `json:"avatar" gorm:"column:avatar"`
	CompanyName string `json:"company_name" gorm:"column:company_name"`
	CreatedAt   int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt   int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Party
func (Party) TableName() string {
	return "parties"
}

// PartyInfo represents the display attributes clients need for a party
type PartyInfo struct {
	Id          string `json:"id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Online      bool   `json:"online"`
}

// ToPartyInfo converts Party to PartyInfo
func (p *Party) ToPartyInfo() *PartyInfo {
	return &PartyInfo{
		Id:          p.Id,
		Role:        p.Role,
		DisplayName: p.DisplayName,
		Avatar:      p.Avatar,
		CompanyName: p.CompanyName,
	}
}

package models

// Admin is a back-office account allowed to manage the shop.
type Admin struct {
	BaseModel
	Username     string `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"not null" json:"-"`
}

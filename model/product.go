package model

import "time"

const DefaultProductImage = "nopic.png"

type Product struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name        string    `gorm:"uniqueIndex;type:varchar(128);not null" json:"name"`
	Price       float64   `gorm:"not null" json:"price"`
	Quantity    int64     `gorm:"not null;default:1" json:"quantity"`
	CategoryID  string    `gorm:"type:varchar(64);not null;index" json:"categoryId"`
	Category    *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Description string    `gorm:"type:text" json:"description"`
	Image       string    `gorm:"type:varchar(512);default:nopic.png" json:"image"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Product) TableName() string {
	return "products"
}

type Category struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name        string    `gorm:"uniqueIndex;type:varchar(128);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Products    []Product `gorm:"foreignKey:CategoryID" json:"products,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Category) TableName() string {
	return "categories"
}

// Package shop declares models with the index shapes the mock has to
// reproduce: plain, unique, composite unique and partial indexes, and a
// composite primary key.
package shop

import (
	"time"
)

type User struct {
	ID        uint   `gorm:"primaryKey"`
	Email     string `gorm:"size:128;not null;unique;uniqueIndex:uq_username_email,priority:2"`
	Username  string `gorm:"size:64;not null;index:idx_username;uniqueIndex:uq_username_email,priority:1"`
	Active    bool   `gorm:"index:idx_active_users,where:active = true"`
	Deleted   bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

type Product struct {
	ID       uint    `gorm:"primaryKey"`
	Name     string  `gorm:"size:128;not null;index:idx_product_name;index:idx_active_products,where:archived = false"`
	Price    float64 `gorm:"not null;index:idx_active_products,where:archived = false"`
	SKU      string  `gorm:"column:sku;size:32;not null;unique"`
	Archived bool    `gorm:"not null;default:false"`
	Listed   bool    `gorm:"not null;default:true"`
}

type Order struct {
	ID     uint `gorm:"primaryKey"`
	UserID uint `gorm:"not null"`
	User   *User
	Items  []OrderItem
}

func (Order) TableName() string { return "orders" }

// OrderItem is keyed by its order and item number.
type OrderItem struct {
	OrderID  uint    `gorm:"primaryKey;autoIncrement:false"`
	ItemID   uint    `gorm:"primaryKey;autoIncrement:false"`
	Quantity int     `gorm:"not null"`
	Price    float64 `gorm:"not null"`
}

// Models lists the models in dependency order.
func Models() []any {
	return []any{&User{}, &Product{}, &Order{}, &OrderItem{}}
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Franchise is the tenant boundary for customers and orders. It is managed
// by the franchise admin service and only read here.
type Franchise struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code      string    `gorm:"column:code;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

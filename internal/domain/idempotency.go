package domain

import "time"

// Idempotency records the outcome of a create request, keyed by
// (owner, scope, key). A retried POST /ads with the same Idempotency-Key
// returns the stored ad instead of creating (and counting) a second one.
//
// Owner is Identity.Key() of the caller; Scope names the operation
// ("ads.create"); ResourceID is the id of what the first request created.
type Idempotency struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	Owner      string    `gorm:"type:varchar(160);not null;uniqueIndex:ux_owner_scope_key,priority:1"`
	Scope      string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_owner_scope_key,priority:2"`
	Key        string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_owner_scope_key,priority:3"`
	ResourceID string    `gorm:"type:varchar(64);not null"`
	Status     int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

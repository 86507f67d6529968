package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ClientType string

const (
	ClientTypeFixed    ClientType = "fixed"    // Постоянное расписание
	ClientTypeFlexible ClientType = "flexible" // Записывается самостоятельно
)

type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Client is a profile row. Admins live in the same table with IsAdmin set.
type Client struct {
	ID             int64           `json:"id"`
	TelegramID     *int64          `json:"telegram_id"` // nil - уведомления только во входящие
	FullName       string          `json:"full_name"`
	IsAdmin        bool            `json:"is_admin"`
	Balance        decimal.Decimal `json:"balance"` // положительный - кредит, отрицательный - долг
	ClientType     ClientType      `json:"client_type"`
	ApprovalStatus ApprovalStatus  `json:"approval_status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// IsApproved checks if the client may book on their own
func (c *Client) IsApproved() bool {
	return c.ApprovalStatus == ApprovalStatusApproved
}

// Valid reports whether the client type is known
func (t ClientType) Valid() bool {
	return t == ClientTypeFixed || t == ClientTypeFlexible
}

// Valid reports whether the approval status is known
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected:
		return true
	}
	return false
}

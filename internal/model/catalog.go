package model

import "time"

type PaymentMethod string

const (
	PaymentPix  PaymentMethod = "pix"
	PaymentCard PaymentMethod = "card"
)

type Package struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
	Active   bool   `json:"is_active"`
}

type Purchase struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	PackageID     string        `json:"package_id"`
	PackageName   string        `json:"package_name,omitempty"`
	AmountPaid    int64         `json:"amount_paid"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus string        `json:"payment_status"`
	CreatedAt     time.Time     `json:"created_at"`
}

type UserStats struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	IsAdmin      bool   `json:"is_admin"`
	IsBlocked    bool   `json:"is_blocked"`
	Available    int    `json:"credits_available"`
	Used         int    `json:"credits_used"`
	MessagesSent int    `json:"messages_sent"`
}

package models

// Account is a user known to the identity directory.
type Account struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name,omitempty"`
	PasswordHash string `json:"-"`
	CreatedAt    int64  `json:"created_at"`
}

// Principal is the acting caller of an operation. A zero UserID is anonymous.
type Principal struct {
	UserID int64
	Email  string
	Name   string
	Admin  bool
}

func (p Principal) Anonymous() bool {
	return p.UserID == 0
}

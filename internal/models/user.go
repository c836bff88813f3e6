package models

import "time"

type User struct {
	ID                  int64
	Username            string
	Email               string
	PasswordHash        string
	FullName            string
	IsAdmin             bool
	IsActive            bool
	LastLogin           *time.Time
	RefreshToken        *string
	RefreshTokenExpires *time.Time
	CreatedAt           time.Time
}

// HasRefreshToken reports whether the user has an outstanding refresh token identifier.
func (u *User) HasRefreshToken() bool {
	return u.RefreshToken != nil && *u.RefreshToken != ""
}

// UserView is the public representation returned to API clients.
type UserView struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name,omitempty"`
	IsAdmin   bool       `json:"is_admin"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (u *User) View() UserView {
	return UserView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		IsAdmin:   u.IsAdmin,
		IsActive:  u.IsActive,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
	}
}

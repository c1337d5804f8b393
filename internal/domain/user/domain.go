package user

import "time"

// User is the slice of the CRM user the delivery core needs: a
// recipient address and a display name for templates.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

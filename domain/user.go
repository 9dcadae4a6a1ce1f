package domain

// User is the slice of the auth service's account we need for
// authorization checks and notification addressing.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	UserRole string `json:"userRole"`
}

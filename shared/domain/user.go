package domain

// User is the identity carried by the access token. The view service only needs
// enough of it to decide ownership.
type User struct {
	Username Username `json:"username"`
	Domain   string   `json:"domain"`
}

// Owns reports whether the post was authored by this user.
func (u *User) Owns(p *Post) bool {
	if u == nil || p == nil {
		return false
	}
	return u.Username != "" && u.Username == p.Username
}

package model

// Identity holds the authenticated user's profile attributes as returned by
// the school identity service. Username is the stable unique identifier.
// SchoolClass and WebdavURL are optional and empty when the service omits them.
type Identity struct {
	UserID      int64
	Username    string
	FirstName   string
	LastName    string
	Email       string
	SchoolClass string
	WebdavURL   string
}

// FullName returns the display name "FirstName LastName".
func (i Identity) FullName() string {
	return i.FirstName + " " + i.LastName
}

package domain

type Role string

const (
	RoleOwner    Role = "owner"
	RoleProvider Role = "provider"
	RoleClinic   Role = "clinic"
	RoleAdmin    Role = "admin"
)

// Profile holds the public fields of a user that are safe to show to the
// other side of a conversation.
type Profile struct {
	ID          string
	DisplayName string
	AvatarURL   string
	Role        Role
}

// AnonymousProfile is used when the directory has no entry for a user.
func AnonymousProfile(userID string) Profile {
	return Profile{ID: userID}
}

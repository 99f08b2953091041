package domain

// VoterIdentity is the stable identity yielded by token validation
type VoterIdentity struct {
	Sub   string `json:"sub"`
	Email string `json:"email,omitempty"`
	Admin bool   `json:"admin,omitempty"`
}

// Package models defines the data structures shared by the vault client
// and the stub backend.
package models

// Credential is one stored secret. Site acts as the unique key within a
// vault; the server enforces the same uniqueness.
type Credential struct {
	// Site identifies the account the credential belongs to.
	Site string `json:"site"`
	// Username is the login name for the site.
	Username string `json:"username"`
	// Password is the stored secret, plaintext at the client boundary.
	Password string `json:"password"`
}

// CredentialList is the response shape of the credential listing endpoint.
type CredentialList struct {
	Credentials []Credential `json:"credentials"`
}

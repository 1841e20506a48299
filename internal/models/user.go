package models

// User is a search result of the user directory.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// PublicKeyRecord is a user's registered public key, PEM encoded.
type PublicKeyRecord struct {
	UserID    string `json:"user_id"`
	PublicKey string `json:"public_key"`
}

// HistoryPage is one page of the paginated history endpoint. Next is empty
// on the last page.
type HistoryPage struct {
	Results []HistoryRecord `json:"results"`
	Next    string          `json:"next,omitempty"`
}

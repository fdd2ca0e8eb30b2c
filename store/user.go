package store

// AnonymousUserID is the reserved owner assigned to insights whose source
// conversation was removed from the user's graph.
const AnonymousUserID = "anonymous"

type User struct {
	ID            string `json:"id"`
	ConsentGlobal bool   `json:"consentGlobal"`
	CreatedTs     int64  `json:"createdTs"`
}

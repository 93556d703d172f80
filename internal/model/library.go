package model

import "time"

// Library is a named corpus of documents that input text is verified against.
// At most one library is active at a time; the active library is the default
// target for verification requests that omit a library id.
type Library struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	DocCount    int       `json:"docCount"`
	ChunkCount  int       `json:"chunkCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

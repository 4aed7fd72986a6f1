// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Snippet is one generation result: the user's description and the code the
// model produced for it. Snippets are never modified after creation; the only
// way to change the collection is to add a new one or delete by ID.
//
// The `json:"..."` tags define the wire names used by the JSON API, e.g.
//
//	{"id":"cv37rs3pp9olc6atsptg","description":"reverse a string","code_snippet":"def rev(s): ..."}
type Snippet struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	CodeSnippet string    `json:"code_snippet"`
	Model       string    `json:"model,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

package model

// FeedbackEntry is one user-submitted rating/comment tied to a prior generation.
//
// The JSON keys are the on-disk format of the feedback file and must not change:
//
//	[{"description":"...","code_snippet":"...","model_name":"gpt-3.5-turbo","feedback":"Great code snippet!","rating":"good"}]
type FeedbackEntry struct {
	Description string `json:"description"`
	CodeSnippet string `json:"code_snippet"`
	ModelName   string `json:"model_name"`
	Feedback    string `json:"feedback"`
	Rating      string `json:"rating"`
}

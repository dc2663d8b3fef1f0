package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/beyondguo/webnote/internal/models"
)

// SaveNoteRequest is the request body for saving a highlight.
type SaveNoteRequest struct {
	URL   string      `json:"url"`
	Title string      `json:"title"`
	Note  NotePayload `json:"note"`
}

// NotePayload carries the note fields of a save request. ID and timestamp
// are optional; the server generates them when absent.
type NotePayload struct {
	ID   string   `json:"id"`
	Text string   `json:"text"`
	Tags []string `json:"tags"`
	Note string   `json:"note"`
}

// Validate validates the save request.
func (r SaveNoteRequest) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&r.Note,
		validation.Field(&r.Note.Text, validation.Required),
	)
}

// UpdateNoteRequest is the request body for a partial note edit.
// Nil fields are left unchanged.
type UpdateNoteRequest struct {
	Text *string   `json:"text"`
	Tags *[]string `json:"tags"`
	Note *string   `json:"note"`
}

// Update converts the request into the domain edit type.
func (r UpdateNoteRequest) Update() models.NoteUpdate {
	return models.NoteUpdate{Text: r.Text, Tags: r.Tags, Note: r.Note}
}

// UpdatePageTitleRequest is the request body for renaming a page.
type UpdatePageTitleRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Validate validates the title update.
func (r UpdatePageTitleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required),
		validation.Field(&r.Title, validation.Required),
	)
}

// FolderAccessRequest is the request body for granting a notes directory.
type FolderAccessRequest struct {
	Path    string `json:"path"`
	Migrate bool   `json:"migrate"`
}

// Validate validates the folder access request.
func (r FolderAccessRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
	)
}

// SaveMarkdownRequest is the request body for storing a page snapshot.
type SaveMarkdownRequest struct {
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
}

// Validate validates the markdown save request.
func (r SaveMarkdownRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required),
		validation.Field(&r.Markdown, validation.Required),
	)
}

// CaptureRequest is the request body for server-side page capture.
type CaptureRequest struct {
	URL string `json:"url"`
}

// Validate validates the capture request.
func (r CaptureRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required),
	)
}

// ChatRequest is the request body for asking about a captured page.
type ChatRequest struct {
	URL      string `json:"url"`
	Question string `json:"question"`
}

// Validate validates the chat request.
func (r ChatRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required),
		validation.Field(&r.Question, validation.Required),
	)
}

// PageListResponse wraps page listings.
type PageListResponse struct {
	Pages []models.PageRecord `json:"pages"`
	Total int                 `json:"total"`
}

// MarkdownResponse wraps a stored page snapshot.
type MarkdownResponse struct {
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
}

// ChatResponse wraps a chat answer.
type ChatResponse struct {
	Answer string `json:"answer"`
}

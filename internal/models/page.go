// Package models defines the domain types for WebNote.
package models

import "time"

// Note is one saved highlight on a page. ID is the sole identity used for
// update and delete; text, tags and annotation are freely mutable.
type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags"`
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// PageRecord is the note collection for one normalized URL. Notes are kept
// newest-first; the order is preserved across writes.
type PageRecord struct {
	URL         string    `json:"url"`
	PageTitle   string    `json:"pageTitle"`
	CustomTitle string    `json:"customTitle,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
	Notes       []Note    `json:"notes"`
}

// HasNote reports whether a note with the given id exists on the page.
func (p *PageRecord) HasNote(id string) bool {
	for i := range p.Notes {
		if p.Notes[i].ID == id {
			return true
		}
	}
	return false
}

// PrependNote inserts n at the head of the note list. It is idempotent on
// the note id: if a note with the same id is already present the record is
// left untouched and false is returned.
func (p *PageRecord) PrependNote(n Note) bool {
	if p.HasNote(n.ID) {
		return false
	}
	p.Notes = append([]Note{n}, p.Notes...)
	return true
}

// FindNote returns a pointer to the note with the given id, or nil.
func (p *PageRecord) FindNote(id string) *Note {
	for i := range p.Notes {
		if p.Notes[i].ID == id {
			return &p.Notes[i]
		}
	}
	return nil
}

// RemoveNote deletes the note with the given id, preserving the order of the
// remaining notes. It returns false when no such note exists.
func (p *PageRecord) RemoveNote(id string) bool {
	for i := range p.Notes {
		if p.Notes[i].ID == id {
			p.Notes = append(p.Notes[:i], p.Notes[i+1:]...)
			return true
		}
	}
	return false
}

// NoteIDs returns the set of note ids present on the page.
func (p *PageRecord) NoteIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(p.Notes))
	for i := range p.Notes {
		ids[p.Notes[i].ID] = struct{}{}
	}
	return ids
}

// PageInfo identifies the page a note belongs to.
type PageInfo struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// NoteUpdate carries a partial note edit. Nil fields are left unchanged.
type NoteUpdate struct {
	Text *string   `json:"text,omitempty"`
	Tags *[]string `json:"tags,omitempty"`
	Note *string   `json:"note,omitempty"`
}

// Empty reports whether the update would change nothing.
func (u NoteUpdate) Empty() bool {
	return u.Text == nil && u.Tags == nil && u.Note == nil
}

// Apply copies the set fields of u onto n and stamps UpdatedAt.
func (u NoteUpdate) Apply(n *Note, now time.Time) {
	if u.Text != nil {
		n.Text = *u.Text
	}
	if u.Tags != nil {
		n.Tags = *u.Tags
	}
	if u.Note != nil {
		n.Note = *u.Note
	}
	n.UpdatedAt = now
}

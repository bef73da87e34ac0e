package models

import "time"

// Post is a blog entry owned by one author.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Enabled   bool      `gorm:"not null;default:true;index" json:"enabled"`
	AuthorID  uint      `gorm:"not null;index" json:"authorId"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsOwnedBy reports whether userID authored the post.
func (p *Post) IsOwnedBy(userID uint) bool {
	return p.AuthorID == userID
}

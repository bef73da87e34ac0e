package models

import "time"

// Attachment is a file uploaded to a post. The blob lives under the storage
// root as StoredName.
type Attachment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	PostID       uint      `gorm:"not null;index" json:"postId"`
	UploaderID   uint      `gorm:"not null;index" json:"uploaderId"`
	OriginalName string    `gorm:"size:255;not null" json:"originalName"`
	StoredName   string    `gorm:"uniqueIndex;size:64;not null" json:"-"`
	ContentType  string    `gorm:"size:255" json:"contentType"`
	Size         int64     `gorm:"not null" json:"size"`
	CreatedAt    time.Time `json:"createdAt"`
}

package entity

// Attachment is the metadata of a file stored by the blob collaborator.
// MessageId is zero while the reference is pending (registered but not yet
// claimed by a submission).
type Attachment struct {
	Id          int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MessageId   int64  `json:"message_id" gorm:"column:message_id;not null;default:0;index:idx_att_message"`
	UploaderId  string `json:"uploader_id" gorm:"column:uploader_id;size:64;not null"`
	Filename    string `json:"filename" gorm:"column:filename"`
	StoragePath string `json:"storage_path" gorm:"column:storage_path"`
	Size        int64  `json:"size" gorm:"column:size"`
	ContentType string `json:"content_type" gorm:"column:content_type;size:128"`
	Position    int    `json:"position" gorm:"column:position"`
	CreatedAt   int64  `json:"created_at" gorm:"column:created_at"`
}

// TableName returns the table name for Attachment
func (Attachment) TableName() string {
	return "attachments"
}

// IsPending reports whether no message owns the attachment yet
func (a *Attachment) IsPending() bool {
	return a.MessageId == 0
}

// AttachmentInfo represents attachment info for API response
type AttachmentInfo struct {
	Id          int64  `json:"id"`
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	URL         string `json:"url,omitempty"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Position    int    `json:"position"`
}

// ToAttachmentInfo converts Attachment to AttachmentInfo
func (a *Attachment) ToAttachmentInfo() *AttachmentInfo {
	return &AttachmentInfo{
		Id:          a.Id,
		Filename:    a.Filename,
		Path:        a.StoragePath,
		Size:        a.Size,
		ContentType: a.ContentType,
		Position:    a.Position,
	}
}

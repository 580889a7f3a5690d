package model

import "time"

// MediaType 媒体类型
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaGIF   MediaType = "gif"
)

// Valid reports whether t is empty or one of the known media types.
func (t MediaType) Valid() bool {
	switch t {
	case "", MediaImage, MediaVideo, MediaAudio, MediaGIF:
		return true
	}
	return false
}

// Media 帖子附带的媒体文件
type Media struct {
	URL  string    `json:"mediaUrl" validate:"required,url"`
	Type MediaType `json:"mediaType,omitempty" validate:"mediatype"`
}

// Post 帖子，MediaFiles 以 JSON 列存储
type Post struct {
	ID          int64     `gorm:"primaryKey;autoIncrement:false"`
	UserID      int64     `gorm:"not null;index:idx_post_user_created,priority:1"`
	Title       string    `gorm:"type:varchar(255);not null"`
	Description string    `gorm:"type:varchar(2000)"`
	MediaFiles  []Media   `gorm:"serializer:json;type:text"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false;index:idx_post_user_created,priority:2;index:idx_post_created"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (Post) TableName() string { return "posts" }

// Clone 深拷贝，避免调用方修改存储中的切片
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	cp := *p
	if p.MediaFiles != nil {
		cp.MediaFiles = make([]Media, len(p.MediaFiles))
		copy(cp.MediaFiles, p.MediaFiles)
	}
	return &cp
}

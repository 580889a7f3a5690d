package handler

import (
	"time"

	"github.com/d60-Lab/timeline-service/internal/model"
	"github.com/d60-Lab/timeline-service/internal/service"
)

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
}

// UserResponse 用户
type UserResponse struct {
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// MediaDTO 媒体文件
type MediaDTO struct {
	MediaURL  string `json:"mediaUrl"`
	MediaType string `json:"mediaType,omitempty"`
}

// ContentDTO 帖子内容
type ContentDTO struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	MediaFiles  []MediaDTO `json:"mediaFiles"`
}

// contentRequest 字段为指针，以区分缺省与空值（PATCH）
type contentRequest struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	MediaFiles  *[]MediaDTO `json:"mediaFiles"`
}

type postRequest struct {
	UserID  *int64          `json:"userId"`
	Content *contentRequest `json:"content"`
}

// PostResponse 帖子
type PostResponse struct {
	PostID    int64      `json:"postId"`
	UserID    int64      `json:"userId"`
	CreatedAt time.Time  `json:"createdAtTimestamp"`
	UpdatedAt time.Time  `json:"updatedAtTimestamp"`
	Content   ContentDTO `json:"content"`
}

// PageResponse 分页结果；currentPage/pageSize/hasNext 与 page/size/hasMore 同义
type PageResponse struct {
	Posts         []PostResponse `json:"posts"`
	Page          int            `json:"page"`
	Size          int            `json:"size"`
	HasMore       bool           `json:"hasMore"`
	HasPrevious   bool           `json:"hasPrevious"`
	TotalElements int64          `json:"totalElements"`
	TotalPages    int64          `json:"totalPages"`
	CurrentPage   int            `json:"currentPage"`
	PageSize      int            `json:"pageSize"`
	HasNext       bool           `json:"hasNext"`
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{UserID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}

func toPostResponse(p *model.Post) PostResponse {
	media := make([]MediaDTO, len(p.MediaFiles))
	for i, m := range p.MediaFiles {
		media[i] = MediaDTO{MediaURL: m.URL, MediaType: string(m.Type)}
	}
	return PostResponse{
		PostID:    p.ID,
		UserID:    p.UserID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Content:   ContentDTO{Title: p.Title, Description: p.Description, MediaFiles: media},
	}
}

func toPageResponse(p *service.PostPage) PageResponse {
	posts := make([]PostResponse, len(p.Posts))
	for i, post := range p.Posts {
		posts[i] = toPostResponse(post)
	}
	return PageResponse{
		Posts:         posts,
		Page:          p.Page,
		Size:          p.Size,
		HasMore:       p.HasMore,
		HasPrevious:   p.Page > 0,
		TotalElements: p.Total,
		TotalPages:    p.TotalPages(),
		CurrentPage:   p.Page,
		PageSize:      p.Size,
		HasNext:       p.HasMore,
	}
}

func toMedia(in []MediaDTO) []model.Media {
	out := make([]model.Media, len(in))
	for i, m := range in {
		out[i] = model.Media{URL: m.MediaURL, Type: model.MediaType(m.MediaType)}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

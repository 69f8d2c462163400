package model

import "time"

type MemoryType string

const (
	MemoryPhoto  MemoryType = "photo"
	MemoryAudio  MemoryType = "audio"
	MemoryVideo  MemoryType = "video"
	MemoryRecipe MemoryType = "recipe"
	MemoryNote   MemoryType = "note"
	MemoryStory  MemoryType = "story"
)

var MemoryTypes = []MemoryType{MemoryPhoto, MemoryAudio, MemoryVideo, MemoryRecipe, MemoryNote, MemoryStory}

type Memory struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Type          MemoryType `json:"type"`
	PhotoURL      string     `json:"photo"`
	AudioURL      string     `json:"audio"`
	VideoURL      string     `json:"video"`
	DateTaken     *time.Time `json:"date_taken"`
	Location      string     `json:"location"`
	Tags          []string   `json:"tags"`
	VaultID       string     `json:"vault"`
	VaultName     string     `json:"vault_name"`
	CreatedBy     int64      `json:"created_by"`
	CreatedByName string     `json:"created_by_name"`
	LikesCount    int        `json:"likes_count"`
	CommentsCount int        `json:"comments_count"`
	IsLiked       bool       `json:"is_liked"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type MemoryComment struct {
	ID         string    `json:"id"`
	MemoryID   string    `json:"memory"`
	Text       string    `json:"text"`
	UserID     int64     `json:"user"`
	UserName   string    `json:"user_name"`
	UserAvatar string    `json:"user_avatar"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type MemoryLike struct {
	UserID    int64     `json:"user"`
	UserName  string    `json:"user_name"`
	CreatedAt time.Time `json:"created_at"`
}

type MemoryShare struct {
	ID             string    `json:"id"`
	MemoryID       string    `json:"memory"`
	MemoryTitle    string    `json:"memory_title"`
	SharedBy       int64     `json:"shared_by"`
	SharedByName   string    `json:"shared_by_name"`
	SharedWith     int64     `json:"shared_with"`
	SharedWithName string    `json:"shared_with_name"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

// MemoryDetail adds comments and likes to a Memory.
type MemoryDetail struct {
	Memory
	Comments []MemoryComment `json:"comments"`
	Likes    []MemoryLike    `json:"likes"`
}

type MemoryStats struct {
	TotalMemories int                `json:"total_memories"`
	ByType        map[MemoryType]int `json:"by_type"`
	ByYear        map[string]int     `json:"by_year"`
	TotalLikes    int                `json:"total_likes"`
	TotalComments int                `json:"total_comments"`
}

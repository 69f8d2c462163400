package model

import "time"

type PhraseCategory string

const (
	CategoryGreeting PhraseCategory = "greeting"
	CategoryFamily   PhraseCategory = "family"
	CategoryFood     PhraseCategory = "food"
	CategoryLove     PhraseCategory = "love"
	CategoryWisdom   PhraseCategory = "wisdom"
	CategoryHumor    PhraseCategory = "humor"
	CategoryStory    PhraseCategory = "story"
	CategoryAdvice   PhraseCategory = "advice"
	CategoryOther    PhraseCategory = "other"
)

var PhraseCategories = []PhraseCategory{
	CategoryGreeting, CategoryFamily, CategoryFood, CategoryLove, CategoryWisdom,
	CategoryHumor, CategoryStory, CategoryAdvice, CategoryOther,
}

type Phrase struct {
	ID              string         `json:"id"`
	Text            string         `json:"text"`
	Translation     string         `json:"translation"`
	Category        PhraseCategory `json:"category"`
	Context         string         `json:"context"`
	PersonMentioned string         `json:"person_mentioned"`
	Language        string         `json:"language"`
	AudioURL        string         `json:"audio_file"`
	AudioDuration   *float64       `json:"audio_duration"`
	Tags            []string       `json:"tags"`
	IsFavorite      bool           `json:"is_favorite"`
	UsageCount      int            `json:"usage_count"`
	PlaybacksCount  int            `json:"playbacks_count"`
	VaultID         string         `json:"vault"`
	VaultName       string         `json:"vault_name"`
	CreatedBy       int64          `json:"created_by"`
	CreatedByName   string         `json:"created_by_name"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type PhrasePlayback struct {
	ID             int64     `json:"id"`
	PhraseID       string    `json:"phrase"`
	PhraseText     string    `json:"phrase_text"`
	UserID         int64     `json:"user"`
	UserName       string    `json:"user_name"`
	PlayedAt       time.Time `json:"played_at"`
	DurationPlayed *float64  `json:"duration_played"`
}

type ConversationSession struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	PhraseIDs      []string   `json:"phrases"`
	AutoPlay       bool       `json:"auto_play"`
	ShuffleOrder   bool       `json:"shuffle_order"`
	TotalPlaybacks int        `json:"total_playbacks"`
	LastPlayed     *time.Time `json:"last_played"`
	PhrasesCount   int        `json:"phrases_count"`
	VaultID        string     `json:"vault"`
	VaultName      string     `json:"vault_name"`
	CreatedBy      int64      `json:"created_by"`
	CreatedByName  string     `json:"created_by_name"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ConversationSessionDetail replaces the phrase ID list with full phrases.
type ConversationSessionDetail struct {
	ConversationSession
	Phrases []Phrase `json:"phrases"`
}

type ConversationPlayback struct {
	ID            int64      `json:"id"`
	SessionID     string     `json:"session"`
	SessionName   string     `json:"session_name"`
	UserID        int64      `json:"user"`
	UserName      string     `json:"user_name"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"`
	PhrasesPlayed int        `json:"phrases_played"`
}

type PhraseStats struct {
	TotalPhrases    int                    `json:"total_phrases"`
	ByCategory      map[PhraseCategory]int `json:"by_category"`
	MostUsed        []Phrase               `json:"most_used"`
	RecentPlaybacks []PhrasePlayback       `json:"recent_playbacks"`
	TotalPlaybacks  int                    `json:"total_playbacks"`
}

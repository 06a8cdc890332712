package store

import "time"

type userRecord struct {
	ID                  string `gorm:"column:id;primaryKey"`
	Username            string `gorm:"column:username;uniqueIndex;not null"`
	Email               string `gorm:"column:email;uniqueIndex;not null"`
	FullName            string `gorm:"column:full_name;not null;default:''"`
	AvatarURL           string `gorm:"column:avatar_url;not null;default:''"`
	CoverImageURL       string `gorm:"column:cover_image_url;not null;default:''"`
	PasswordHash        string `gorm:"column:password_hash;not null;default:''"`
	CurrentRefreshToken string `gorm:"column:current_refresh_token;not null;default:''"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (userRecord) TableName() string {
	return "users"
}

type videoRecord struct {
	ID              string `gorm:"column:id;primaryKey"`
	OwnerID         string `gorm:"column:owner_id;index;not null"`
	Title           string `gorm:"column:title;not null"`
	Description     string `gorm:"column:description;not null;default:''"`
	VideoURL        string `gorm:"column:video_url;not null"`
	ThumbnailURL    string `gorm:"column:thumbnail_url;not null"`
	DurationSeconds int    `gorm:"column:duration_seconds;not null;default:0"`
	Views           int64  `gorm:"column:views;not null;default:0"`
	IsPublished     bool   `gorm:"column:is_published;not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (videoRecord) TableName() string {
	return "videos"
}

// One like per user per video.
type likeRecord struct {
	VideoID   string `gorm:"column:video_id;uniqueIndex:idx_likes_video_user;not null"`
	UserID    string `gorm:"column:user_id;uniqueIndex:idx_likes_video_user;index;not null"`
	CreatedAt time.Time
}

func (likeRecord) TableName() string {
	return "likes"
}

// One subscription per subscriber per channel.
type subscriptionRecord struct {
	SubscriberID string `gorm:"column:subscriber_id;uniqueIndex:idx_subs_subscriber_channel;not null"`
	ChannelID    string `gorm:"column:channel_id;uniqueIndex:idx_subs_subscriber_channel;index;not null"`
	CreatedAt    time.Time
}

func (subscriptionRecord) TableName() string {
	return "subscriptions"
}

// One history row per user per video; WatchedAt moves forward on re-watch.
type watchHistoryRecord struct {
	UserID    string    `gorm:"column:user_id;uniqueIndex:idx_history_user_video;index;not null"`
	VideoID   string    `gorm:"column:video_id;uniqueIndex:idx_history_user_video;not null"`
	WatchedAt time.Time `gorm:"column:watched_at;not null"`
}

func (watchHistoryRecord) TableName() string {
	return "watch_history"
}

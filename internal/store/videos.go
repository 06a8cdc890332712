package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Video is a stored video record.
type Video struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	VideoURL        string    `json:"videoFile"`
	ThumbnailURL    string    `json:"thumbnail"`
	DurationSeconds int       `json:"duration"`
	Views           int64     `json:"views"`
	IsPublished     bool      `json:"isPublished"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// OwnerSummary is the embedded public view of a video's owner.
type OwnerSummary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatar"`
}

// VideoSummary is a video with its owner embedded; LikesCount and IsLiked
// are populated on detail reads.
type VideoSummary struct {
	Video
	Owner      OwnerSummary `json:"owner"`
	LikesCount int64        `json:"likesCount"`
	IsLiked    bool         `json:"isLiked"`
}

// VideoPage is one page of video summaries plus pagination metadata.
type VideoPage struct {
	Items      []VideoSummary `json:"docs"`
	TotalItems int64          `json:"totalDocs"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// ListVideosParams filters and orders a video listing. Only published
// videos are returned. SortBy accepts createdAt, views, title, or duration.
type ListVideosParams struct {
	Query        string
	OwnerID      string
	SortBy       string
	SortAsc      bool
	Page         int
	Limit        int
	CreatedAfter time.Time
}

var videoSortColumns = map[string]string{
	"createdAt": "created_at",
	"views":     "views",
	"title":     "title",
	"duration":  "duration_seconds",
}

// CreateVideo inserts a new video, assigning an id when absent.
func (store *Store) CreateVideo(ctx context.Context, video *Video) error {
	if video.ID == "" {
		video.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	video.CreatedAt = now
	video.UpdatedAt = now
	record := videoToRecord(video)
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("store.create_video.%s: %w", store.driverLabel, err)
	}
	return nil
}

// FindVideo returns the raw video record, published or not. Used for
// ownership checks before mutations.
func (store *Store) FindVideo(ctx context.Context, id string) (*Video, error) {
	var record videoRecord
	err := store.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store.find_video.%s: %w", store.driverLabel, ErrNotFound)
		}
		return nil, fmt.Errorf("store.find_video.%s: %w", store.driverLabel, err)
	}
	video := recordToVideo(&record)
	return &video, nil
}

// VideoDetail returns a video with its owner, like count, and whether the
// viewer has liked it. The viewer id may be empty.
func (store *Store) VideoDetail(ctx context.Context, id string, viewerID string) (*VideoSummary, error) {
	video, findErr := store.FindVideo(ctx, id)
	if findErr != nil {
		return nil, findErr
	}

	var likesCount int64
	if err := store.db.WithContext(ctx).Model(&likeRecord{}).
		Where("video_id = ?", id).
		Count(&likesCount).Error; err != nil {
		return nil, fmt.Errorf("store.video_detail.%s: %w", store.driverLabel, err)
	}

	isLiked := false
	if viewerID != "" {
		var viewerRows int64
		if err := store.db.WithContext(ctx).Model(&likeRecord{}).
			Where("video_id = ? AND user_id = ?", id, viewerID).
			Count(&viewerRows).Error; err != nil {
			return nil, fmt.Errorf("store.video_detail.%s: %w", store.driverLabel, err)
		}
		isLiked = viewerRows > 0
	}

	owners, ownersErr := store.ownerSummaries(ctx, []string{video.OwnerID})
	if ownersErr != nil {
		return nil, ownersErr
	}

	return &VideoSummary{
		Video:      *video,
		Owner:      owners[video.OwnerID],
		LikesCount: likesCount,
		IsLiked:    isLiked,
	}, nil
}

// VideoUpdate carries optional video fields; empty strings leave the stored
// value untouched.
type VideoUpdate struct {
	Title        string
	Description  string
	ThumbnailURL string
}

// UpdateVideo applies the non-empty fields of the update.
func (store *Store) UpdateVideo(ctx context.Context, id string, update VideoUpdate) error {
	changes := map[string]interface{}{}
	if strings.TrimSpace(update.Title) != "" {
		changes["title"] = update.Title
	}
	if strings.TrimSpace(update.Description) != "" {
		changes["description"] = update.Description
	}
	if update.ThumbnailURL != "" {
		changes["thumbnail_url"] = update.ThumbnailURL
	}
	if len(changes) == 0 {
		return nil
	}
	result := store.db.WithContext(ctx).Model(&videoRecord{}).Where("id = ?", id).Updates(changes)
	if result.Error != nil {
		return fmt.Errorf("store.update_video.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store.update_video.%s: %w", store.driverLabel, ErrNotFound)
	}
	return nil
}

// SetVideoPublished flips the publish flag.
func (store *Store) SetVideoPublished(ctx context.Context, id string, published bool) error {
	result := store.db.WithContext(ctx).Model(&videoRecord{}).
		Where("id = ?", id).
		Update("is_published", published)
	if result.Error != nil {
		return fmt.Errorf("store.set_published.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store.set_published.%s: %w", store.driverLabel, ErrNotFound)
	}
	return nil
}

// DeleteVideo removes a video and its likes and history rows.
func (store *Store) DeleteVideo(ctx context.Context, id string) error {
	return store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", id).Delete(&likeRecord{}).Error; err != nil {
			return fmt.Errorf("store.delete_video.%s: %w", store.driverLabel, err)
		}
		if err := tx.Where("video_id = ?", id).Delete(&watchHistoryRecord{}).Error; err != nil {
			return fmt.Errorf("store.delete_video.%s: %w", store.driverLabel, err)
		}
		result := tx.Where("id = ?", id).Delete(&videoRecord{})
		if result.Error != nil {
			return fmt.Errorf("store.delete_video.%s: %w", store.driverLabel, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("store.delete_video.%s: %w", store.driverLabel, ErrNotFound)
		}
		return nil
	})
}

// IncrementViews adds one view and returns the new count.
func (store *Store) IncrementViews(ctx context.Context, id string) (int64, error) {
	result := store.db.WithContext(ctx).Model(&videoRecord{}).
		Where("id = ?", id).
		Update("views", gorm.Expr("views + 1"))
	if result.Error != nil {
		return 0, fmt.Errorf("store.increment_views.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, fmt.Errorf("store.increment_views.%s: %w", store.driverLabel, ErrNotFound)
	}
	var record videoRecord
	if err := store.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error; err != nil {
		return 0, fmt.Errorf("store.increment_views.%s: %w", store.driverLabel, err)
	}
	return record.Views, nil
}

// ListVideos returns one page of published videos matching the filters.
func (store *Store) ListVideos(ctx context.Context, params ListVideosParams) (*VideoPage, error) {
	page, limit := normalizePage(params.Page, params.Limit)

	query := store.db.WithContext(ctx).Model(&videoRecord{}).Where("is_published = ?", true)
	if trimmed := strings.TrimSpace(params.Query); trimmed != "" {
		pattern := "%" + strings.ToLower(trimmed) + "%"
		query = query.Where("lower(title) LIKE ? OR lower(description) LIKE ?", pattern, pattern)
	}
	if params.OwnerID != "" {
		query = query.Where("owner_id = ?", params.OwnerID)
	}
	if !params.CreatedAfter.IsZero() {
		query = query.Where("created_at >= ?", params.CreatedAfter)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("store.list_videos.%s: %w", store.driverLabel, err)
	}

	sortColumn, known := videoSortColumns[params.SortBy]
	if !known {
		sortColumn = "created_at"
	}
	direction := "DESC"
	if params.SortAsc {
		direction = "ASC"
	}
	orderClause := sortColumn + " " + direction
	if sortColumn != "created_at" {
		orderClause += ", created_at DESC"
	}

	var records []videoRecord
	if err := query.Order(orderClause).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("store.list_videos.%s: %w", store.driverLabel, err)
	}

	return store.buildPage(ctx, records, total, page, limit)
}

// RecommendedVideos lists unseen published videos from the owners of the
// user's watched videos, most viewed first. With no history it falls back
// to the popular feed.
func (store *Store) RecommendedVideos(ctx context.Context, userID string, page int, limit int) (*VideoPage, error) {
	var watchedIDs []string
	if err := store.db.WithContext(ctx).Model(&watchHistoryRecord{}).
		Where("user_id = ?", userID).
		Pluck("video_id", &watchedIDs).Error; err != nil {
		return nil, fmt.Errorf("store.recommended.%s: %w", store.driverLabel, err)
	}

	if len(watchedIDs) == 0 {
		return store.ListVideos(ctx, ListVideosParams{SortBy: "views", Page: page, Limit: limit})
	}

	var watchedOwnerIDs []string
	if err := store.db.WithContext(ctx).Model(&videoRecord{}).
		Distinct("owner_id").
		Where("id IN ?", watchedIDs).
		Pluck("owner_id", &watchedOwnerIDs).Error; err != nil {
		return nil, fmt.Errorf("store.recommended.%s: %w", store.driverLabel, err)
	}

	page, limit = normalizePage(page, limit)
	query := store.db.WithContext(ctx).Model(&videoRecord{}).
		Where("is_published = ?", true).
		Where("owner_id IN ?", watchedOwnerIDs).
		Where("id NOT IN ?", watchedIDs)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("store.recommended.%s: %w", store.driverLabel, err)
	}

	var records []videoRecord
	if err := query.Order("views DESC, created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("store.recommended.%s: %w", store.driverLabel, err)
	}

	return store.buildPage(ctx, records, total, page, limit)
}

func (store *Store) buildPage(ctx context.Context, records []videoRecord, total int64, page int, limit int) (*VideoPage, error) {
	ownerIDs := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, record := range records {
		if !seen[record.OwnerID] {
			seen[record.OwnerID] = true
			ownerIDs = append(ownerIDs, record.OwnerID)
		}
	}
	owners, ownersErr := store.ownerSummaries(ctx, ownerIDs)
	if ownersErr != nil {
		return nil, ownersErr
	}

	items := make([]VideoSummary, 0, len(records))
	for _, record := range records {
		items = append(items, VideoSummary{
			Video: recordToVideo(&record),
			Owner: owners[record.OwnerID],
		})
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &VideoPage{
		Items:      items,
		TotalItems: total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

func (store *Store) ownerSummaries(ctx context.Context, ownerIDs []string) (map[string]OwnerSummary, error) {
	summaries := make(map[string]OwnerSummary, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return summaries, nil
	}
	var records []userRecord
	if err := store.db.WithContext(ctx).Where("id IN ?", ownerIDs).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("store.owner_summaries.%s: %w", store.driverLabel, err)
	}
	for _, record := range records {
		summaries[record.ID] = OwnerSummary{
			ID:        record.ID,
			Username:  record.Username,
			FullName:  record.FullName,
			AvatarURL: record.AvatarURL,
		}
	}
	return summaries, nil
}

func normalizePage(page int, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func videoToRecord(video *Video) videoRecord {
	return videoRecord{
		ID:              video.ID,
		OwnerID:         video.OwnerID,
		Title:           video.Title,
		Description:     video.Description,
		VideoURL:        video.VideoURL,
		ThumbnailURL:    video.ThumbnailURL,
		DurationSeconds: video.DurationSeconds,
		Views:           video.Views,
		IsPublished:     video.IsPublished,
		CreatedAt:       video.CreatedAt,
		UpdatedAt:       video.UpdatedAt,
	}
}

func recordToVideo(record *videoRecord) Video {
	return Video{
		ID:              record.ID,
		OwnerID:         record.OwnerID,
		Title:           record.Title,
		Description:     record.Description,
		VideoURL:        record.VideoURL,
		ThumbnailURL:    record.ThumbnailURL,
		DurationSeconds: record.DurationSeconds,
		Views:           record.Views,
		IsPublished:     record.IsPublished,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}
}

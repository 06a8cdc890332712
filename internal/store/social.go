package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ToggleLike flips the viewer's like on a video and reports the new state.
func (store *Store) ToggleLike(ctx context.Context, videoID string, userID string) (liked bool, err error) {
	txErr := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("video_id = ? AND user_id = ?", videoID, userID).Delete(&likeRecord{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			liked = false
			return nil
		}
		liked = true
		return tx.Create(&likeRecord{
			VideoID:   videoID,
			UserID:    userID,
			CreatedAt: time.Now().UTC(),
		}).Error
	})
	if txErr != nil {
		return false, fmt.Errorf("store.toggle_like.%s: %w", store.driverLabel, txErr)
	}
	return liked, nil
}

// LikeCount returns how many users have liked the video.
func (store *Store) LikeCount(ctx context.Context, videoID string) (int64, error) {
	var count int64
	if err := store.db.WithContext(ctx).Model(&likeRecord{}).
		Where("video_id = ?", videoID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("store.like_count.%s: %w", store.driverLabel, err)
	}
	return count, nil
}

// ToggleSubscription flips the viewer's subscription to a channel and
// reports the new state. Self-subscription is the caller's job to reject.
func (store *Store) ToggleSubscription(ctx context.Context, subscriberID string, channelID string) (subscribed bool, err error) {
	txErr := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("subscriber_id = ? AND channel_id = ?", subscriberID, channelID).Delete(&subscriptionRecord{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			subscribed = false
			return nil
		}
		subscribed = true
		return tx.Create(&subscriptionRecord{
			SubscriberID: subscriberID,
			ChannelID:    channelID,
			CreatedAt:    time.Now().UTC(),
		}).Error
	})
	if txErr != nil {
		return false, fmt.Errorf("store.toggle_subscription.%s: %w", store.driverLabel, txErr)
	}
	return subscribed, nil
}

// AddWatchHistory upserts a history row; a re-watch only moves WatchedAt
// forward so each video appears once per user.
func (store *Store) AddWatchHistory(ctx context.Context, userID string, videoID string, watchedAt time.Time) error {
	record := watchHistoryRecord{
		UserID:    userID,
		VideoID:   videoID,
		WatchedAt: watchedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "video_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"watched_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("store.add_history.%s: %w", store.driverLabel, err)
	}
	return nil
}

// WatchHistoryEntry is a watched video with its owner and watch time.
type WatchHistoryEntry struct {
	Video     Video        `json:"video"`
	Owner     OwnerSummary `json:"owner"`
	WatchedAt time.Time    `json:"watchedAt"`
}

// WatchHistory lists the user's watched videos, most recent first. Videos
// deleted since watching are dropped from the result.
func (store *Store) WatchHistory(ctx context.Context, userID string, page int, limit int) ([]WatchHistoryEntry, error) {
	page, limit = normalizePage(page, limit)

	var historyRows []watchHistoryRecord
	if err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("watched_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&historyRows).Error; err != nil {
		return nil, fmt.Errorf("store.watch_history.%s: %w", store.driverLabel, err)
	}
	if len(historyRows) == 0 {
		return []WatchHistoryEntry{}, nil
	}

	videoIDs := make([]string, 0, len(historyRows))
	for _, row := range historyRows {
		videoIDs = append(videoIDs, row.VideoID)
	}
	var videoRows []videoRecord
	if err := store.db.WithContext(ctx).Where("id IN ?", videoIDs).Find(&videoRows).Error; err != nil {
		return nil, fmt.Errorf("store.watch_history.%s: %w", store.driverLabel, err)
	}
	videosByID := make(map[string]videoRecord, len(videoRows))
	ownerIDs := make([]string, 0, len(videoRows))
	seenOwners := make(map[string]bool, len(videoRows))
	for _, row := range videoRows {
		videosByID[row.ID] = row
		if !seenOwners[row.OwnerID] {
			seenOwners[row.OwnerID] = true
			ownerIDs = append(ownerIDs, row.OwnerID)
		}
	}
	owners, ownersErr := store.ownerSummaries(ctx, ownerIDs)
	if ownersErr != nil {
		return nil, ownersErr
	}

	entries := make([]WatchHistoryEntry, 0, len(historyRows))
	for _, row := range historyRows {
		videoRow, present := videosByID[row.VideoID]
		if !present {
			continue
		}
		entries = append(entries, WatchHistoryEntry{
			Video:     recordToVideo(&videoRow),
			Owner:     owners[videoRow.OwnerID],
			WatchedAt: row.WatchedAt,
		})
	}
	return entries, nil
}

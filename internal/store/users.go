package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vibble/vibble/internal/authkit"
)

// CreateCredential inserts a new identity. Username and email are stored
// lowercased; duplicates on either are rejected.
func (store *Store) CreateCredential(ctx context.Context, credential *authkit.Credential) error {
	username := strings.ToLower(strings.TrimSpace(credential.Username))
	email := strings.ToLower(strings.TrimSpace(credential.Email))

	var existing int64
	countErr := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("username = ? OR email = ?", username, email).
		Count(&existing).Error
	if countErr != nil {
		return fmt.Errorf("store.create_credential.%s: %w", store.driverLabel, countErr)
	}
	if existing > 0 {
		return fmt.Errorf("store.create_credential.%s: %w", store.driverLabel, authkit.ErrDuplicateIdentity)
	}

	if credential.ID == "" {
		credential.ID = uuid.NewString()
	}
	credential.Username = username
	credential.Email = email
	now := time.Now().UTC()
	credential.CreatedAt = now
	credential.UpdatedAt = now

	record := credentialToRecord(credential)
	if createErr := store.db.WithContext(ctx).Create(&record).Error; createErr != nil {
		// The precheck races with concurrent registrations; the unique
		// indexes are the authority.
		if errors.Is(createErr, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("store.create_credential.%s: %w", store.driverLabel, authkit.ErrDuplicateIdentity)
		}
		return fmt.Errorf("store.create_credential.%s: %w", store.driverLabel, createErr)
	}
	return nil
}

// FindCredentialByLogin matches username (case-insensitive) or email.
func (store *Store) FindCredentialByLogin(ctx context.Context, identifier string) (*authkit.Credential, error) {
	normalized := strings.ToLower(strings.TrimSpace(identifier))
	var record userRecord
	err := store.db.WithContext(ctx).
		Where("username = ? OR email = ?", normalized, normalized).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store.find_by_login.%s: %w", store.driverLabel, authkit.ErrCredentialNotFound)
		}
		return nil, fmt.Errorf("store.find_by_login.%s: %w", store.driverLabel, err)
	}
	return recordToCredential(&record), nil
}

// FindCredentialByID resolves an identity by its id.
func (store *Store) FindCredentialByID(ctx context.Context, id string) (*authkit.Credential, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store.find_by_id.%s: %w", store.driverLabel, authkit.ErrCredentialNotFound)
		}
		return nil, fmt.Errorf("store.find_by_id.%s: %w", store.driverLabel, err)
	}
	return recordToCredential(&record), nil
}

// SetRefreshToken unconditionally overwrites the refresh slot.
func (store *Store) SetRefreshToken(ctx context.Context, id string, token string) error {
	result := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ?", id).
		Update("current_refresh_token", token)
	if result.Error != nil {
		return fmt.Errorf("store.set_refresh.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store.set_refresh.%s: %w", store.driverLabel, authkit.ErrCredentialNotFound)
	}
	return nil
}

// SwapRefreshToken replaces the slot only when it still equals the
// presented value. The conditional update is the compare-and-set that
// serializes racing rotations.
func (store *Store) SwapRefreshToken(ctx context.Context, id string, presented string, next string) error {
	result := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ? AND current_refresh_token = ?", id, presented).
		Update("current_refresh_token", next)
	if result.Error != nil {
		return fmt.Errorf("store.swap_refresh.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		var record userRecord
		findErr := store.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("store.swap_refresh.%s: %w", store.driverLabel, authkit.ErrCredentialNotFound)
		}
		if findErr != nil {
			return fmt.Errorf("store.swap_refresh.%s: %w", store.driverLabel, findErr)
		}
		return fmt.Errorf("store.swap_refresh.%s: %w", store.driverLabel, authkit.ErrRefreshTokenMismatch)
	}
	return nil
}

// ClearRefreshToken empties the slot. Idempotent.
func (store *Store) ClearRefreshToken(ctx context.Context, id string) error {
	result := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ?", id).
		Update("current_refresh_token", "")
	if result.Error != nil {
		return fmt.Errorf("store.clear_refresh.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store.clear_refresh.%s: %w", store.driverLabel, authkit.ErrCredentialNotFound)
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (store *Store) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	result := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ?", id).
		Update("password_hash", passwordHash)
	if result.Error != nil {
		return fmt.Errorf("store.update_password.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store.update_password.%s: %w", store.driverLabel, authkit.ErrCredentialNotFound)
	}
	return nil
}

// ProfileUpdate carries optional profile fields; empty strings leave the
// stored value untouched.
type ProfileUpdate struct {
	FullName      string
	AvatarURL     string
	CoverImageURL string
}

// UpdateProfile applies the non-empty fields of the update.
func (store *Store) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) error {
	changes := map[string]interface{}{}
	if update.FullName != "" {
		changes["full_name"] = update.FullName
	}
	if update.AvatarURL != "" {
		changes["avatar_url"] = update.AvatarURL
	}
	if update.CoverImageURL != "" {
		changes["cover_image_url"] = update.CoverImageURL
	}
	if len(changes) == 0 {
		return nil
	}
	result := store.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", id).Updates(changes)
	if result.Error != nil {
		return fmt.Errorf("store.update_profile.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store.update_profile.%s: %w", store.driverLabel, authkit.ErrCredentialNotFound)
	}
	return nil
}

// ChannelProfile is the public channel page: profile plus derived counts.
type ChannelProfile struct {
	authkit.Profile
	SubscriberCount          int64 `json:"subscriberCount"`
	ChannelSubscribedToCount int64 `json:"channelSubscribedToCount"`
	IsSubscribed             bool  `json:"isSubscribed"`
}

// FindChannelProfile resolves a channel page by username. The viewer id may
// be empty for anonymous requests; IsSubscribed is false then.
func (store *Store) FindChannelProfile(ctx context.Context, username string, viewerID string) (*ChannelProfile, error) {
	credential, findErr := store.FindCredentialByLogin(ctx, username)
	if findErr != nil {
		return nil, findErr
	}

	var subscriberCount int64
	if err := store.db.WithContext(ctx).Model(&subscriptionRecord{}).
		Where("channel_id = ?", credential.ID).
		Count(&subscriberCount).Error; err != nil {
		return nil, fmt.Errorf("store.channel_profile.%s: %w", store.driverLabel, err)
	}

	var subscribedToCount int64
	if err := store.db.WithContext(ctx).Model(&subscriptionRecord{}).
		Where("subscriber_id = ?", credential.ID).
		Count(&subscribedToCount).Error; err != nil {
		return nil, fmt.Errorf("store.channel_profile.%s: %w", store.driverLabel, err)
	}

	isSubscribed := false
	if viewerID != "" {
		var viewerRows int64
		if err := store.db.WithContext(ctx).Model(&subscriptionRecord{}).
			Where("channel_id = ? AND subscriber_id = ?", credential.ID, viewerID).
			Count(&viewerRows).Error; err != nil {
			return nil, fmt.Errorf("store.channel_profile.%s: %w", store.driverLabel, err)
		}
		isSubscribed = viewerRows > 0
	}

	return &ChannelProfile{
		Profile:                  credential.Profile(),
		SubscriberCount:          subscriberCount,
		ChannelSubscribedToCount: subscribedToCount,
		IsSubscribed:             isSubscribed,
	}, nil
}

func credentialToRecord(credential *authkit.Credential) userRecord {
	return userRecord{
		ID:                  credential.ID,
		Username:            credential.Username,
		Email:               credential.Email,
		FullName:            credential.FullName,
		AvatarURL:           credential.AvatarURL,
		CoverImageURL:       credential.CoverImageURL,
		PasswordHash:        credential.PasswordHash,
		CurrentRefreshToken: credential.CurrentRefreshToken,
		CreatedAt:           credential.CreatedAt,
		UpdatedAt:           credential.UpdatedAt,
	}
}

func recordToCredential(record *userRecord) *authkit.Credential {
	return &authkit.Credential{
		ID:                  record.ID,
		Username:            record.Username,
		Email:               record.Email,
		FullName:            record.FullName,
		AvatarURL:           record.AvatarURL,
		CoverImageURL:       record.CoverImageURL,
		PasswordHash:        record.PasswordHash,
		CurrentRefreshToken: record.CurrentRefreshToken,
		CreatedAt:           record.CreatedAt,
		UpdatedAt:           record.UpdatedAt,
	}
}

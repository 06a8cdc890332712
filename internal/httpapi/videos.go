package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"github.com/vibble/vibble/internal/apperr"
	"github.com/vibble/vibble/internal/authkit"
	"github.com/vibble/vibble/internal/store"
)

const trendingWindow = 7 * 24 * time.Hour

func (server *Server) handleListVideos(contextGin *gin.Context) {
	params := store.ListVideosParams{
		Query:   strings.TrimSpace(contextGin.Query("query")),
		OwnerID: strings.TrimSpace(contextGin.Query("userId")),
		SortBy:  contextGin.Query("sortBy"),
		SortAsc: strings.EqualFold(contextGin.Query("sortType"), "asc"),
		Page:    queryInt(contextGin, "page", 1),
		Limit:   queryInt(contextGin, "limit", 10),
	}
	page, listErr := server.data.ListVideos(contextGin.Request.Context(), params)
	if listErr != nil {
		respondError(contextGin, server.logger, listErr)
		return
	}
	respondSuccess(contextGin, http.StatusOK, page, "Videos fetched successfully")
}

func (server *Server) handleSearchVideos(contextGin *gin.Context) {
	query := strings.TrimSpace(contextGin.Query("query"))
	if query == "" {
		respondError(contextGin, server.logger, apperr.BadRequest("Search query is required"))
		return
	}
	page, searchErr := server.data.ListVideos(contextGin.Request.Context(), store.ListVideosParams{
		Query:  query,
		SortBy: "views",
		Page:   queryInt(contextGin, "page", 1),
		Limit:  queryInt(contextGin, "limit", 10),
	})
	if searchErr != nil {
		respondError(contextGin, server.logger, searchErr)
		return
	}
	respondSuccess(contextGin, http.StatusOK, page, "Search results fetched successfully")
}

func (server *Server) handleTrendingVideos(contextGin *gin.Context) {
	page, trendingErr := server.data.ListVideos(contextGin.Request.Context(), store.ListVideosParams{
		SortBy:       "views",
		CreatedAfter: time.Now().UTC().Add(-trendingWindow),
		Page:         queryInt(contextGin, "page", 1),
		Limit:        queryInt(contextGin, "limit", 10),
	})
	if trendingErr != nil {
		respondError(contextGin, server.logger, trendingErr)
		return
	}
	respondSuccess(contextGin, http.StatusOK, page, "Trending videos fetched successfully")
}

func (server *Server) handleVideoDetail(contextGin *gin.Context) {
	videoID := contextGin.Param("videoId")
	if _, parseErr := uuid.Parse(videoID); parseErr != nil {
		respondError(contextGin, server.logger, apperr.BadRequest("Invalid video id"))
		return
	}
	viewerID := ""
	if viewer, authenticated := authkit.CurrentUser(contextGin); authenticated {
		viewerID = viewer.ID
	}
	detail, detailErr := server.data.VideoDetail(contextGin.Request.Context(), videoID, viewerID)
	if detailErr != nil {
		if errors.Is(detailErr, store.ErrNotFound) {
			respondError(contextGin, server.logger, apperr.NotFound("Video not found"))
			return
		}
		respondError(contextGin, server.logger, detailErr)
		return
	}
	if !detail.IsPublished && detail.OwnerID != viewerID {
		respondError(contextGin, server.logger, apperr.NotFound("Video not found"))
		return
	}
	respondSuccess(contextGin, http.StatusOK, detail, "Video fetched successfully")
}

// handleRecordView counts a view once per viewer per dedupe window and, for
// authenticated viewers, stamps the watch history.
func (server *Server) handleRecordView(contextGin *gin.Context) {
	videoID := contextGin.Param("videoId")
	video, findErr := server.data.FindVideo(contextGin.Request.Context(), videoID)
	if findErr != nil {
		if errors.Is(findErr, store.ErrNotFound) {
			respondError(contextGin, server.logger, apperr.NotFound("Video not found"))
			return
		}
		respondError(contextGin, server.logger, findErr)
		return
	}

	viewerKey := contextGin.ClientIP()
	viewerID := ""
	if viewer, authenticated := authkit.CurrentUser(contextGin); authenticated {
		viewerID = viewer.ID
		viewerKey = viewer.ID
	}

	views := video.Views
	if server.views.Mark(videoID + "|" + viewerKey) {
		counted, incrementErr := server.data.IncrementViews(contextGin.Request.Context(), videoID)
		if incrementErr != nil {
			respondError(contextGin, server.logger, incrementErr)
			return
		}
		views = counted
	}

	if viewerID != "" {
		if historyErr := server.data.AddWatchHistory(contextGin.Request.Context(), viewerID, videoID, time.Now().UTC()); historyErr != nil {
			respondError(contextGin, server.logger, historyErr)
			return
		}
	}
	respondSuccess(contextGin, http.StatusOK, gin.H{"views": views}, "View recorded")
}

func (server *Server) handleUploadVideo(contextGin *gin.Context) {
	profile, _ := authkit.CurrentUser(contextGin)

	title := strings.TrimSpace(contextGin.PostForm("title"))
	description := strings.TrimSpace(contextGin.PostForm("description"))
	if validateErr := validation.Validate(title, validation.Required, validation.Length(1, 200)); validateErr != nil {
		respondError(contextGin, server.logger, apperr.BadRequest("Title is required"))
		return
	}

	videoHeader, videoErr := contextGin.FormFile("videoFile")
	if videoErr != nil {
		respondError(contextGin, server.logger, apperr.BadRequest("Video file is required"))
		return
	}
	thumbnailHeader, thumbnailErr := contextGin.FormFile("thumbnail")
	if thumbnailErr != nil {
		respondError(contextGin, server.logger, apperr.BadRequest("Thumbnail file is required"))
		return
	}

	videoURL, uploadErr := server.uploadFormFile(contextGin, videoHeader, "videos")
	if uploadErr != nil {
		respondError(contextGin, server.logger, uploadErr)
		return
	}
	thumbnailURL, uploadErr := server.uploadFormFile(contextGin, thumbnailHeader, "thumbnails")
	if uploadErr != nil {
		respondError(contextGin, server.logger, uploadErr)
		return
	}

	video := &store.Video{
		OwnerID:         profile.ID,
		Title:           title,
		Description:     description,
		VideoURL:        videoURL,
		ThumbnailURL:    thumbnailURL,
		DurationSeconds: queryFormInt(contextGin, "duration", 0),
		IsPublished:     true,
	}
	if createErr := server.data.CreateVideo(contextGin.Request.Context(), video); createErr != nil {
		respondError(contextGin, server.logger, createErr)
		return
	}
	respondSuccess(contextGin, http.StatusCreated, video, "Video uploaded successfully")
}

func (server *Server) handleUpdateVideo(contextGin *gin.Context) {
	video, ok := server.requireOwnedVideo(contextGin)
	if !ok {
		return
	}

	update := store.VideoUpdate{}
	if strings.Contains(contextGin.ContentType(), "multipart/form-data") {
		update.Title = strings.TrimSpace(contextGin.PostForm("title"))
		update.Description = strings.TrimSpace(contextGin.PostForm("description"))
		if thumbnailHeader, thumbnailErr := contextGin.FormFile("thumbnail"); thumbnailErr == nil {
			thumbnailURL, uploadErr := server.uploadFormFile(contextGin, thumbnailHeader, "thumbnails")
			if uploadErr != nil {
				respondError(contextGin, server.logger, uploadErr)
				return
			}
			update.ThumbnailURL = thumbnailURL
		}
	} else {
		var request updateVideoRequest
		if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
			respondError(contextGin, server.logger, apperr.BadRequest("Invalid request body"))
			return
		}
		update.Title = strings.TrimSpace(request.Title)
		update.Description = strings.TrimSpace(request.Description)
	}

	if updateErr := server.data.UpdateVideo(contextGin.Request.Context(), video.ID, update); updateErr != nil {
		respondError(contextGin, server.logger, updateErr)
		return
	}
	refreshed, findErr := server.data.FindVideo(contextGin.Request.Context(), video.ID)
	if findErr != nil {
		respondError(contextGin, server.logger, findErr)
		return
	}
	respondSuccess(contextGin, http.StatusOK, refreshed, "Video updated successfully")
}

func (server *Server) handleDeleteVideo(contextGin *gin.Context) {
	video, ok := server.requireOwnedVideo(contextGin)
	if !ok {
		return
	}
	if deleteErr := server.data.DeleteVideo(contextGin.Request.Context(), video.ID); deleteErr != nil {
		respondError(contextGin, server.logger, deleteErr)
		return
	}
	respondSuccess(contextGin, http.StatusOK, nil, "Video deleted successfully")
}

func (server *Server) handleTogglePublish(contextGin *gin.Context) {
	video, ok := server.requireOwnedVideo(contextGin)
	if !ok {
		return
	}
	next := !video.IsPublished
	if toggleErr := server.data.SetVideoPublished(contextGin.Request.Context(), video.ID, next); toggleErr != nil {
		respondError(contextGin, server.logger, toggleErr)
		return
	}
	respondSuccess(contextGin, http.StatusOK, gin.H{"isPublished": next}, "Publish state toggled")
}

func (server *Server) handleToggleLike(contextGin *gin.Context) {
	profile, _ := authkit.CurrentUser(contextGin)
	videoID := contextGin.Param("videoId")
	if _, findErr := server.data.FindVideo(contextGin.Request.Context(), videoID); findErr != nil {
		if errors.Is(findErr, store.ErrNotFound) {
			respondError(contextGin, server.logger, apperr.NotFound("Video not found"))
			return
		}
		respondError(contextGin, server.logger, findErr)
		return
	}
	liked, toggleErr := server.data.ToggleLike(contextGin.Request.Context(), videoID, profile.ID)
	if toggleErr != nil {
		respondError(contextGin, server.logger, toggleErr)
		return
	}
	likes, countErr := server.data.LikeCount(contextGin.Request.Context(), videoID)
	if countErr != nil {
		respondError(contextGin, server.logger, countErr)
		return
	}
	message := "Video liked"
	if !liked {
		message = "Like removed"
	}
	respondSuccess(contextGin, http.StatusOK, gin.H{"liked": liked, "likesCount": likes}, message)
}

func (server *Server) handleChannelVideos(contextGin *gin.Context) {
	ownerID := contextGin.Param("userId")
	if _, findErr := server.credentials.FindCredentialByID(contextGin.Request.Context(), ownerID); findErr != nil {
		if errors.Is(findErr, authkit.ErrCredentialNotFound) {
			respondError(contextGin, server.logger, apperr.NotFound("Channel does not exist"))
			return
		}
		respondError(contextGin, server.logger, findErr)
		return
	}
	page, listErr := server.data.ListVideos(contextGin.Request.Context(), store.ListVideosParams{
		OwnerID: ownerID,
		SortBy:  contextGin.Query("sortBy"),
		SortAsc: strings.EqualFold(contextGin.Query("sortType"), "asc"),
		Page:    queryInt(contextGin, "page", 1),
		Limit:   queryInt(contextGin, "limit", 10),
	})
	if listErr != nil {
		respondError(contextGin, server.logger, listErr)
		return
	}
	respondSuccess(contextGin, http.StatusOK, page, "Channel videos fetched successfully")
}

func (server *Server) handleRecommendedFeed(contextGin *gin.Context) {
	profile, _ := authkit.CurrentUser(contextGin)
	page, feedErr := server.data.RecommendedVideos(contextGin.Request.Context(), profile.ID,
		queryInt(contextGin, "page", 1), queryInt(contextGin, "limit", 10))
	if feedErr != nil {
		respondError(contextGin, server.logger, feedErr)
		return
	}
	respondSuccess(contextGin, http.StatusOK, page, "Recommended videos fetched successfully")
}

// requireOwnedVideo loads the video and enforces that the caller owns it.
// It writes the error response itself when the check fails.
func (server *Server) requireOwnedVideo(contextGin *gin.Context) (*store.Video, bool) {
	profile, _ := authkit.CurrentUser(contextGin)
	videoID := contextGin.Param("videoId")
	video, findErr := server.data.FindVideo(contextGin.Request.Context(), videoID)
	if findErr != nil {
		if errors.Is(findErr, store.ErrNotFound) {
			respondError(contextGin, server.logger, apperr.NotFound("Video not found"))
			return nil, false
		}
		respondError(contextGin, server.logger, findErr)
		return nil, false
	}
	if video.OwnerID != profile.ID {
		respondError(contextGin, server.logger, apperr.Forbidden("You do not own this video"))
		return nil, false
	}
	return video, true
}

func queryFormInt(contextGin *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(contextGin.PostForm(name))
	if raw == "" {
		return fallback
	}
	parsed, parseErr := strconv.Atoi(raw)
	if parseErr != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

package httpapi

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vibble/vibble/internal/apperr"
	"github.com/vibble/vibble/internal/authkit"
	"github.com/vibble/vibble/internal/mediastore"
	"github.com/vibble/vibble/internal/store"
)

func (server *Server) handleRegister(contextGin *gin.Context) {
	form := registerForm{
		FullName: strings.TrimSpace(contextGin.PostForm("fullName")),
		Email:    strings.TrimSpace(contextGin.PostForm("email")),
		Username: strings.TrimSpace(contextGin.PostForm("username")),
		Password: contextGin.PostForm("password"),
	}
	if validateErr := form.Validate(); validateErr != nil {
		respondError(contextGin, server.logger, apperr.BadRequest(validateErr.Error()))
		return
	}

	avatarHeader, avatarErr := contextGin.FormFile("avatar")
	if avatarErr != nil {
		respondError(contextGin, server.logger, apperr.BadRequest("Avatar file is required"))
		return
	}
	avatarURL, uploadErr := server.uploadFormFile(contextGin, avatarHeader, "avatars")
	if uploadErr != nil {
		respondError(contextGin, server.logger, uploadErr)
		return
	}
	coverImageURL := ""
	if coverHeader, coverErr := contextGin.FormFile("coverImage"); coverErr == nil {
		coverImageURL, uploadErr = server.uploadFormFile(contextGin, coverHeader, "covers")
		if uploadErr != nil {
			respondError(contextGin, server.logger, uploadErr)
			return
		}
	}

	passwordHash, hashErr := authkit.HashPassword(form.Password)
	if hashErr != nil {
		server.logger.Error("password hash failed", zap.Error(hashErr))
		respondError(contextGin, server.logger, apperr.Internal())
		return
	}

	credential := &authkit.Credential{
		Username:      form.Username,
		Email:         form.Email,
		FullName:      form.FullName,
		AvatarURL:     avatarURL,
		CoverImageURL: coverImageURL,
		PasswordHash:  passwordHash,
	}
	if createErr := server.credentials.CreateCredential(contextGin.Request.Context(), credential); createErr != nil {
		if errors.Is(createErr, authkit.ErrDuplicateIdentity) {
			respondError(contextGin, server.logger, apperr.Conflict("User with email or username already exists"))
			return
		}
		respondError(contextGin, server.logger, createErr)
		return
	}
	respondSuccess(contextGin, http.StatusCreated, credential.Profile(), "User registered successfully")
}

func (server *Server) handleLogin(contextGin *gin.Context) {
	var request loginRequest
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		respondError(contextGin, server.logger, apperr.BadRequest("Invalid request body"))
		return
	}
	pair, profile, loginErr := server.sessions.Login(contextGin.Request.Context(), request.identifier(), request.Password)
	if loginErr != nil {
		respondError(contextGin, server.logger, loginErr)
		return
	}
	server.setAuthCookies(contextGin, pair)
	respondSuccess(contextGin, http.StatusOK, gin.H{
		"user":         profile,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "User logged in successfully")
}

func (server *Server) handleGoogleLogin(contextGin *gin.Context) {
	if server.google == nil {
		respondError(contextGin, server.logger, apperr.New(http.StatusNotImplemented, "Google sign-in is not configured"))
		return
	}
	var request googleLoginRequest
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		respondError(contextGin, server.logger, apperr.BadRequest("Invalid request body"))
		return
	}
	pair, profile, signInErr := server.google.SignIn(contextGin.Request.Context(), request.IDToken)
	if signInErr != nil {
		respondError(contextGin, server.logger, signInErr)
		return
	}
	server.setAuthCookies(contextGin, pair)
	respondSuccess(contextGin, http.StatusOK, gin.H{
		"user":         profile,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "User logged in successfully")
}

func (server *Server) handleLogout(contextGin *gin.Context) {
	profile, _ := authkit.CurrentUser(contextGin)
	if logoutErr := server.sessions.Logout(contextGin.Request.Context(), profile.ID); logoutErr != nil {
		respondError(contextGin, server.logger, logoutErr)
		return
	}
	server.clearAuthCookies(contextGin)
	respondSuccess(contextGin, http.StatusOK, nil, "User logged out")
}

func (server *Server) handleRefresh(contextGin *gin.Context) {
	presented := ""
	if cookie, cookieErr := contextGin.Request.Cookie(server.authConfig.RefreshCookieName); cookieErr == nil && cookie != nil {
		presented = cookie.Value
	}
	if presented == "" {
		var request refreshRequest
		if bindErr := contextGin.ShouldBindJSON(&request); bindErr == nil {
			presented = request.RefreshToken
		}
	}

	pair, refreshErr := server.sessions.Refresh(contextGin.Request.Context(), presented)
	if refreshErr != nil {
		respondError(contextGin, server.logger, refreshErr)
		return
	}
	server.setAuthCookies(contextGin, pair)
	respondSuccess(contextGin, http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "Access token refreshed")
}

func (server *Server) handleChangePassword(contextGin *gin.Context) {
	profile, _ := authkit.CurrentUser(contextGin)
	var request changePasswordRequest
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		respondError(contextGin, server.logger, apperr.BadRequest("Invalid request body"))
		return
	}
	changeErr := server.sessions.ChangePassword(contextGin.Request.Context(), profile.ID, request.OldPassword, request.NewPassword)
	if changeErr != nil {
		respondError(contextGin, server.logger, changeErr)
		return
	}
	respondSuccess(contextGin, http.StatusOK, nil, "Password changed successfully")
}

func (server *Server) handleCurrentUser(contextGin *gin.Context) {
	profile, _ := authkit.CurrentUser(contextGin)
	respondSuccess(contextGin, http.StatusOK, profile, "Current user fetched successfully")
}

func (server *Server) handleUpdateProfile(contextGin *gin.Context) {
	profile, _ := authkit.CurrentUser(contextGin)

	update := struct {
		fullName      string
		avatarURL     string
		coverImageURL string
	}{}

	contentType := contextGin.ContentType()
	if strings.Contains(contentType, "multipart/form-data") {
		update.fullName = strings.TrimSpace(contextGin.PostForm("fullName"))
		if avatarHeader, avatarErr := contextGin.FormFile("avatar"); avatarErr == nil {
			uploadedURL, uploadErr := server.uploadFormFile(contextGin, avatarHeader, "avatars")
			if uploadErr != nil {
				respondError(contextGin, server.logger, uploadErr)
				return
			}
			update.avatarURL = uploadedURL
		}
		if coverHeader, coverErr := contextGin.FormFile("coverImage"); coverErr == nil {
			uploadedURL, uploadErr := server.uploadFormFile(contextGin, coverHeader, "covers")
			if uploadErr != nil {
				respondError(contextGin, server.logger, uploadErr)
				return
			}
			update.coverImageURL = uploadedURL
		}
	} else {
		var request updateProfileRequest
		if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
			respondError(contextGin, server.logger, apperr.BadRequest("Invalid request body"))
			return
		}
		update.fullName = strings.TrimSpace(request.FullName)
	}

	if update.fullName == "" && update.avatarURL == "" && update.coverImageURL == "" {
		respondError(contextGin, server.logger, apperr.BadRequest("Nothing to update"))
		return
	}

	updateErr := server.data.UpdateProfile(contextGin.Request.Context(), profile.ID, store.ProfileUpdate{
		FullName:      update.fullName,
		AvatarURL:     update.avatarURL,
		CoverImageURL: update.coverImageURL,
	})
	if updateErr != nil {
		respondError(contextGin, server.logger, updateErr)
		return
	}
	refreshed, findErr := server.credentials.FindCredentialByID(contextGin.Request.Context(), profile.ID)
	if findErr != nil {
		respondError(contextGin, server.logger, findErr)
		return
	}
	respondSuccess(contextGin, http.StatusOK, refreshed.Profile(), "Profile updated successfully")
}

func (server *Server) handleChannelProfile(contextGin *gin.Context) {
	username := strings.TrimSpace(contextGin.Param("username"))
	if username == "" {
		respondError(contextGin, server.logger, apperr.BadRequest("Username is required"))
		return
	}
	viewerID := ""
	if viewer, authenticated := authkit.CurrentUser(contextGin); authenticated {
		viewerID = viewer.ID
	}
	channel, findErr := server.data.FindChannelProfile(contextGin.Request.Context(), username, viewerID)
	if findErr != nil {
		if errors.Is(findErr, authkit.ErrCredentialNotFound) {
			respondError(contextGin, server.logger, apperr.NotFound("Channel does not exist"))
			return
		}
		respondError(contextGin, server.logger, findErr)
		return
	}
	respondSuccess(contextGin, http.StatusOK, channel, "Channel fetched successfully")
}

func (server *Server) handleToggleSubscription(contextGin *gin.Context) {
	profile, _ := authkit.CurrentUser(contextGin)
	username := strings.TrimSpace(contextGin.Param("username"))

	channel, findErr := server.credentials.FindCredentialByLogin(contextGin.Request.Context(), username)
	if findErr != nil {
		if errors.Is(findErr, authkit.ErrCredentialNotFound) {
			respondError(contextGin, server.logger, apperr.NotFound("Channel does not exist"))
			return
		}
		respondError(contextGin, server.logger, findErr)
		return
	}
	if channel.ID == profile.ID {
		respondError(contextGin, server.logger, apperr.BadRequest("You cannot subscribe to your own channel"))
		return
	}

	subscribed, toggleErr := server.data.ToggleSubscription(contextGin.Request.Context(), profile.ID, channel.ID)
	if toggleErr != nil {
		respondError(contextGin, server.logger, toggleErr)
		return
	}
	message := "Subscribed"
	if !subscribed {
		message = "Unsubscribed"
	}
	respondSuccess(contextGin, http.StatusOK, gin.H{"subscribed": subscribed}, message)
}

func (server *Server) handleWatchHistory(contextGin *gin.Context) {
	profile, _ := authkit.CurrentUser(contextGin)
	page := queryInt(contextGin, "page", 1)
	limit := queryInt(contextGin, "limit", 10)
	entries, historyErr := server.data.WatchHistory(contextGin.Request.Context(), profile.ID, page, limit)
	if historyErr != nil {
		respondError(contextGin, server.logger, historyErr)
		return
	}
	respondSuccess(contextGin, http.StatusOK, entries, "Watch history fetched successfully")
}

func (server *Server) uploadFormFile(contextGin *gin.Context, header *multipart.FileHeader, category string) (string, error) {
	file, openErr := header.Open()
	if openErr != nil {
		return "", apperr.BadRequest("Unreadable upload")
	}
	defer file.Close()
	key := mediastore.ObjectKey(category, header.Filename)
	url, uploadErr := server.media.Upload(contextGin.Request.Context(), key, header.Header.Get("Content-Type"), file)
	if uploadErr != nil {
		server.logger.Error("media upload failed", zap.String("key", key), zap.Error(uploadErr))
		return "", apperr.Internal()
	}
	return url, nil
}

func queryInt(contextGin *gin.Context, name string, fallback int) int {
	raw := contextGin.Query(name)
	if raw == "" {
		return fallback
	}
	parsed, parseErr := strconv.Atoi(raw)
	if parseErr != nil {
		return fallback
	}
	return parsed
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/vibble/vibble/internal/authkit"
	"github.com/vibble/vibble/internal/mediastore"
	"github.com/vibble/vibble/internal/store"
)

func newTestAuthConfig() authkit.Config {
	return authkit.Config{
		AccessTokenSecret:  []byte("access-secret"),
		RefreshTokenSecret: []byte("refresh-secret"),
		Issuer:             "vibble-test",
		AccessCookieName:   "accessToken",
		RefreshCookieName:  "refreshToken",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    10 * 24 * time.Hour,
		SameSiteMode:       http.SameSiteLaxMode,
		AllowInsecureHTTP:  true,
	}
}

func newTestServer(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	data, openErr := store.Open(context.Background(), "sqlite::memory:")
	if openErr != nil {
		t.Fatalf("open store: %v", openErr)
	}

	authConfig := newTestAuthConfig()
	logger := zaptest.NewLogger(t)
	codec := authkit.NewTokenCodec(authConfig, authkit.NewSystemClock())
	sessions := authkit.NewSessionManager(data, codec, logger, nil)
	gate := authkit.NewGate(codec, data, authConfig)

	server := NewServer(ServerOptions{
		Data:        data,
		Credentials: data,
		Sessions:    sessions,
		Gate:        gate,
		Media:       mediastore.NewMemoryStore(),
		AuthConfig:  authConfig,
		Logger:      logger,
	})
	router, routerErr := server.Router()
	if routerErr != nil {
		t.Fatalf("build router: %v", routerErr)
	}
	return router, data
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var body testEnvelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode envelope: %v: %s", err, recorder.Body.String())
	}
	return body
}

func multipartPayload(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buffer := &bytes.Buffer{}
	writer := multipart.NewWriter(buffer)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	for name, filename := range files {
		part, err := writer.CreateFormFile(name, filename)
		if err != nil {
			t.Fatalf("create file %s: %v", name, err)
		}
		if _, err := part.Write([]byte("binary-" + name)); err != nil {
			t.Fatalf("write file %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buffer, writer.FormDataContentType()
}

func registerUser(t *testing.T, router *gin.Engine, username string, email string, password string) {
	t.Helper()
	body, contentType := multipartPayload(t,
		map[string]string{
			"fullName": "Test " + username,
			"email":    email,
			"username": username,
			"password": password,
		},
		map[string]string{"avatar": "avatar.png"},
	)
	request := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", body)
	request.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", username, recorder.Code, recorder.Body.String())
	}
}

type sessionTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func loginUser(t *testing.T, router *gin.Engine, identifier string, password string) sessionTokens {
	t.Helper()
	payload := fmt.Sprintf(`{"email":%q,"password":%q}`, identifier, password)
	request := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", strings.NewReader(payload))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", identifier, recorder.Code, recorder.Body.String())
	}
	body := decodeEnvelope(t, recorder)
	var tokens sessionTokens
	if err := json.Unmarshal(body.Data, &tokens); err != nil {
		t.Fatalf("decode tokens: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected non-empty token pair")
	}
	return tokens
}

func authedRequest(method string, target string, body *bytes.Buffer, accessToken string) *http.Request {
	var request *http.Request
	if body == nil {
		request = httptest.NewRequest(method, target, nil)
	} else {
		request = httptest.NewRequest(method, target, body)
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)
	return request
}

func jsonRequest(method string, target string, payload string) *http.Request {
	request := httptest.NewRequest(method, target, strings.NewReader(payload))
	request.Header.Set("Content-Type", "application/json")
	return request
}

func uploadVideo(t *testing.T, router *gin.Engine, accessToken string, title string) string {
	t.Helper()
	body, contentType := multipartPayload(t,
		map[string]string{"title": title, "description": "about " + title, "duration": "90"},
		map[string]string{"videoFile": title + ".mp4", "thumbnail": title + ".jpg"},
	)
	request := authedRequest(http.MethodPost, "/api/v1/videos/upload", body, accessToken)
	request.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("upload %s: expected 201, got %d: %s", title, recorder.Code, recorder.Body.String())
	}
	envelope := decodeEnvelope(t, recorder)
	var video struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(envelope.Data, &video); err != nil || video.ID == "" {
		t.Fatalf("decode uploaded video: %v: %s", err, envelope.Data)
	}
	return video.ID
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)

	// Missing avatar file.
	body, contentType := multipartPayload(t, map[string]string{
		"fullName": "Alice", "email": "a@b.com", "username": "alice", "password": "secret1",
	}, nil)
	request := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", body)
	request.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without avatar, got %d", recorder.Code)
	}
	if decodeEnvelope(t, recorder).Success {
		t.Fatalf("expected success=false")
	}

	// Bad email.
	body, contentType = multipartPayload(t, map[string]string{
		"fullName": "Alice", "email": "not-an-email", "username": "alice", "password": "secret1",
	}, map[string]string{"avatar": "avatar.png"})
	request = httptest.NewRequest(http.MethodPost, "/api/v1/users/register", body)
	request.Header.Set("Content-Type", contentType)
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid email, got %d", recorder.Code)
	}
}

func TestRegisterDuplicateConflict(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "alice", "a@b.com", "secret1")

	body, contentType := multipartPayload(t, map[string]string{
		"fullName": "Other", "email": "a@b.com", "username": "other", "password": "secret1",
	}, map[string]string{"avatar": "avatar.png"})
	request := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", body)
	request.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestLoginReturnsTokensAndCookies(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "alice", "a@b.com", "secret1")

	request := jsonRequest(http.MethodPost, "/api/v1/users/login", `{"email":"a@b.com","password":"secret1"}`)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	envelope := decodeEnvelope(t, recorder)
	if !envelope.Success {
		t.Fatalf("expected success=true")
	}
	var data struct {
		User         map[string]interface{} `json:"user"`
		AccessToken  string                 `json:"accessToken"`
		RefreshToken string                 `json:"refreshToken"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.AccessToken == "" || data.RefreshToken == "" {
		t.Fatalf("expected non-empty tokens")
	}
	if data.User["username"] != "alice" {
		t.Fatalf("expected user profile, got %v", data.User)
	}
	if _, leaked := data.User["password"]; leaked {
		t.Fatalf("password material must not appear in responses")
	}
	if strings.Contains(recorder.Body.String(), "passwordHash") {
		t.Fatalf("password material must not appear in responses")
	}

	cookieNames := map[string]bool{}
	for _, cookie := range recorder.Result().Cookies() {
		cookieNames[cookie.Name] = true
		if !cookie.HttpOnly {
			t.Fatalf("cookie %s must be HttpOnly", cookie.Name)
		}
	}
	if !cookieNames["accessToken"] || !cookieNames["refreshToken"] {
		t.Fatalf("expected both auth cookies, got %v", cookieNames)
	}
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "alice", "a@b.com", "secret1")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, jsonRequest(http.MethodPost, "/api/v1/users/login", `{"email":"a@b.com","password":"wrong"}`))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, jsonRequest(http.MethodPost, "/api/v1/users/login", `{"email":"ghost@b.com","password":"secret1"}`))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, jsonRequest(http.MethodPost, "/api/v1/users/login", `{"password":"secret1"}`))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing identifier, got %d", recorder.Code)
	}
}

func TestRefreshRotatesAndRejectsReuse(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "alice", "a@b.com", "secret1")
	tokens := loginUser(t, router, "a@b.com", "secret1")

	// Refresh via cookie.
	request := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
	request.AddCookie(&http.Cookie{Name: "refreshToken", Value: tokens.RefreshToken})
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var rotated sessionTokens
	if err := json.Unmarshal(decodeEnvelope(t, recorder).Data, &rotated); err != nil {
		t.Fatalf("decode rotated pair: %v", err)
	}
	if rotated.RefreshToken == tokens.RefreshToken {
		t.Fatalf("rotation must produce a new refresh token")
	}

	// The superseded token is dead.
	request = httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
	request.AddCookie(&http.Cookie{Name: "refreshToken", Value: tokens.RefreshToken})
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for superseded token, got %d", recorder.Code)
	}

	// The rotated token works via the request body too.
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, jsonRequest(http.MethodPost, "/api/v1/users/refresh",
		fmt.Sprintf(`{"refreshToken":%q}`, rotated.RefreshToken)))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 via body token, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestRefreshWithoutTokenUnauthorized(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if decodeEnvelope(t, recorder).Success {
		t.Fatalf("expected success=false")
	}
}

func TestLogoutInvalidatesRefresh(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "alice", "a@b.com", "secret1")
	tokens := loginUser(t, router, "a@b.com", "secret1")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(http.MethodPost, "/api/v1/users/logout", nil, tokens.AccessToken))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Value != "" {
			t.Fatalf("expected cleared cookie %s, got %q", cookie.Name, cookie.Value)
		}
	}

	request := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
	request.AddCookie(&http.Cookie{Name: "refreshToken", Value: tokens.RefreshToken})
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", recorder.Code)
	}
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "alice", "a@b.com", "secret1")
	tokens := loginUser(t, router, "a@b.com", "secret1")

	// Missing new password.
	request := authedRequest(http.MethodPatch, "/api/v1/users/change-password",
		bytes.NewBufferString(`{"oldPassword":"secret1"}`), tokens.AccessToken)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing newPassword, got %d", recorder.Code)
	}

	// Wrong old password.
	request = authedRequest(http.MethodPatch, "/api/v1/users/change-password",
		bytes.NewBufferString(`{"oldPassword":"nope","newPassword":"secret2"}`), tokens.AccessToken)
	request.Header.Set("Content-Type", "application/json")
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong old password, got %d", recorder.Code)
	}

	// Success; existing session stays valid and the new password logs in.
	request = authedRequest(http.MethodPatch, "/api/v1/users/change-password",
		bytes.NewBufferString(`{"oldPassword":"secret1","newPassword":"secret2"}`), tokens.AccessToken)
	request.Header.Set("Content-Type", "application/json")
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(http.MethodGet, "/api/v1/users/me", nil, tokens.AccessToken))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected access token to stay valid, got %d", recorder.Code)
	}
	loginUser(t, router, "a@b.com", "secret2")
}

func TestMeRejectsForeignToken(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "alice", "a@b.com", "secret1")

	foreignConfig := newTestAuthConfig()
	foreignConfig.AccessTokenSecret = []byte("wrong-secret")
	foreignCodec := authkit.NewTokenCodec(foreignConfig, authkit.NewSystemClock())
	foreignToken, _, err := foreignCodec.Mint(authkit.TokenKindAccess, "anyone")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(http.MethodGet, "/api/v1/users/me", nil, foreignToken))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "alice", "a@b.com", "secret1")
	tokens := loginUser(t, router, "a@b.com", "secret1")

	request := authedRequest(http.MethodPatch, "/api/v1/users/me",
		bytes.NewBufferString(`{"fullName":"Alice Prime"}`), tokens.AccessToken)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var profile struct {
		FullName string `json:"fullName"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, recorder).Data, &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.FullName != "Alice Prime" {
		t.Fatalf("expected updated name, got %q", profile.FullName)
	}
}

func TestChannelProfileAndSubscription(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "creator", "creator@b.com", "secret1")
	registerUser(t, router, "fan", "fan@b.com", "secret1")
	fanTokens := loginUser(t, router, "fan@b.com", "secret1")

	// Subscribe.
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(http.MethodPost, "/api/v1/users/channel/creator/subscribe", nil, fanTokens.AccessToken))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	// Channel page shows the subscription for the viewer.
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(http.MethodGet, "/api/v1/users/channel/creator", nil, fanTokens.AccessToken))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var channel struct {
		SubscriberCount int64 `json:"subscriberCount"`
		IsSubscribed    bool  `json:"isSubscribed"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, recorder).Data, &channel); err != nil {
		t.Fatalf("decode channel: %v", err)
	}
	if channel.SubscriberCount != 1 || !channel.IsSubscribed {
		t.Fatalf("expected subscribed channel view, got %+v", channel)
	}

	// Anonymous channel page works.
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/users/channel/creator", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 anonymously, got %d", recorder.Code)
	}

	// Self-subscription is rejected.
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(http.MethodPost, "/api/v1/users/channel/fan/subscribe", nil, fanTokens.AccessToken))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for self-subscription, got %d", recorder.Code)
	}

	// Unknown channel 404s.
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/users/channel/ghost", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown channel, got %d", recorder.Code)
	}
}

func TestVideoUploadRequiresAuthAndFiles(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "creator", "creator@b.com", "secret1")
	tokens := loginUser(t, router, "creator@b.com", "secret1")

	// Unauthenticated upload.
	body, contentType := multipartPayload(t, map[string]string{"title": "clip"},
		map[string]string{"videoFile": "clip.mp4", "thumbnail": "clip.jpg"})
	request := httptest.NewRequest(http.MethodPost, "/api/v1/videos/upload", body)
	request.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 unauthenticated, got %d", recorder.Code)
	}

	// Missing video file.
	body, contentType = multipartPayload(t, map[string]string{"title": "clip"},
		map[string]string{"thumbnail": "clip.jpg"})
	request = authedRequest(http.MethodPost, "/api/v1/videos/upload", body, tokens.AccessToken)
	request.Header.Set("Content-Type", contentType)
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without video file, got %d", recorder.Code)
	}

	uploadVideo(t, router, tokens.AccessToken, "clip")
}

func TestVideoOwnershipEnforced(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "creator", "creator@b.com", "secret1")
	registerUser(t, router, "intruder", "intruder@b.com", "secret1")
	creatorTokens := loginUser(t, router, "creator@b.com", "secret1")
	intruderTokens := loginUser(t, router, "intruder@b.com", "secret1")

	videoID := uploadVideo(t, router, creatorTokens.AccessToken, "owned")

	request := authedRequest(http.MethodPatch, "/api/v1/videos/"+videoID,
		bytes.NewBufferString(`{"title":"stolen"}`), intruderTokens.AccessToken)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign patch, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(http.MethodDelete, "/api/v1/videos/"+videoID, nil, intruderTokens.AccessToken))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign delete, got %d", recorder.Code)
	}

	request = authedRequest(http.MethodPatch, "/api/v1/videos/"+videoID,
		bytes.NewBufferString(`{"title":"renamed"}`), creatorTokens.AccessToken)
	request.Header.Set("Content-Type", "application/json")
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner patch, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestTogglePublishHidesVideo(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "creator", "creator@b.com", "secret1")
	tokens := loginUser(t, router, "creator@b.com", "secret1")
	videoID := uploadVideo(t, router, tokens.AccessToken, "toggled")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(http.MethodPatch, "/api/v1/videos/"+videoID+"/toggle-publish", nil, tokens.AccessToken))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	// Hidden from the public listing.
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/videos", nil))
	var listing struct {
		TotalItems int64 `json:"totalDocs"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, recorder).Data, &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if listing.TotalItems != 0 {
		t.Fatalf("expected unpublished video hidden, got %d", listing.TotalItems)
	}

	// Anonymous detail read 404s; the owner still sees it.
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/videos/"+videoID, nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for anonymous unpublished read, got %d", recorder.Code)
	}
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(http.MethodGet, "/api/v1/videos/"+videoID, nil, tokens.AccessToken))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner read, got %d", recorder.Code)
	}
}

func TestViewDedupeAndHistory(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "creator", "creator@b.com", "secret1")
	registerUser(t, router, "viewer", "viewer@b.com", "secret1")
	creatorTokens := loginUser(t, router, "creator@b.com", "secret1")
	viewerTokens := loginUser(t, router, "viewer@b.com", "secret1")
	videoID := uploadVideo(t, router, creatorTokens.AccessToken, "watched")

	readViews := func() int64 {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, authedRequest(http.MethodPost, "/api/v1/videos/"+videoID+"/view", nil, viewerTokens.AccessToken))
		if recorder.Code != http.StatusOK {
			t.Fatalf("view: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
		var data struct {
			Views int64 `json:"views"`
		}
		if err := json.Unmarshal(decodeEnvelope(t, recorder).Data, &data); err != nil {
			t.Fatalf("decode views: %v", err)
		}
		return data.Views
	}

	if views := readViews(); views != 1 {
		t.Fatalf("expected first view to count, got %d", views)
	}
	// Same viewer inside the dedupe window does not double-count.
	if views := readViews(); views != 1 {
		t.Fatalf("expected repeat view suppressed, got %d", views)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(http.MethodGet, "/api/v1/users/history", nil, viewerTokens.AccessToken))
	if recorder.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", recorder.Code)
	}
	var entries []struct {
		Video struct {
			ID string `json:"id"`
		} `json:"video"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, recorder).Data, &entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(entries) != 1 || entries[0].Video.ID != videoID {
		t.Fatalf("expected watched video in history, got %+v", entries)
	}
}

func TestLikeSearchAndTrending(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "creator", "creator@b.com", "secret1")
	tokens := loginUser(t, router, "creator@b.com", "secret1")
	videoID := uploadVideo(t, router, tokens.AccessToken, "golang tutorial")
	uploadVideo(t, router, tokens.AccessToken, "cooking show")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(http.MethodPost, "/api/v1/videos/"+videoID+"/like", nil, tokens.AccessToken))
	if recorder.Code != http.StatusOK {
		t.Fatalf("like: expected 200, got %d", recorder.Code)
	}
	var likeData struct {
		Liked      bool  `json:"liked"`
		LikesCount int64 `json:"likesCount"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, recorder).Data, &likeData); err != nil {
		t.Fatalf("decode like: %v", err)
	}
	if !likeData.Liked || likeData.LikesCount != 1 {
		t.Fatalf("expected liked with count 1, got %+v", likeData)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/videos/search?query=golang", nil))
	var searchPage struct {
		TotalItems int64 `json:"totalDocs"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, recorder).Data, &searchPage); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if searchPage.TotalItems != 1 {
		t.Fatalf("expected one search hit, got %d", searchPage.TotalItems)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/videos/search", nil))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without query, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/videos/trending", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("trending: expected 200, got %d", recorder.Code)
	}
}

func TestSearchOrdersByViews(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	registerUser(t, router, "creator", "creator@b.com", "secret1")
	tokens := loginUser(t, router, "creator@b.com", "secret1")
	popularID := uploadVideo(t, router, tokens.AccessToken, "gopher basics")
	uploadVideo(t, router, tokens.AccessToken, "gopher advanced")

	// A single view makes the older upload the most watched hit.
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/videos/"+popularID+"/view", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("view: expected 200, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/videos/search?query=gopher", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d", recorder.Code)
	}
	var page struct {
		Docs []struct {
			ID    string `json:"id"`
			Views int64  `json:"views"`
		} `json:"docs"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, recorder).Data, &page); err != nil {
		t.Fatalf("decode search page: %v", err)
	}
	if len(page.Docs) != 2 {
		t.Fatalf("expected two hits, got %d", len(page.Docs))
	}
	if page.Docs[0].ID != popularID {
		t.Fatalf("expected most viewed hit first, got %s with %d views", page.Docs[0].ID, page.Docs[0].Views)
	}
}

func TestVideoDetailRejectsMalformedID(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/videos/not-a-uuid", nil))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/videos/"+uuid.NewString(), nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", recorder.Code)
	}
}

func TestRecommendedFeedRequiresAuth(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/videos/recommended/feed", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestViewDeduperWindow(t *testing.T) {
	t.Parallel()

	deduper := NewViewDeduper(time.Minute)
	current := time.Unix(1700000000, 0).UTC()
	deduper.now = func() time.Time { return current }

	if !deduper.Mark("video|viewer") {
		t.Fatalf("first mark must count")
	}
	if deduper.Mark("video|viewer") {
		t.Fatalf("repeat inside the window must not count")
	}
	if !deduper.Mark("video|other") {
		t.Fatalf("different viewer must count")
	}
	current = current.Add(2 * time.Minute)
	if !deduper.Mark("video|viewer") {
		t.Fatalf("mark after the window must count again")
	}
}

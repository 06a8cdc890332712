package httpapi

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

type registerForm struct {
	FullName string
	Email    string
	Username string
	Password string
}

func (form registerForm) Validate() error {
	return validation.ValidateStruct(&form,
		validation.Field(&form.FullName, validation.Required),
		validation.Field(&form.Email, validation.Required, is.Email),
		validation.Field(&form.Username, validation.Required, validation.Length(3, 32)),
		validation.Field(&form.Password, validation.Required, validation.Length(6, 128)),
	)
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (request loginRequest) identifier() string {
	if request.Username != "" {
		return request.Username
	}
	return request.Email
}

type googleLoginRequest struct {
	IDToken string `json:"idToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateProfileRequest struct {
	FullName string `json:"fullName"`
}

type updateVideoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mhm-assoc/memberpass/internal/models"
	"github.com/mhm-assoc/memberpass/internal/utils"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest represents a staff registration request
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// login handles staff login
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var loginReq LoginRequest
	if err := json.NewDecoder(req.Body).Decode(&loginReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	// 1. Find User
	var user models.UserAuth
	if err := r.db.Where("email = ?", loginReq.Email).First(&user).Error; err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !user.IsActive {
		respondError(w, http.StatusUnauthorized, "Account disabled")
		return
	}

	// 2. Check Password
	if !utils.CheckPasswordHash(loginReq.Password, user.Password) {
		r.db.Model(&user).Update("failed_login_attempts", user.FailedLoginAttempts+1)
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	// 3. Update Last Login
	now := time.Now()
	user.LastLogin = &now
	user.FailedLoginAttempts = 0
	r.db.Save(&user)

	// 4. Generate Tokens
	accessToken, refreshToken, err := utils.GenerateTokens(&user, r.cfg)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate tokens")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tokens": map[string]string{
			"accessToken":  accessToken,
			"refreshToken": refreshToken,
		},
		"user": user,
	})
}

// register creates a staff account. The very first account becomes
// admin; all later ones default to scanner until promoted.
func (r *Router) register(w http.ResponseWriter, req *http.Request) {
	var regReq RegisterRequest
	if err := json.NewDecoder(req.Body).Decode(&regReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if regReq.Username == "" || regReq.Email == "" || len(regReq.Password) < 8 {
		respondError(w, http.StatusBadRequest, "username, email and a password of at least 8 characters are required")
		return
	}

	hashedPassword, err := utils.HashPassword(regReq.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	var existing int64
	r.db.Model(&models.UserAuth{}).Count(&existing)

	role := models.RoleScanner
	if existing == 0 {
		role = models.RoleAdmin
	}

	user := models.UserAuth{
		Username: regReq.Username,
		Email:    regReq.Email,
		Password: hashedPassword,
		Name:     regReq.Name,
		Role:     role,
	}

	if err := r.db.Create(&user).Error; err != nil {
		respondError(w, http.StatusBadRequest, "Failed to create user (email or username might exist)")
		return
	}

	accessToken, refreshToken, err := utils.GenerateTokens(&user, r.cfg)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "User created but failed to generate tokens")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User registered successfully",
		"tokens": map[string]string{
			"accessToken":  accessToken,
			"refreshToken": refreshToken,
		},
		"user": user,
	})
}

// refresh exchanges a valid refresh token for a new token pair.
func (r *Router) refresh(w http.ResponseWriter, req *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	claims, err := utils.ValidateToken(body.RefreshToken, r.cfg.JWTSecret)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	id, _ := claims["id"].(string)
	if id == "" {
		respondError(w, http.StatusUnauthorized, "Invalid refresh token claims")
		return
	}

	var user models.UserAuth
	if err := r.db.First(&user, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusUnauthorized, "Account no longer exists")
		return
	}
	if !user.IsActive {
		respondError(w, http.StatusUnauthorized, "Account disabled")
		return
	}

	accessToken, refreshToken, err := utils.GenerateTokens(&user, r.cfg)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate tokens")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tokens": map[string]string{
			"accessToken":  accessToken,
			"refreshToken": refreshToken,
		},
	})
}

// logout handles staff logout
func (r *Router) logout(w http.ResponseWriter, req *http.Request) {
	// Tokens are stateless; the client discards them.
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

package profile

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/assessli/carebot/backend/internal/apperr"
	"github.com/assessli/carebot/backend/internal/model/profile"
	"github.com/assessli/carebot/backend/pkg/utils"
)

// Handler 用户档案的HTTP处理器
type Handler struct {
	profiles profile.Store
}

// New 创建档案处理器
func New(profiles profile.Store) *Handler {
	return &Handler{profiles: profiles}
}

// RegisterRoutes 注册档案相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/check-user", h.handleCheckUser)
	r.Post("/create-profile", h.handleCreateProfile)
	r.Get("/profiles/{userID}", h.handleGetProfile)
}

// user_id 为旧前端使用的字段名
type checkUserRequest struct {
	UserID       string `json:"userId"`
	LegacyUserID string `json:"user_id"`
}

type checkUserResponse struct {
	Exists  bool             `json:"exists"`
	Profile *profile.Profile `json:"profile,omitempty"`
}

type createProfileRequest struct {
	UserID       string          `json:"userId"`
	LegacyUserID string          `json:"user_id"`
	Name         string          `json:"name"`
	Age          json.RawMessage `json:"age"`
}

type createProfileResponse struct {
	Success bool             `json:"success"`
	Profile *profile.Profile `json:"profile"`
}

func (h *Handler) handleCheckUser(w http.ResponseWriter, r *http.Request) {
	var req checkUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := firstNonEmpty(req.UserID, req.LegacyUserID)
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	p, ok, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, checkUserResponse{Exists: ok, Profile: p})
}

func (h *Handler) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := firstNonEmpty(req.UserID, req.LegacyUserID)
	name := strings.TrimSpace(req.Name)
	age, ageSet, ageErr := parseAge(req.Age)
	switch {
	case userID == "":
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	case name == "":
		utils.RespondError(w, http.StatusBadRequest, "name is required")
		return
	case !ageSet:
		utils.RespondError(w, http.StatusBadRequest, "age is required")
		return
	case ageErr != nil:
		utils.RespondError(w, http.StatusBadRequest, "age must be an integer")
		return
	case age < 0:
		utils.RespondError(w, http.StatusBadRequest, "age must not be negative")
		return
	}

	p, err := h.profiles.Create(r.Context(), userID, name, age)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, createProfileResponse{Success: true, Profile: p})
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	p, ok, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	if !ok {
		utils.RespondAppError(w, apperr.NotFound("profile %q", userID))
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseAge 接受数字或数字字符串（旧前端提交的是表单原文）
func parseAge(raw json.RawMessage) (age int, set bool, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false, nil
	}
	if err := json.Unmarshal(raw, &age); err == nil {
		return age, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, true, err
	}
	if s = strings.TrimSpace(s); s == "" {
		return 0, false, nil
	}
	age, err = strconv.Atoi(s)
	return age, true, err
}

package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
)

type User struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index" json:"business_id"`
	Username   string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email      *string   `gorm:"size:100" json:"email"`
	Password   string    `gorm:"size:255;not null" json:"-"`
	IsActive   *bool     `gorm:"not null" json:"is_active"`
	Role       UserRole  `gorm:"type:enum('A', 'O', 'M', 'C');default:C" json:"role"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	BusinessId string   `json:"business_id"`
	Username   string   `json:"username" binding:"required"`
	Name       string   `json:"name" binding:"required"`
	Email      string   `json:"email"`
	Password   string   `json:"password" binding:"required"`
	Role       UserRole `json:"role" binding:"required"`
}

/*
caches:
	User:$username
*/

func (user User) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("User:" + user.Username)
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	input.Username = strings.TrimSpace(strings.ToLower(input.Username))
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, utils.ValidationErrorf("invalid email")
	}
	if !input.Role.IsValid() {
		return nil, utils.ValidationErrorf("invalid role")
	}

	// username is globally unique; check across all tenants
	scopedCtx := utils.SetSkipTenantScopeInContext(ctx, true)
	if err := utils.ValidateUnique[User](scopedCtx, "", "username", input.Username, nil); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		BusinessId: input.BusinessId,
		Username:   input.Username,
		Name:       input.Name,
		Password:   string(hashed),
		IsActive:   utils.NewTrue(),
		Role:       input.Role,
	}
	if input.Email != "" {
		user.Email = &input.Email
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

type LoginInfo struct {
	Token        string `json:"token"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	BusinessId   string `json:"business_id"`
	BusinessName string `json:"business_name"`
}

// Login verifies credentials and issues a signed token carrying the tenant id.
func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {
	username = strings.TrimSpace(strings.ToLower(username))

	db := config.GetDB()
	var user User
	// username is globally unique; tenant scoping does not apply here
	scopedCtx := utils.SetSkipTenantScopeInContext(ctx, true)
	if err := db.WithContext(scopedCtx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, errors.New("invalid username or password")
	}
	if user.IsActive == nil || !*user.IsActive {
		return nil, errors.New("account is inactive")
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, errors.New("invalid username or password")
	}

	token, err := utils.JwtGenerate(user.ID, user.Name, user.BusinessId, string(user.Role))
	if err != nil {
		return nil, err
	}

	business, err := GetBusinessById(scopedCtx, user.BusinessId)
	if err != nil {
		return nil, err
	}

	return &LoginInfo{
		Token:        token,
		Name:         user.Name,
		Role:         string(user.Role),
		BusinessId:   user.BusinessId,
		BusinessName: business.Name,
	}, nil
}

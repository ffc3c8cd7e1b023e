package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/retailpos_backend/config"
	"github.com/mmdatafocus/retailpos_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Username   string    `gorm:"uniqueIndex;size:100;not null" json:"username" binding:"required"`
	Name       string    `gorm:"size:100" json:"name"`
	Password   string    `gorm:"size:255;not null" json:"-"`
	Role       UserRole  `gorm:"type:enum('A','O','C');default:'C'" json:"role"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (user User) GetBusinessId() string {
	return user.BusinessId
}

type NewUser struct {
	Username string `json:"username" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role"`
}

type LoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func (input *NewUser) validate(ctx context.Context, businessId string, id int) error {
	// username (unique across businesses, it is the login key)
	if err := utils.ValidateUnique[User](ctx, "", "username", input.Username, id); err != nil {
		return err
	}
	if input.Role != "" && !UserRole(input.Role).Valid() {
		return utils.NewValidationError("role", "unknown role")
	}
	return nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := UserRole(input.Role)
	if input.Role == "" {
		role = UserRoleCashier
	}

	user := User{
		BusinessId: businessId,
		Username:   strings.ToLower(strings.TrimSpace(input.Username)),
		Name:       input.Name,
		Password:   hashed,
		Role:       role,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Login checks the credentials and issues a signed token carrying the
// user's business id.
func Login(ctx context.Context, input *LoginInput) (*LoginResult, error) {
	db := config.GetDB()

	username := strings.ToLower(strings.TrimSpace(input.Username))

	var user User
	err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("invalid username or password")
		}
		return nil, err
	}

	if user.IsActive != nil && !*user.IsActive {
		return nil, errors.New("user is deactivated")
	}

	if err := utils.ComparePassword(user.Password, input.Password); err != nil {
		return nil, errors.New("invalid username or password")
	}

	token, err := utils.JwtGenerate(user.ID, user.BusinessId, string(user.Role))
	if err != nil {
		return nil, err
	}

	return &LoginResult{Token: token, User: &user}, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[User](ctx, businessId, id)
}

func ListUsers(ctx context.Context) ([]*User, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[User](ctx, businessId)
}

func ToggleActiveUser(ctx context.Context, id int, isActive bool) (*User, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return ToggleActiveModel[User](ctx, businessId, id, isActive)
}

func ChangePassword(ctx context.Context, userId int, oldPassword string, newPassword string) error {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}

	user, err := utils.FetchModel[User](ctx, businessId, userId)
	if err != nil {
		return err
	}
	if err := utils.ComparePassword(user.Password, oldPassword); err != nil {
		return errors.New("old password does not match")
	}
	if len(newPassword) < 6 {
		return utils.NewValidationError("password", "password too short")
	}

	hashed, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}

	db := config.GetDB()
	return db.WithContext(ctx).Model(&user).UpdateColumn("Password", hashed).Error
}

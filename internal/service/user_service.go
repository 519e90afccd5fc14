package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"textlens-go/internal/model"
	"textlens-go/internal/repository"
	"textlens-go/pkg/hash"
	"textlens-go/pkg/log"
	"textlens-go/pkg/token"

	"gorm.io/gorm"
)

// SignUpInput 是注册所需的数据，格式校验由 handler 的 binding 完成。
type SignUpInput struct {
	Email    string
	Password string
	Name     string
}

// UpdateUserInput 中为 nil 或空字符串的字段保持不变。
type UpdateUserInput struct {
	Email    *string
	Password *string
	Name     *string
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	SignUp(ctx context.Context, in SignUpInput) (*Confirmation, error)
	SignIn(ctx context.Context, email, password string) (string, error)
	SignOut(ctx context.Context, tokenString string) (*Confirmation, error)
	Update(ctx context.Context, userID uint, in UpdateUserInput) (*Confirmation, error)
	GetProfile(ctx context.Context, userID uint) (*model.User, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	jwtManager *token.JWTManager
	revocation token.RevocationStore
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager, revocation token.RevocationStore) UserService {
	return &userService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		revocation: revocation,
	}
}

// SignUp 处理用户注册的业务逻辑。
func (s *userService) SignUp(ctx context.Context, in SignUpInput) (*Confirmation, error) {
	hashedPassword, err := hash.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:    strings.TrimSpace(in.Email),
		Name:     strings.TrimSpace(in.Name),
		Password: hashedPassword,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}
	log.Infof("[UserService] 新用户注册, userID: %d", user.ID)
	return &Confirmation{Message: "Cadastro realizado com sucesso"}, nil
}

// SignIn 校验邮箱与密码并签发 access token。
// 用户不存在与密码错误返回同一个错误。
func (s *userService) SignIn(ctx context.Context, email, password string) (string, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", ErrInvalidCredentials
	}
	return s.jwtManager.GenerateToken(user.ID, user.Email)
}

// SignOut 将 token 加入吊销表，直到它自然过期。
func (s *userService) SignOut(ctx context.Context, tokenString string) (*Confirmation, error) {
	if tokenString == "" {
		return nil, ErrInvalidCredentials
	}
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.revocation.Revoke(ctx, tokenString, claims.ExpiresAt.Time); err != nil {
		return nil, fmt.Errorf("吊销 token 失败: %w", err)
	}
	return &Confirmation{Message: "Logout realizado com sucesso"}, nil
}

// Update 修改用户的邮箱、密码或姓名。
func (s *userService) Update(ctx context.Context, userID uint, in UpdateUserInput) (*Confirmation, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if in.Email != nil && strings.TrimSpace(*in.Email) != "" {
		user.Email = strings.TrimSpace(*in.Email)
	}
	if in.Password != nil && *in.Password != "" {
		hashed, err := hash.HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		user.Password = hashed
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
		user.Name = strings.TrimSpace(*in.Name)
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("更新用户失败: %w", err)
	}
	return &Confirmation{Message: "Usuário atualizado com sucesso"}, nil
}

// GetProfile 根据用户 ID 获取用户详细信息。
func (s *userService) GetProfile(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

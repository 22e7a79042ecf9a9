package models

import (
	stderrs "errors"
	"strconv"
	"strings"
	"time"

	"XianwaiTTS/pkg/constants"
	"XianwaiTTS/pkg/errors"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"size:80;uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"size:120;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// CreateUser 用户名或邮箱已存在时返回 CodeConflict
func CreateUser(db *gorm.DB, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, errors.WithCode(errors.CodeValidation, "请填写所有字段")
	}

	var n int64
	if err := db.Model(&User{}).Where("username = ? OR email = ?", username, email).Count(&n).Error; err != nil {
		return nil, errors.WrapCode(err, errors.CodeInternal, "查询用户失败")
	}
	if n > 0 {
		return nil, errors.WithCode(errors.CodeConflict, "用户名或邮箱已存在")
	}

	u := &User{Username: username, Email: email}
	if err := u.SetPassword(password); err != nil {
		return nil, errors.WrapCode(err, errors.CodeInternal, "密码处理失败")
	}
	if err := db.Create(u).Error; err != nil {
		if stderrs.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.WithCode(errors.CodeConflict, "用户名或邮箱已存在")
		}
		return nil, errors.WrapCode(err, errors.CodeInternal, "创建用户失败")
	}
	return u, nil
}

// Authenticate 用户名不存在与密码错误返回同一个错误
func Authenticate(db *gorm.DB, username, password string) (*User, error) {
	var u User
	if err := db.Where("username = ?", strings.TrimSpace(username)).First(&u).Error; err != nil {
		return nil, errors.WithCode(errors.CodeUnauthorized, "用户名或密码错误")
	}
	if !u.CheckPassword(password) {
		return nil, errors.WithCode(errors.CodeUnauthorized, "用户名或密码错误")
	}
	return &u, nil
}

// Login 写入会话
func Login(c *gin.Context, u *User) error {
	session := sessions.Default(c)
	session.Set(constants.UserIDField, u.ID)
	if err := session.Save(); err != nil {
		return err
	}
	c.Set(constants.UserField, u)
	c.Set(constants.UserIDKey, strconv.FormatUint(uint64(u.ID), 10))
	return nil
}

func Logout(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	return session.Save()
}

// CurrentUser 从会话读取当前用户，未登录返回 nil
func CurrentUser(c *gin.Context) *User {
	if v, ok := c.Get(constants.UserField); ok {
		if u, ok := v.(*User); ok {
			return u
		}
	}

	session := sessions.Default(c)
	uid := toUint(session.Get(constants.UserIDField))
	if uid == 0 {
		return nil
	}

	db := GetDB(c)
	if db == nil {
		return nil
	}
	var u User
	if err := db.First(&u, uid).Error; err != nil {
		return nil
	}
	c.Set(constants.UserField, &u)
	c.Set(constants.UserIDKey, strconv.FormatUint(uint64(u.ID), 10))
	return &u
}

// GetDB 取 InjectDB 注入的连接
func GetDB(c *gin.Context) *gorm.DB {
	if v, ok := c.Get(constants.DbField); ok {
		if db, ok := v.(*gorm.DB); ok {
			return db
		}
	}
	return nil
}

func toUint(v any) uint {
	switch x := v.(type) {
	case uint:
		return x
	case int:
		return uint(x)
	case int64:
		return uint(x)
	case uint64:
		return uint(x)
	case float64:
		return uint(x)
	default:
		return 0
	}
}

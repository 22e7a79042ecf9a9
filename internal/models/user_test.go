package models

import (
	stderrs "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"XianwaiTTS/pkg/constants"
	"XianwaiTTS/pkg/errors"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserAndAuthenticate(t *testing.T) {
	db := newTestDB(t)

	u, err := CreateUser(db, "alice", "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.NotEqual(t, "s3cret", u.PasswordHash)

	_, err = CreateUser(db, "alice", "other@example.com", "x")
	assert.True(t, stderrs.Is(err, errors.ErrConflict))

	_, err = CreateUser(db, "", "", "")
	assert.True(t, stderrs.Is(err, errors.ErrValidation))

	got, err := Authenticate(db, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, errPwd := Authenticate(db, "alice", "wrong")
	_, errUser := Authenticate(db, "bob", "s3cret")
	assert.True(t, stderrs.Is(errPwd, errors.ErrUnauthorized))
	assert.Equal(t, errPwd.Error(), errUser.Error())
}

func TestLoginRestoresCurrentUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	u, err := CreateUser(db, "carol", "carol@example.com", "pw")
	require.NoError(t, err)

	r := gin.New()
	r.Use(sessions.Sessions(constants.SessionName, cookie.NewStore([]byte("test-secret"))))
	r.Use(func(c *gin.Context) { c.Set(constants.DbField, db) })
	r.POST("/login", func(c *gin.Context) {
		require.NoError(t, Login(c, u))
		c.Status(http.StatusNoContent)
	})
	r.GET("/me", func(c *gin.Context) {
		cur := CurrentUser(c)
		if cur == nil {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.String(http.StatusOK, cur.Username+":"+c.GetString(constants.UserIDKey))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "carol:1", w.Body.String())
}

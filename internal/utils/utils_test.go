package utils

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptom-assistant-server/internal/config"
	"symptom-assistant-server/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:                 "access-secret",
		JWTRefreshSecret:          "refresh-secret",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 24,
	}
}

func TestGenerateAndValidateTokens(t *testing.T) {
	cfg := testConfig()
	user := &models.User{Role: models.RoleClinician}
	user.ID = "user-1"

	access, refresh, err := GenerateTokens(user, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, access, refresh)

	claims, err := ValidateToken(access, cfg.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleClinician, claims.Role)

	_, err = ValidateToken(access, cfg.JWTRefreshSecret)
	assert.Error(t, err)

	claims, err = ValidateToken(refresh, cfg.JWTRefreshSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)

	_, second, err := GenerateTokens(user, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, refresh, second)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	cfg := testConfig()
	cfg.JWTExpirationMinutes = -1
	user := &models.User{Role: models.RolePatient}
	user.ID = "user-1"

	access, _, err := GenerateTokens(user, cfg)
	require.NoError(t, err)
	_, err = ValidateToken(access, cfg.JWTSecret)
	assert.Error(t, err)
}

type bindTarget struct {
	Email string `json:"email" binding:"required,email"`
	Age   int    `json:"age" binding:"gte=0,lte=130"`
}

func TestBindAndValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		body   string
		ok     bool
		errMsg string
	}{
		{`{"email":"a@b.co","age":30}`, true, ""},
		{`{"email":"not-an-email","age":30}`, false, "Validation failed: email must be a valid email"},
		{`{"email":"a@b.co","age":200}`, false, "Validation failed: age must be at most 130"},
		{`{"email":`, false, "Invalid request payload"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tc.body))
		c.Request.Header.Set("Content-Type", "application/json")

		var target bindTarget
		assert.Equal(t, tc.ok, BindAndValidate(c, &target), tc.body)
		if tc.ok {
			continue
		}
		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ResponseData
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error, tc.errMsg)
	}
}

func TestErrorWithDataCarriesPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ErrorWithData(c, http.StatusBadRequest, "Possible emergency.", map[string]string{"risk": "emergency"})

	var resp ResponseData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "Possible emergency.", resp.Error)
	assert.Equal(t, map[string]interface{}{"risk": "emergency"}, resp.Data)
}

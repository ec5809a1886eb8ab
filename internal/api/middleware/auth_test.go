package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/autotag_server/internal/pkg/jwt"
	"github.com/qs3c/autotag_server/internal/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "test-secret-key-for-middleware"

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func authRouter() *gin.Engine {
	router := gin.New()
	router.Use(Auth(testJWTSecret))
	router.GET("/test", func(c *gin.Context) {
		teamID, _ := GetTeamID(c)
		c.JSON(http.StatusOK, gin.H{"team_id": teamID})
	})
	return router
}

func performAuth(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/test", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuth_Success(t *testing.T) {
	token, err := jwt.GenerateToken("team-42", testJWTSecret, 24)
	require.NoError(t, err)

	w := performAuth(authRouter(), "Bearer "+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"team_id":"team-42"}`, w.Body.String())
}

func TestAuth_Rejected(t *testing.T) {
	valid, err := jwt.GenerateToken("team-42", testJWTSecret, 24)
	require.NoError(t, err)
	wrongSecret, err := jwt.GenerateToken("team-42", "other-secret", 24)
	require.NoError(t, err)
	expired, err := jwt.GenerateToken("team-42", testJWTSecret, -1)
	require.NoError(t, err)
	noTeam, err := jwt.GenerateToken("", testJWTSecret, 24)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "no bearer prefix", header: valid},
		{name: "garbage token", header: "Bearer not-a-jwt"},
		{name: "wrong secret", header: "Bearer " + wrongSecret},
		{name: "expired", header: "Bearer " + expired},
		{name: "empty team", header: "Bearer " + noTeam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performAuth(authRouter(), tt.header)

			resp := parseResponse(t, w)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, response.CodeAuthFailed, resp.Code)
		})
	}
}

func TestGetTeamID(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetTeamID(c)
	assert.False(t, ok)

	c.Set(TeamIDKey, 123)
	_, ok = GetTeamID(c)
	assert.False(t, ok)

	c.Set(TeamIDKey, "team-1")
	id, ok := GetTeamID(c)
	assert.True(t, ok)
	assert.Equal(t, "team-1", id)
}

func TestDispatchToken(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		sent       string
		wantCode   int
	}{
		{name: "matching token", configured: "s3cret", sent: "s3cret", wantCode: response.CodeSuccess},
		{name: "wrong token", configured: "s3cret", sent: "guess", wantCode: response.CodeAuthFailed},
		{name: "missing token", configured: "s3cret", sent: "", wantCode: response.CodeAuthFailed},
		{name: "not configured", configured: "", sent: "", wantCode: response.CodeAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(DispatchToken(tt.configured))
			router.POST("/tick", func(c *gin.Context) {
				response.Success(c, nil)
			})

			req := httptest.NewRequest("POST", "/tick", nil)
			if tt.sent != "" {
				req.Header.Set(DispatchTokenHeader, tt.sent)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, parseResponse(t, w).Code)
		})
	}
}

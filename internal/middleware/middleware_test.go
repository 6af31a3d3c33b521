package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendo-api/internal/models"
	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := v[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

var tokens = validatorStub{
	"teacher-token": {UserID: "teacher-1", Role: models.RoleTeacher},
	"student-token": {UserID: "student-1", Role: models.RoleStudent},
	"admin-token":   {UserID: "admin-1", Role: models.RoleAdmin},
}

func serve(r *gin.Engine, method, path, token string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func teacherRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/rotation", JWT(tokens), RequireRoles(models.RoleTeacher), func(c *gin.Context) {
		c.String(http.StatusOK, Claims(c).UserID)
	})
	return r
}

func TestJWTRequiresBearerToken(t *testing.T) {
	r := teacherRouter()

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/rotation", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/rotation", "bogus", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/rotation", "", map[string]string{"Authorization": "Basic abc"}).Code)

	w := serve(r, http.MethodGet, "/rotation", "teacher-token", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "teacher-1", w.Body.String())
}

func TestJWTAcceptsQueryTokenOnUpgrade(t *testing.T) {
	r := teacherRouter()

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/rotation?access_token=teacher-token", "", nil).Code)
	w := serve(r, http.MethodGet, "/rotation?access_token=teacher-token", "", map[string]string{"Upgrade": "websocket"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRoles(t *testing.T) {
	r := teacherRouter()

	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/rotation", "student-token", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/rotation", "admin-token", nil).Code)
}

func TestRateLimiterBudget(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ok, _ := rl.Allow("a")
	assert.True(t, ok)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)
	ok, wait := rl.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, wait)

	ok, _ = rl.Allow("b")
	assert.True(t, ok, "budgets are per caller")

	now = now.Add(30 * time.Second)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		ok, _ := rl.Allow("a")
		require.True(t, ok)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/redeem", JWT(tokens), RateLimit(NewRateLimiter(1, time.Minute)), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/redeem", "student-token", nil).Code)
	w := serve(r, http.MethodPost, "/redeem", "student-token", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/redeem", "teacher-token", nil).Code)
}

type observerStub struct {
	paths  []string
	status []int
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	o.paths = append(o.paths, path)
	o.status = append(o.status, status)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &observerStub{}
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/courses/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/courses/42", "", nil)
	serve(r, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, []string{"/courses/:id", "unmatched"}, obs.paths)
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, obs.status)
}

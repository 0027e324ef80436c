package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "middleware-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	r.GET("/me", Auth(auth.NewResolver(testSecret)), func(c *gin.Context) {
		id := GetIdentity(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "tenant_id": GetTenantID(c)})
	})
	return r
}

func TestAuth(t *testing.T) {
	userID, tenantID := uuid.New(), uuid.New()
	valid, err := auth.GenerateToken(userID, tenantID, "a@example.com", testSecret, time.Hour)
	require.NoError(t, err)
	forged, err := auth.GenerateToken(userID, tenantID, "a@example.com", "other-secret", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"bearer header", "/me", "Bearer " + valid, http.StatusOK},
		{"query parameter", "/me?access_token=" + valid, "", http.StatusOK},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic " + valid, http.StatusUnauthorized},
		{"forged", "/me", "Bearer " + forged, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			newRouter().ServeHTTP(w, req)

			require.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				require.Contains(t, w.Body.String(), userID.String())
				require.Contains(t, w.Body.String(), tenantID.String())
			}
		})
	}
}

func TestGetIdentityWithoutAuth(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	require.False(t, GetIdentity(c).Valid())
	require.Equal(t, uuid.Nil, GetUserID(c))
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	r := gin.New()
	r.Use(m.Handler())
	r.GET("/chats/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/chats/1", "/chats/2", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/chats/:id", "204")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")))
}

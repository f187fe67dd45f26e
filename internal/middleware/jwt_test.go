package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rollcall/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actorRouter(issuer *service.TokenIssuer, devPass bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), TraceMiddleware(), JWTMiddleware(issuer, devPass))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, service.ActorName(c.Request.Context())+"|"+TraceID(c.Request.Context()))
	})
	return r
}

func TestJWTMiddleware(t *testing.T) {
	issuer := service.NewTokenIssuer("test-secret", time.Minute)
	token, err := issuer.Issue(service.Actor{UserID: "3", Name: "joana", Role: "catechist"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		issuer   *service.TokenIssuer
		devPass  bool
		header   map[string]string
		query    string
		wantCode int
		wantName string
	}{
		{name: "no issuer means local operator", wantCode: 200, wantName: "local"},
		{name: "missing token", issuer: issuer, wantCode: 401},
		{name: "bearer token", issuer: issuer, header: map[string]string{"Authorization": "Bearer " + token}, wantCode: 200, wantName: "joana"},
		{name: "query token", issuer: issuer, query: "?token=" + token, wantCode: 200, wantName: "joana"},
		{name: "bad token", issuer: issuer, header: map[string]string{"Authorization": "Bearer nope"}, wantCode: 401},
		{name: "dev pass enabled", issuer: issuer, devPass: true, header: map[string]string{"X-Dev-Pass": "true"}, wantCode: 200, wantName: "dev-admin"},
		{name: "dev pass disabled", issuer: issuer, header: map[string]string{"X-Dev-Pass": "true"}, wantCode: 401},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/whoami"+tt.query, nil)
			req.Header.Set("X-Trace-ID", "trace-1")
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			actorRouter(tt.issuer, tt.devPass).ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == 200 {
				assert.Equal(t, tt.wantName+"|trace-1", w.Body.String())
			}
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestAccessLog_ScrubsQueryAndHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), AccessLog(AccessLogOptions{MaskHeaders: []string{"X-User-Token"}}))
	r.GET("/api/ads", func(c *gin.Context) { c.Status(http.StatusOK) })

	tok := strings.Repeat("ab12", 16)
	q := "userToken=" + tok +
		"&tgWebAppData=query_id%3DAAA%26user%3D%257B%2522id%2522%253A1%257D" +
		"&email=a.b+tag@example.com&phone=+1-555-123-4567" +
		"&id=123e4567-e89b-12d3-a456-426614174000&page=2"
	req := httptest.NewRequest(http.MethodGet, "/api/ads?"+q, nil)
	req.Header.Set("Authorization", "tma query_id=AAA&hash=deadbeef")
	req.Header.Set("Cookie", "sid=topsecret")
	req.Header.Set("X-User-Token", tok)
	req.Header.Set("X-Note", "mail a@b.com ref "+tok)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := buf.String()
	for _, leak := range []string{tok, "query_id", "example.com", "topsecret", "123e4567"} {
		if strings.Contains(out, leak) {
			t.Fatalf("%q leaked: %s", leak, out)
		}
	}

	line := logLines(t, buf)["request"]
	if line["level"] != "info" || line["route"] != "/api/ads" || line["caller"] != "web" {
		t.Fatalf("line = %v", line)
	}
	query, _ := line["query"].(string)
	for _, want := range []string{"userToken=[REDACTED:token]", "tgWebAppData=[REDACTED]&", "[REDACTED:email]", "[REDACTED:phone]", "id=[REDACTED:id]&page=2"} {
		if !strings.Contains(query, want) {
			t.Fatalf("query %q lacks %q", query, want)
		}
	}
	headers, _ := line["headers"].(map[string]any)
	if headers["Authorization"] != "[REDACTED]" || headers["Cookie"] != "[REDACTED]" || headers["X-User-Token"] != "[REDACTED]" {
		t.Fatalf("masked headers = %v", headers)
	}
	if headers["X-Note"] != "mail [REDACTED:email] ref [REDACTED:token]" {
		t.Fatalf("scrubbed header = %v", headers["X-Note"])
	}
}

func TestAccessLog_LevelsAndUnmatchedRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(AccessLog(AccessLogOptions{}))
	r.DELETE("/api/ads", func(c *gin.Context) { c.Status(http.StatusForbidden) })
	r.POST("/api/premium", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.PUT("/api/referrals", func(c *gin.Context) {
		_ = c.Error(errFlaky)
		c.Status(http.StatusOK)
	})

	cases := []struct {
		method, target, level, route string
	}{
		{http.MethodDelete, "/api/ads", "warn", "/api/ads"},
		{http.MethodPost, "/api/premium", "error", "/api/premium"},
		{http.MethodPut, "/api/referrals", "error", "/api/referrals"},
		{http.MethodGet, "/wp-login.php", "warn", unmatchedRoute},
	}
	for _, tc := range cases {
		buf := captureLogger(t)
		req := httptest.NewRequest(tc.method, tc.target, nil)
		req.Header.Set(requestIDHeader, "rid-"+tc.level)
		r.ServeHTTP(httptest.NewRecorder(), req)

		line := logLines(t, buf)["request"]
		if line["level"] != tc.level || line["route"] != tc.route || line["request_id"] != "rid-"+tc.level {
			t.Fatalf("%s %s: line = %v", tc.method, tc.target, line)
		}
		if line["path"] != tc.target {
			t.Fatalf("path = %v", line["path"])
		}
	}
}

type flakyErr struct{}

func (flakyErr) Error() string { return "flaky" }

var errFlaky error = flakyErr{}

func TestAccessLog_ContextLoggerAndLateIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), AccessLog(AccessLogOptions{}))
	r.POST("/api/ads", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Warn().Msg("from service")
		LoggerFrom(c).Info().Msg("from handler")
		SetTelegramID(c, 55)
		c.Status(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/ads", nil)
	req.Header.Set(requestIDHeader, "rid-ctx")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, buf)
	for _, msg := range []string{"from service", "from handler"} {
		if l := lines[msg]; l == nil || l["request_id"] != "rid-ctx" || l["route"] != "/api/ads" {
			t.Fatalf("%s lacks request fields: %v", msg, l)
		}
	}
	a := lines["request"]
	if a["user_id"] != "tg:55" || a["caller"] != "telegram" || a["status"] != float64(201) {
		t.Fatalf("access line = %v", a)
	}
}

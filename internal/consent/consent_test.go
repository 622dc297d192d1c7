package consent

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/beacon-lab/project-beacon/internal/identity"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func runConsentRequest(t *testing.T, configure func(*http.Request)) (bool, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var got bool
	r := gin.New()
	r.GET("/probe", Middleware(), func(c *gin.Context) {
		got = FromContext(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	configure(req)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return got, resp
}

func TestMiddleware_HeaderAndCookiePrecedence(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*http.Request)
		want      bool
	}{
		{
			name:      "no signal is non-consent",
			configure: func(*http.Request) {},
			want:      false,
		},
		{
			name: "granted header",
			configure: func(req *http.Request) {
				req.Header.Set(HeaderName, Granted)
			},
			want: true,
		},
		{
			name: "granted cookie",
			configure: func(req *http.Request) {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: Granted})
			},
			want: true,
		},
		{
			name: "header wins over cookie",
			configure: func(req *http.Request) {
				req.Header.Set(HeaderName, "denied")
				req.AddCookie(&http.Cookie{Name: CookieName, Value: Granted})
			},
			want: false,
		},
		{
			name: "any value other than granted is non-consent",
			configure: func(req *http.Request) {
				req.Header.Set(HeaderName, "GRANTED")
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := runConsentRequest(t, tt.configure)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAnonymousID_WithConsentIssuesDurableCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var issued string
	r := gin.New()
	r.GET("/probe", Middleware(), func(c *gin.Context) {
		issued = AnonymousID(c, false)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set(HeaderName, Granted)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.True(t, strings.HasPrefix(issued, identity.AnonymousIDPrefix))

	var cookie *http.Cookie
	for _, c := range resp.Result().Cookies() {
		if c.Name == AnonCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "consented request must set the anon cookie")
	require.Equal(t, issued, cookie.Value)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, AnonCookieMaxAge, cookie.MaxAge)
}

func TestAnonymousID_WithConsentReusesExistingCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var issued string
	r := gin.New()
	r.GET("/probe", Middleware(), func(c *gin.Context) {
		issued = AnonymousID(c, false)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set(HeaderName, Granted)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "anon_existing"})
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, "anon_existing", issued)
	require.Empty(t, resp.Result().Cookies(), "existing id must not be reissued")
}

func TestAnonymousID_WithoutConsentIsTransient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var first, second string
	r := gin.New()
	r.GET("/probe", Middleware(), func(c *gin.Context) {
		if first == "" {
			first = AnonymousID(c, false)
		} else {
			second = AnonymousID(c, false)
		}
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		require.Empty(t, resp.Result().Cookies(), "non-consented request must not set cookies")
	}

	require.NotEqual(t, first, second, "each non-consented request gets a fresh id")
}

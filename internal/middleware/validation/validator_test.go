package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Які факультети є?", Sanitize("  Які\x00 факультети\n\tє? \x07"))
	assert.Equal(t, "", Sanitize(" \x00 "))
}

func TestMiddleware(t *testing.T) {
	var seen string
	app := fiber.New()
	app.Use(Middleware(Config{MaxQueryLength: 20}))
	app.Post("/api/v1/query", func(c *fiber.Ctx) error {
		var req struct {
			Query string `json:"query"`
		}
		if err := c.BodyParser(&req); err != nil {
			return err
		}
		seen = req.Query
		return c.SendString("ok")
	})

	tests := []struct {
		name        string
		body        string
		contentType string
		status      int
	}{
		{"valid", `{"query":"  Вартість\u0000 навчання "}`, fiber.MIMEApplicationJSON, http.StatusOK},
		{"missing query", `{"user_id":"1"}`, fiber.MIMEApplicationJSON, http.StatusBadRequest},
		{"blank query", `{"query":"  "}`, fiber.MIMEApplicationJSON, http.StatusBadRequest},
		{"too long", `{"query":"` + strings.Repeat("я", 21) + `"}`, fiber.MIMEApplicationJSON, http.StatusBadRequest},
		{"script", `{"query":"<script>x</script>"}`, fiber.MIMEApplicationJSON, http.StatusBadRequest},
		{"bad json", `{"query":`, fiber.MIMEApplicationJSON, http.StatusBadRequest},
		{"wrong type", `query=x`, fiber.MIMEApplicationForm, http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"query":"  Вартість\u0000 навчання "}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	_, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "Вартість навчання", seen)
}

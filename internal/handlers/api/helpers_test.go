package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v3"

	"wikimod/internal/config"
	"wikimod/internal/db"
	"wikimod/internal/middleware"
	"wikimod/internal/models"
	"wikimod/internal/session"
)

var (
	testModerator = &models.User{ID: 1, Sub: "sub-mod", Name: "Mod", Role: models.RoleModerator}
	testAdmin     = &models.User{ID: 2, Sub: "sub-admin", Name: "Root", Role: models.RoleAdmin}
	testAuthor    = &models.User{ID: 7, Sub: "sub-alice", Name: "Alice", Role: models.RoleUser}
	testTrusted   = &models.User{ID: 8, Sub: "sub-trusty", Name: "Trusty", Role: models.RoleAutomoderated}
)

type fakeUsers map[string]*models.User

func (f fakeUsers) GetUserBySub(_ context.Context, sub string) (*models.User, error) {
	if u, ok := f[sub]; ok {
		return u, nil
	}
	return nil, db.ErrUserNotFound
}

// newTestApp returns an app with sessions, actor loading and a /login/:sub
// route that logs the client in as one of the test users.
func newTestApp() *fiber.App {
	users := fakeUsers{}
	for _, u := range []*models.User{testModerator, testAdmin, testAuthor, testTrusted} {
		users[u.Sub] = u
	}

	app := fiber.New()
	app.Use(session.NewMiddleware(&config.Config{Env: "development"}, nil))
	app.Use(middleware.NewAuthMiddleware(users).LoadActor)
	app.Post("/login/:sub", func(c fiber.Ctx) error {
		session.LogIn(c, c.Params("sub"))
		return c.SendString("ok")
	})
	return app
}

type client struct {
	t       *testing.T
	app     *fiber.App
	cookies []*http.Cookie
}

func newClient(t *testing.T, app *fiber.App) *client {
	return &client{t: t, app: app}
}

func (cl *client) loginAs(u *models.User) *client {
	resp := cl.do("POST", "/login/"+u.Sub, nil, "")
	cl.cookies = resp.Cookies()
	return cl
}

func (cl *client) do(method, path string, body []byte, contentType string) *http.Response {
	cl.t.Helper()
	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	if err != nil {
		cl.t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range cl.cookies {
		req.AddCookie(c)
	}
	resp, err := cl.app.Test(req)
	if err != nil {
		cl.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	// Keep a session that was started by this request.
	if got := resp.Cookies(); len(got) > 0 && len(cl.cookies) == 0 {
		cl.cookies = got
	}
	return resp
}

func (cl *client) json(method, path string, body any) *http.Response {
	cl.t.Helper()
	var b []byte
	if body != nil {
		var err error
		if b, err = json.Marshal(body); err != nil {
			cl.t.Fatal(err)
		}
	}
	return cl.do(method, path, b, fiber.MIMEApplicationJSON)
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

func decode(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	b, _ := io.ReadAll(resp.Body)
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("bad response %q: %v", b, err)
	}
	return env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("bad data %s: %v", env.Data, err)
	}
	return v
}

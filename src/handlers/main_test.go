package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/username/briefingdesk/backend/src/config"
	"github.com/username/briefingdesk/backend/src/database"
	"github.com/username/briefingdesk/backend/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	config.LoadConfig()

	dir, err := os.MkdirTemp("", "briefingdesk-handlers-test-")
	if err != nil {
		panic(err)
	}
	database.InitDB(filepath.Join(dir, "test.db"))

	code := m.Run()

	database.DB.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

// asUser attaches an authenticated user ID the way AuthMiddleware would.
func asUser(r *http.Request, userID int64) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDContextKey, userID))
}

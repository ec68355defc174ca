package handler

import (
	"testing"
	"time"

	"github.com/rl1809/easy-inventory/internal/core/service"
	"github.com/rl1809/easy-inventory/internal/port/porttest"
)

type testApp struct {
	db        *porttest.Database
	cache     *porttest.Cache
	blobs     *porttest.Blobs
	mailer    *porttest.Mailer
	auth      *service.AuthService
	inventory *service.InventoryService
	reports   *service.ReportService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	app := &testApp{
		db:     porttest.NewDatabase(),
		cache:  porttest.NewCache(),
		blobs:  porttest.NewBlobs(),
		mailer: porttest.NewMailer(),
	}
	tokens := service.NewTokenManager("handler-secret-0123456789", time.Hour)
	app.auth = service.NewAuthService(app.db, app.cache, app.cache, app.mailer, tokens, time.Hour)
	app.inventory = service.NewInventoryService(app.db, app.blobs, app.cache, app.cache, 1<<20, 100)
	app.reports = service.NewReportService(app.inventory, app.auth, &porttest.Renderer{}, t.TempDir())
	t.Cleanup(app.inventory.Close)
	return app
}

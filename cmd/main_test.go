package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pickem/internal/config"
	"github.com/okian/pickem/pkg/logger"
)

func TestBuildEngine(t *testing.T) {
	convey.Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.Timezone = "UTC"

		convey.Convey("When the engine is built", func() {
			eng, err := buildEngine(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			defer eng.close()

			convey.Convey("Then it uses memory stores and no result feed", func() {
				convey.So(eng.svc, convey.ShouldNotBeNil)
				convey.So(eng.feed, convey.ShouldBeNil)
				convey.So(eng.closers, convey.ShouldBeEmpty)
			})

			convey.Convey("Then the HTTP server serves the API and docs", func() {
				srv := newHTTPServer(cfg, eng.svc, logger.Nop())
				convey.So(srv.Addr, convey.ShouldEqual, ":9080")

				for _, path := range []string{"/healthz", "/stats", "/leaderboard", "/api-docs", "/openapi.yaml", "/contests"} {
					w := httptest.NewRecorder()
					srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				}

				w := httptest.NewRecorder()
				body := strings.NewReader(`{"user_id":"u1","contest_id":"missing","team_id":"X"}`)
				srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/picks", body))
				convey.So(w.Code, convey.ShouldEqual, http.StatusNotFound)
			})
		})

		convey.Convey("When the timezone is unknown", func() {
			cfg.Timezone = "Nowhere/Special"
			_, err := buildEngine(ctx, cfg, logger.Nop())

			convey.Convey("Then building fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

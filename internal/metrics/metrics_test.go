package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRecorder(t *testing.T) {
	gin.SetMode(gin.TestMode)

	Convey("Given a recorder mounted on a router", t, func() {
		recorder := NewRecorder(false)
		router := gin.New()
		router.Use(recorder.Middleware())
		router.GET("/rutina/:id", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		router.GET("/metrics", gin.WrapH(recorder.Handler()))

		Convey("When two routines are fetched by id", func() {
			for _, id := range []string{"a", "b"} {
				router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rutina/"+id, nil))
			}

			Convey("Then both requests share the route template label", func() {
				counter := recorder.httpRequests.WithLabelValues("/rutina/:id", http.MethodGet, "200")
				So(testutil.ToFloat64(counter), ShouldEqual, 2)
			})
		})

		Convey("When an unknown path is requested", func() {
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

			Convey("Then it is recorded as unmatched", func() {
				counter := recorder.httpRequests.WithLabelValues(unmatchedRoute, http.MethodGet, "404")
				So(testutil.ToFloat64(counter), ShouldEqual, 1)
			})
		})

		Convey("When domain events are recorded", func() {
			recorder.RoutineCompleted()
			recorder.AuthRejected("missing_token")
			recorder.ObserveStreak(150 * time.Microsecond)

			Convey("Then the exposition lists them", func() {
				response := httptest.NewRecorder()
				router.ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/metrics", nil))
				body := response.Body.String()

				So(response.Code, ShouldEqual, http.StatusOK)
				So(strings.Contains(body, "healthylife_routine_completions_total 1"), ShouldBeTrue)
				So(strings.Contains(body, `healthylife_auth_rejections_total{reason="missing_token"} 1`), ShouldBeTrue)
				So(strings.Contains(body, "healthylife_streak_computation_seconds_count 1"), ShouldBeTrue)
			})
		})
	})
}

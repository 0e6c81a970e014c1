package handler

import (
	"net/http"
	"sync"

	"ecofusion-backend/bootstrap"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog/log"
)

var (
	once    sync.Once
	serve   http.HandlerFunc
	bootErr error
)

func load() {
	var app *fiber.App
	app, bootErr = bootstrap.New()
	if bootErr != nil {
		log.Error().Err(bootErr).Msg("serverless bootstrap failed")
		return
	}
	serve = adaptor.FiberApp(app)
}

// Handler is the serverless entry point. The app is built on the first request; a failed build
// is reported as 503 on every request of that instance.
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(load)
	if bootErr != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"error","error":{"message":"Service unavailable","statusCode":503,"details":{}}}`))
		return
	}
	r.RequestURI = r.URL.String()
	serve(w, r)
}

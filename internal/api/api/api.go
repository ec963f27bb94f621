package api

import (
	"attendly/cmd/middleware"
	"attendly/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"
)

type Routers struct {
	Service service.Service
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.RequestID())
	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())
	apiGroup := app.Group("/v1")

	apiGroup.GET("/session", r.Service.GetSession)
	apiGroup.POST("/apply", r.Service.Apply)
	apiGroup.POST("/apply/lookup", r.Service.Lookup)
	apiGroup.POST("/apply/cancel", r.Service.Cancel)

	return app
}

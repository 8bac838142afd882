package main

import (
	"github.com/lessonworks/billing/internal/billing"
	"github.com/lessonworks/billing/internal/clock"
	"github.com/lessonworks/billing/internal/config"
	"github.com/lessonworks/billing/internal/logger"
	"github.com/lessonworks/billing/internal/observability"
	"github.com/lessonworks/billing/internal/rating"
	"github.com/lessonworks/billing/internal/recordstore"
	"github.com/lessonworks/billing/internal/scheduler"
	"github.com/lessonworks/billing/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		clock.Module,
		recordstore.Module,

		rating.Module,
		billing.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

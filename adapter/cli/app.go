package cli

import (
	"errors"

	"github.com/felixgeelhaar/gadfly/internal/app"
	"github.com/felixgeelhaar/gadfly/internal/engine"
)

// ErrNotInitialized is returned by commands run without a container.
var ErrNotInitialized = errors.New("application not initialized - check GADFLY_STORE and DATABASE_URL")

// App holds the CLI application dependencies.
type App struct {
	Container *app.Container
}

// NewApp creates a new CLI application.
func NewApp(c *app.Container) *App {
	return &App{Container: c}
}

// Engine returns the container's engine.
func (a *App) Engine() *engine.Engine {
	return a.Container.Engine
}

var cliApp *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	cliApp = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return cliApp
}

// RequireApp returns the global application or ErrNotInitialized.
func RequireApp() (*App, error) {
	if cliApp == nil || cliApp.Container == nil {
		return nil, ErrNotInitialized
	}
	return cliApp, nil
}

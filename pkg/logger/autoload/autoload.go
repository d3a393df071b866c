// Package autoload initializes the global logger from LOG_* environment
// variables as a side effect of being imported.
package autoload

import (
	configx "github.com/trenchburger/attendant/pkg/config"
	logx "github.com/trenchburger/attendant/pkg/logger"
)

func init() {
	cfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*cfg)
}

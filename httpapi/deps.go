package httpapi

import (
	"propsyncd/config"
	"propsyncd/syncer"
)

// Deps carries everything the handlers need. main() builds one and hands it
// to NewMux.
type Deps struct {
	Cfg        *config.Config
	Controller *syncer.Controller
}

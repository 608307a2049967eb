// Package autoload registers all built-in channel factories via their
// init() functions. Import it for side effects from the application entry
// point.
package autoload

import (
	_ "concord/pkg/channels/telegram"
	_ "concord/pkg/channels/web"
)

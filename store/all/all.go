// Package all is a meta-package that imports all store implementations.
package all

import (
	_ "github.com/i3visio/simplectf/store/bbolt"
	_ "github.com/i3visio/simplectf/store/file"
	_ "github.com/i3visio/simplectf/store/memory"
	_ "github.com/i3visio/simplectf/store/postgres"
	_ "github.com/i3visio/simplectf/store/valkey"
)

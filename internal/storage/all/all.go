// Package all registers every storage backend with the factory.
// Blank-import it from the binary; config picks which one runs.
package all

import (
	_ "gridchat/internal/storage/mssql"
	_ "gridchat/internal/storage/postgres"
	_ "gridchat/internal/storage/sqlite"
)

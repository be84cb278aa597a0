// cmd/metastore/main.go
//
// metastore – resource metadata API.
//
// Commands
// --------
//
//	metastore serve            run the HTTP API
//	metastore migrate up       apply pending schema migrations
//	metastore migrate down N   roll back N migrations
//	metastore migrate version  print the applied schema version
//
// Every command loads configuration the same way (see internal/config):
// `conf/global.yaml` under --root (or METASTORE_ROOT), overlaid by
// `METASTORE_*` environment variables, with `vault:` values resolved when
// VAULT_ADDR is set.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

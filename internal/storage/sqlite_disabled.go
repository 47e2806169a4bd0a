//go:build !sqlite
// +build !sqlite

package storage

import (
	"fmt"

	logx "repowatch/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	_ = log
	return nil, fmt.Errorf("%w: driver %q requires building with -tags sqlite", ErrDisabled, cfg.Driver)
}

//go:build !sqlite
// +build !sqlite

package storage

import (
	"errors"
	"path/filepath"
	"testing"

	logx "repowatch/pkg/logx"
)

func TestOpenSQLiteWithoutTag(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db")}, logx.Nop())
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

//go:build tools

package rto

import (
	_ "golang.org/x/tools/cmd/stringer"
)

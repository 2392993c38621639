//go:build tools

package giftcircle

import (
	_ "go.uber.org/mock/mockgen"
)

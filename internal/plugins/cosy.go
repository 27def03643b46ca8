//go:build !geocosy_no_cosy

package plugins

import (
	"github.com/joshp123/geocosy/plugins/cosy"
)

func init() {
	Register(cosy.NewPlugin)
}

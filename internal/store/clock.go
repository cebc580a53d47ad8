package store

import (
	"time"

	"github.com/erazemk/kmetija/internal/model"
)

// location is the time zone that decides which calendar day it is.
var location = time.Local

// SetLocation sets the time zone used for date checks, such as refusing
// borrow requests that start in the past. Call it before serving requests;
// the scheduled jobs should use the same zone.
func SetLocation(loc *time.Location) {
	if loc != nil {
		location = loc
	}
}

// now and today are swapped in tests.
var (
	now   = time.Now
	today = func() model.Date { return model.NewDate(now().In(location)) }
)

package fileutil

import "time"

// Times holds the access and modification times of a file.
type Times struct {
	Access time.Time
	Modify time.Time
}

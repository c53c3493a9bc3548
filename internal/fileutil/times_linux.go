package fileutil

import (
	"time"

	"golang.org/x/sys/unix"
)

// StatTimes returns the access and modification times of path.
func StatTimes(path string) (Times, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return Times{}, err
	}
	return Times{
		Access: time.Unix(st.Atim.Sec, st.Atim.Nsec),
		Modify: time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
	}, nil
}

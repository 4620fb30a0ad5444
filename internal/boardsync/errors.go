package boardsync

import "errors"

var (
	// ErrUnauthorized means the current user may not open the board. Terminal
	// for the board view.
	ErrUnauthorized = errors.New("not authorized for board")
	// ErrBoardNotFound is terminal for the board view as well.
	ErrBoardNotFound = errors.New("board not found")
	// ErrRejected means the store refused the scene itself (failed server-side
	// validation). Retrying the same scene cannot succeed.
	ErrRejected = errors.New("scene rejected by store")
	// ErrNotMounted is returned by operations that need a mounted board.
	ErrNotMounted = errors.New("engine not mounted")
	// ErrAlreadyMounted is returned by a second Mount without Unmount.
	ErrAlreadyMounted = errors.New("engine already mounted")
)

// terminal reports errors that retrying cannot fix.
func terminal(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrBoardNotFound) || errors.Is(err, ErrRejected)
}

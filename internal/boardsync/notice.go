package boardsync

// NoticeKind classifies user-visible, non-blocking notifications.
type NoticeKind int

const (
	// NoticeSaveFailed: the retry ceiling was hit; the scene stays queued.
	NoticeSaveFailed NoticeKind = iota
	// NoticeSyncFailed: a reconnection re-fetch or a remote payload failed.
	NoticeSyncFailed
	// NoticeCorrupted: the stored scene failed validation and an empty scene
	// was loaded instead. StartFresh clears the condition.
	NoticeCorrupted
	// NoticeRealtimeUnavailable: joining the realtime channel failed.
	NoticeRealtimeUnavailable
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeSaveFailed:
		return "save_failed"
	case NoticeSyncFailed:
		return "sync_failed"
	case NoticeCorrupted:
		return "corrupted"
	case NoticeRealtimeUnavailable:
		return "realtime_unavailable"
	}
	return "unknown"
}

type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}

type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}

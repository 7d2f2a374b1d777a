package feedback

import (
	"sync"
	"time"
)

// NoticeKind matches the styling the kiosk screen applies to a message.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeLoading NoticeKind = "loading"
	NoticeError   NoticeKind = "error"
)

// Notice is a user-facing message that clears itself after Duration.
type Notice struct {
	Kind     NoticeKind    `json:"kind"`
	Text     string        `json:"text"`
	Duration time.Duration `json:"-"`
}

var (
	NoticeThanks = Notice{
		Kind:     NoticeSuccess,
		Text:     "Obrigado pelo seu feedback!",
		Duration: 2500 * time.Millisecond,
	}
	NoticeRecordedWillSync = Notice{
		Kind:     NoticeLoading,
		Text:     "Registado. Será sincronizado quando houver ligação.",
		Duration: 3200 * time.Millisecond,
	}
	NoticeQueuedOffline = Notice{
		Kind:     NoticeLoading,
		Text:     "Registado em modo offline. Será enviado quando voltar a internet.",
		Duration: 3200 * time.Millisecond,
	}
	NoticeDenied = Notice{
		Kind:     NoticeError,
		Text:     "Não foi possível registar: acesso negado pela base de dados (permission-denied). Atualiza as policies de acesso.",
		Duration: 7 * time.Second,
	}
	NoticePendingDenied = Notice{
		Kind:     NoticeError,
		Text:     "Os registos pendentes não podem ser enviados: acesso negado pela base de dados. Atualiza as policies de acesso.",
		Duration: 7 * time.Second,
	}
)

// NoticeBoard holds the single message currently shown on the kiosk. Posting replaces
// the previous message and restarts its timer.
type NoticeBoard struct {
	mu        sync.Mutex
	current   Notice
	expiresAt time.Time
	clock     func() time.Time
}

func NewNoticeBoard(clock func() time.Time) *NoticeBoard {
	if clock == nil {
		clock = time.Now
	}
	return &NoticeBoard{clock: clock}
}

func (b *NoticeBoard) Post(notice Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = notice
	b.expiresAt = b.clock().Add(notice.Duration)
}

// Current returns the visible notice, if it has not expired yet.
func (b *NoticeBoard) Current() (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current.Text == "" || !b.clock().Before(b.expiresAt) {
		return Notice{}, false
	}
	return b.current, true
}

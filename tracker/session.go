package tracker

import (
	"sync"

	"github.com/google/uuid"
)

// session 会话标识
// 懒生成一次，只写 session 后端（对应每标签页一个会话）
type session struct {
	once    sync.Once
	id      string
	storage storage
}

func newSession(backend storage) *session {
	return &session{storage: backend}
}

func (s *session) get() string {
	s.once.Do(func() {
		if existing, ok := s.storage.read(storageKeySessionID); ok {
			s.id = existing
			return
		}
		s.id = uuid.NewString()
		_ = s.storage.write(storageKeySessionID, s.id)
	})
	return s.id
}

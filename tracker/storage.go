package tracker

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/deptrack/deptrack/internal/logger"
)

// storageKeyClickID 点击标识的存储键
const storageKeyClickID = "dep_click_id"

// storageKeySessionID 会话标识的存储键；只进 session 后端
const storageKeySessionID = "dep_session_id"

// storage 单个持久化后端
// 写失败只记日志不中断；隐私模式可能禁用任意后端
type storage interface {
	name() string
	read(key string) (string, bool)
	write(key, value string) error
}

// cookieStorage cookie 后端
// 按页面 URL 推导 cookie 属性：根域作用域、https 下 Secure、SameSite=Lax
type cookieStorage struct {
	mu      sync.Mutex
	pageURL *url.URL
	ttl     time.Duration
	jar     map[string]*http.Cookie
	now     func() time.Time
}

func newCookieStorage(pageURL *url.URL, ttl time.Duration) *cookieStorage {
	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}
	return &cookieStorage{
		pageURL: pageURL,
		ttl:     ttl,
		jar:     make(map[string]*http.Cookie),
		now:     time.Now,
	}
}

func (s *cookieStorage) name() string { return "cookie" }

func (s *cookieStorage) read(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cookie, ok := s.jar[key]
	if !ok {
		return "", false
	}
	if !cookie.Expires.IsZero() && s.now().After(cookie.Expires) {
		delete(s.jar, key)
		return "", false
	}
	return cookie.Value, true
}

func (s *cookieStorage) write(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar[key] = s.build(key, value)
	return nil
}

// build 构造 cookie；属性与页面环境一致
func (s *cookieStorage) build(key, value string) *http.Cookie {
	cookie := &http.Cookie{
		Name:     key,
		Value:    value,
		Path:     "/",
		Expires:  s.now().Add(s.ttl),
		SameSite: http.SameSiteLaxMode,
	}
	if s.pageURL != nil {
		if s.pageURL.Scheme == "https" {
			cookie.Secure = true
		}
		if domain := rootDomain(s.pageURL.Hostname()); domain != "" {
			cookie.Domain = "." + domain
		}
	}
	return cookie
}

// Cookie 返回已写入的 cookie；供嵌入方回读属性
func (s *cookieStorage) Cookie(key string) (*http.Cookie, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cookie, ok := s.jar[key]
	return cookie, ok
}

// rootDomain 推导根域作用域
// localhost 和 IP 主机不做根域扩展，返回空
func rootDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || host == "localhost" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return ""
	}
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// fileStorage localStorage 后端的文件版；JSON 文件落盘
type fileStorage struct {
	mu   sync.Mutex
	path string
}

const stateFilename = "deptrack_state.json"

func newFileStorage(dir string) *fileStorage {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	return &fileStorage{path: filepath.Join(dir, stateFilename)}
}

func (s *fileStorage) name() string { return "local" }

func (s *fileStorage) read(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return "", false
	}
	value, ok := state[key]
	return value, ok && value != ""
}

func (s *fileStorage) write(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		state = map[string]string{}
	}
	state[key] = value
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *fileStorage) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	state := map[string]string{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return state, nil
}

// memoryStorage sessionStorage 后端；随 Tracker 实例存活（一个实例对应一个标签页）
type memoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{values: make(map[string]string)}
}

func (s *memoryStorage) name() string { return "session" }

func (s *memoryStorage) read(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok && value != ""
}

func (s *memoryStorage) write(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// storageSet 冗余存储组合；写入任一后端成功即算成功，读取按顺序取首个命中
type storageSet struct {
	backends []storage
}

func (s *storageSet) writeAll(key, value string) bool {
	ok := false
	for _, backend := range s.backends {
		if err := backend.write(key, value); err != nil {
			logger.Debugw("tracker_storage_write_failed", "backend", backend.name(), "key", key, "error", err)
			continue
		}
		ok = true
	}
	return ok
}

func (s *storageSet) readFirst(key string) (string, bool) {
	for _, backend := range s.backends {
		if value, ok := backend.read(key); ok {
			return value, true
		}
	}
	return "", false
}

package tracker

import (
	"net/url"
	"strings"

	"github.com/deptrack/deptrack/internal/logger"
)

// capture 落地页点击捕获
// 从 URL 查询串提取点击参数，前缀校验后冗余写入全部存储后端
type capture struct {
	param   string
	prefix  string
	storage *storageSet
}

func newCapture(param, prefix string, storage *storageSet) *capture {
	if strings.TrimSpace(param) == "" {
		param = "dep_id"
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = "dep_"
	}
	return &capture{param: param, prefix: prefix, storage: storage}
}

// fromURL 捕获落地页 URL 中的点击标识；返回是否新写入
func (c *capture) fromURL(pageURL string) bool {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		logger.Debugw("tracker_capture_parse_failed", "url", pageURL, "error", err)
		return false
	}
	raw := strings.TrimSpace(parsed.Query().Get(c.param))
	if raw == "" {
		return false
	}
	if !strings.HasPrefix(raw, c.prefix) {
		logger.Debugw("tracker_capture_prefix_mismatch", "value", raw)
		return false
	}
	if !c.storage.writeAll(storageKeyClickID, raw) {
		logger.Warnw("tracker_capture_store_failed", "click_id", raw)
		return false
	}
	return true
}

// clickID 读取已存储的点击标识；cookie → local → session 顺序，首个命中生效
func (c *capture) clickID() string {
	value, _ := c.storage.readFirst(storageKeyClickID)
	return value
}

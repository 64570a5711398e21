package tracker

import (
	"regexp"
	"strings"
	"time"

	"github.com/deptrack/deptrack/internal/logger"
)

// 检测方式
const (
	DetectMethodURL       = "url"
	DetectMethodTitle     = "title"
	DetectMethodContent   = "content"
	DetectMethodPredicate = "predicate"
	DetectMethodRule      = "rule"
	DetectMethodForm      = "form"
	DetectMethodButton    = "button"
	DetectMethodManual    = "manual"
)

// Predicate 自定义检测回调；返回 true 表示命中
type Predicate func(page Page) bool

// DetectorConfig 转化检测配置；各模式独立开关（留空即关闭）
type DetectorConfig struct {
	URLPatterns      []string // 命中即视为转化页的 URL 模式
	TitlePatterns    []string // 标题模式
	ContentSelectors []string // 转化标志元素的选择器
	FormSelectors    []string // 提交即转化的表单选择器
	ButtonSelectors  []string // 点击即转化的按钮选择器
	ConversionType   string   // 上报的转化类型，默认 "signup"
}

// Detection 一次检测命中；每轮评估至多产生一条
type Detection struct {
	Type       string
	PageURL    string
	Timestamp  time.Time
	Confidence string
	Method     string
}

// detector 按序评估：URL → 标题 → 内容选择器 → 自定义回调，先命中先返回
type detector struct {
	cfg        DetectorConfig
	predicates []Predicate
	now        func() time.Time
}

func newDetector(cfg DetectorConfig) *detector {
	if strings.TrimSpace(cfg.ConversionType) == "" {
		cfg.ConversionType = "signup"
	}
	return &detector{cfg: cfg, now: time.Now}
}

func (d *detector) addPredicate(p Predicate) {
	if p != nil {
		d.predicates = append(d.predicates, p)
	}
}

// checkPage 评估当前页面；未命中返回 nil
func (d *detector) checkPage(page Page) *Detection {
	for _, pattern := range d.cfg.URLPatterns {
		if matchPattern(pattern, page.URL) {
			return d.detection(page, "high", DetectMethodURL)
		}
	}
	for _, pattern := range d.cfg.TitlePatterns {
		if matchPattern(pattern, page.Title) {
			return d.detection(page, "medium", DetectMethodTitle)
		}
	}
	for _, selector := range d.cfg.ContentSelectors {
		if d.selectorPresent(page, selector) {
			return d.detection(page, "medium", DetectMethodContent)
		}
	}
	for i, predicate := range d.predicates {
		if d.runPredicate(i, predicate, page) {
			return d.detection(page, "low", DetectMethodPredicate)
		}
	}
	return nil
}

func (d *detector) detection(page Page, confidence, method string) *Detection {
	return &Detection{
		Type:       d.cfg.ConversionType,
		PageURL:    page.URL,
		Timestamp:  d.now(),
		Confidence: confidence,
		Method:     method,
	}
}

// selectorPresent 选择器检查；单个选择器出错不影响其余检测
func (d *detector) selectorPresent(page Page, selector string) (present bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnw("tracker_selector_check_panic", "selector", selector, "panic", r)
			present = false
		}
	}()
	return page.hasSelector(selector)
}

// runPredicate 自定义回调；panic 被吞掉并继续后续检测
func (d *detector) runPredicate(index int, predicate Predicate, page Page) (hit bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnw("tracker_predicate_panic", "index", index, "panic", r)
			hit = false
		}
	}()
	return predicate(page)
}

// matchPattern 模式匹配
// 含 `*` 编译为大小写不敏感正则（`*` 匹配任意序列），否则大小写不敏感子串包含
func matchPattern(pattern, value string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || value == "" {
		return false
	}
	if strings.Contains(pattern, "*") {
		parts := strings.Split(pattern, "*")
		for i, part := range parts {
			parts[i] = regexp.QuoteMeta(part)
		}
		re, err := regexp.Compile("(?i)" + strings.Join(parts, ".*"))
		if err != nil {
			logger.Debugw("tracker_pattern_compile_failed", "pattern", pattern, "error", err)
			return false
		}
		return re.MatchString(value)
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

// Package tracker 合作伙伴侧埋点 SDK
// 捕获落地页点击标识、检测转化并上报采集端点
package tracker

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/deptrack/deptrack/internal/logger"
)

// contentDebounce 内容变化重检的防抖间隔
const contentDebounce = 500 * time.Millisecond

// Config Tracker 配置
type Config struct {
	PartnerID     string         // 合作伙伴标识，必填
	Endpoint      string         // 采集服务地址，必填
	PartnerDomain string         // 申报域名；缺省取落地页主机名
	PageURL       string         // 初始落地页 URL
	Referrer      string         // 初始 referrer
	Fingerprint   string         // 嵌入方计算的浏览器指纹，可选
	ClickParam    string         // 点击参数名，默认 dep_id
	ClickIDPrefix string         // 点击标识前缀，默认 dep_
	CookieTTL     time.Duration  // cookie 有效期，默认 90 天
	StateDir      string         // local 后端落盘目录，默认系统临时目录
	Detector      DetectorConfig // 转化检测配置
	HTTPClient    *http.Client   // 自定义 HTTP 客户端，可选
	Debug         bool
}

// Tracker 埋点实例；显式创建，不依赖任何包级状态
type Tracker struct {
	mu sync.Mutex

	cfg       Config
	pageURL   *url.URL
	referrer  string
	capture   *capture
	session   *session
	detector  *detector
	rules     *ruleEngine
	transport *transport
	cookies   *cookieStorage

	fired        map[string]bool // 已触发的转化，按 method|path 去重
	wiredForms   map[string]bool
	wiredButtons map[string]bool

	debounce *time.Timer
	debug    bool
	closed   bool
}

// New 创建 Tracker 并处理初始落地页
func New(cfg Config) (*Tracker, error) {
	if strings.TrimSpace(cfg.PartnerID) == "" {
		return nil, errors.New("tracker: partner id is required")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("tracker: endpoint is required")
	}
	pageURL, err := url.Parse(cfg.PageURL)
	if err != nil {
		return nil, errors.New("tracker: invalid page url")
	}
	if strings.TrimSpace(cfg.PartnerDomain) == "" {
		cfg.PartnerDomain = pageURL.Hostname()
	}

	cookies := newCookieStorage(pageURL, cfg.CookieTTL)
	sessionBackend := newMemoryStorage()
	backends := &storageSet{backends: []storage{
		cookies,
		newFileStorage(cfg.StateDir),
		sessionBackend,
	}}

	t := &Tracker{
		cfg:          cfg,
		pageURL:      pageURL,
		referrer:     cfg.Referrer,
		capture:      newCapture(cfg.ClickParam, cfg.ClickIDPrefix, backends),
		session:      newSession(sessionBackend),
		detector:     newDetector(cfg.Detector),
		rules:        newRuleEngine(),
		transport:    newTransport(cfg.Endpoint, cfg.HTTPClient),
		cookies:      cookies,
		fired:        make(map[string]bool),
		wiredForms:   make(map[string]bool),
		wiredButtons: make(map[string]bool),
		debug:        cfg.Debug,
	}

	t.capture.fromURL(cfg.PageURL)
	t.sendPageView(cfg.PageURL)
	return t, nil
}

// Close 释放定时器等资源；之后的调用全部变为空操作
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.debounce != nil {
		t.debounce.Stop()
		t.debounce = nil
	}
}

// SetDebug 切换调试日志
func (t *Tracker) SetDebug(debug bool) {
	t.mu.Lock()
	t.debug = debug
	t.mu.Unlock()
}

// ClickID 当前存储的点击标识；未捕获返回空
func (t *Tracker) ClickID() string {
	return t.capture.clickID()
}

// SessionID 当前会话标识；首次调用时生成
func (t *Tracker) SessionID() string {
	return t.session.get()
}

// RegisterPredicate 注册自定义检测回调；按注册顺序评估
func (t *Tracker) RegisterPredicate(p Predicate) {
	t.detector.addPredicate(p)
}

// AddRule 注册动态转化规则
func (t *Tracker) AddRule(rule Rule) {
	t.rules.add(rule)
}

// Navigate SPA 路由变化入口（pushState/replaceState/popstate 的等价物）
// 路径、查询串或锚点变化时按新页面处理
func (t *Tracker) Navigate(page Page) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	next, err := url.Parse(page.URL)
	if err != nil {
		t.mu.Unlock()
		logger.Debugw("tracker_navigate_parse_failed", "url", page.URL, "error", err)
		return
	}
	prev := t.pageURL
	if prev != nil &&
		prev.Path == next.Path && prev.RawQuery == next.RawQuery && prev.Fragment == next.Fragment {
		t.mu.Unlock()
		return
	}
	t.pageURL = next
	t.mu.Unlock()

	t.capture.fromURL(page.URL)
	t.sendPageView(page.URL)
	t.evaluate(page)
}

// ContentUpdated 页面内容变化入口（mutation observer 的等价物）
// 防抖约 500ms 后重新评估；同时接管新出现的表单/按钮钩子
func (t *Tracker) ContentUpdated(page Page) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.wireHooks(page)
	if t.debounce != nil {
		t.debounce.Stop()
	}
	t.debounce = time.AfterFunc(contentDebounce, func() {
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		t.evaluate(page)
	})
	t.mu.Unlock()
}

// FormSubmitted 表单提交钩子；选择器匹配配置时触发转化
func (t *Tracker) FormSubmitted(selector string) {
	if !t.hooked(t.wiredForms, selector) {
		return
	}
	t.fireConversion(t.currentURL(), t.detector.cfg.ConversionType, DetectMethodForm)
}

// ButtonClicked 按钮点击钩子
func (t *Tracker) ButtonClicked(selector string) {
	if !t.hooked(t.wiredButtons, selector) {
		return
	}
	t.fireConversion(t.currentURL(), t.detector.cfg.ConversionType, DetectMethodButton)
}

// TrackConversion 手动触发转化上报
func (t *Tracker) TrackConversion(conversionType string) {
	if strings.TrimSpace(conversionType) == "" {
		conversionType = t.detector.cfg.ConversionType
	}
	t.sendConversion(t.currentURL(), conversionType, DetectMethodManual)
}

// evaluate 跑一轮检测：固定检测器先行，动态规则随后
func (t *Tracker) evaluate(page Page) {
	if detection := t.detector.checkPage(page); detection != nil {
		t.fireConversion(detection.PageURL, detection.Type, detection.Method)
		return
	}
	if ruleType, ok := t.rules.evaluate(page, t.ClickID() != ""); ok {
		t.fireConversion(page.URL, ruleType, DetectMethodRule)
	}
}

// fireConversion 去重后上报转化；同一路径同一方式只触发一次
func (t *Tracker) fireConversion(pageURL, conversionType, method string) {
	key := method + "|" + normalizePath(pageURL)
	t.mu.Lock()
	if t.closed || t.fired[key] {
		t.mu.Unlock()
		return
	}
	t.fired[key] = true
	t.mu.Unlock()
	t.sendConversion(pageURL, conversionType, method)
}

func (t *Tracker) sendPageView(pageURL string) {
	event := t.baseEvent("track", pageURL)
	t.transport.sendPixel(event)
}

func (t *Tracker) sendConversion(pageURL, conversionType, method string) {
	if t.isDebug() {
		logger.Debugw("tracker_conversion_detected",
			"partner_id", t.cfg.PartnerID,
			"type", conversionType,
			"method", method,
			"url", pageURL,
		)
	}
	event := t.baseEvent("conversion", pageURL)
	event.ConversionType = conversionType
	event.Metadata = map[string]string{"detect_method": method}
	t.transport.sendPixel(event)
	// 转化事件多补一发 beacon，任一通道到达即可
	t.transport.sendBeacon(event)
}

func (t *Tracker) baseEvent(eventType, pageURL string) Event {
	return Event{
		PartnerID:     t.cfg.PartnerID,
		Type:          eventType,
		PartnerDomain: t.cfg.PartnerDomain,
		ClickID:       t.ClickID(),
		Fingerprint:   t.cfg.Fingerprint,
		SessionID:     t.SessionID(),
		PageURL:       pageURL,
		Referrer:      t.referrer,
		Timestamp:     time.Now().UnixMilli(),
	}
}

// wireHooks 记录当前页面匹配到的表单/按钮选择器；后续提交/点击事件据此放行
func (t *Tracker) wireHooks(page Page) {
	for _, selector := range t.detector.cfg.FormSelectors {
		if page.hasForm(selector) {
			t.wiredForms[selector] = true
		}
	}
	for _, selector := range t.detector.cfg.ButtonSelectors {
		if page.hasButton(selector) {
			t.wiredButtons[selector] = true
		}
	}
}

func (t *Tracker) hooked(wired map[string]bool, selector string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && wired[selector]
}

func (t *Tracker) currentURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pageURL == nil {
		return ""
	}
	return t.pageURL.String()
}

func (t *Tracker) isDebug() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.debug
}

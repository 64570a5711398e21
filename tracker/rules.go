package tracker

import (
	"net/url"
	"strings"
	"sync"
)

// Rule 动态转化规则；运行期由嵌入方下发
// 只在已捕获 click_id 时评估，每个规范化路径整个 Tracker 生命周期内至多触发一次
type Rule struct {
	Type         string // 上报的转化类型
	URLContains  string // URL 包含匹配
	TextContains string // 页面文本包含匹配
}

type ruleEngine struct {
	mu    sync.Mutex
	rules []Rule
	fired map[string]bool
}

func newRuleEngine() *ruleEngine {
	return &ruleEngine{fired: make(map[string]bool)}
}

func (e *ruleEngine) add(rule Rule) {
	if rule.URLContains == "" && rule.TextContains == "" {
		return
	}
	if strings.TrimSpace(rule.Type) == "" {
		rule.Type = "signup"
	}
	e.mu.Lock()
	e.rules = append(e.rules, rule)
	e.mu.Unlock()
}

// evaluate 评估动态规则；命中返回规则类型
// hasClickID 为 false 时整体跳过
func (e *ruleEngine) evaluate(page Page, hasClickID bool) (string, bool) {
	if !hasClickID {
		return "", false
	}
	path := normalizePath(page.URL)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fired[path] {
		return "", false
	}
	for _, rule := range e.rules {
		if rule.URLContains != "" && !strings.Contains(strings.ToLower(page.URL), strings.ToLower(rule.URLContains)) {
			continue
		}
		if rule.TextContains != "" && !strings.Contains(strings.ToLower(page.Text), strings.ToLower(rule.TextContains)) {
			continue
		}
		e.fired[path] = true
		return rule.Type, true
	}
	return "", false
}

// normalizePath 去掉查询串和锚点，统一末尾斜杠
func normalizePath(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return strings.ToLower(path)
}

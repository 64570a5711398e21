package tracker

// Page 当前页面快照；嵌入方在导航或内容变化时提供
type Page struct {
	URL       string   // 完整页面 URL
	Title     string   // 文档标题
	Text      string   // 页面可见文本
	Selectors []string // 当前存在的内容选择器
	Forms     []string // 当前存在的表单选择器
	Buttons   []string // 当前存在的按钮选择器
}

func (p Page) hasSelector(selector string) bool {
	for _, s := range p.Selectors {
		if s == selector {
			return true
		}
	}
	return false
}

func (p Page) hasForm(selector string) bool {
	for _, s := range p.Forms {
		if s == selector {
			return true
		}
	}
	return false
}

func (p Page) hasButton(selector string) bool {
	for _, s := range p.Buttons {
		if s == selector {
			return true
		}
	}
	return false
}

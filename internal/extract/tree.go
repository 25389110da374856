// Package extract 把结构不稳定的XML数据包解析成松散的记录序列。
package extract

import (
	"fmt"
	"strings"

	"github.com/clbanning/mxj/v2"
)

// TextKey 带属性的元素把文本放在这个键下
const TextKey = "#text"

// Tree 解析后的通用树
type Tree map[string]any

// Record 单条松散结构的合同记录
type Record map[string]any

// Parse 把XML解析为通用树
func Parse(data []byte) (Tree, error) {
	m, err := mxj.NewMapXml(data)
	if err != nil {
		return nil, fmt.Errorf("解析XML失败: %w", err)
	}
	return Tree(m), nil
}

// Text 把标量、单元素集合、带 #text 的元素三种形态统一为可选字符串
func Text(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case []any:
		if len(t) == 0 {
			return "", false
		}
		return Text(t[0])
	case map[string]any:
		if inner, ok := t[TextKey]; ok {
			return Text(inner)
		}
		return "", false
	case mxj.Map:
		return Text(map[string]any(t))
	case Record:
		return Text(map[string]any(t))
	case fmt.Stringer:
		return Text(t.String())
	case bool, int, int64, float64:
		return Text(fmt.Sprint(t))
	default:
		return "", false
	}
}

// Node 沿路径取子节点，途经的单元素集合取第一个
func Node(v any, path ...string) any {
	cur := v
	for _, key := range path {
		m, ok := asMap(first(cur))
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

// Field 沿路径取文本值
func (r Record) Field(path ...string) (string, bool) {
	return Text(Node(map[string]any(r), path...))
}

// FirstField 依次尝试多个路径，返回第一个非空值
func (r Record) FirstField(paths ...[]string) (string, bool) {
	for _, p := range paths {
		if s, ok := r.Field(p...); ok {
			return s, true
		}
	}
	return "", false
}

// Items 把节点展开为列表：单个值视为一个元素
func Items(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func first(v any) any {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case mxj.Map:
		return map[string]any(t), true
	case Record:
		return map[string]any(t), true
	case Tree:
		return map[string]any(t), true
	default:
		return nil, false
	}
}

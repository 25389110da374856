package extract

// Strategy 从通用树中定位记录列表的一种方式，纯函数
type Strategy struct {
	Name    string
	Extract func(Tree) []Record
}

// contractKey 记录可能包一层的合同子对象
const contractKey = "smlouva"

// DefaultStrategies 按可信度从高到低排列的定位方式
func DefaultStrategies() []Strategy {
	return []Strategy{
		pathStrategy("records", "dump", "zaznam"),
		pathStrategy("legacy-contracts", "dump", "smlouvy", "smlouva"),
		pathStrategy("nested-records", "dump", "zaznamy", "zaznam"),
		pathStrategy("bare-records", "zaznam"),
	}
}

// pathStrategy 沿固定路径收集记录，中间遇到的列表逐个展开
func pathStrategy(name string, path ...string) Strategy {
	return Strategy{
		Name: name,
		Extract: func(t Tree) []Record {
			var out []Record
			for _, n := range collect(map[string]any(t), path) {
				if m, ok := asMap(n); ok {
					out = append(out, Record(m))
				}
			}
			return out
		},
	}
}

func collect(node any, path []string) []any {
	if len(path) == 0 {
		return Items(node)
	}
	var out []any
	for _, item := range Items(node) {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		child, ok := m[path[0]]
		if !ok {
			continue
		}
		out = append(out, collect(child, path[1:])...)
	}
	return out
}

// Records 取第一个非空的定位结果，并展开一层合同子对象；都不匹配时返回空
func Records(t Tree, strategies ...Strategy) ([]Record, string) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	for _, s := range strategies {
		recs := s.Extract(t)
		if len(recs) == 0 {
			continue
		}
		out := make([]Record, 0, len(recs))
		for _, r := range recs {
			out = append(out, Unwrap(r))
		}
		return out, s.Name
	}
	return nil, ""
}

// Unwrap 记录内含 smlouva 子对象时以其为主体，外层其余字段（如 identifikator）保留
func Unwrap(r Record) Record {
	inner, ok := asMap(first(r[contractKey]))
	if !ok {
		return r
	}
	out := make(Record, len(inner)+len(r))
	for k, v := range r {
		if k != contractKey {
			out[k] = v
		}
	}
	for k, v := range inner {
		out[k] = v
	}
	return out
}

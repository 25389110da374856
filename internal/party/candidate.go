package party

import (
	"strings"
	"unicode"

	"ContractSync/internal/extract"
	"ContractSync/internal/model"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Candidate 记录中出现过的一个合同方，多处出现时分数累加
type Candidate struct {
	Name           string   `json:"name"`
	Key            string   `json:"-"`
	ICO            string   `json:"ico,omitempty"`
	Address        string   `json:"address,omitempty"`
	Email          string   `json:"email,omitempty"`
	AuthorityScore int      `json:"authorityScore"`
	SupplierScore  int      `json:"supplierScore"`
	ExplicitRole   Role     `json:"explicitRole,omitempty"`
	IsPublic       bool     `json:"isPublic"`
	IsPrivate      bool     `json:"isPrivate"`
	Sources        []string `json:"sources"`
}

// Score 某个角色的得分
func (c *Candidate) Score(role Role) int {
	switch role {
	case RoleAuthority:
		return c.AuthorityScore
	case RoleSupplier:
		return c.SupplierScore
	default:
		return 0
	}
}

// mention 记录里的一次出现
type mention struct {
	source  string
	name    string
	ico     string
	address string
	email   string
	role    Role
}

// 出现合同方的字段及其隐含角色
var partySources = []struct {
	key  string
	role Role
}{
	{"subjekt", RoleNone},
	{"smluvniStrana", RoleNone},
	{"schvalil", RoleNone},
	{"dodavatel", RoleSupplier},
	{"zadavatel", RoleAuthority},
}

var folder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold 去掉变音符号、转小写并合并空白，用于匹配与去重
func Fold(s string) string {
	out, _, err := transform.String(folder, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

var unspecifiedKey = Fold(model.Unspecified)

// Candidates 收集记录中所有合同方并按规则计分，顺序为首次出现的顺序
func (r *Resolver) Candidates(rec extract.Record) []*Candidate {
	byKey := make(map[string]*Candidate)
	var out []*Candidate
	for _, m := range mentions(rec) {
		key := Fold(m.name)
		if key == "" || key == unspecifiedKey {
			continue
		}
		c, ok := byKey[key]
		if !ok {
			c = &Candidate{Name: m.name, Key: key}
			byKey[key] = c
			out = append(out, c)
		}
		r.apply(c, m)
	}
	return out
}

func (r *Resolver) apply(c *Candidate, m mention) {
	c.Sources = append(c.Sources, m.source)
	if c.ICO == "" {
		c.ICO = m.ico
	}
	if c.Address == "" {
		c.Address = m.address
	}
	if c.Email == "" {
		c.Email = m.email
	}
	if m.role != RoleNone {
		if c.ExplicitRole == RoleNone {
			c.ExplicitRole = m.role
		}
		c.add(m.role, ExplicitRoleWeight)
	}

	name := Fold(m.name)
	email := strings.ToLower(strings.TrimSpace(m.email))
	for _, s := range r.signals {
		text := name
		if s.Field == FieldEmail {
			text = email
		}
		if text == "" || !s.Pattern.MatchString(text) {
			continue
		}
		c.add(s.Role, s.Weight)
		switch s.Flag {
		case FlagPublic:
			c.IsPublic = true
		case FlagPrivate:
			c.IsPrivate = true
		}
	}
}

func (c *Candidate) add(role Role, w int) {
	switch role {
	case RoleAuthority:
		c.AuthorityScore += w
	case RoleSupplier:
		c.SupplierScore += w
	}
}

func mentions(rec extract.Record) []mention {
	var out []mention
	for _, src := range partySources {
		for _, item := range extract.Items(rec[src.key]) {
			if m, ok := parseMention(src.key, item, src.role); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

// parseMention 合同方可以是纯文本名称，也可以是带 nazev/ico/adresa 的节点
func parseMention(source string, v any, role Role) (mention, bool) {
	m := mention{source: source, role: role}
	if name, ok := extract.Text(v); ok && extract.Node(v, "nazev") == nil {
		m.name = name
		return m, true
	}
	node := extract.Record{}
	if rec, ok := v.(map[string]any); ok {
		node = rec
	}
	name, ok := node.Field("nazev")
	if !ok {
		return m, false
	}
	m.name = name
	m.ico, _ = node.Field("ico")
	m.address, _ = node.Field("adresa")
	m.email, _ = node.Field("email")
	if m.role == RoleNone {
		m.role = taggedRole(node)
	}
	return m, true
}

// taggedRole 节点上的显式角色标注：role 字段，或 prijemce=1 表示收款方（供应商）
func taggedRole(node extract.Record) Role {
	if v, ok := node.Field("role"); ok {
		switch Fold(v) {
		case "dodavatel", "supplier", "prijemce":
			return RoleSupplier
		case "zadavatel", "objednatel", "authority", "odberatel":
			return RoleAuthority
		}
	}
	if v, ok := node.Field("prijemce"); ok {
		switch strings.ToLower(v) {
		case "1", "true":
			return RoleSupplier
		}
	}
	return RoleNone
}

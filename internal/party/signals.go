package party

import "regexp"

// Role 合同方角色
type Role string

const (
	RoleNone      Role = ""
	RoleAuthority Role = "authority"
	RoleSupplier  Role = "supplier"
)

// Opposite 另一方角色
func (r Role) Opposite() Role {
	switch r {
	case RoleAuthority:
		return RoleSupplier
	case RoleSupplier:
		return RoleAuthority
	default:
		return RoleNone
	}
}

// SignalField 规则作用的字段
type SignalField int

const (
	FieldName SignalField = iota
	FieldEmail
)

// Flag 规则命中后给候选方打的标记
type Flag int

const (
	FlagNone Flag = iota
	FlagPublic
	FlagPrivate
)

// ExplicitRoleWeight 数据源明确标注角色时的加分
const ExplicitRoleWeight = 100

// Signal 一条评分规则：字段匹配正则时给对应角色加分
type Signal struct {
	Name    string
	Field   SignalField
	Pattern *regexp.Regexp
	Role    Role
	Weight  int
	Flag    Flag
}

// 规则在去掉变音符号、转小写后的文本上匹配
var defaultSignals = []Signal{
	{
		Name:  "public-keyword",
		Field: FieldName,
		Pattern: regexp.MustCompile(`\b(` +
			`ministerstv\w*|` +
			`urad\w*|` +
			`obec|obce|obci|obecni\w*|` +
			`mesto|mesta|mestu|mestem|mestsk\w*|mestys\w*|` +
			`magistrat\w*|` +
			`kraj|kraje|kraji|krajem|krajsk\w*|` +
			`stat|statu|statni\w*|` +
			`reditelstv\w*|` +
			`sprava|spravy|` +
			`policie|` +
			`nemocnic\w*|` +
			`hasicsk\w*` +
			`)\b`),
		Role:   RoleAuthority,
		Weight: 30,
		Flag:   FlagPublic,
	},
	{
		Name:  "private-legal-form",
		Field: FieldName,
		Pattern: regexp.MustCompile(`(` +
			`\bspol\.\s?s\s?r\.\s?o\b|` +
			`\bs\.\s?r\.\s?o\b|` +
			`\ba\.\s?s\b|` +
			`\bv\.\s?o\.\s?s\b|` +
			`\bk\.\s?s\b|` +
			`\b(gmbh|ltd|inc|llc)\b` +
			`)`),
		Role:   RoleSupplier,
		Weight: 30,
		Flag:   FlagPrivate,
	},
	{
		Name:  "institutional-email",
		Field: FieldEmail,
		Pattern: regexp.MustCompile(`@([a-z0-9-]+\.)*(` +
			`gov\.cz|` +
			`[a-z0-9-]*kraj[a-z0-9-]*\.cz|` +
			`(obec|mesto|mestys)[a-z0-9-]*\.cz|` +
			`praha[0-9]*\.cz|` +
			`policie\.cz|army\.cz|justice\.cz` +
			`)$`),
		Role:   RoleAuthority,
		Weight: 10,
	},
}

// DefaultSignals 返回评分规则表的副本，调用方修改不影响默认表
func DefaultSignals() []Signal {
	return append([]Signal(nil), defaultSignals...)
}

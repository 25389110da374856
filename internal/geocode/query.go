package geocode

import (
	"regexp"
	"strings"
)

// maxAddressLen 超过这个长度的地址视为拼接了多余信息
const maxAddressLen = 120

// 邮编（PSČ）及其后的城市名
var postalCode = regexp.MustCompile(`\b\d{3}\s?\d{2}\b(\s+[^\s,;]+)?`)

// 查询串的分隔符
var delimiters = ",;"

// 从机关名称提取城市，按顺序匹配
var cityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^magistr[áa]t\s+(?:hlavn[íi]ho\s+)?m[ěe]sta\s+(.+)$`),
	regexp.MustCompile(`(?i)^m[ěe]stsk[áa]\s+[čc][áa]st\s+(praha[\s-]*\d{1,2})\b`),
	regexp.MustCompile(`(?i)^statut[áa]rn[íi]\s+m[ěe]sto\s+(.+)$`),
	regexp.MustCompile(`(?i)^(?:m[ěe]stsk[ýy]|obecn[íi])\s+[úu][řr]ad\s+(?:v\s+|ve\s+)?(.+)$`),
	regexp.MustCompile(`(?i)^m[ěe]sto\s+(.+)$`),
	regexp.MustCompile(`(?i)^m[ěe]stys\s+(.+)$`),
	regexp.MustCompile(`(?i)^obec\s+(.+)$`),
	regexp.MustCompile(`(?i)\b(praha[\s-]*\d{1,2})\b`),
}

// BuildQuery 地址加国家名；过长的地址截断到第一个邮编（含其后的城市名）
func BuildQuery(address, country string) string {
	q := strings.Join(strings.Fields(address), " ")
	if q == "" {
		return ""
	}
	if len([]rune(q)) > maxAddressLen {
		if loc := postalCode.FindStringIndex(q); loc != nil {
			q = strings.TrimRight(q[:loc[1]], " ,;")
		}
	}
	return withCountry(q, country)
}

// CityFromAuthority 从机关名称中提取城市名，无法识别时返回空串
func CityFromAuthority(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	for _, re := range cityPatterns {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		city := m[1]
		if i := strings.IndexAny(city, delimiters); i >= 0 {
			city = city[:i]
		}
		if city = strings.TrimSpace(city); city != "" {
			return city
		}
	}
	return ""
}

// authorityQuery 机关名称能识别出城市就用城市，否则直接用名称
func authorityQuery(authority, country string) string {
	authority = strings.Join(strings.Fields(authority), " ")
	if authority == "" {
		return ""
	}
	if city := CityFromAuthority(authority); city != "" {
		return withCountry(city, country)
	}
	return withCountry(authority, country)
}

// simplify 只保留第一个分隔符之前的部分
func simplify(q, country string) string {
	head := q
	if i := strings.IndexAny(q, delimiters); i >= 0 {
		head = q[:i]
	}
	return withCountry(strings.TrimSpace(head), country)
}

func withCountry(q, country string) string {
	if q == "" || country == "" || strings.Contains(strings.ToLower(q), strings.ToLower(country)) {
		return q
	}
	return q + ", " + country
}

package party

import (
	"io"
	"testing"

	"ContractSync/internal/extract"
	"ContractSync/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver() *Resolver {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewResolver(logger)
}

func party(name string, kv ...string) map[string]any {
	m := map[string]any{"nazev": name}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func TestResolve_ExplicitFields(t *testing.T) {
	res := newTestResolver().Resolve(extract.Record{
		"dodavatel": "ACME s.r.o.",
		"zadavatel": "Ministerstvo financí",
	})
	assert.Equal(t, "ACME s.r.o.", res.Supplier)
	assert.Equal(t, "Ministerstvo financí", res.Authority)
	assert.False(t, res.Degraded)
}

func TestResolve_SinglePublicSubject(t *testing.T) {
	res := newTestResolver().Resolve(extract.Record{
		"subjekt": party("Město Kolín", "adresa", "Karlovo náměstí 78, 280 12 Kolín"),
	})
	assert.Equal(t, "Město Kolín", res.Authority)
	assert.Equal(t, model.Unspecified, res.Supplier)
	assert.Equal(t, "Karlovo náměstí 78, 280 12 Kolín", res.AuthorityAddress)
}

func TestResolve_SinglePrivateSubjectBecomesSupplier(t *testing.T) {
	res := newTestResolver().Resolve(extract.Record{"subjekt": party("Jan Novák")})
	assert.Equal(t, "Jan Novák", res.Supplier)
	assert.Equal(t, model.Unspecified, res.Authority)
}

func TestResolve_TwoCandidatesSupplierSignal(t *testing.T) {
	res := newTestResolver().Resolve(extract.Record{
		"subjekt": []any{party("Jan Novák"), party("Stavby a.s.", "ico", "12345678")},
	})
	assert.Equal(t, "Stavby a.s.", res.Supplier)
	assert.Equal(t, "12345678", res.SupplierICO)
	assert.Equal(t, "Jan Novák", res.Authority)
}

func TestResolve_TwoCandidateCompletionFromTag(t *testing.T) {
	res := newTestResolver().Resolve(extract.Record{
		"smluvniStrana": []any{party("Alfa", "prijemce", "1"), party("Beta")},
	})
	assert.Equal(t, "Alfa", res.Supplier)
	assert.Equal(t, "Beta", res.Authority)

	res = newTestResolver().Resolve(extract.Record{
		"smluvniStrana": []any{party("Gama"), party("Delta", "role", "objednatel")},
	})
	assert.Equal(t, "Delta", res.Authority)
	assert.Equal(t, "Gama", res.Supplier)
}

func TestCandidates_ScoresAccumulateAcrossSources(t *testing.T) {
	cands := newTestResolver().Candidates(extract.Record{
		"subjekt":       party("Město Kolín"),
		"smluvniStrana": party("MĚSTO  KOLÍN", "email", "posta@mesto-kolin.cz"),
	})
	require.Len(t, cands, 1)
	c := cands[0]
	assert.Equal(t, "Město Kolín", c.Name)
	assert.Equal(t, 70, c.AuthorityScore)
	assert.Equal(t, 0, c.SupplierScore)
	assert.True(t, c.IsPublic)
	assert.Equal(t, []string{"subjekt", "smluvniStrana"}, c.Sources)
}

func TestCandidates_InstitutionalEmailOnly(t *testing.T) {
	cands := newTestResolver().Candidates(extract.Record{
		"subjekt": party("Technické služby", "email", "info@kraj-lbc.cz"),
	})
	require.Len(t, cands, 1)
	assert.Equal(t, 10, cands[0].AuthorityScore)
	assert.False(t, cands[0].IsPublic)
}

func TestCandidates_SentinelAndEmptyNamesIgnored(t *testing.T) {
	cands := newTestResolver().Candidates(extract.Record{
		"subjekt":  []any{party("Neuvedeno"), map[string]any{"ico": "1"}},
		"schvalil": "Ing. Petr Svoboda",
	})
	require.Len(t, cands, 1)
	assert.Equal(t, "Ing. Petr Svoboda", cands[0].Name)
}

func TestResolve_CollisionNextSupplier(t *testing.T) {
	res := newTestResolver().Resolve(extract.Record{
		"subjekt": []any{party("Městská správa s.r.o."), party("Beta s.r.o.")},
	})
	assert.Equal(t, "Městská správa s.r.o.", res.Authority)
	assert.Equal(t, "Beta s.r.o.", res.Supplier)
	assert.False(t, res.Degraded)
}

func TestResolve_CollisionPublicPairing(t *testing.T) {
	res := newTestResolver().Resolve(extract.Record{
		"subjekt": []any{party("Jan Novák"), party("Městská správa s.r.o."), party("Petr Svoboda")},
	})
	assert.Equal(t, "Městská správa s.r.o.", res.Authority)
	assert.Equal(t, "Jan Novák", res.Supplier)
	assert.False(t, res.Degraded)
}

func TestResolve_LexicographicFallback(t *testing.T) {
	res := newTestResolver().Resolve(extract.Record{
		"subjekt": []any{party("Zeta"), party("Alfa")},
	})
	assert.Equal(t, "Alfa", res.Authority)
	assert.Equal(t, "Zeta", res.Supplier)
	assert.True(t, res.Degraded)
}

func TestResolve_SwapsPublicLookingSupplier(t *testing.T) {
	res := newTestResolver().Resolve(extract.Record{
		"smluvniStrana": []any{party("Jan Novák", "role", "objednatel"), party("Obec Lhota")},
	})
	assert.Equal(t, "Obec Lhota", res.Authority)
	assert.Equal(t, "Jan Novák", res.Supplier)
}

func TestResolve_SwapOverridesExplicitTags(t *testing.T) {
	res := newTestResolver().Resolve(extract.Record{
		"dodavatel": "Obec Lhota",
		"zadavatel": "Jan Novák",
	})
	assert.Equal(t, "Obec Lhota", res.Authority)
	assert.Equal(t, "Jan Novák", res.Supplier)

	res = newTestResolver().Resolve(extract.Record{"dodavatel": "Nemocnice Kolín"})
	assert.Equal(t, "Nemocnice Kolín", res.Authority)
	assert.Equal(t, model.Unspecified, res.Supplier)
}

func TestResolve_SwapAppliesToPublicLookingCompany(t *testing.T) {
	res := newTestResolver().Resolve(extract.Record{
		"dodavatel": "Městská správa s.r.o.",
		"zadavatel": "Stavby a.s.",
	})
	assert.Equal(t, "Městská správa s.r.o.", res.Authority)
	assert.Equal(t, "Stavby a.s.", res.Supplier)
}

func TestResolve_NoSwapWhenBothPublic(t *testing.T) {
	res := newTestResolver().Resolve(extract.Record{
		"dodavatel": "Nemocnice Kolín",
		"zadavatel": "Kraj Vysočina",
	})
	assert.Equal(t, "Nemocnice Kolín", res.Supplier)
	assert.Equal(t, "Kraj Vysočina", res.Authority)
}

func TestResolve_NoCandidates(t *testing.T) {
	res := newTestResolver().Resolve(extract.Record{"predmet": "Oprava"})
	assert.Equal(t, model.Unspecified, res.Supplier)
	assert.Equal(t, model.Unspecified, res.Authority)
	assert.False(t, res.Resolved())
}

func TestResolve_DistinctNamesNeverCollide(t *testing.T) {
	records := []extract.Record{
		{"subjekt": []any{party("A"), party("B")}},
		{"subjekt": []any{party("Obec A"), party("Obec B")}},
		{"subjekt": []any{party("X s.r.o."), party("Y a.s."), party("Z")}},
		{"dodavatel": "Kraj Vysočina", "zadavatel": "Kraj Vysočina", "subjekt": party("Jan Novák")},
		{"smluvniStrana": []any{party("Alfa", "prijemce", "1"), party("Alfa s.r.o.", "prijemce", "1")}},
		{"schvalil": "Petr", "subjekt": party("Ministerstvo vnitra"), "smluvniStrana": party("Ministerstvo obrany")},
	}
	r := newTestResolver()
	for i, rec := range records {
		res := r.Resolve(rec)
		assert.NotEqual(t, res.Supplier, res.Authority, "record %d", i)
	}
}

func TestDefaultSignals_ReturnsCopy(t *testing.T) {
	s := DefaultSignals()
	s[0].Weight = 999
	assert.Equal(t, 30, DefaultSignals()[0].Weight)
}

func TestFold(t *testing.T) {
	assert.Equal(t, "mesto kolin", Fold("  Město   KOLÍN "))
	assert.Equal(t, "zlutoucky kun", Fold("Žluťoučký kůň"))
}

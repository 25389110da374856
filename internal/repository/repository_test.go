package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ContractSync/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	s := NewStore(db)
	require.NoError(t, EnsureSchema(context.Background(), s))
	return s
}

func strPtr(s string) *string { return &s }

func newContract(title string) *model.Contract {
	return &model.Contract{
		Title:         title,
		Amount:        decimal.RequireFromString("125000.50"),
		Category:      "nábytek",
		EffectiveDate: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
		Supplier:      "ACME s.r.o.",
		SupplierICO:   strPtr("12345678"),
		Authority:     "Ministerstvo financí",
		ProcedureType: "VZMR",
	}
}

func countContracts(t *testing.T, s Store) int64 {
	var n int64
	require.NoError(t, s.DB().Model(&model.Contract{}).Count(&n).Error)
	return n
}

func TestReconcile_IdempotentByExternalID(t *testing.T) {
	s := setupTestStore(t)
	repo := NewContractRepository(s)
	ctx := context.Background()

	c := newContract("Dodávka nábytku")
	c.ExternalID = strPtr("4417")
	first, err := repo.Reconcile(ctx, c)
	require.NoError(t, err)
	assert.True(t, first.IsNew)

	again := newContract("Dodávka nábytku (oprava)")
	again.ExternalID = strPtr("4417")
	second, err := repo.Reconcile(ctx, again)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), countContracts(t, s))

	var stored model.Contract
	require.NoError(t, s.DB().First(&stored, first.ID).Error)
	assert.Equal(t, "Dodávka nábytku (oprava)", stored.Title)
	assert.Equal(t, c.ContractUUID, stored.ContractUUID)
}

func TestReconcile_IdempotentByCompositeMatch(t *testing.T) {
	s := setupTestStore(t)
	repo := NewContractRepository(s)
	ctx := context.Background()

	first, err := repo.Reconcile(ctx, newContract("Oprava mostu"))
	require.NoError(t, err)
	assert.True(t, first.IsNew)

	// jiný den v rámci tolerance
	shifted := newContract("Oprava mostu")
	shifted.EffectiveDate = shifted.EffectiveDate.Add(20 * time.Hour)
	second, err := repo.Reconcile(ctx, shifted)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.ID, second.ID)

	far := newContract("Oprava mostu")
	far.EffectiveDate = far.EffectiveDate.AddDate(0, 0, 3)
	third, err := repo.Reconcile(ctx, far)
	require.NoError(t, err)
	assert.True(t, third.IsNew)
	assert.Equal(t, int64(2), countContracts(t, s))
}

func TestReconcile_CompositeIgnoresRowsOwnedByOtherExternalID(t *testing.T) {
	s := setupTestStore(t)
	repo := NewContractRepository(s)
	ctx := context.Background()

	a := newContract("Servis")
	a.ExternalID = strPtr("1")
	_, err := repo.Reconcile(ctx, a)
	require.NoError(t, err)

	b := newContract("Servis")
	b.ExternalID = strPtr("2")
	res, err := repo.Reconcile(ctx, b)
	require.NoError(t, err)
	assert.True(t, res.IsNew)
}

func TestReconcile_CoordinatesOnlyFilledWhenMissing(t *testing.T) {
	s := setupTestStore(t)
	repo := NewContractRepository(s)
	ctx := context.Background()

	lat, lng := 50.08, 14.42
	c := newContract("Úklid")
	c.ExternalID = strPtr("77")
	c.Lat, c.Lng = &lat, &lng
	res, err := repo.Reconcile(ctx, c)
	require.NoError(t, err)

	otherLat, otherLng := 49.19, 16.6
	again := newContract("Úklid")
	again.ExternalID = strPtr("77")
	again.Lat, again.Lng = &otherLat, &otherLng
	_, err = repo.Reconcile(ctx, again)
	require.NoError(t, err)

	var stored model.Contract
	require.NoError(t, s.DB().First(&stored, res.ID).Error)
	require.True(t, stored.HasCoordinates())
	assert.InDelta(t, lat, *stored.Lat, 1e-9)
	assert.InDelta(t, lng, *stored.Lng, 1e-9)
}

func TestReconcile_PersistenceErrorIsReturned(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "contracts"`).WillReturnError(errors.New("connection reset by peer"))

	c := newContract("X")
	c.ExternalID = strPtr("9")
	_, err = NewContractRepository(NewStore(db)).Reconcile(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSupplierRefs(t *testing.T) {
	s := setupTestStore(t)
	repo := NewContractRepository(s)
	ctx := context.Background()

	var ids []uint64
	for i, sup := range []string{"ACME s.r.o.", "ACME s.r.o.", model.Unspecified, "Beta a.s."} {
		c := newContract("Zakázka")
		c.ExternalID = strPtr(string(rune('a' + i)))
		c.Supplier = sup
		if sup == "Beta a.s." {
			c.SupplierICO = nil
		}
		res, err := repo.Reconcile(ctx, c)
		require.NoError(t, err)
		ids = append(ids, res.ID)
	}

	refs, err := repo.ListSupplierRefs(ctx, ids[:3])
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "ACME s.r.o.", refs[0].Name)
	require.NotNil(t, refs[0].ICO)
	assert.Equal(t, "12345678", *refs[0].ICO)

	all, err := repo.ListSupplierRefs(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListIDsWithoutAmendments(t *testing.T) {
	s := setupTestStore(t)
	repo := NewContractRepository(s)
	amRepo := NewAmendmentRepository(s.DB())
	ctx := context.Background()

	a, err := repo.Reconcile(ctx, newContract("A"))
	require.NoError(t, err)
	b, err := repo.Reconcile(ctx, newContract("B"))
	require.NoError(t, err)
	require.NoError(t, amRepo.CreateBatch(ctx, []*model.Amendment{{
		ContractID:    a.ID,
		Amount:        decimal.NewFromInt(100),
		EffectiveDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Synthetic:     true,
	}}))

	ids, err := repo.ListIDsWithoutAmendments(ctx, []uint64{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, []uint64{b.ID}, ids)

	all, err := repo.ListIDsWithoutAmendments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{b.ID}, all)

	n, err := amRepo.CountByContract(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSupplierInsertIgnore(t *testing.T) {
	s := setupTestStore(t)
	repo := NewSupplierRepository(s.DB())
	ctx := context.Background()

	created, err := repo.InsertIgnore(ctx, &model.Supplier{Name: "ACME s.r.o.", ICO: strPtr("12345678")})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.InsertIgnore(ctx, &model.Supplier{Name: "ACME s.r.o."})
	require.NoError(t, err)
	assert.False(t, created)

	created, err = repo.InsertIgnore(ctx, &model.Supplier{Name: "ACME spol. s r.o.", ICO: strPtr("12345678")})
	require.NoError(t, err)
	assert.False(t, created)

	got, err := repo.FindByICO(ctx, "12345678")
	require.NoError(t, err)
	assert.Equal(t, "ACME s.r.o.", got.Name)

	_, err = repo.FindByName(ctx, "Nikdo")
	assert.ErrorIs(t, err, ErrNotFound)

	seen := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RefreshMetadata(ctx, got, strPtr("87654321"), seen))
	got, err = repo.FindByName(ctx, "ACME s.r.o.")
	require.NoError(t, err)
	require.NotNil(t, got.LastSeenAt)
	assert.True(t, seen.Equal(*got.LastSeenAt))
	assert.Equal(t, "12345678", *got.ICO)
}

func TestResolveTable_CaseVariants(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	name, err := s.ResolveTable(ctx, "contracts")
	require.NoError(t, err)
	assert.Equal(t, "contracts", name)

	_, err = s.Exec(ctx, `CREATE TABLE "Legacy" (id integer)`)
	require.NoError(t, err)
	name, err = s.ResolveTable(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, "Legacy", name)

	_, err = s.ResolveTable(ctx, "missing_table")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestChunk(t *testing.T) {
	ids := make([]uint64, 1201)
	parts := chunk(ids, 500)
	require.Len(t, parts, 3)
	assert.Len(t, parts[2], 201)
	assert.Nil(t, chunk(nil, 500))
}

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		Conn:       db,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open gorm db: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return gormDB, mock, cleanup
}

// donorColumns 返回 donors 表的所有列名
func donorColumns() []string {
	return []string{
		"id", "donor_id", "display_name", "status", "available_balance",
		"preferences", "created_at", "updated_at",
	}
}

func TestDonorRepository_GetByDonorID_Success(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewDonorRepository(db)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	rows := sqlmock.NewRows(donorColumns()).AddRow(
		1, "DNR-001", "Fondazione Aurora", "active", "2500.000000000000000000",
		`{"categories":["healthcare"]}`, now, now,
	)

	mock.ExpectQuery(`SELECT \* FROM "donors" WHERE donor_id = \$1 ORDER BY "donors"\."id" LIMIT \$2`).
		WithArgs("DNR-001", 1).
		WillReturnRows(rows)

	donor, err := repo.GetByDonorID(ctx, "DNR-001")

	assert.NoError(t, err)
	assert.NotNil(t, donor)
	assert.Equal(t, "DNR-001", donor.DonorID)
	assert.True(t, donor.AvailableBalance.Equal(decimal.NewFromInt(2500)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRepository_GetByDonorID_NotFound(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewDonorRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM "donors" WHERE donor_id = \$1 ORDER BY "donors"\."id" LIMIT \$2`).
		WithArgs("DNR-404", 1).
		WillReturnError(gorm.ErrRecordNotFound)

	donor, err := repo.GetByDonorID(ctx, "DNR-404")

	assert.Nil(t, donor)
	assert.ErrorIs(t, err, ErrDonorNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRepository_FindByDonorID_Missing(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewDonorRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM "donors" WHERE donor_id = \$1 ORDER BY "donors"\."id" LIMIT \$2`).
		WithArgs("DNR-404", 1).
		WillReturnError(gorm.ErrRecordNotFound)

	donor, err := repo.FindByDonorID(ctx, "DNR-404")

	assert.NoError(t, err)
	assert.Nil(t, donor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRepository_Create_Success(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewDonorRepository(db)
	ctx := context.Background()

	donor := &model.Donor{
		DonorID:          "DNR-001",
		DisplayName:      "Fondazione Aurora",
		Status:           model.DonorStatusActive,
		AvailableBalance: decimal.NewFromInt(2500),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "donors"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.Create(ctx, donor)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRepository_Create_Duplicate(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewDonorRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "donors"`).
		WillReturnError(errors.New(`duplicate key value violates unique constraint "idx_donors_donor_id"`))
	mock.ExpectRollback()

	err := repo.Create(ctx, &model.Donor{DonorID: "DNR-001"})

	assert.ErrorIs(t, err, ErrDonorDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRepository_ListActive_Success(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewDonorRepository(db)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	rows := sqlmock.NewRows(donorColumns()).AddRow(
		1, "DNR-001", "Fondazione Aurora", "active", "2500", "", now, now,
	).AddRow(
		2, "DNR-002", "Associazione Ponte", "active", "800", "", now, now,
	)

	mock.ExpectQuery(`SELECT \* FROM "donors" WHERE status = \$1 ORDER BY donor_id ASC`).
		WithArgs("active").
		WillReturnRows(rows)

	donors, err := repo.ListActive(ctx)

	assert.NoError(t, err)
	assert.Len(t, donors, 2)
	assert.Equal(t, "DNR-001", donors[0].DonorID)
	assert.Equal(t, "DNR-002", donors[1].DonorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRepository_SetBalance_Success(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewDonorRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "donors" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SetBalance(ctx, "DNR-001", decimal.NewFromInt(1200))

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRepository_SetBalance_NotFound(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewDonorRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "donors" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.SetBalance(ctx, "DNR-404", decimal.NewFromInt(1200))

	assert.ErrorIs(t, err, ErrDonorNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRepository_AdjustBalance_Success(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewDonorRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "donors" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.AdjustBalance(ctx, "DNR-001", decimal.NewFromInt(300))

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRepository_UpdatePreferences_Success(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewDonorRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "donors" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdatePreferences(ctx, "DNR-001", &model.DonorPreferences{
		Categories: []string{model.CategoryHealthcare, model.CategoryEducation},
		Locations:  []string{"Milano"},
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

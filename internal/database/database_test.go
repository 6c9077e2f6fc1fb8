package database_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/go-identity/internal/database"
	"github.com/hugh/go-identity/internal/database/models"
	"github.com/hugh/go-identity/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func rawUser(username string) *models.User {
	return &models.User{
		ID:        uuid.NewString(),
		CompanyID: uuid.NewString(),
		AddressID: uuid.NewString(),
		Hash:      "h",
		Username:  username,
	}
}

func TestAutoMigrate_UsernameUniqueIgnoresCase(t *testing.T) {
	db := testutil.SetupTestDB(t)

	require.NoError(t, db.Create(rawUser("alice")).Error)

	err := db.Create(rawUser("ALICE")).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	require.NoError(t, db.Create(rawUser("bob")).Error)
}

func TestAutoMigrate_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	assert.NoError(t, database.AutoMigrate(db))
}

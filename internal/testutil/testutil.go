package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/go-identity/internal/auth"
	"github.com/hugh/go-identity/internal/credentials"
	"github.com/hugh/go-identity/internal/database"
	"github.com/hugh/go-identity/internal/database/models"
	"github.com/hugh/go-identity/internal/directory"
	"github.com/hugh/go-identity/internal/mail"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPassword is the password of every user made by CreateTestUser.
const TestPassword = "testpassword123"

// SetupTestDB creates a migrated and seeded in-memory SQLite database. The shared-cache DSN lets
// concurrent goroutines in one test see the same data.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	if err := database.SeedGroups(context.Background(), db); err != nil {
		t.Fatalf("failed to seed groups: %v", err)
	}

	return db
}

// DiscardLogger drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreateTestUser inserts an active user of role in companyID with TestPassword.
func CreateTestUser(t *testing.T, db *gorm.DB, companyID, role string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	suffix := uuid.NewString()[:8]
	email := "test-" + suffix + "@example.com"
	user := &models.User{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		AddressID: uuid.NewString(),
		Hash:      string(hash),
		Username:  "user-" + suffix,
		FullName:  "Test User",
		Email:     &email,
		Active:    true,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Address{ID: user.AddressID}).Error; err != nil {
			return err
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&models.UserGroup{UserID: user.ID, GroupID: models.GroupIDForRole(role)}).Error
	})
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// MailRecorder collects sent messages.
type MailRecorder struct {
	Messages []mail.Message
	Err      error
}

func (m *MailRecorder) Send(_ context.Context, msg mail.Message) error {
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, msg)
	return nil
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Tokens     *credentials.GormStore
	Directory  *directory.Directory
	Service    *auth.Service
	Mail       *MailRecorder
	CompanyID  string
}

// NewTestContext wires the directory, token store and auth service over a fresh database.
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	tokens := credentials.NewGormStore(db)
	dir := directory.New(db, directory.WithBcryptCost(bcrypt.MinCost), directory.WithLogger(DiscardLogger()))
	recorder := &MailRecorder{}

	svc := auth.NewService(dir, tokens, jwtService,
		auth.WithBcryptCost(bcrypt.MinCost),
		auth.WithMailer(recorder),
		auth.WithLogger(DiscardLogger()),
		auth.WithInviteLink("https://app.example.com/start"),
	)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Tokens:     tokens,
		Directory:  dir,
		Service:    svc,
		Mail:       recorder,
		CompanyID:  uuid.NewString(),
	}
}

// Login issues a stored token for user through the service.
func (ts *TestSetup) Login(t *testing.T, user *models.User) string {
	t.Helper()

	token, err := ts.Service.Login(context.Background(), auth.LoginInput{
		Username: user.Username,
		Password: TestPassword,
	})
	if err != nil {
		t.Fatalf("failed to log in test user: %v", err)
	}
	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

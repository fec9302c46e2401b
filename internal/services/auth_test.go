package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAuthTestConfig() {
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 1)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("argon2.salt_length", 16)
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig()

	hash, err := hashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotContains(t, hash, "s3cret-pass")

	assert.True(t, verifyPassword("s3cret-pass", hash))
	assert.False(t, verifyPassword("wrong-pass", hash))
	assert.False(t, verifyPassword("s3cret-pass", "not$a$hash"))

	// Salted: same password, different hash.
	hash2, err := hashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestGenerateJWT(t *testing.T) {
	setAuthTestConfig()

	tokenString, err := generateJWT(42)
	require.NoError(t, err)

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, float64(42), claims["user_id"])
}

func TestAuthService_Login(t *testing.T) {
	setAuthTestConfig()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuthService(db, nil)

	hash, err := hashPassword("s3cret-pass")
	require.NoError(t, err)

	t.Run("valid credentials return a token", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, first_name, last_name, password").
			WithArgs("user@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "password"}).
				AddRow(42, "user@example.com", "Asha", "Verma", hash))

		body, _ := json.Marshal(LoginRequest{Email: "User@Example.com", Password: "s3cret-pass"})
		r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		var resp AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, 42, resp.User.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, first_name, last_name, password").
			WithArgs("user@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "password"}).
				AddRow(42, "user@example.com", "Asha", "Verma", hash))

		body, _ := json.Marshal(LoginRequest{Email: "user@example.com", Password: "wrong-pass"})
		r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed payload is rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte(`{"email":`)))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Register(t *testing.T) {
	setAuthTestConfig()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuthService(db, nil)

	t.Run("creates the user and returns a token", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("asha@example.com", sqlmock.AnyArg(), "Asha", "Verma").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

		body, _ := json.Marshal(RegisterRequest{
			Email: "Asha@Example.com", Password: "s3cret-pass", FirstName: "Asha", LastName: "Verma",
		})
		r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		var resp AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "asha@example.com", resp.User.Email)
		assert.NotEmpty(t, resp.Token)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("short password fails validation", func(t *testing.T) {
		body, _ := json.Marshal(RegisterRequest{
			Email: "asha@example.com", Password: "abc", FirstName: "Asha", LastName: "Verma",
		})
		r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

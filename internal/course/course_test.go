package course

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursehub/internal/apperr"
	"coursehub/internal/auth"
	"coursehub/internal/money"
	"coursehub/internal/pricing"
)

var columns = []string{
	"id", "organizer_id", "title", "kind", "base_price_cents", "participant_price_cents",
	"funding_percentage", "live_commission_rate", "online_price_cents", "online_discount_percentage",
	"commission_rate", "created_at",
}

func setupMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewRepository(sqlxDB), mock, func() { sqlxDB.Close() }
}

func TestGetByIDScansNullablePricing(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectQuery(`SELECT .* FROM courses WHERE id = \$1`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			5, 3, "Welding basics", "stationary", 100000, nil,
			[]byte("80.00"), nil, nil, nil,
			nil, time.Now(),
		))

	c, err := repo.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, KindStationary, c.Kind)
	assert.Equal(t, money.Cents(100000), c.BasePrice)
	assert.Nil(t, c.ParticipantPrice)
	require.NotNil(t, c.FundingPercentage)
	assert.Equal(t, money.Pct(80), *c.FundingPercentage)
	assert.Nil(t, c.LiveCommissionRate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectQuery(`SELECT .* FROM courses`).WithArgs(9).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateStoresRequest(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	discount := money.Pct(30)
	req := CreateCourseRequest{Title: "Go online", Kind: KindOnline, BasePrice: 2000, OnlineDiscountPercentage: &discount}

	mock.ExpectQuery(`INSERT INTO courses`).
		WithArgs(3, "Go online", KindOnline, money.Cents(2000), nil, nil, nil, nil, "30.00", nil).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			11, 3, "Go online", "online", 2000, nil, nil, nil, nil, []byte("30.00"), nil, time.Now(),
		))

	c, err := repo.Create(context.Background(), 3, req)
	require.NoError(t, err)
	assert.Equal(t, 11, c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type stubRepo struct {
	created *CreateCourseRequest
}

func (s *stubRepo) Create(_ context.Context, organizerID int, req CreateCourseRequest) (*Course, error) {
	s.created = &req
	return &Course{ID: 1, OrganizerID: organizerID, Title: req.Title, Kind: req.Kind, BasePrice: req.BasePrice}, nil
}

func (s *stubRepo) GetByID(context.Context, int) (*Course, error) { return nil, ErrNotFound }

func (s *stubRepo) ListByOrganizer(context.Context, int) ([]Course, error) { return []Course{}, nil }

func newTestService(repo Repository) Service {
	policy, _ := pricing.NewPolicy(pricing.StandardDefaults())
	return NewService(repo, policy)
}

func TestCreateClampsPercentages(t *testing.T) {
	repo := &stubRepo{}
	over, under := money.Pct(150), money.Pct(-5)

	_, err := newTestService(repo).Create(context.Background(), 3, CreateCourseRequest{
		Title:              "Forging",
		Kind:               KindStationary,
		BasePrice:          1000,
		FundingPercentage:  &over,
		LiveCommissionRate: &under,
	})
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, money.HundredPercent, *repo.created.FundingPercentage)
	assert.Equal(t, money.ZeroPercent, *repo.created.LiveCommissionRate)
}

func TestCreateRejectsUnpriceableCourse(t *testing.T) {
	neg := money.Cents(-1)
	funding := money.Pct(50)
	_, err := newTestService(&stubRepo{}).Create(context.Background(), 3, CreateCourseRequest{
		Title: "Broken", Kind: KindStationary, BasePrice: 1000,
		FundingPercentage: &funding, ParticipantPrice: &neg,
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = newTestService(&stubRepo{}).Create(context.Background(), 3, CreateCourseRequest{Title: "Odd", Kind: "hybrid"})
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestCreateCourseHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(newTestService(&stubRepo{}))
	r := gin.New()
	r.Use(func(c *gin.Context) {
		auth.SetSession(c, 3, auth.RoleOrganizer)
		c.Next()
	})
	r.POST("/courses", h.CreateCourse)

	body := `{"title":"Go online","kind":"online","base_price_cents":1000,"commission_rate":12.5}`
	req := httptest.NewRequest("POST", "/courses", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var c Course
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, 3, c.OrganizerID)
	assert.Equal(t, KindOnline, c.Kind)

	req = httptest.NewRequest("POST", "/courses", bytes.NewBufferString(`{"title":"x","kind":"online"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

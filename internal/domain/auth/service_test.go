package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
)

type fakeOperatorRepo struct {
	byLogin map[string]*Operator
	byID    map[id.ID]*Operator
}

func newFakeOperatorRepo() *fakeOperatorRepo {
	return &fakeOperatorRepo{
		byLogin: make(map[string]*Operator),
		byID:    make(map[id.ID]*Operator),
	}
}

func (r *fakeOperatorRepo) Create(ctx context.Context, op *Operator) error {
	r.byLogin[op.Login] = op
	r.byID[op.ID] = op
	return nil
}

func (r *fakeOperatorRepo) GetByID(ctx context.Context, operatorID id.ID) (*Operator, error) {
	op, ok := r.byID[operatorID]
	if !ok {
		return nil, apperror.NewNotFound("operator", operatorID.String())
	}
	return op, nil
}

func (r *fakeOperatorRepo) GetByLogin(ctx context.Context, login string) (*Operator, error) {
	op, ok := r.byLogin[login]
	if !ok {
		return nil, apperror.NewNotFound("operator", login)
	}
	return op, nil
}

func (r *fakeOperatorRepo) Update(ctx context.Context, op *Operator) error {
	r.byLogin[op.Login] = op
	r.byID[op.ID] = op
	return nil
}

func (r *fakeOperatorRepo) List(ctx context.Context, filter OperatorFilter) ([]Operator, int, error) {
	var out []Operator
	for _, op := range r.byID {
		out = append(out, *op)
	}
	return out, len(out), nil
}

func (r *fakeOperatorRepo) Exists(ctx context.Context, login string) (bool, error) {
	_, ok := r.byLogin[login]
	return ok, nil
}

func newTestService(t *testing.T) (*Service, *fakeOperatorRepo) {
	t.Helper()
	repo := newFakeOperatorRepo()
	jwtSvc := NewJWTService(DefaultJWTConfig("test-secret"))
	return NewService(repo, jwtSvc, DefaultServiceConfig()), repo
}

func seedOperator(t *testing.T, repo *fakeOperatorRepo, login, pin string, series int) *Operator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	require.NoError(t, err)
	op := NewOperator(id.New(), login, "Maria", string(hash))
	op.ReceiptSeries = series
	require.NoError(t, repo.Create(context.Background(), op))
	return op
}

func TestLogin_Success(t *testing.T) {
	svc, repo := newTestService(t)
	op := seedOperator(t, repo, "maria", "1234", 3)

	session, err := svc.Login(context.Background(), Credentials{Login: "maria", PIN: "1234"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "Bearer", session.TokenType)
	assert.Equal(t, op.ID, session.Operator.ID)
	assert.NotNil(t, op.LastLoginAt)

	opCtx, err := svc.ValidateToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, op.ID.String(), opCtx.OperatorID)
	assert.Equal(t, op.CompanyID.String(), opCtx.CompanyID)
	assert.Equal(t, 3, opCtx.ReceiptSeries)
	assert.NotEmpty(t, opCtx.SessionID)
}

func TestLogin_WrongPIN(t *testing.T) {
	svc, repo := newTestService(t)
	op := seedOperator(t, repo, "maria", "1234", 1)

	_, err := svc.Login(context.Background(), Credentials{Login: "maria", PIN: "9999"})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeUnauthorized))
	assert.Equal(t, 1, op.FailedPINAttempts)
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	svc, repo := newTestService(t)
	seedOperator(t, repo, "maria", "1234", 1)

	for i := 0; i < 5; i++ {
		_, err := svc.Login(context.Background(), Credentials{Login: "maria", PIN: "0000"})
		require.Error(t, err)
	}

	// Even the right PIN is refused while locked.
	_, err := svc.Login(context.Background(), Credentials{Login: "maria", PIN: "1234"})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeForbidden))
}

func TestLogin_DisabledOperator(t *testing.T) {
	svc, repo := newTestService(t)
	op := seedOperator(t, repo, "maria", "1234", 1)
	op.IsActive = false

	_, err := svc.Login(context.Background(), Credentials{Login: "maria", PIN: "1234"})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeForbidden))
}

func TestValidateToken_Invalid(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeUnauthorized))
}

func TestValidateToken_WrongSecret(t *testing.T) {
	repo := newFakeOperatorRepo()
	issuer := NewService(repo, NewJWTService(DefaultJWTConfig("secret-a")), DefaultServiceConfig())
	verifier := NewService(repo, NewJWTService(DefaultJWTConfig("secret-b")), DefaultServiceConfig())

	seedOperator(t, repo, "maria", "1234", 1)
	session, err := issuer.Login(context.Background(), Credentials{Login: "maria", PIN: "1234"})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(session.Token)
	require.Error(t, err)
}

func TestCreateOperator(t *testing.T) {
	svc, _ := newTestService(t)
	companyID := id.New()

	op, err := svc.CreateOperator(context.Background(), companyID, "joao", "Joao", "4321", 2, false)
	require.NoError(t, err)
	assert.Equal(t, companyID, op.CompanyID)
	assert.Equal(t, 2, op.ReceiptSeries)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(op.PINHash), []byte("4321")))

	_, err = svc.CreateOperator(context.Background(), companyID, "joao", "Other", "5678", 1, false)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))

	_, err = svc.CreateOperator(context.Background(), companyID, "ana", "Ana", "12", 1, false)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestChangePIN(t *testing.T) {
	svc, repo := newTestService(t)
	op := seedOperator(t, repo, "maria", "1234", 1)

	err := svc.ChangePIN(context.Background(), op.ID, "0000", "5678")
	require.Error(t, err, "current pin must match")

	err = svc.ChangePIN(context.Background(), op.ID, "1234", "5678")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), Credentials{Login: "maria", PIN: "5678"})
	require.NoError(t, err)
}

func TestOperatorLockExpiry(t *testing.T) {
	op := NewOperator(id.New(), "maria", "Maria", "hash")
	past := time.Now().Add(-time.Minute)
	op.LockedUntil = &past

	assert.False(t, op.IsLocked())
	assert.NoError(t, op.CanLogin())
}

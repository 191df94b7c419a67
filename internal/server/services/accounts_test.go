package services

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authsync/internal/common"
	"github.com/dmitrijs2005/authsync/internal/logging"
	"github.com/dmitrijs2005/authsync/internal/server/auth"
	"github.com/dmitrijs2005/authsync/internal/server/events"
	"github.com/dmitrijs2005/authsync/internal/server/events/membus"
	"github.com/dmitrijs2005/authsync/internal/server/models"
	"github.com/dmitrijs2005/authsync/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/authsync/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- helpers ---

type fixture struct {
	svc       *AccountService
	broker    *membus.Broker
	publisher *membus.Publisher
	issuer    *auth.TokenIssuer
	manager   repomanager.RepositoryManager
}

func newFixture(t *testing.T, m repomanager.RepositoryManager) *fixture {
	t.Helper()

	issuer, err := auth.NewTokenIssuer("test-secret", "authsync", "authsync-clients", time.Hour)
	require.NoError(t, err)

	broker := membus.NewBroker()
	pub := membus.NewPublisher(broker, events.AccountCreatedQueue)
	require.NoError(t, pub.Connect(context.Background()))

	svc := NewAccountService(m, auth.NewPasswordHasher(bcrypt.MinCost), issuer, pub, logging.Nop(), time.Second)
	return &fixture{svc: svc, broker: broker, publisher: pub, issuer: issuer, manager: m}
}

func newMemoryFixture(t *testing.T) *fixture {
	return newFixture(t, repomanager.NewInMemoryRepositoryManager())
}

type brokenRepo struct{ err error }

func (r brokenRepo) Exists(context.Context, string) (bool, error) { return false, r.err }
func (r brokenRepo) Insert(context.Context, *models.Account) (*models.Account, error) {
	return nil, r.err
}
func (r brokenRepo) FindByEmail(context.Context, string) (*models.Account, error) { return nil, r.err }
func (r brokenRepo) DeleteByEmail(context.Context, string) (bool, error)         { return false, r.err }

type brokenManager struct{ repo brokenRepo }

func (m brokenManager) RunMigrations(context.Context) error { return nil }
func (m brokenManager) Accounts() accounts.Repository      { return m.repo }
func (m brokenManager) WithinTx(ctx context.Context, fn func(context.Context, accounts.Repository) error) error {
	return fn(ctx, m.repo)
}
func (m brokenManager) Close() error { return nil }

// --- Register ---

func TestRegister_StoresAndAnnounces(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	acc, err := f.svc.Register(ctx, "alice@example.com", "Secret1!", "alice")
	require.NoError(t, err)
	assert.NotZero(t, acc.ID)
	assert.Equal(t, "alice@example.com", acc.Email)
	assert.NotEqual(t, "Secret1!", acc.PasswordHash)

	published := f.broker.Ready(events.AccountCreatedQueue)
	require.Len(t, published, 1)
	assert.JSONEq(t, `{"accountId":`+strconv.FormatInt(acc.ID, 10)+`,"displayName":"alice","email":"alice@example.com"}`, string(published[0]))
}

func TestRegister_Validation(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	tests := []struct {
		name, email, password string
	}{
		{"empty email", "", "Secret1!"},
		{"blank email", "   ", "Secret1!"},
		{"empty password", "a@example.com", ""},
		{"blank password", "a@example.com", "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.email, tt.password, "a")
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
	assert.Empty(t, f.broker.Ready(events.AccountCreatedQueue))
}

func TestRegister_Duplicate(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "alice@example.com", "Secret1!", "alice")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "alice@example.com", "Other2?", "alice2")
	assert.ErrorIs(t, err, common.ErrDuplicateAccount)

	_, err = f.svc.Register(ctx, "Alice@example.com", "Other2?", "alice3")
	assert.NoError(t, err, "emails are case-sensitive")
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	f := newMemoryFixture(t)

	const n = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), "race@example.com", "Secret1!", "racer")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, common.ErrDuplicateAccount):
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, duplicates)
	assert.Len(t, f.broker.Ready(events.AccountCreatedQueue), 1)
}

func TestRegister_PublishFailureIsSwallowed(t *testing.T) {
	f := newMemoryFixture(t)
	f.publisher.Fail(errors.New("broker unavailable"))

	acc, err := f.svc.Register(context.Background(), "bob@example.com", "Secret1!", "bob")
	require.NoError(t, err)
	require.NotNil(t, acc)

	token, err := f.svc.Authenticate(context.Background(), "bob@example.com", "Secret1!")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestRegister_DisconnectedPublisher(t *testing.T) {
	f := newMemoryFixture(t)
	require.NoError(t, f.publisher.Close())

	_, err := f.svc.Register(context.Background(), "carol@example.com", "Secret1!", "carol")
	require.NoError(t, err)
	assert.Empty(t, f.broker.Ready(events.AccountCreatedQueue))
}

func TestAnnounce_DetachedFromRequestCancellation(t *testing.T) {
	f := newMemoryFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.svc.announce(ctx, &models.Account{ID: 9, Email: "dave@example.com", DisplayName: "dave"})
	assert.Len(t, f.broker.Ready(events.AccountCreatedQueue), 1)
}

func TestRegister_StoreFailure(t *testing.T) {
	f := newFixture(t, brokenManager{repo: brokenRepo{err: errors.New("connection refused")}})

	_, err := f.svc.Register(context.Background(), "a@example.com", "Secret1!", "a")
	assert.ErrorIs(t, err, common.ErrInternal)
	assert.NotErrorIs(t, err, common.ErrDuplicateAccount)
}

func TestRegister_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	f := newFixture(t, repomanager.NewPostgresRepositoryManager(db))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`)).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO accounts (email, display_name, password_hash)`)).
		WithArgs("alice@example.com", "alice", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), time.Now()))
	mock.ExpectCommit()

	acc, err := f.svc.Register(context.Background(), "alice@example.com", "Secret1!", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5), acc.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_PostgresDuplicateRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	f := newFixture(t, repomanager.NewPostgresRepositoryManager(db))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err = f.svc.Register(context.Background(), "alice@example.com", "Secret1!", "alice")
	assert.ErrorIs(t, err, common.ErrDuplicateAccount)
	require.NoError(t, mock.ExpectationsWereMet())
}

// --- Authenticate ---

func TestAuthenticate_Success(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	acc, err := f.svc.Register(ctx, "alice@example.com", "Secret1!", "alice")
	require.NoError(t, err)

	token, err := f.svc.Authenticate(ctx, "alice@example.com", "Secret1!")
	require.NoError(t, err)

	claims, err := f.issuer.Verify(token)
	require.NoError(t, err)
	id, err := claims.AccountID()
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestAuthenticate_UnknownAndWrongPasswordAreIndistinguishable(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "alice@example.com", "Secret1!", "alice")
	require.NoError(t, err)

	_, errUnknown := f.svc.Authenticate(ctx, "nobody@example.com", "Secret1!")
	_, errWrong := f.svc.Authenticate(ctx, "alice@example.com", "wrong")

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, errUnknown, errWrong)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.ErrorIs(t, errUnknown, common.ErrInvalidCredentials)
}

func TestAuthenticate_StoreFailure(t *testing.T) {
	f := newFixture(t, brokenManager{repo: brokenRepo{err: errors.New("timeout")}})

	_, err := f.svc.Authenticate(context.Background(), "a@example.com", "Secret1!")
	assert.ErrorIs(t, err, common.ErrInternal)
}

// --- Profile ---

func TestProfile(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	acc, err := f.svc.Register(ctx, "alice@example.com", "Secret1!", "alice")
	require.NoError(t, err)
	token, err := f.svc.Authenticate(ctx, "alice@example.com", "Secret1!")
	require.NoError(t, err)

	got, err := f.svc.Profile(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, "alice", got.DisplayName)

	_, err = f.svc.Profile(ctx, "not-a-token")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	removed, err := f.svc.DeleteAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	require.True(t, removed)

	_, err = f.svc.Profile(ctx, token)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestProfile_ReRegisteredEmailRejectsOldToken(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "alice@example.com", "Secret1!", "alice")
	require.NoError(t, err)
	token, err := f.svc.Authenticate(ctx, "alice@example.com", "Secret1!")
	require.NoError(t, err)

	_, err = f.svc.DeleteAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, "alice@example.com", "Secret1!", "alice again")
	require.NoError(t, err)

	_, err = f.svc.Profile(ctx, token)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

// --- DeleteAccount ---

func TestDeleteAccount_Idempotent(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "alice@example.com", "Secret1!", "alice")
	require.NoError(t, err)

	removed, err := f.svc.DeleteAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.svc.DeleteAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDeleteAccount_StoreFailureIsTransient(t *testing.T) {
	f := newFixture(t, brokenManager{repo: brokenRepo{err: errors.New("connection reset")}})

	_, err := f.svc.DeleteAccount(context.Background(), "a@example.com")
	assert.ErrorIs(t, err, common.ErrTransient)
}

// --- end to end ---

func TestLifecycle_EndToEnd(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	acc, err := f.svc.Register(ctx, "alice@example.com", "Secret1!", "alice")
	require.NoError(t, err)

	token, err := f.svc.Authenticate(ctx, "alice@example.com", "Secret1!")
	require.NoError(t, err)
	claims, err := f.issuer.Verify(token)
	require.NoError(t, err)
	id, _ := claims.AccountID()
	assert.Equal(t, acc.ID, id)
	assert.Equal(t, "alice@example.com", claims.Email)

	source := membus.NewSource(f.broker, events.AccountDeletedQueue)
	consumer := events.NewConsumer(source, events.DeletionHandler(f.svc, logging.Nop()), logging.Nop())
	require.NoError(t, consumer.Start(ctx))
	defer func() { _ = consumer.Stop(context.Background()) }()

	drained := func() bool {
		return len(f.broker.Ready(events.AccountDeletedQueue)) == 0 && f.broker.Unacked(events.AccountDeletedQueue) == 0
	}

	require.NoError(t, f.broker.Send(ctx, events.AccountDeletedQueue, []byte(`{}`)))
	assert.Eventually(t, drained, time.Second, 5*time.Millisecond)

	_, err = f.svc.Authenticate(ctx, "alice@example.com", "Secret1!")
	require.NoError(t, err, "malformed deletion must have no effect")

	require.NoError(t, f.broker.Send(ctx, events.AccountDeletedQueue, []byte(`{"email":"alice@example.com"}`)))
	assert.Eventually(t, func() bool {
		_, err := f.svc.Authenticate(ctx, "alice@example.com", "Secret1!")
		return errors.Is(err, common.ErrInvalidCredentials)
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, drained, time.Second, 5*time.Millisecond)
}

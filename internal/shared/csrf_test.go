package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFTokenLifecycle(t *testing.T) {
	sm, _ := newManager(t)
	csrf := NewCSRFManager("csrf-secret")
	sess := load(t, sm, nil)

	token, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, token, again, "a bound token is reused")

	assert.NoError(t, csrf.VerifyToken(context.Background(), sess, token))
	assert.ErrorIs(t, csrf.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, csrf.VerifyToken(context.Background(), sess, token+"x"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, csrf.VerifyToken(context.Background(), nil, token), ErrCSRFTokenMissing)
}

func TestCSRFTokenRetiredBySignIn(t *testing.T) {
	sm, _ := newManager(t)
	csrf := NewCSRFManager("csrf-secret")
	sess := load(t, sm, nil)
	cookie := roundTrip(t, sm, sess)
	sess = load(t, sm, cookie)

	token, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	sess.SignIn(2, "bearer")

	assert.ErrorIs(t, csrf.VerifyToken(context.Background(), sess, token), ErrCSRFTokenMismatch)
	fresh, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh)
	assert.NoError(t, csrf.VerifyToken(context.Background(), sess, fresh))
}

func TestCSRFTokenFromOtherSecretRejected(t *testing.T) {
	sm, _ := newManager(t)
	sess := load(t, sm, nil)
	token, err := NewCSRFManager("one").EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.ErrorIs(t, NewCSRFManager("two").VerifyToken(context.Background(), sess, token), ErrCSRFTokenMismatch)
}

package auth_test

import (
	"testing"

	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/auth/storetest"
)

func TestMemoryStorage_Contract(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(*testing.T) auth.Storage { return auth.NewMemoryStorage() })
}

package client

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

var demoProducer = &User{ID: "u-producer", Role: RoleProducer}

func TestCompanyMissingOpensModalWithoutError(t *testing.T) {
	f := newFakeBackend(t)
	c, _ := newTestClient(f, tokenFor("u-producer"))
	notes := &recordingNotifier{}
	store := NewCompanyStore(c, notes)

	require.NoError(t, store.Refresh(context.Background(), demoProducer))
	assert.True(t, store.IsMissing())
	assert.True(t, store.ModalOpen())
	assert.Nil(t, store.Company())
	assert.False(t, store.IsLoading())
	assert.Empty(t, notes.all())
}

func TestCompanyCreateClosesModal(t *testing.T) {
	f := newFakeBackend(t)
	c, _ := newTestClient(f, tokenFor("u-producer"))
	notes := &recordingNotifier{}
	store := NewCompanyStore(c, notes)
	ctx := context.Background()
	require.NoError(t, store.Refresh(ctx, demoProducer))

	name := "Inzozi Fashion"
	company, err := store.Create(ctx, CompanyInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, company.Name)
	assert.False(t, store.IsMissing())
	assert.False(t, store.ModalOpen())
	require.Len(t, notes.all(), 1)
	assert.False(t, notes.all()[0].Error)

	// the server now has one, so a second create fails with its message
	_, err = store.Create(ctx, CompanyInput{Name: &name})
	assert.Equal(t, http.StatusConflict, StatusCode(err))
	last := notes.all()[1]
	assert.True(t, last.Error)
	assert.Equal(t, "Company already exists. Use update instead.", last.Description)

	require.NoError(t, store.Refresh(ctx, demoProducer))
	assert.Equal(t, name, store.Company().Name)
}

func TestCompanyOtherErrorsLeaveStateAlone(t *testing.T) {
	f := newFakeBackend(t)
	c, _ := newTestClient(f, tokenFor("u-producer"))
	notes := &recordingNotifier{}
	store := NewCompanyStore(c, notes)
	ctx := context.Background()

	require.NoError(t, store.Refresh(ctx, demoProducer))
	require.True(t, store.IsMissing())

	f.hook("GET /api/companies/me", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	})
	err := store.Refresh(ctx, demoProducer)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.True(t, store.IsMissing())
	assert.True(t, store.ModalOpen())
	assert.Empty(t, notes.all())
}

func TestCompanyResetsForNonProducers(t *testing.T) {
	f := newFakeBackend(t)
	c, _ := newTestClient(f, tokenFor("u-producer"))
	store := NewCompanyStore(c, nil)
	ctx := context.Background()

	require.NoError(t, store.Refresh(ctx, demoProducer))
	require.True(t, store.IsMissing())

	require.NoError(t, store.Refresh(ctx, &User{ID: "u-customer", Role: RoleCustomer}))
	assert.False(t, store.IsMissing())
	assert.False(t, store.ModalOpen())

	before := f.hit("GET /api/companies/me")
	require.NoError(t, store.Refresh(ctx, nil))
	assert.Equal(t, before, f.hit("GET /api/companies/me"))
}

package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/controltower/notifier/internal/models"
	"github.com/controltower/notifier/pkg/utils"
)

// fakeStore is an in-memory Store for engine tests
type fakeStore struct {
	mu sync.Mutex

	deployments map[string]*models.Deployment
	products    map[string]*models.Product
	usersByName map[string][]*models.User
	usersByRole map[string][]*models.User

	stateUpdates []stateUpdate
	audits       []*models.AuditEntry

	nameLookupErr error
	auditErr      error
	productErr    error
}

type stateUpdate struct {
	deploymentID string
	state        map[models.ReminderClass]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		deployments: make(map[string]*models.Deployment),
		products:    make(map[string]*models.Product),
		usersByName: make(map[string][]*models.User),
		usersByRole: make(map[string][]*models.User),
	}
}

func (f *fakeStore) addUser(name, email, role string) {
	user := &models.User{ID: name, Name: name, Email: email, Role: role, Active: true}
	f.usersByName[name] = append(f.usersByName[name], user)
	if role != "" {
		f.usersByRole[role] = append(f.usersByRole[role], user)
	}
}

func (f *fakeStore) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	if d, ok := f.deployments[id]; ok {
		return d, nil
	}
	return nil, utils.NewAppError(utils.ErrCodeNotFound, "Deployment not found", id)
}

func (f *fakeStore) ListDeployments(ctx context.Context, filter models.DeploymentFilter) ([]*models.Deployment, error) {
	var out []*models.Deployment
	for _, d := range f.deployments {
		if filter.ExcludeReleased && d.IsReleased() {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) UpdateDeploymentNotificationState(ctx context.Context, id string, state map[models.ReminderClass]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := make(map[models.ReminderClass]string, len(state))
	for k, v := range state {
		copied[k] = v
	}
	f.stateUpdates = append(f.stateUpdates, stateUpdate{deploymentID: id, state: copied})

	if d, ok := f.deployments[id]; ok {
		d.LastNotificationSent = copied
		return nil
	}
	return utils.NewAppError(utils.ErrCodeNotFound, "Deployment not found", id)
}

func (f *fakeStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if f.productErr != nil {
		return nil, f.productErr
	}
	return f.products[id], nil
}

func (f *fakeStore) FindUsersByName(ctx context.Context, name string) ([]*models.User, error) {
	if f.nameLookupErr != nil {
		return nil, f.nameLookupErr
	}
	return f.usersByName[name], nil
}

func (f *fakeStore) FindUsersByRole(ctx context.Context, role string) ([]*models.User, error) {
	return f.usersByRole[role], nil
}

func (f *fakeStore) AppendAuditLog(ctx context.Context, entry *models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.auditErr != nil {
		return f.auditErr
	}
	f.audits = append(f.audits, entry)
	return nil
}

var errLookupFailed = errors.New("directory unavailable")

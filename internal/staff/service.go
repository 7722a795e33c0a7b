package staff

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/learnhub/console/internal/permissions"
)

// RepositoryPort describes the persistence the service needs.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (permissions.Identity, error)
	List(ctx context.Context) ([]permissions.Identity, error)
	UpdateFlags(ctx context.Context, id int64, patch permissions.Flags) (permissions.Identity, error)
}

// PermissionChange is handed to the auditor after a successful write.
type PermissionChange struct {
	ActorID  int64
	TargetID int64
	Diff     permissions.Diff
}

// Auditor records permission changes out of band.
type Auditor interface {
	PermissionChanged(ctx context.Context, change PermissionChange) error
}

// Service handles staff business logic.
type Service struct {
	repo    RepositoryPort
	auditor Auditor
	logger  *slog.Logger
}

// NewService creates a new service. auditor may be nil.
func NewService(repo RepositoryPort, auditor Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, auditor: auditor, logger: logger}
}

// Get returns one staff member.
func (s *Service) Get(ctx context.Context, id int64) (permissions.Identity, error) {
	return s.repo.Get(ctx, id)
}

// List returns all staff members.
func (s *Service) List(ctx context.Context) ([]permissions.Identity, error) {
	return s.repo.List(ctx)
}

// ParsePatch turns a loosely typed body into capability flags.
func ParsePatch(raw map[string]any) (permissions.Flags, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPatch
	}
	patch := make(permissions.Flags, len(raw))
	for key, value := range raw {
		c, ok := permissions.ParseCapability(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, key)
		}
		patch[c] = permissions.NormalizeBool(value)
	}
	return patch, nil
}

// UpdatePermissions applies patch to the target and audits the resulting diff.
func (s *Service) UpdatePermissions(ctx context.Context, actorID, targetID int64, patch permissions.Flags) (permissions.Identity, error) {
	if len(patch) == 0 {
		return permissions.Identity{}, ErrEmptyPatch
	}
	for c := range patch {
		if !c.Valid() {
			return permissions.Identity{}, fmt.Errorf("%w: %s", ErrUnknownCapability, c)
		}
	}
	before, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return permissions.Identity{}, err
	}
	if before.IsSuperuser {
		return permissions.Identity{}, ErrSuperuserImmutable
	}
	after, err := s.repo.UpdateFlags(ctx, targetID, patch)
	if err != nil {
		return permissions.Identity{}, err
	}

	diff := permissions.ComputeDiff(&before, &after)
	if len(diff) > 0 && s.auditor != nil {
		change := PermissionChange{ActorID: actorID, TargetID: targetID, Diff: diff}
		if err := s.auditor.PermissionChanged(ctx, change); err != nil {
			s.logger.Warn("staff: audit permission change", slog.Int64("target_id", targetID), slog.Any("error", err))
		}
	}
	return after, nil
}

package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/learnhub/console/internal/notify"
	"github.com/learnhub/console/internal/permissions"
)

// Screen is the staff permission matrix of one browsing context.
type Screen struct {
	client   StaffClient
	emitter  Emitter
	notifier Notifier
	logger   *slog.Logger

	mu         sync.Mutex
	rows       []permissions.Identity
	processing map[int64]bool
	loaded     bool
}

// NewScreen constructs a Screen. emitter and notifier may be nil.
func NewScreen(client StaffClient, emitter Emitter, notifier Notifier, logger *slog.Logger) *Screen {
	if logger == nil {
		logger = slog.Default()
	}
	return &Screen{
		client:     client,
		emitter:    emitter,
		notifier:   notifier,
		logger:     logger,
		processing: make(map[int64]bool),
	}
}

// Load replaces the rows with a fresh, normalized list from the backend. Records without a
// usable id are skipped.
func (s *Screen) Load(ctx context.Context) error {
	records, err := s.client.FetchAllStaffPermissions(ctx)
	if err != nil {
		return fmt.Errorf("rbac: load staff: %w", err)
	}
	rows := make([]permissions.Identity, 0, len(records))
	for _, rec := range records {
		identity, err := permissions.DecodeIdentity(rec)
		if err != nil {
			s.logger.Warn("rbac: skip staff record", slog.Any("error", err))
			continue
		}
		rows = append(rows, identity)
	}
	s.mu.Lock()
	s.rows = rows
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Loaded reports whether Load has succeeded at least once.
func (s *Screen) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Rows returns a copy of the current rows in backend order.
func (s *Screen) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, 0, len(s.rows))
	for _, identity := range s.rows {
		out = append(out, Row{Identity: *identity.Clone(), Processing: s.processing[identity.ID]})
	}
	return out
}

// TogglePermission flips one flag of targetID. The row is flipped optimistically and
// locked until the backend answers. On success the returned record is merged, every other
// context is signalled and a success toast is shown; on failure the list is reloaded from
// the backend and a failure toast is shown.
func (s *Screen) TogglePermission(ctx context.Context, targetID int64, capability permissions.Capability) error {
	if !capability.Valid() {
		return ErrUnknownCapability
	}

	s.mu.Lock()
	idx := s.indexLocked(targetID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrUnknownStaff
	}
	row := &s.rows[idx]
	if row.IsSuperuser {
		s.mu.Unlock()
		return ErrSuperuserLocked
	}
	if s.processing[targetID] {
		s.mu.Unlock()
		return ErrRowBusy
	}
	prev, hadPrev := row.Flags[capability]
	next := !row.Flag(capability)
	if row.Flags == nil {
		row.Flags = make(permissions.Flags)
	}
	row.Flags[capability] = next
	name := row.DisplayName()
	s.processing[targetID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.processing, targetID)
		s.mu.Unlock()
	}()

	change := permissions.Change{Capability: capability, Granted: next}
	result, err := s.client.UpdateStaffPermission(ctx, targetID, map[permissions.Capability]bool{capability: next})
	if err == nil && result.Status != "" && result.Status != "ok" {
		err = fmt.Errorf("backend status %q", result.Status)
	}
	if err != nil {
		s.mu.Lock()
		if idx := s.indexLocked(targetID); idx >= 0 {
			if hadPrev {
				s.rows[idx].Flags[capability] = prev
			} else {
				delete(s.rows[idx].Flags, capability)
			}
		}
		s.mu.Unlock()
		// the reload may fail too; the restored value is the last known truth
		if reloadErr := s.Load(ctx); reloadErr != nil {
			s.logger.Error("rbac: reload after failed update", slog.Any("error", reloadErr))
		}
		s.push(notify.Item{
			Title:       "Update failed",
			Description: fmt.Sprintf("Could not change %s for %s: %v", capability.Label(), name, err),
			Variant:     notify.VariantDestructive,
		})
		return fmt.Errorf("rbac: update %d %s: %w", targetID, capability, err)
	}

	s.mu.Lock()
	if idx := s.indexLocked(targetID); idx >= 0 && len(result.User) > 0 {
		s.rows[idx] = permissions.MergeRecord(s.rows[idx], result.User)
	}
	s.mu.Unlock()

	if s.emitter != nil {
		if err := s.emitter.Emit(ctx); err != nil {
			s.logger.Warn("rbac: emit user-updated", slog.Any("error", err))
		}
	}
	s.push(notify.Item{
		Title:       "Permission updated",
		Description: fmt.Sprintf("%s for %s", change, name),
		Variant:     notify.VariantSuccess,
	})
	return nil
}

// IsClientError reports whether err is a caller mistake rather than a backend failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownStaff) ||
		errors.Is(err, ErrUnknownCapability) ||
		errors.Is(err, ErrSuperuserLocked) ||
		errors.Is(err, ErrRowBusy)
}

func (s *Screen) indexLocked(id int64) int {
	for i := range s.rows {
		if s.rows[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Screen) push(item notify.Item) {
	if s.notifier != nil {
		s.notifier.Push(item)
	}
}

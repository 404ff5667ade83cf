package service

import (
	"context"
	"strings"

	"chatmallu/client/internal/models"
	"chatmallu/client/internal/state"
)

// SettingsService reads and patches settings and lists chats.
type SettingsService struct {
	rt *Runtime
}

func NewSettingsService(rt *Runtime) *SettingsService {
	return &SettingsService{rt: rt}
}

func (s *SettingsService) Get() models.Settings {
	return s.rt.store.Settings()
}

func (s *SettingsService) Update(ctx context.Context, req models.UpdateSettingsRequest) (models.Settings, error) {
	var out models.Settings
	err := s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
		next := req.Apply(snap.Settings)
		next.APIBaseURL = strings.TrimRight(strings.TrimSpace(next.APIBaseURL), "/")
		if err := snap.ApplySettings(next); err != nil {
			return err
		}
		out = snap.Settings
		return nil
	})
	return out, err
}

// APIBaseURL is the inference server override, empty when unset.
func (s *SettingsService) APIBaseURL() string {
	return s.rt.store.Settings().APIBaseURL
}

func (s *SettingsService) Sidebar() []models.SidebarEntry {
	var out []models.SidebarEntry
	s.rt.store.Read(func(snap *state.Snapshot) {
		out = snap.Sidebar()
	})
	return out
}

func (s *SettingsService) Unread() map[string]int {
	out := make(map[string]int)
	s.rt.store.Read(func(snap *state.Snapshot) {
		for id, n := range snap.Unread {
			out[id] = n
		}
	})
	return out
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

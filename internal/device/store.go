package device

import (
	"context"

	"github.com/nerrad567/arylic-gateway/internal/bridges/arylic"
)

// Store adapts a Repository to arylic.KnownDeviceStore.
type Store struct {
	repo Repository
}

// NewStore wraps repo for use by the controller.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// KnownDevices returns every stored speaker as a controller identity.
func (s *Store) KnownDevices(ctx context.Context) ([]arylic.KnownDevice, error) {
	devices, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	known := make([]arylic.KnownDevice, 0, len(devices))
	for _, d := range devices {
		known = append(known, arylic.KnownDevice{
			Name:     d.Name,
			Identity: arylic.Identity{Host: d.Host, Port: d.Port},
			LastSeen: d.LastSeen,
		})
	}
	return known, nil
}

// RememberDevice stores a speaker after a completed handshake.
func (s *Store) RememberDevice(ctx context.Context, d arylic.KnownDevice) error {
	return s.repo.Upsert(ctx, KnownDevice{
		Name:     d.Name,
		Host:     d.Identity.Host,
		Port:     d.Identity.Port,
		LastSeen: d.LastSeen,
	})
}

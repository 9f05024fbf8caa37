package domain

import "time"

// SeedPair is a bettor's active server/client seed combination. The server
// seed stays secret until rotation; only its hash is published.
type SeedPair struct {
	Bettor           string
	ServerSeed       string
	HashedServerSeed string
	ClientSeed       string
	Nonce            uint64
	CreatedAt        time.Time
}

// SeedReveal exposes the server seed behind one resolved nonce. It is only
// served once HashedServerSeed is no longer the bettor's active hash.
type SeedReveal struct {
	Bettor           string
	Nonce            uint64
	ServerSeed       string
	HashedServerSeed string
	ClientSeed       string
	ExpiresAt        time.Time
}

// Expired reports whether the reveal has passed its retention window.
func (r SeedReveal) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

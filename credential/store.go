package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levee-labs/credit-gateway/domain"
)

// ErrNoActiveCredential is returned when an org has no active
// credential (managed or BYOK) for a provider.
var ErrNoActiveCredential = errors.New("no active provider credential")

type Store struct {
	pool   *pgxpool.Pool
	cipher *Cipher
}

func NewStore(pool *pgxpool.Pool, cipher *Cipher) *Store {
	return &Store{pool: pool, cipher: cipher}
}

// ActiveFor returns the credential the gateway should use for org's
// calls to provider. When more than one active BYOK row exists for the
// same org/provider pair — a case the source left unresolved — the
// most recently created one wins; this is an explicit tiebreak
// decision, not an invariant the schema enforces.
func (s *Store) ActiveFor(ctx context.Context, orgID uuid.UUID, provider string) (domain.ProviderCredential, error) {
	var c domain.ProviderCredential
	err := s.pool.QueryRow(ctx, `
		SELECT id, org_id, provider, mode, encrypted_api_key, label, is_active, created_at
		FROM provider_credentials
		WHERE org_id = $1 AND provider = $2 AND is_active = true
		ORDER BY created_at DESC
		LIMIT 1`, orgID, provider,
	).Scan(&c.ID, &c.OrgID, &c.Provider, &c.Mode, &c.EncryptedAPIKey, &c.Label, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProviderCredential{}, ErrNoActiveCredential
	}
	if err != nil {
		return domain.ProviderCredential{}, fmt.Errorf("looking up provider credential: %w", err)
	}
	return c, nil
}

// DecryptedAPIKey decrypts the credential's stored API key for use in
// an outbound provider call.
func (s *Store) DecryptedAPIKey(c domain.ProviderCredential) (string, error) {
	return s.cipher.Decrypt(c.EncryptedAPIKey)
}

// Create encrypts apiKey and persists a new credential row.
func (s *Store) Create(ctx context.Context, orgID uuid.UUID, provider string, mode domain.CredentialMode, apiKey, label string) (domain.ProviderCredential, error) {
	encrypted, err := s.cipher.Encrypt(apiKey)
	if err != nil {
		return domain.ProviderCredential{}, fmt.Errorf("encrypting credential: %w", err)
	}

	var c domain.ProviderCredential
	err = s.pool.QueryRow(ctx, `
		INSERT INTO provider_credentials (org_id, provider, mode, encrypted_api_key, label)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, org_id, provider, mode, encrypted_api_key, label, is_active, created_at`,
		orgID, provider, mode, encrypted, label,
	).Scan(&c.ID, &c.OrgID, &c.Provider, &c.Mode, &c.EncryptedAPIKey, &c.Label, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return domain.ProviderCredential{}, fmt.Errorf("creating provider credential: %w", err)
	}
	return c, nil
}

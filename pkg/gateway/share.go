package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	sameerrors "github.com/SolaceLabs/solace-agent-mesh-core/pkg/errors"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// Share access decision reasons (spec.md §4.5 "Share links and
// anonymization"), grounded on
// original_source/.../repository/entities/share.py's
// can_be_accessed_by_user.
const (
	AccessPublic               = "public"
	AccessAuthenticated        = "authenticated"
	AccessDomainMatch          = "domain_match"
	AccessDeniedAuthRequired   = "authentication_required"
	AccessDeniedDomainMismatch = "domain_mismatch"
	AccessDeniedInvalidEmail   = "invalid_email"
)

const maxAllowedDomains = 10

var domainPattern = regexp.MustCompile(
	`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// ShareLink is a shareable, read-only view of a session (spec.md §4.5),
// grounded on
// original_source/.../repository/entities/share.py's ShareLink.
type ShareLink struct {
	ShareID               string
	SessionID             types.SessionID
	UserID                string
	Title                 string
	RequireAuthentication bool
	AllowedDomains        []string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	DeletedAt             *time.Time
}

// IsDeleted reports whether the link has been soft-deleted.
func (s *ShareLink) IsDeleted() bool { return s.DeletedAt != nil }

// AccessType classifies the link's access mode: public, authenticated, or
// domain-restricted (spec.md §4.5 "three access modes").
func (s *ShareLink) AccessType() string {
	if !s.RequireAuthentication {
		return "public"
	}
	if len(s.AllowedDomains) == 0 {
		return "authenticated"
	}
	return "domain-restricted"
}

// CanBeAccessedBy reports whether a viewer identified by (userID,
// userEmail) — both empty if unauthenticated — may view this share,
// returning one of the Access* constants as the decision reason.
func (s *ShareLink) CanBeAccessedBy(userID, userEmail string) (bool, string) {
	if !s.RequireAuthentication {
		return true, AccessPublic
	}
	if userID == "" {
		return false, AccessDeniedAuthRequired
	}
	if len(s.AllowedDomains) == 0 {
		return true, AccessAuthenticated
	}
	domain, ok := extractEmailDomain(userEmail)
	if !ok {
		return false, AccessDeniedInvalidEmail
	}
	for _, allowed := range s.AllowedDomains {
		if allowed == domain {
			return true, AccessDomainMatch
		}
	}
	return false, AccessDeniedDomainMismatch
}

// CanBeModifiedBy reports whether userID owns this (non-deleted) link.
func (s *ShareLink) CanBeModifiedBy(userID string) bool {
	return s.UserID == userID && !s.IsDeleted()
}

// ShareStore is an in-memory, mutex-guarded share-link registry. The
// relational persistence layer backing share links in a full deployment is
// explicitly out of scope (spec.md §1: "the relational store beyond the
// event-buffer schema" is a fixed external collaborator); this store gives
// the Gateway's share-link operations a concrete, testable home.
type ShareStore struct {
	mu             sync.RWMutex
	byID           map[string]*ShareLink
	bySessionOwner map[string]string
}

// NewShareStore creates an empty ShareStore.
func NewShareStore() *ShareStore {
	return &ShareStore{
		byID:           make(map[string]*ShareLink),
		bySessionOwner: make(map[string]string),
	}
}

// CreateShareInput is the create-share-link operation's input.
type CreateShareInput struct {
	SessionID             types.SessionID
	UserID                string
	Title                 string
	RequireAuthentication bool
	AllowedDomains        []string
}

func sessionOwnerKey(sessionID types.SessionID, userID string) string {
	return string(sessionID) + "|" + userID
}

// Create creates a new share link, or returns the existing one for
// (sessionID, userID) if already present — matching the original's
// "return it instead of error" idempotent-create behavior.
func (s *ShareStore) Create(in CreateShareInput) (*ShareLink, error) {
	if len(in.AllowedDomains) > 0 && !in.RequireAuthentication {
		return nil, sameerrors.New(sameerrors.ProtocolError, "gateway", "CreateShareLink",
			errors.New("domain restrictions require authentication to be enabled"))
	}
	normalized, err := normalizeDomains(in.AllowedDomains)
	if err != nil {
		return nil, sameerrors.New(sameerrors.ProtocolError, "gateway", "CreateShareLink", err)
	}

	key := sessionOwnerKey(in.SessionID, in.UserID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.bySessionOwner[key]; ok {
		if existing, ok := s.byID[existingID]; ok && !existing.IsDeleted() {
			return existing, nil
		}
	}

	title := in.Title
	if title == "" {
		title = "Untitled Session"
	}
	now := time.Now()
	link := &ShareLink{
		ShareID:               generateShareID(),
		SessionID:             in.SessionID,
		UserID:                in.UserID,
		Title:                 title,
		RequireAuthentication: in.RequireAuthentication,
		AllowedDomains:        normalized,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	s.byID[link.ShareID] = link
	s.bySessionOwner[key] = link.ShareID
	return link, nil
}

// Get returns the share link by id, including soft-deleted ones (callers
// check IsDeleted).
func (s *ShareStore) Get(shareID string) (*ShareLink, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.byID[shareID]
	return link, ok
}

// GetForSession returns the (non-deleted) share link owned by userID for sessionID, if any.
func (s *ShareStore) GetForSession(sessionID types.SessionID, userID string) (*ShareLink, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySessionOwner[sessionOwnerKey(sessionID, userID)]
	if !ok {
		return nil, false
	}
	link, ok := s.byID[id]
	if !ok || link.IsDeleted() {
		return nil, false
	}
	return link, true
}

// ListByUser returns every non-deleted share link owned by userID.
func (s *ShareStore) ListByUser(userID string) []*ShareLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ShareLink, 0)
	for _, link := range s.byID {
		if link.UserID == userID && !link.IsDeleted() {
			out = append(out, link)
		}
	}
	return out
}

// UpdateShareInput is the update-share-link operation's input. Nil fields
// leave the corresponding setting unchanged.
type UpdateShareInput struct {
	RequireAuthentication *bool
	AllowedDomains        *[]string
}

// Update applies settings changes to an owned, non-deleted share link.
func (s *ShareStore) Update(shareID, userID string, in UpdateShareInput) (*ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.byID[shareID]
	if !ok || link.IsDeleted() {
		return nil, sameerrors.New(sameerrors.NotFound, "gateway", "UpdateShareLink",
			fmt.Errorf("share link %q not found", shareID))
	}
	if !link.CanBeModifiedBy(userID) {
		return nil, sameerrors.New(sameerrors.AuthorizationError, "gateway", "UpdateShareLink",
			errors.New("not authorized to modify this share link"))
	}

	requireAuth := link.RequireAuthentication
	if in.RequireAuthentication != nil {
		requireAuth = *in.RequireAuthentication
	}
	if in.AllowedDomains != nil && len(*in.AllowedDomains) > 0 && !requireAuth {
		return nil, sameerrors.New(sameerrors.ProtocolError, "gateway", "UpdateShareLink",
			errors.New("domain restrictions require authentication to be enabled"))
	}

	if in.AllowedDomains != nil {
		normalized, err := normalizeDomains(*in.AllowedDomains)
		if err != nil {
			return nil, sameerrors.New(sameerrors.ProtocolError, "gateway", "UpdateShareLink", err)
		}
		link.AllowedDomains = normalized
	}
	link.RequireAuthentication = requireAuth
	link.UpdatedAt = time.Now()
	return link, nil
}

// Delete soft-deletes an owned share link.
func (s *ShareStore) Delete(shareID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.byID[shareID]
	if !ok || link.IsDeleted() {
		return sameerrors.New(sameerrors.NotFound, "gateway", "DeleteShareLink",
			fmt.Errorf("share link %q not found", shareID))
	}
	if !link.CanBeModifiedBy(userID) {
		return sameerrors.New(sameerrors.AuthorizationError, "gateway", "DeleteShareLink",
			errors.New("not authorized to delete this share link"))
	}
	now := time.Now()
	link.DeletedAt = &now
	link.UpdatedAt = now
	return nil
}

// generateShareID produces a URL-safe, collision-resistant share
// identifier. The original implementation uses a 21-character nanoid; no
// nanoid package is available in the dependency pack, so a UUIDv4 with its
// separators stripped is used instead — comparable entropy (122 bits),
// same URL-safe alphabet class.
func generateShareID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// BuildShareURL mirrors
// original_source/.../utils/share_utils.py's build_share_url: a
// hash-router path so the share link works against a single-page frontend
// without server-side routing.
func BuildShareURL(shareID, baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/#/share/" + shareID
}

// validateDomain checks domain against RFC 1035 label rules (grounded on
// share_utils.py's validate_domain).
func validateDomain(domain string) bool {
	if domain == "" || !strings.Contains(domain, ".") {
		return false
	}
	if strings.HasPrefix(domain, "@") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	if len(domain) > 253 || !domainPattern.MatchString(domain) {
		return false
	}
	for _, label := range strings.Split(domain, ".") {
		if len(label) > 63 {
			return false
		}
	}
	return true
}

// normalizeDomains lowercases and trims each domain, rejects more than
// maxAllowedDomains, rejects invalid formats, and rejects duplicates
// (grounded on share_utils.py's validate_domains_list).
func normalizeDomains(domains []string) ([]string, error) {
	if len(domains) == 0 {
		return nil, nil
	}
	if len(domains) > maxAllowedDomains {
		return nil, fmt.Errorf("maximum %d domains allowed", maxAllowedDomains)
	}
	seen := make(map[string]bool, len(domains))
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		normalized := strings.ToLower(strings.TrimSpace(d))
		if !validateDomain(normalized) {
			return nil, fmt.Errorf("invalid domain format: %s", d)
		}
		if seen[normalized] {
			return nil, fmt.Errorf("duplicate domain: %s", d)
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out, nil
}

// extractEmailDomain lowercases and validates the domain portion of email.
func extractEmailDomain(email string) (string, bool) {
	if email == "" || !strings.Contains(email, "@") {
		return "", false
	}
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 {
		return "", false
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))
	if !validateDomain(domain) {
		return "", false
	}
	return domain, true
}

// AnonymizeID produces a stable, non-reversible anonymized identifier for
// a shared view: same input always yields the same output within one
// process, but the original id cannot be recovered from it (grounded on
// share_utils.py's anonymize_id).
func AnonymizeID(originalID, prefix string) string {
	sum := sha256.Sum256([]byte(originalID))
	return prefix + "_" + hex.EncodeToString(sum[:])[:16]
}

// SharedMessage is one message preserved, as-is, in a shared session view.
type SharedMessage struct {
	Role  types.Role
	Parts []types.Part
}

// SharedSessionView is the anonymized, read-only rendering of a session
// for a shared link (spec.md §4.5: "Shared views anonymize user and
// session identifiers via a stable hash; message bodies are preserved.").
type SharedSessionView struct {
	ShareID      string
	Title        string
	AccessType   string
	CreatedAt    time.Time
	SessionID    string // anonymized
	UserID       string // always "anonymous"
	Messages     []SharedMessage
	ArtifactURIs []string
}

// AnonymizeSessionView builds a SharedSessionView from a live session's
// messages and produced-artifact URIs, anonymizing session/user
// identifiers while preserving message content verbatim.
func AnonymizeSessionView(link *ShareLink, messages []SharedMessage, artifactURIs []string) SharedSessionView {
	return SharedSessionView{
		ShareID:      link.ShareID,
		Title:        link.Title,
		AccessType:   link.AccessType(),
		CreatedAt:    link.CreatedAt,
		SessionID:    AnonymizeID(string(link.SessionID), "session"),
		UserID:       "anonymous",
		Messages:     messages,
		ArtifactURIs: artifactURIs,
	}
}
